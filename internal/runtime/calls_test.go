package runtime_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/callboard/internal/runtime"
	"github.com/aretw0/callboard/pkg/adapters/memory"
	"github.com/aretw0/callboard/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMakeCall_Failures(t *testing.T) {
	ctx := context.Background()

	t.Run("Empty target", func(t *testing.T) {
		c, _, rec := newCoordinator(t)
		_, err := c.MakeCall(ctx, "  ", domain.CallOptions{})
		assert.ErrorIs(t, err, domain.ErrInvalidTarget)
		assert.Empty(t, rec.all())
	})

	t.Run("Gateway rejects", func(t *testing.T) {
		c, gw, rec := newCoordinator(t)
		gw.FailNext(memory.OpPlace, errors.New("404 not found"))

		_, err := c.MakeCall(ctx, "sip:nobody@x", domain.CallOptions{Line: 2})
		var gerr *domain.GatewayError
		require.ErrorAs(t, err, &gerr)
		assert.Equal(t, "place", gerr.Op)
		assert.Equal(t, domain.LineNumber(2), gerr.Line)
		assert.ErrorIs(t, err, domain.ErrGatewayFailure)

		l, _ := c.GetLineState(2)
		assert.Equal(t, domain.StatusIdle, l.Status)
		assert.Nil(t, l.Remote)
		assert.Equal(t, []change{
			{2, domain.StatusIdle, domain.StatusBusy},
			{2, domain.StatusBusy, domain.StatusIdle},
		}, changes(rec.stateChanges()))
		assertInvariants(t, c)
	})

	t.Run("Requested line taken", func(t *testing.T) {
		c, _, _ := newCoordinator(t)
		call(t, c, 1)
		_, err := c.MakeCall(ctx, "sip:a@x", domain.CallOptions{Line: 1})
		assert.ErrorIs(t, err, domain.ErrLineNotAvailable)
	})

	t.Run("Requested line disabled", func(t *testing.T) {
		c, _, _ := newCoordinator(t)
		_, err := c.ConfigureLine(1, domain.LineConfigPatch{Enabled: ptr(false)})
		require.NoError(t, err)

		_, err = c.MakeCall(ctx, "sip:a@x", domain.CallOptions{Line: 1})
		assert.ErrorIs(t, err, domain.ErrLineDisabled)

		n, err := c.MakeCall(ctx, "sip:a@x", domain.CallOptions{})
		require.NoError(t, err)
		assert.Equal(t, domain.LineNumber(2), n)
	})

	t.Run("Requested line out of range", func(t *testing.T) {
		c, _, _ := newCoordinator(t)
		_, err := c.MakeCall(ctx, "sip:a@x", domain.CallOptions{Line: 9})
		assert.ErrorIs(t, err, domain.ErrInvalidLineNumber)
	})
}

func TestMakeCall_ResetWhileDialing(t *testing.T) {
	c, gw, _ := newCoordinator(t)
	ctx := context.Background()
	gate := gw.Block(memory.OpPlace)

	done := make(chan error, 1)
	go func() {
		_, err := c.MakeCall(ctx, "sip:slow@x", domain.CallOptions{Line: 1})
		done <- err
	}()
	<-gate.Entered()
	assert.Equal(t, domain.StatusBusy, status(t, c, 1))

	require.NoError(t, c.ResetLine(ctx, 1))
	assert.Equal(t, domain.StatusIdle, status(t, c, 1))

	gate.Release()
	assert.ErrorIs(t, <-done, domain.ErrInvalidState)
	assert.Equal(t, domain.StatusIdle, status(t, c, 1))

	// The session that resolved after the reset is ended, not leaked.
	assert.Eventually(t, func() bool {
		for _, op := range gw.Ops() {
			if strings.HasPrefix(op, "end:") {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)
	assertInvariants(t, c)
}

func TestMakeCall_RemoteHangupDuringAutoHold(t *testing.T) {
	c, gw, rec := newCoordinator(t)
	ctx := context.Background()
	first := call(t, c, 1)

	gate := gw.Block(memory.OpHold)
	done := make(chan error, 1)
	go func() {
		_, err := c.MakeCall(ctx, "sip:short@x", domain.CallOptions{Line: 2})
		done <- err
	}()
	<-gate.Entered()

	// The new call is already known by ID while line 1 is being held for it.
	dialing, err := c.GetLineState(2)
	require.NoError(t, err)
	require.NotNil(t, dialing.Session)
	assert.Equal(t, domain.StatusBusy, dialing.Status)
	s2, ok := gw.Session(dialing.CallID())
	require.True(t, ok)

	rec.reset()
	gw.SimulateRemoteHangup(s2)
	assert.Equal(t, domain.StatusIdle, status(t, c, 2))
	ended := rec.ended()
	require.Len(t, ended, 1)
	assert.Equal(t, domain.LineNumber(2), ended[0].Line)
	assert.Equal(t, domain.CauseRemoteBye, ended[0].Cause)

	gate.Release()
	assert.ErrorIs(t, <-done, domain.ErrInvalidState)
	assert.Equal(t, domain.StatusIdle, status(t, c, 2))
	_, found := c.GetLineByCallID(s2.CallID())
	assert.False(t, found)

	// Line 1 is still a real call and can be torn down normally.
	assert.Equal(t, domain.StatusHeld, status(t, c, 1))
	require.NoError(t, c.HangupCall(ctx, 1))
	s1, _ := gw.Session(first.CallID())
	assert.Nil(t, s1)
	assertInvariants(t, c)
}

func TestLineBusy(t *testing.T) {
	c, gw, _ := newCoordinator(t)
	ctx := context.Background()
	call(t, c, 1)

	gate := gw.Block(memory.OpHold)
	done := make(chan error, 1)
	go func() { done <- c.HoldLine(ctx, 1) }()
	<-gate.Entered()

	assert.ErrorIs(t, c.HangupCall(ctx, 1), domain.ErrLineBusy)
	assert.ErrorIs(t, c.SendDTMF(ctx, 1, "1"), domain.ErrLineBusy)
	assert.ErrorIs(t, c.MuteLine(ctx, 1), domain.ErrLineBusy)
	assert.ErrorIs(t, c.UnmuteLine(ctx, 1), domain.ErrLineBusy)

	// A different line proceeds independently.
	n, err := c.MakeCall(ctx, "sip:other@x", domain.CallOptions{Line: 2})
	require.NoError(t, err)
	assert.Equal(t, domain.LineNumber(2), n)

	gate.Release()
	require.NoError(t, <-done)
	assert.Equal(t, domain.StatusHeld, status(t, c, 1))
	assert.Equal(t, domain.StatusActive, status(t, c, 2))
}

func TestAnswerAndReject(t *testing.T) {
	ctx := context.Background()

	t.Run("Answer requires ringing", func(t *testing.T) {
		c, _, _ := newCoordinator(t)
		assert.ErrorIs(t, c.AnswerCall(ctx, 1, domain.AnswerOptions{}), domain.ErrInvalidState)
	})

	t.Run("Answer failure keeps ringing", func(t *testing.T) {
		c, gw, _ := newCoordinator(t)
		gw.SimulateIncoming("sip:a@x", "")
		gw.FailNext(memory.OpAnswer, errors.New("codec mismatch"))

		assert.ErrorIs(t, c.AnswerCall(ctx, 1, domain.AnswerOptions{}), domain.ErrGatewayFailure)
		assert.Equal(t, domain.StatusRinging, status(t, c, 1))
	})

	t.Run("Reject uses busy here by default", func(t *testing.T) {
		c, gw, rec := newCoordinator(t)
		s := gw.SimulateIncoming("sip:spam@x", "Spam")

		require.NoError(t, c.RejectCall(ctx, 1, 0))
		assert.Equal(t, domain.StatusIdle, status(t, c, 1))
		assert.True(t, s.Ended())

		ended := rec.ended()
		require.Len(t, ended, 1)
		assert.Equal(t, domain.CauseRejected, ended[0].Cause)
		assert.Equal(t, 0, ended[0].DurationSeconds)
		assert.Equal(t, "sip:spam@x", ended[0].RemoteURI)
		assert.Equal(t, domain.DirectionInbound, ended[0].Direction)
	})

	t.Run("Reject requires ringing", func(t *testing.T) {
		c, _, _ := newCoordinator(t)
		call(t, c, 1)
		assert.ErrorIs(t, c.RejectCall(ctx, 1, 603), domain.ErrInvalidState)
	})
}

func TestHangup(t *testing.T) {
	ctx := context.Background()

	t.Run("Duration is talk time", func(t *testing.T) {
		clock := newFakeClock()
		c, _, rec := newCoordinator(t, runtime.WithClock(clock.Now))
		call(t, c, 1)
		clock.Advance(42 * time.Second)

		require.NoError(t, c.HangupCall(ctx, 1))
		ended := rec.ended()
		require.Len(t, ended, 1)
		assert.Equal(t, 42, ended[0].DurationSeconds)
		assert.Equal(t, domain.CauseLocalHangup, ended[0].Cause)
		assert.Equal(t, domain.DirectionOutbound, ended[0].Direction)
	})

	t.Run("Ringing call has zero duration", func(t *testing.T) {
		clock := newFakeClock()
		c, gw, rec := newCoordinator(t, runtime.WithClock(clock.Now))
		gw.SimulateIncoming("sip:a@x", "")
		clock.Advance(10 * time.Second)

		require.NoError(t, c.HangupCall(ctx, 1))
		require.Len(t, rec.ended(), 1)
		assert.Equal(t, 0, rec.ended()[0].DurationSeconds)
	})

	t.Run("Idle line", func(t *testing.T) {
		c, _, _ := newCoordinator(t)
		assert.ErrorIs(t, c.HangupCall(ctx, 1), domain.ErrInvalidState)
	})

	t.Run("Gateway failure keeps the call", func(t *testing.T) {
		c, gw, rec := newCoordinator(t)
		call(t, c, 1)
		rec.reset()
		gw.FailNext(memory.OpEnd, errors.New("timeout"))

		assert.ErrorIs(t, c.HangupCall(ctx, 1), domain.ErrGatewayFailure)
		assert.Equal(t, domain.StatusActive, status(t, c, 1))
		assert.Empty(t, rec.all())
	})

	t.Run("Hangup all", func(t *testing.T) {
		c, gw, _ := newCoordinator(t, runtime.WithLineCount(3))
		call(t, c, 1)
		call(t, c, 2)
		gw.SimulateIncoming("sip:c@x", "")

		require.NoError(t, c.HangupAll(ctx))
		for _, l := range c.Lines() {
			assert.Equal(t, domain.StatusIdle, l.Status)
		}
	})

	t.Run("Hangup all joins failures", func(t *testing.T) {
		c, gw, _ := newCoordinator(t)
		call(t, c, 1)
		call(t, c, 2)
		gw.Fail(memory.OpEnd, errors.New("network down"))

		err := c.HangupAll(ctx)
		assert.ErrorIs(t, err, domain.ErrGatewayFailure)
		assert.Equal(t, domain.StatusHeld, status(t, c, 1))
		assert.Equal(t, domain.StatusActive, status(t, c, 2))
	})
}

func TestHoldUnholdRoundTrip(t *testing.T) {
	c, _, rec := newCoordinator(t)
	ctx := context.Background()
	before := call(t, c, 1)
	rec.reset()

	require.NoError(t, c.HoldLine(ctx, 1))
	assert.Equal(t, domain.StatusHeld, status(t, c, 1))
	require.NoError(t, c.UnholdLine(ctx, 1))

	after, err := c.GetLineState(1)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, after.Status)
	assert.Same(t, before.Session, after.Session)

	assert.Equal(t, []change{
		{1, domain.StatusActive, domain.StatusHeld},
		{1, domain.StatusHeld, domain.StatusActive},
	}, changes(rec.stateChanges()))
}

func TestHold_Failures(t *testing.T) {
	c, gw, _ := newCoordinator(t)
	ctx := context.Background()

	assert.ErrorIs(t, c.HoldLine(ctx, 1), domain.ErrInvalidState)
	assert.ErrorIs(t, c.UnholdLine(ctx, 1), domain.ErrInvalidState)
	assert.ErrorIs(t, c.HoldLine(ctx, 0), domain.ErrInvalidLineNumber)

	call(t, c, 1)
	gw.FailNext(memory.OpHold, errors.New("timeout"))
	assert.ErrorIs(t, c.HoldLine(ctx, 1), domain.ErrGatewayFailure)
	assert.Equal(t, domain.StatusActive, status(t, c, 1))
}

func TestToggleHold(t *testing.T) {
	c, _, _ := newCoordinator(t)
	ctx := context.Background()

	assert.ErrorIs(t, c.ToggleHoldLine(ctx, 1), domain.ErrInvalidState)

	call(t, c, 1)
	require.NoError(t, c.ToggleHoldLine(ctx, 1))
	assert.Equal(t, domain.StatusHeld, status(t, c, 1))
	require.NoError(t, c.ToggleHoldLine(ctx, 1))
	assert.Equal(t, domain.StatusActive, status(t, c, 1))
}

func TestMute(t *testing.T) {
	c, gw, rec := newCoordinator(t)
	ctx := context.Background()

	assert.ErrorIs(t, c.MuteLine(ctx, 1), domain.ErrInvalidState)

	l := call(t, c, 1)
	s, _ := gw.Session(l.CallID())
	rec.reset()

	require.NoError(t, c.MuteLine(ctx, 1))
	muted, _ := c.GetLineState(1)
	assert.True(t, muted.Muted)
	assert.Equal(t, domain.StatusActive, muted.Status)
	assert.True(t, s.Muted())
	assert.Empty(t, rec.all(), "mute is not a state transition")

	require.NoError(t, c.UnmuteLine(ctx, 1))
	assert.False(t, s.Muted())

	require.NoError(t, c.MuteLine(ctx, 1))
	require.NoError(t, c.HangupCall(ctx, 1))
	cleared, _ := c.GetLineState(1)
	assert.False(t, cleared.Muted)
}

func TestSendDTMF(t *testing.T) {
	c, gw, _ := newCoordinator(t)
	ctx := context.Background()

	assert.ErrorIs(t, c.SendDTMF(ctx, 1, "1"), domain.ErrInvalidState)

	l := call(t, c, 1)
	s, _ := gw.Session(l.CallID())

	require.NoError(t, c.SendDTMF(ctx, 1, "12#*a"))
	assert.Equal(t, "12#*A", s.Digits())

	assert.ErrorIs(t, c.SendDTMF(ctx, 1, "12x"), domain.ErrInvalidDigit)
	assert.ErrorIs(t, c.SendDTMF(ctx, 1, ""), domain.ErrInvalidDigit)
	assert.Equal(t, "12#*A", s.Digits(), "nothing is sent when validation fails")

	require.NoError(t, c.HoldLine(ctx, 1))
	assert.ErrorIs(t, c.SendDTMF(ctx, 1, "5"), domain.ErrInvalidState)

	require.NoError(t, c.UnholdLine(ctx, 1))
	gw.FailNext(memory.OpSendDigit, errors.New("no rtp"))
	assert.ErrorIs(t, c.SendDTMF(ctx, 1, "5"), domain.ErrGatewayFailure)
}

func TestGetLineStats(t *testing.T) {
	c, gw, _ := newCoordinator(t)
	ctx := context.Background()

	_, err := c.GetLineStats(ctx, 1)
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	l := call(t, c, 1)
	stats, err := c.GetLineStats(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, l.CallID(), stats.CallID)
	assert.NotZero(t, stats.PacketsSent)

	gw.FailNext(memory.OpGetStats, errors.New("gone"))
	_, err = c.GetLineStats(ctx, 1)
	assert.ErrorIs(t, err, domain.ErrGatewayFailure)
}

func TestResetLine(t *testing.T) {
	ctx := context.Background()

	t.Run("Idempotent", func(t *testing.T) {
		c, gw, rec := newCoordinator(t)
		l := call(t, c, 1)
		rec.reset()

		require.NoError(t, c.ResetLine(ctx, 1))
		first, _ := c.GetLineState(1)
		eventsAfterFirst := len(rec.all())
		require.NoError(t, c.ResetLine(ctx, 1))
		second, _ := c.GetLineState(1)

		assert.Equal(t, first, second)
		assert.Equal(t, domain.StatusIdle, second.Status)
		assert.Len(t, rec.ended(), 1)
		assert.Equal(t, domain.CauseReset, rec.ended()[0].Cause)
		assert.Len(t, rec.all(), eventsAfterFirst, "second reset emits nothing")

		s, _ := gw.Session(l.CallID())
		if s != nil {
			assert.Eventually(t, s.Ended, time.Second, 5*time.Millisecond)
		}
	})

	t.Run("Frees a stuck line", func(t *testing.T) {
		c, gw, _ := newCoordinator(t)
		call(t, c, 1)
		gate := gw.Block(memory.OpHold)
		done := make(chan error, 1)
		go func() { done <- c.HoldLine(ctx, 1) }()
		<-gate.Entered()

		require.NoError(t, c.ResetLine(ctx, 1))
		n, err := c.MakeCall(ctx, "sip:again@x", domain.CallOptions{Line: 1})
		require.NoError(t, err)
		assert.Equal(t, domain.LineNumber(1), n)

		// The stale hold resolves against a different call and is discarded.
		gate.Release()
		assert.ErrorIs(t, <-done, domain.ErrInvalidState)
		assert.Equal(t, domain.StatusActive, status(t, c, 1))

		// Its release must not free the new owner's guard.
		gate2 := gw.Block(memory.OpSendDigit)
		sent := make(chan error, 1)
		go func() { sent <- c.SendDTMF(ctx, 1, "1") }()
		<-gate2.Entered()
		assert.ErrorIs(t, c.HangupCall(ctx, 1), domain.ErrLineBusy)
		gate2.Release()
		require.NoError(t, <-sent)
	})

	t.Run("Reset all", func(t *testing.T) {
		c, gw, _ := newCoordinator(t)
		call(t, c, 1)
		gw.SimulateIncoming("sip:b@x", "")
		require.NoError(t, c.ResetAllLines(ctx))
		for _, l := range c.Lines() {
			assert.Equal(t, domain.StatusIdle, l.Status)
		}
		assertInvariants(t, c)
	})
}

func TestConfigureLine(t *testing.T) {
	c, _, _ := newCoordinator(t)

	cfg, err := c.ConfigureLine(2, domain.LineConfigPatch{
		Label:             ptr("Support"),
		AutoAnswer:        ptr(true),
		AutoAnswerDelayMs: ptr(-5),
	})
	require.NoError(t, err)
	assert.Equal(t, "Support", cfg.Label)
	assert.True(t, cfg.AutoAnswer)
	assert.Equal(t, 0, cfg.AutoAnswerDelayMs)
	assert.True(t, cfg.Enabled, "unset fields are kept")

	_, err = c.ConfigureLine(3, domain.LineConfigPatch{})
	assert.ErrorIs(t, err, domain.ErrInvalidLineNumber)
}

func ptr[T any](v T) *T { return &v }
