package domain_test

import (
	"errors"
	"testing"
	"time"

	"github.com/aretw0/callboard/pkg/domain"
	"github.com/stretchr/testify/assert"
)

func TestLineConfigPatch_Apply(t *testing.T) {
	label := "Front desk"
	off := false
	delay := 1500

	base := domain.DefaultLineConfig()
	got := domain.LineConfigPatch{Label: &label, Enabled: &off, AutoAnswerDelayMs: &delay}.Apply(base)

	assert.Equal(t, "Front desk", got.Label)
	assert.False(t, got.Enabled)
	assert.Equal(t, 1500, got.AutoAnswerDelayMs)
	assert.True(t, got.DefaultAudio, "untouched fields keep their value")
	assert.Equal(t, base, domain.LineConfigPatch{}.Apply(base))
}

func TestLine_Helpers(t *testing.T) {
	answered := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	l := domain.Line{Number: 3, Status: domain.StatusActive, AnsweredAt: &answered, Config: domain.DefaultLineConfig()}

	assert.Equal(t, 90*time.Second, l.Duration(answered.Add(90*time.Second)))
	assert.Equal(t, "", l.CallID())
	assert.False(t, l.Available())
	assert.Equal(t, "line 3 (active)", l.String())

	idle := domain.Line{Number: 1, Status: domain.StatusIdle, Config: domain.DefaultLineConfig()}
	assert.True(t, idle.Available())
	assert.Zero(t, idle.Duration(answered))

	assert.True(t, domain.StatusHeld.HasCall())
	assert.True(t, domain.StatusBusy.HasCall())
	assert.False(t, domain.StatusError.HasCall())
}

func TestErrors_Unwrap(t *testing.T) {
	cause := errors.New("408 request timeout")

	gerr := &domain.GatewayError{Op: "hold", Line: 2, Err: cause}
	assert.ErrorIs(t, gerr, domain.ErrGatewayFailure)
	assert.ErrorIs(t, gerr, cause)
	assert.Equal(t, "gateway hold on line 2: 408 request timeout", gerr.Error())

	terr := &domain.TransferError{Phase: domain.PhaseCompletion, FromLine: 1, Err: gerr}
	assert.ErrorIs(t, terr, domain.ErrTransferFailed)
	assert.ErrorIs(t, terr, domain.ErrGatewayFailure)
	assert.ErrorIs(t, terr, cause)
}

func TestCallEndedEvent_Record(t *testing.T) {
	at := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	ev := domain.LineCallEndedEvent{
		Line: 2, CallID: "abc", DurationSeconds: 12, Cause: domain.CauseRemoteBye,
		RemoteURI: "sip:a@x", Direction: domain.DirectionInbound, Timestamp: at,
	}
	rec := ev.Record()
	assert.Equal(t, domain.LineNumber(2), rec.Line)
	assert.Equal(t, "abc", rec.CallID)
	assert.Equal(t, 12, rec.DurationSeconds)
	assert.Equal(t, at, rec.EndedAt)
}
