package runtime

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/aretw0/callboard/pkg/domain"
)

// MakeCall dials target on the requested line (or the first available one) and
// returns the line used. The line shows busy while dialing and becomes active once
// the gateway resolves; on failure it returns to idle.
func (c *Coordinator) MakeCall(ctx context.Context, target string, opts domain.CallOptions) (domain.LineNumber, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return 0, fmt.Errorf("%w: empty call target", domain.ErrInvalidTarget)
	}

	n, err := c.pickOutgoing(opts.Line)
	if err != nil {
		return 0, err
	}
	release, err := c.acquire(ctx, n)
	if err != nil {
		return 0, err
	}
	defer release()

	l := c.lines[n-1]
	var b batch
	c.mu.Lock()
	if !l.config.Enabled {
		c.mu.Unlock()
		return 0, fmt.Errorf("%w: line %d", domain.ErrLineDisabled, n)
	}
	if l.status != domain.StatusIdle {
		c.mu.Unlock()
		return 0, fmt.Errorf("%w: line %d is %s", domain.ErrLineNotAvailable, n, l.status)
	}
	if err := c.transition(&b, l, domain.TriggerDial); err != nil {
		c.mu.Unlock()
		return 0, err
	}
	now := c.now()
	l.direction = domain.DirectionOutbound
	l.remote = &domain.RemoteIdentity{URI: target}
	l.startedAt = &now
	epoch := l.epoch
	if !opts.Audio && !opts.Video {
		opts.Audio, opts.Video = l.config.DefaultAudio, l.config.DefaultVideo
	}
	opts.Line = n
	c.mu.Unlock()
	c.emit(ctx, b)

	c.logger.Debug("Placing call", "line", n, "target", target)
	session, err := c.gateway.Place(ctx, target, opts)
	if err != nil {
		// Roll back to idle unless the line was reset meanwhile.
		_ = c.commit(ctx, l, epoch, func(b *batch) error {
			if err := c.transition(b, l, domain.TriggerDialFailed); err != nil {
				return err
			}
			l.clear()
			return nil
		})
		return 0, &domain.GatewayError{Op: "place", Line: n, Err: err}
	}

	// Attach the session while still dialing so gateway events for it find the line.
	c.mu.Lock()
	attached := l.epoch == epoch
	if attached {
		l.session = session
	}
	c.mu.Unlock()

	c.activate.Lock()
	if c.current(l, epoch) {
		c.autoHoldOthers(ctx, n)
	}
	err = c.commit(ctx, l, epoch, func(b *batch) error {
		if err := c.transition(b, l, domain.TriggerPlaced); err != nil {
			return err
		}
		answered := c.now()
		l.session = session
		l.answeredAt = &answered
		c.setSelected(b, n)
		return nil
	})
	release()
	c.activate.Unlock()
	if err != nil {
		// An attached session was already ended by the reset or the remote side.
		if !attached {
			c.abandon(session, n)
		}
		return 0, err
	}
	c.logger.Info("Call established", "line", n, "call_id", session.CallID(), "target", target)
	return n, nil
}

func (c *Coordinator) pickOutgoing(requested domain.LineNumber) (domain.LineNumber, error) {
	c.mu.Lock()
	lines := c.snapshotLocked()
	c.mu.Unlock()

	if requested == 0 {
		// Lines with an operation in flight are about to change; skip them.
		lines = slices.DeleteFunc(lines, func(l domain.Line) bool { return c.guard.Held(l.Number) })
	}
	return AutoSelectLineForOutgoing(lines, requested)
}

// abandon ends a session the coordinator no longer owns (its line was reset mid-operation).
func (c *Coordinator) abandon(session domain.SessionHandle, n domain.LineNumber) {
	c.logger.Warn("Ending orphaned session after line reset", "line", n, "call_id", session.CallID())
	go func() {
		if err := c.gateway.End(context.Background(), session); err != nil {
			c.logger.Warn("Failed to end orphaned session", "call_id", session.CallID(), "err", err)
		}
	}()
}

// AnswerCall accepts the call ringing on line n.
func (c *Coordinator) AnswerCall(ctx context.Context, n domain.LineNumber, opts domain.AnswerOptions) error {
	l, err := c.lineAt(n)
	if err != nil {
		return err
	}
	release, err := c.acquire(ctx, n)
	if err != nil {
		return err
	}
	defer release()

	c.mu.Lock()
	if l.status != domain.StatusRinging {
		c.mu.Unlock()
		return invalidState(n, "answer", l.status)
	}
	session, epoch := l.session, l.epoch
	if !opts.Audio && !opts.Video {
		opts.Audio, opts.Video = l.config.DefaultAudio, l.config.DefaultVideo
	}
	c.mu.Unlock()

	if err := c.gateway.Answer(ctx, session, opts); err != nil {
		return &domain.GatewayError{Op: "answer", Line: n, Err: err}
	}

	c.activate.Lock()
	if c.current(l, epoch) {
		c.autoHoldOthers(ctx, n)
	}
	err = c.commit(ctx, l, epoch, func(b *batch) error {
		if err := c.transition(b, l, domain.TriggerAnswer); err != nil {
			return err
		}
		answered := c.now()
		l.answeredAt = &answered
		c.setSelected(b, n)
		return nil
	})
	release()
	c.activate.Unlock()
	if err == nil {
		c.logger.Info("Call answered", "line", n, "call_id", session.CallID())
	}
	return err
}

// RejectCall declines the call ringing on line n. A zero code means domain.DefaultRejectCode.
func (c *Coordinator) RejectCall(ctx context.Context, n domain.LineNumber, code int) error {
	l, err := c.lineAt(n)
	if err != nil {
		return err
	}
	release, err := c.acquire(ctx, n)
	if err != nil {
		return err
	}
	defer release()

	c.mu.Lock()
	if l.status != domain.StatusRinging {
		c.mu.Unlock()
		return invalidState(n, "reject", l.status)
	}
	session, epoch := l.session, l.epoch
	c.mu.Unlock()

	if code == 0 {
		code = domain.DefaultRejectCode
	}
	if err := c.gateway.Reject(ctx, session, code); err != nil {
		return &domain.GatewayError{Op: "reject", Line: n, Err: err}
	}
	return c.commit(ctx, l, epoch, func(b *batch) error {
		return c.endCall(b, l, domain.TriggerReject, domain.CauseRejected)
	})
}

// HangupCall ends the ringing, active or held call on line n.
func (c *Coordinator) HangupCall(ctx context.Context, n domain.LineNumber) error {
	l, err := c.lineAt(n)
	if err != nil {
		return err
	}
	release, err := c.acquire(ctx, n)
	if err != nil {
		return err
	}
	defer release()

	c.mu.Lock()
	if !l.status.CanTransition(domain.TriggerHangup) {
		c.mu.Unlock()
		return invalidState(n, "hang up", l.status)
	}
	session, epoch := l.session, l.epoch
	c.mu.Unlock()

	if err := c.gateway.End(ctx, session); err != nil {
		return &domain.GatewayError{Op: "end", Line: n, Err: err}
	}
	err = c.commit(ctx, l, epoch, func(b *batch) error {
		return c.endCall(b, l, domain.TriggerHangup, domain.CauseLocalHangup)
	})
	if err == nil {
		c.logger.Info("Call hung up", "line", n, "call_id", session.CallID())
	}
	return err
}

// HangupAll hangs up every line with a call, in ascending order, joining the failures.
func (c *Coordinator) HangupAll(ctx context.Context) error {
	var errs []error
	for _, snap := range c.Lines() {
		if !snap.Status.CanTransition(domain.TriggerHangup) {
			continue
		}
		if err := c.HangupCall(ctx, snap.Number); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// HoldLine puts the active call on line n on hold.
func (c *Coordinator) HoldLine(ctx context.Context, n domain.LineNumber) error {
	l, err := c.lineAt(n)
	if err != nil {
		return err
	}
	release, err := c.acquire(ctx, n)
	if err != nil {
		return err
	}
	defer release()
	return c.hold(ctx, l)
}

// UnholdLine resumes the held call on line n.
// It does not trigger auto-hold: only new calls do.
func (c *Coordinator) UnholdLine(ctx context.Context, n domain.LineNumber) error {
	l, err := c.lineAt(n)
	if err != nil {
		return err
	}
	release, err := c.acquire(ctx, n)
	if err != nil {
		return err
	}
	defer release()
	return c.unhold(ctx, l)
}

// ToggleHoldLine holds an active line or resumes a held one.
func (c *Coordinator) ToggleHoldLine(ctx context.Context, n domain.LineNumber) error {
	l, err := c.lineAt(n)
	if err != nil {
		return err
	}
	release, err := c.acquire(ctx, n)
	if err != nil {
		return err
	}
	defer release()

	c.mu.Lock()
	status := l.status
	c.mu.Unlock()

	switch status {
	case domain.StatusActive:
		return c.hold(ctx, l)
	case domain.StatusHeld:
		return c.unhold(ctx, l)
	default:
		return invalidState(n, "toggle hold on", status)
	}
}

// hold requires the caller to own l's guard.
func (c *Coordinator) hold(ctx context.Context, l *line) error {
	c.mu.Lock()
	if l.status != domain.StatusActive {
		c.mu.Unlock()
		return invalidState(l.number, "hold", l.status)
	}
	session, epoch := l.session, l.epoch
	c.mu.Unlock()

	if err := c.gateway.Hold(ctx, session); err != nil {
		return &domain.GatewayError{Op: "hold", Line: l.number, Err: err}
	}
	return c.commit(ctx, l, epoch, func(b *batch) error {
		return c.transition(b, l, domain.TriggerHold)
	})
}

// unhold requires the caller to own l's guard.
func (c *Coordinator) unhold(ctx context.Context, l *line) error {
	c.mu.Lock()
	if l.status != domain.StatusHeld {
		c.mu.Unlock()
		return invalidState(l.number, "unhold", l.status)
	}
	session, epoch := l.session, l.epoch
	c.mu.Unlock()

	if err := c.gateway.Unhold(ctx, session); err != nil {
		return &domain.GatewayError{Op: "unhold", Line: l.number, Err: err}
	}
	return c.commit(ctx, l, epoch, func(b *batch) error {
		return c.transition(b, l, domain.TriggerUnhold)
	})
}

// MuteLine silences the local microphone for line n. It is not a status transition.
func (c *Coordinator) MuteLine(ctx context.Context, n domain.LineNumber) error {
	return c.setMuted(ctx, n, true)
}

// UnmuteLine re-opens the local microphone for line n.
func (c *Coordinator) UnmuteLine(ctx context.Context, n domain.LineNumber) error {
	return c.setMuted(ctx, n, false)
}

func (c *Coordinator) setMuted(ctx context.Context, n domain.LineNumber, muted bool) error {
	l, err := c.lineAt(n)
	if err != nil {
		return err
	}
	release, err := c.acquire(ctx, n)
	if err != nil {
		return err
	}
	defer release()

	c.mu.Lock()
	if l.status != domain.StatusActive && l.status != domain.StatusHeld {
		c.mu.Unlock()
		op := "unmute"
		if muted {
			op = "mute"
		}
		return invalidState(n, op, l.status)
	}
	l.muted = muted
	session := l.session
	c.mu.Unlock()

	if muted {
		c.gateway.Mute(session)
	} else {
		c.gateway.Unmute(session)
	}
	return nil
}

const dtmfDigits = "0123456789*#ABCD"

// SendDTMF sends digits, one at a time, on the active call of line n.
func (c *Coordinator) SendDTMF(ctx context.Context, n domain.LineNumber, digits string) error {
	l, err := c.lineAt(n)
	if err != nil {
		return err
	}
	digits = strings.ToUpper(digits)
	if digits == "" {
		return fmt.Errorf("%w: no digits", domain.ErrInvalidDigit)
	}
	for _, d := range digits {
		if !strings.ContainsRune(dtmfDigits, d) {
			return fmt.Errorf("%w: %q", domain.ErrInvalidDigit, d)
		}
	}

	release, err := c.acquire(ctx, n)
	if err != nil {
		return err
	}
	defer release()

	c.mu.Lock()
	if l.status != domain.StatusActive {
		c.mu.Unlock()
		return invalidState(n, "send DTMF on", l.status)
	}
	session := l.session
	c.mu.Unlock()

	for _, d := range digits {
		if err := c.gateway.SendDigit(ctx, session, d); err != nil {
			return &domain.GatewayError{Op: "send_digit", Line: n, Err: err}
		}
	}
	return nil
}

// GetLineStats asks the gateway for the media report of the call on line n.
func (c *Coordinator) GetLineStats(ctx context.Context, n domain.LineNumber) (domain.Stats, error) {
	l, err := c.lineAt(n)
	if err != nil {
		return domain.Stats{}, err
	}

	c.mu.Lock()
	session, status := l.session, l.status
	c.mu.Unlock()
	if session == nil {
		return domain.Stats{}, invalidState(n, "read stats of", status)
	}

	stats, err := c.gateway.GetStats(ctx, session)
	if err != nil {
		return domain.Stats{}, &domain.GatewayError{Op: "get_stats", Line: n, Err: err}
	}
	return stats, nil
}

// ResetLine force-clears line n to idle without waiting for the gateway.
// Resetting an idle line is a no-op and emits nothing.
func (c *Coordinator) ResetLine(ctx context.Context, n domain.LineNumber) error {
	l, err := c.lineAt(n)
	if err != nil {
		return err
	}

	var b batch
	c.mu.Lock()
	if l.status == domain.StatusIdle && l.session == nil {
		c.mu.Unlock()
		return nil
	}
	session := l.session
	if l.status.HasCall() {
		err = c.endCall(&b, l, domain.TriggerReset, domain.CauseReset)
	} else {
		err = c.transition(&b, l, domain.TriggerReset)
		l.clear()
	}
	c.mu.Unlock()

	// Whatever was in flight on this line no longer owns it.
	c.guard.ForceRelease(n)
	c.emit(ctx, b)

	if session != nil {
		c.logger.Warn("Line reset with a live session", "line", n, "call_id", session.CallID())
		c.abandon(session, n)
	}
	return err
}

// ResetAllLines resets every line in ascending order.
func (c *Coordinator) ResetAllLines(ctx context.Context) error {
	var errs []error
	for _, l := range c.lines {
		if err := c.ResetLine(ctx, l.number); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
