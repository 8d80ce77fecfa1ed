package runtime

import (
	"context"
	"time"

	"github.com/aretw0/callboard/pkg/domain"
	"github.com/aretw0/callboard/pkg/ports"
)

// gatewayListener feeds gateway events into the coordinator without making the
// callbacks part of its public API.
type gatewayListener struct {
	c *Coordinator
}

var _ ports.GatewayListener = gatewayListener{}

func (g gatewayListener) OnIncoming(session domain.SessionHandle, remote domain.RemoteIdentity) {
	g.c.onIncoming(session, remote)
}

func (g gatewayListener) OnTerminated(session domain.SessionHandle, cause domain.EndCause) {
	g.c.onTerminated(session, cause)
}

func (g gatewayListener) OnFailed(session domain.SessionHandle, failure error) {
	g.c.onFailed(session, failure)
}

func (g gatewayListener) OnRemoteRenegotiation(session domain.SessionHandle, remoteHeld bool) {
	g.c.onRemoteRenegotiation(session, remoteHeld)
}

// onIncoming places an inbound call on the first available line, or rejects it
// with domain.DefaultRejectCode when every line is taken.
func (c *Coordinator) onIncoming(session domain.SessionHandle, remote domain.RemoteIdentity) {
	ctx := context.Background()

	var b batch
	c.mu.Lock()
	var target *line
	for _, l := range c.lines {
		if l.status == domain.StatusIdle && l.config.Enabled && !c.guard.Held(l.number) {
			target = l
			break
		}
	}
	if target == nil {
		c.mu.Unlock()
		c.logger.Warn("Rejecting incoming call, no line available", "call_id", session.CallID(), "remote", remote.URI)
		go func() {
			if err := c.gateway.Reject(ctx, session, domain.DefaultRejectCode); err != nil {
				c.logger.Warn("Failed to reject incoming call", "call_id", session.CallID(), "err", err)
			}
		}()
		return
	}

	if err := c.transition(&b, target, domain.TriggerIncoming); err != nil {
		c.mu.Unlock()
		c.logger.Error("Incoming call routing failed", "line", target.number, "err", err)
		return
	}
	now := c.now()
	r := remote
	target.session = session
	target.remote = &r
	target.direction = domain.DirectionInbound
	target.startedAt = &now
	b = append(b, &domain.LineIncomingCallEvent{
		Line:              target.number,
		CallID:            session.CallID(),
		RemoteURI:         remote.URI,
		RemoteDisplayName: remote.DisplayName,
		Timestamp:         now,
	})
	if c.selected == 0 {
		c.setSelected(&b, target.number)
	}
	n, cfg := target.number, target.config
	c.mu.Unlock()
	c.emit(ctx, b)

	c.logger.Info("Incoming call", "line", n, "call_id", session.CallID(), "remote", remote.URI)

	if cfg.AutoAnswer {
		c.scheduleAutoAnswer(n, session, time.Duration(cfg.AutoAnswerDelayMs)*time.Millisecond)
	}
}

func (c *Coordinator) scheduleAutoAnswer(n domain.LineNumber, session domain.SessionHandle, delay time.Duration) {
	time.AfterFunc(delay, func() {
		c.mu.Lock()
		l := c.lines[n-1]
		still := l.status == domain.StatusRinging && l.session == session
		c.mu.Unlock()
		if !still {
			return
		}
		if err := c.AnswerCall(context.Background(), n, domain.AnswerOptions{}); err != nil {
			c.logger.Warn("Auto-answer failed", "line", n, "call_id", session.CallID(), "err", err)
			return
		}
		c.logger.Debug("Auto-answered call", "line", n, "call_id", session.CallID())
	})
}

// onTerminated returns the line carrying session to idle, even if an operation
// on that line is still in flight.
func (c *Coordinator) onTerminated(session domain.SessionHandle, cause domain.EndCause) {
	if cause == "" {
		cause = domain.CauseRemoteBye
	}

	var b batch
	c.mu.Lock()
	l := c.findByCallIDLocked(session.CallID())
	if l == nil {
		c.mu.Unlock()
		c.logger.Debug("Termination for unknown call", "call_id", session.CallID())
		return
	}
	if l.status == domain.StatusRinging && cause == domain.CauseRemoteBye {
		// The caller gave up before anyone answered.
		cause = domain.CauseCancelled
	}
	err := c.endCall(&b, l, domain.TriggerTerminated, cause)
	c.mu.Unlock()
	c.emit(context.Background(), b)

	if err != nil {
		c.logger.Warn("Ignoring termination", "line", l.number, "call_id", session.CallID(), "err", err)
		return
	}
	c.logger.Info("Call terminated", "line", l.number, "call_id", session.CallID(), "cause", cause)
}

// onFailed moves the line carrying session to error. Only a reset recovers it.
func (c *Coordinator) onFailed(session domain.SessionHandle, failure error) {
	var b batch
	c.mu.Lock()
	l := c.findByCallIDLocked(session.CallID())
	if l == nil {
		c.mu.Unlock()
		c.logger.Debug("Failure for unknown call", "call_id", session.CallID(), "err", failure)
		return
	}
	err := c.endCall(&b, l, domain.TriggerFailed, domain.CauseFailed)
	c.mu.Unlock()
	c.emit(context.Background(), b)

	if err != nil {
		c.logger.Warn("Ignoring session failure", "line", l.number, "call_id", session.CallID(), "err", err)
		return
	}
	c.logger.Error("Session failed", "line", l.number, "call_id", session.CallID(), "err", failure)
}

// onRemoteRenegotiation records that the remote party held or resumed the call.
// It does not change the line status.
func (c *Coordinator) onRemoteRenegotiation(session domain.SessionHandle, remoteHeld bool) {
	c.mu.Lock()
	l := c.findByCallIDLocked(session.CallID())
	if l != nil {
		l.remoteHeld = remoteHeld
	}
	c.mu.Unlock()

	if l != nil {
		c.logger.Debug("Remote renegotiated", "line", l.number, "call_id", session.CallID(), "remote_held", remoteHeld)
	}
}
