package runtime

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aretw0/callboard/pkg/domain"
)

// TransferCall hands the call on req.FromLine to a third party.
//
// A blind transfer sends the call to req.Target.URI in one step. An attended
// transfer bridges the call on FromLine with the consultation call already up on
// req.Target.Line; both lines go idle on success and keep their state on failure.
// Every failure is a *domain.TransferError naming the phase that failed.
func (c *Coordinator) TransferCall(ctx context.Context, req domain.TransferRequest) error {
	if req.Attended {
		return c.transferAttended(ctx, req)
	}
	return c.transferBlind(ctx, req)
}

func transferErr(phase domain.TransferPhase, from domain.LineNumber, err error) error {
	return &domain.TransferError{Phase: phase, FromLine: from, Err: err}
}

func (c *Coordinator) transferBlind(ctx context.Context, req domain.TransferRequest) error {
	target := strings.TrimSpace(req.Target.URI)
	if target == "" {
		return transferErr(domain.PhaseValidation, req.FromLine,
			fmt.Errorf("%w: blind transfer needs a URI", domain.ErrInvalidTarget))
	}
	l, err := c.lineAt(req.FromLine)
	if err != nil {
		return transferErr(domain.PhaseValidation, req.FromLine, err)
	}

	release, err := c.acquire(ctx, l.number)
	if err != nil {
		return transferErr(domain.PhaseValidation, l.number, err)
	}
	defer release()

	c.mu.Lock()
	if !l.status.CanTransition(domain.TriggerTransfer) {
		c.mu.Unlock()
		return transferErr(domain.PhaseValidation, l.number, invalidState(l.number, "transfer", l.status))
	}
	session, epoch := l.session, l.epoch
	c.mu.Unlock()

	if err := c.gateway.TransferBlind(ctx, session, target); err != nil {
		return transferErr(domain.PhaseBlind, l.number, err)
	}
	err = c.commit(ctx, l, epoch, func(b *batch) error {
		return c.endCall(b, l, domain.TriggerTransfer, domain.CauseTransferred)
	})
	if err != nil {
		return transferErr(domain.PhaseBlind, l.number, err)
	}
	c.logger.Info("Call transferred", "line", l.number, "call_id", session.CallID(), "target", target)
	return nil
}

func (c *Coordinator) transferAttended(ctx context.Context, req domain.TransferRequest) error {
	from, consult := req.FromLine, req.Target.Line
	if consult == 0 {
		return transferErr(domain.PhaseValidation, from,
			fmt.Errorf("%w: attended transfer needs a consultation line", domain.ErrInvalidTarget))
	}
	if from == consult {
		return transferErr(domain.PhaseValidation, from,
			fmt.Errorf("%w: consultation line must differ from line %d", domain.ErrInvalidTarget, from))
	}
	lf, err := c.lineAt(from)
	if err != nil {
		return transferErr(domain.PhaseValidation, from, err)
	}
	lc, err := c.lineAt(consult)
	if err != nil {
		return transferErr(domain.PhaseValidation, from, err)
	}

	release, err := c.acquire(ctx, from, consult)
	if err != nil {
		return transferErr(domain.PhaseValidation, from, err)
	}
	defer release()

	c.mu.Lock()
	if !lf.status.CanTransition(domain.TriggerTransfer) {
		c.mu.Unlock()
		return transferErr(domain.PhaseValidation, from, invalidState(from, "transfer", lf.status))
	}
	if lc.status != domain.StatusActive {
		c.mu.Unlock()
		return transferErr(domain.PhaseValidation, from, invalidState(consult, "complete a transfer through", lc.status))
	}
	sf, sc := lf.session, lc.session
	ef, ec := lf.epoch, lc.epoch
	c.mu.Unlock()

	if err := c.gateway.TransferAttended(ctx, sf, sc); err != nil {
		return transferErr(domain.PhaseCompletion, from, err)
	}

	// The bridge is up at the gateway. A leg torn down meanwhile is already idle;
	// the other one still has to leave the line.
	var (
		b    batch
		errs []error
	)
	c.mu.Lock()
	for _, leg := range []struct {
		l     *line
		epoch uint64
	}{{lf, ef}, {lc, ec}} {
		if leg.l.epoch != leg.epoch {
			c.logger.Debug("Transfer leg ended before completion", "line", leg.l.number)
			continue
		}
		errs = append(errs, c.endCall(&b, leg.l, domain.TriggerTransfer, domain.CauseTransferred))
	}
	err = errors.Join(errs...)
	c.mu.Unlock()
	c.emit(ctx, b)

	if err != nil {
		return transferErr(domain.PhaseCompletion, from, err)
	}
	c.logger.Info("Attended transfer completed", "line", from, "consultation_line", consult,
		"call_id", sf.CallID(), "consultation_call_id", sc.CallID())
	return nil
}
