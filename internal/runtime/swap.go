package runtime

import (
	"context"
	"errors"
	"fmt"

	"github.com/aretw0/callboard/pkg/domain"
)

// swapPlan is the hold/unhold pair a swap performs. Zero means "skip".
type swapPlan struct {
	hold   domain.LineNumber
	unhold domain.LineNumber
}

// planSwap decides which line to hold and which to resume so that the
// focus moves from a to b.
func planSwap(a, b domain.LineNumber, sa, sb domain.LineStatus) (swapPlan, error) {
	switch {
	case sa == domain.StatusActive && sb == domain.StatusActive:
		return swapPlan{hold: a}, nil
	case sa == domain.StatusActive && sb == domain.StatusHeld:
		return swapPlan{hold: a, unhold: b}, nil
	case sa == domain.StatusHeld && sb == domain.StatusActive:
		return swapPlan{hold: b, unhold: a}, nil
	case sa == domain.StatusHeld && sb == domain.StatusHeld:
		return swapPlan{unhold: b}, nil
	case sa == domain.StatusActive:
		return swapPlan{hold: a}, nil
	case sb == domain.StatusActive:
		return swapPlan{hold: b}, nil
	case sa == domain.StatusHeld:
		return swapPlan{unhold: a}, nil
	case sb == domain.StatusHeld:
		return swapPlan{unhold: b}, nil
	}
	return swapPlan{}, fmt.Errorf("%w: neither line %d (%s) nor line %d (%s) has a call to swap",
		domain.ErrInvalidState, a, sa, b, sb)
}

// SwapLines exchanges focus between two lines: the active one is held and the
// held one resumed. The hold always happens first. If resuming fails, the line
// that was just held is resumed again before the error is returned.
func (c *Coordinator) SwapLines(ctx context.Context, a, b domain.LineNumber) error {
	la, err := c.lineAt(a)
	if err != nil {
		return err
	}
	lb, err := c.lineAt(b)
	if err != nil {
		return err
	}
	if a == b {
		return fmt.Errorf("%w: cannot swap line %d with itself", domain.ErrInvalidState, a)
	}

	release, err := c.acquire(ctx, a, b)
	if err != nil {
		return err
	}
	defer release()

	c.mu.Lock()
	plan, err := planSwap(a, b, la.status, lb.status)
	c.mu.Unlock()
	if err != nil {
		return err
	}

	byNumber := map[domain.LineNumber]*line{a: la, b: lb}
	if plan.hold != 0 {
		if err := c.hold(ctx, byNumber[plan.hold]); err != nil {
			return err
		}
	}
	if plan.unhold != 0 {
		if err := c.unhold(ctx, byNumber[plan.unhold]); err != nil {
			if plan.hold != 0 {
				if rbErr := c.unhold(ctx, byNumber[plan.hold]); rbErr != nil {
					c.logger.Error("Swap rollback failed", "line", plan.hold, "err", rbErr)
					return errors.Join(err, rbErr)
				}
			}
			return err
		}
	}

	var ev batch
	c.mu.Lock()
	switch {
	case lb.status == domain.StatusActive:
		c.setSelected(&ev, b)
	case la.status == domain.StatusActive:
		c.setSelected(&ev, a)
	}
	c.mu.Unlock()
	c.emit(ctx, ev)

	c.logger.Info("Lines swapped", "a", a, "b", b)
	return nil
}
