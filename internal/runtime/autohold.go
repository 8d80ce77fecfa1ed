package runtime

import (
	"context"

	"github.com/aretw0/callboard/pkg/domain"
)

// autoHoldOthers holds every active line other than keep. Failures are logged
// and never abort the operation that made keep active.
func (c *Coordinator) autoHoldOthers(ctx context.Context, keep domain.LineNumber) {
	if !c.autoHold {
		return
	}

	c.mu.Lock()
	var targets []*line
	for _, l := range c.lines {
		if l.number != keep && l.status == domain.StatusActive {
			targets = append(targets, l)
		}
	}
	c.mu.Unlock()

	for _, l := range targets {
		release, err := c.acquire(ctx, l.number)
		if err != nil {
			c.logger.Warn("Auto-hold skipped", "line", l.number, "err", err)
			continue
		}
		if err := c.hold(ctx, l); err != nil {
			c.logger.Warn("Auto-hold failed", "line", l.number, "err", err)
		} else {
			c.logger.Debug("Auto-held line", "line", l.number, "for", keep)
		}
		release()
	}
}
