package runtime

import (
	"github.com/aretw0/callboard/pkg/domain"
)

// LineCount returns the fixed size of the pool.
func (c *Coordinator) LineCount() int {
	return len(c.lines)
}

// ConfigureLine merges patch into the line's configuration and returns the result.
func (c *Coordinator) ConfigureLine(n domain.LineNumber, patch domain.LineConfigPatch) (domain.LineConfig, error) {
	l, err := c.lineAt(n)
	if err != nil {
		return domain.LineConfig{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	l.config = patch.Apply(l.config)
	if l.config.AutoAnswerDelayMs < 0 {
		l.config.AutoAnswerDelayMs = 0
	}
	c.logger.Debug("Line configured", "line", n, "enabled", l.config.Enabled, "auto_answer", l.config.AutoAnswer)
	return l.config, nil
}

// GetLineState returns a snapshot of line n.
func (c *Coordinator) GetLineState(n domain.LineNumber) (domain.Line, error) {
	l, err := c.lineAt(n)
	if err != nil {
		return domain.Line{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return l.snapshot(), nil
}

// Lines returns a snapshot of every line in ascending order.
func (c *Coordinator) Lines() []domain.Line {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Coordinator) snapshotLocked() []domain.Line {
	out := make([]domain.Line, len(c.lines))
	for i, l := range c.lines {
		out[i] = l.snapshot()
	}
	return out
}

// GetLineByCallID finds the line whose session carries the given call ID.
func (c *Coordinator) GetLineByCallID(callID string) (domain.Line, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if l := c.findByCallIDLocked(callID); l != nil {
		return l.snapshot(), true
	}
	return domain.Line{}, false
}

func (c *Coordinator) findByCallIDLocked(callID string) *line {
	if callID == "" {
		return nil
	}
	for _, l := range c.lines {
		if l.session != nil && l.session.CallID() == callID {
			return l
		}
	}
	return nil
}

// AvailableLines returns the idle, enabled lines in ascending order.
func (c *Coordinator) AvailableLines() []domain.Line {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []domain.Line
	for _, l := range c.lines {
		if snap := l.snapshot(); snap.Available() {
			out = append(out, snap)
		}
	}
	return out
}

// AllLinesBusy reports whether no line is idle and enabled.
func (c *Coordinator) AllLinesBusy() bool {
	return len(c.AvailableLines()) == 0
}
