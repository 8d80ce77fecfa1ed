package runtime

import (
	"context"
	"fmt"

	"github.com/aretw0/callboard/pkg/domain"
)

// NextAvailable returns the lowest-numbered idle, enabled line.
func NextAvailable(lines []domain.Line) (domain.LineNumber, bool) {
	for _, l := range lines {
		if l.Available() {
			return l.Number, true
		}
	}
	return 0, false
}

// RingingLine returns the lowest-numbered ringing line.
// Arrival order is not tracked, so the line number is the tie-break.
func RingingLine(lines []domain.Line) (domain.LineNumber, bool) {
	for _, l := range lines {
		if l.Status == domain.StatusRinging {
			return l.Number, true
		}
	}
	return 0, false
}

// AutoSelectLineForOutgoing picks the line an outbound call should use.
// A requested line must be idle and enabled; otherwise the first available line wins.
func AutoSelectLineForOutgoing(lines []domain.Line, requested domain.LineNumber) (domain.LineNumber, error) {
	if requested != 0 {
		if requested < 1 || int(requested) > len(lines) {
			return 0, fmt.Errorf("%w: %d (valid range 1..%d)", domain.ErrInvalidLineNumber, requested, len(lines))
		}
		l := lines[requested-1]
		if !l.Config.Enabled {
			return 0, fmt.Errorf("%w: line %d", domain.ErrLineDisabled, requested)
		}
		if l.Status != domain.StatusIdle {
			return 0, fmt.Errorf("%w: line %d is %s", domain.ErrLineNotAvailable, requested, l.Status)
		}
		return requested, nil
	}
	n, ok := NextAvailable(lines)
	if !ok {
		return 0, domain.ErrNoAvailableLines
	}
	return n, nil
}

// SelectedLine returns the line in focus, if any.
func (c *Coordinator) SelectedLine() (domain.LineNumber, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selected, c.selected != 0
}

// SelectLine puts line n in focus. Selecting the current line is a no-op.
func (c *Coordinator) SelectLine(ctx context.Context, n domain.LineNumber) error {
	if _, err := c.lineAt(n); err != nil {
		return err
	}
	c.selectLine(ctx, n)
	return nil
}

// SelectNextAvailable focuses the first idle, enabled line.
func (c *Coordinator) SelectNextAvailable(ctx context.Context) (domain.LineNumber, bool) {
	return c.selectBy(ctx, NextAvailable)
}

// SelectRingingLine focuses the first ringing line.
func (c *Coordinator) SelectRingingLine(ctx context.Context) (domain.LineNumber, bool) {
	return c.selectBy(ctx, RingingLine)
}

func (c *Coordinator) selectBy(ctx context.Context, pick func([]domain.Line) (domain.LineNumber, bool)) (domain.LineNumber, bool) {
	var b batch
	c.mu.Lock()
	n, ok := pick(c.snapshotLocked())
	if ok {
		c.setSelected(&b, n)
	}
	c.mu.Unlock()
	c.emit(ctx, b)
	return n, ok
}

func (c *Coordinator) selectLine(ctx context.Context, n domain.LineNumber) {
	var b batch
	c.mu.Lock()
	c.setSelected(&b, n)
	c.mu.Unlock()
	c.emit(ctx, b)
}
