package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/callboard/internal/logging"
	"github.com/aretw0/callboard/pkg/domain"
	"github.com/aretw0/callboard/pkg/inflight"
	"github.com/aretw0/callboard/pkg/ports"
)

// DefaultLineCount is the pool size when WithLineCount is not given.
const DefaultLineCount = 2

// line is the mutable slot behind a domain.Line snapshot.
// All fields are guarded by Coordinator.mu.
type line struct {
	number     domain.LineNumber
	status     domain.LineStatus
	session    domain.SessionHandle
	remote     *domain.RemoteIdentity
	direction  domain.Direction
	startedAt  *time.Time
	answeredAt *time.Time
	muted      bool
	remoteHeld bool
	config     domain.LineConfig

	// epoch changes whenever the call is torn down, so an in-flight
	// operation can tell its call is gone before committing.
	epoch uint64
}

func (l *line) snapshot() domain.Line {
	snap := domain.Line{
		Number:     l.number,
		Status:     l.status,
		Session:    l.session,
		Direction:  l.direction,
		Muted:      l.muted,
		RemoteHeld: l.remoteHeld,
		Config:     l.config,
	}
	if l.remote != nil {
		r := *l.remote
		snap.Remote = &r
	}
	if l.startedAt != nil {
		t := *l.startedAt
		snap.StartedAt = &t
	}
	if l.answeredAt != nil {
		t := *l.answeredAt
		snap.AnsweredAt = &t
	}
	return snap
}

func (l *line) callID() string {
	if l.session == nil {
		return ""
	}
	return l.session.CallID()
}

// clear drops the call but keeps status and config.
func (l *line) clear() {
	l.session = nil
	l.remote = nil
	l.direction = ""
	l.startedAt = nil
	l.answeredAt = nil
	l.muted = false
	l.remoteHeld = false
	l.epoch++
}

// batch collects events produced under the registry lock; they are published after it is released.
type batch []any

// Coordinator manages a fixed pool of lines on top of a SessionGateway.
// It is safe for concurrent use: operations on different lines run in parallel,
// operations on the same line are rejected with domain.ErrLineBusy while one is in flight.
type Coordinator struct {
	mu       sync.Mutex
	lines    []*line // index n-1, never resized
	selected domain.LineNumber

	// activate serializes "hold the others, then go active" so two calls
	// resolving together cannot both end up active.
	activate sync.Mutex

	gateway  ports.SessionGateway
	guard    *inflight.Tracker
	bus      *eventBus
	logger   *slog.Logger
	now      func() time.Time
	autoHold bool

	lineCount int
	configs   map[domain.LineNumber]domain.LineConfig
}

// Option configures the Coordinator.
type Option func(*Coordinator)

// WithLineCount sets the size of the line pool (1..domain.MaxLines).
func WithLineCount(n int) Option {
	return func(c *Coordinator) {
		c.lineCount = n
	}
}

// WithAutoHold toggles holding other active lines when a new call becomes active.
func WithAutoHold(enabled bool) Option {
	return func(c *Coordinator) {
		c.autoHold = enabled
	}
}

// WithLineConfig sets the initial configuration of one line.
func WithLineConfig(n domain.LineNumber, cfg domain.LineConfig) Option {
	return func(c *Coordinator) {
		c.configs[n] = cfg
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(c *Coordinator) {
		c.bus.subscribe(hooks)
	}
}

// WithLogger configures the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithTracker injects the in-flight guard (e.g. one backed by a distributed locker).
func WithTracker(t *inflight.Tracker) Option {
	return func(c *Coordinator) {
		c.guard = t
	}
}

// WithClock overrides time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		c.now = now
	}
}

// NewCoordinator allocates every line up front and registers with the gateway's event stream.
func NewCoordinator(gateway ports.SessionGateway, opts ...Option) (*Coordinator, error) {
	if gateway == nil {
		return nil, errors.New("session gateway is required")
	}

	c := &Coordinator{
		gateway:   gateway,
		bus:       newEventBus(),
		logger:    logging.NewNop(),
		now:       time.Now,
		autoHold:  true,
		lineCount: DefaultLineCount,
		configs:   make(map[domain.LineNumber]domain.LineConfig),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.lineCount < 1 || c.lineCount > domain.MaxLines {
		return nil, fmt.Errorf("%w: line count %d outside 1..%d", domain.ErrInvalidLineNumber, c.lineCount, domain.MaxLines)
	}
	for n := range c.configs {
		if n < 1 || int(n) > c.lineCount {
			return nil, fmt.Errorf("%w: configuration for line %d outside 1..%d", domain.ErrInvalidLineNumber, n, c.lineCount)
		}
	}
	if c.guard == nil {
		c.guard = inflight.NewTracker(inflight.WithLogger(c.logger))
	}

	c.lines = make([]*line, c.lineCount)
	for i := range c.lines {
		n := domain.LineNumber(i + 1)
		cfg, ok := c.configs[n]
		if !ok {
			cfg = domain.DefaultLineConfig()
		}
		c.lines[i] = &line{number: n, status: domain.StatusIdle, config: cfg}
	}

	if obs, ok := gateway.(ports.Observable); ok {
		obs.Listen(gatewayListener{c: c})
	}

	c.logger.Debug("Coordinator ready", "lines", c.lineCount, "auto_hold", c.autoHold)
	return c, nil
}

// Subscribe registers hooks for the four line events. The returned func unsubscribes.
func (c *Coordinator) Subscribe(hooks domain.LifecycleHooks) func() {
	return c.bus.subscribe(hooks)
}

// AutoHold reports whether auto-hold on new call is enabled.
func (c *Coordinator) AutoHold() bool {
	return c.autoHold
}

// lineAt validates n. The lines slice is immutable, so no lock is needed.
func (c *Coordinator) lineAt(n domain.LineNumber) (*line, error) {
	if n < 1 || int(n) > len(c.lines) {
		return nil, fmt.Errorf("%w: %d (valid range 1..%d)", domain.ErrInvalidLineNumber, n, len(c.lines))
	}
	return c.lines[n-1], nil
}

func (c *Coordinator) acquire(ctx context.Context, lines ...domain.LineNumber) (func(), error) {
	return c.guard.TryAcquire(ctx, lines...)
}

// transition moves l along the state machine and records the event. Caller holds mu.
func (c *Coordinator) transition(b *batch, l *line, trigger domain.Trigger) error {
	tr, ok := domain.TransitionFor(l.status, trigger)
	if !ok {
		return invalidState(l.number, string(trigger), l.status)
	}
	prev := l.status
	l.status = tr.To
	*b = append(*b, &domain.LineStateChangeEvent{
		Line:           l.number,
		PreviousStatus: prev,
		CurrentStatus:  l.status,
		Timestamp:      c.now(),
	})
	return nil
}

// endCall tears the call down through trigger and records the call-ended event. Caller holds mu.
func (c *Coordinator) endCall(b *batch, l *line, trigger domain.Trigger, cause domain.EndCause) error {
	now := c.now()
	ended := &domain.LineCallEndedEvent{
		Line:            l.number,
		CallID:          l.callID(),
		DurationSeconds: durationSeconds(l.answeredAt, now),
		Cause:           cause,
		Direction:       l.direction,
		Timestamp:       now,
	}
	if l.remote != nil {
		ended.RemoteURI = l.remote.URI
		ended.RemoteName = l.remote.DisplayName
	}
	if err := c.transition(b, l, trigger); err != nil {
		return err
	}
	*b = append(*b, ended)
	l.clear()
	return nil
}

// setSelected changes the selection, recording an event only if it actually changed. Caller holds mu.
func (c *Coordinator) setSelected(b *batch, n domain.LineNumber) {
	if c.selected == n {
		return
	}
	prev := c.selected
	c.selected = n
	*b = append(*b, &domain.LineSelectionChangeEvent{
		PreviousLine: prev,
		NewLine:      n,
		Timestamp:    c.now(),
	})
}

// commit applies fn if the line still carries the call captured at epoch, then publishes.
func (c *Coordinator) commit(ctx context.Context, l *line, epoch uint64, fn func(b *batch) error) error {
	var b batch
	c.mu.Lock()
	if l.epoch != epoch {
		c.mu.Unlock()
		return fmt.Errorf("%w: call on line %d ended while the operation was in flight", domain.ErrInvalidState, l.number)
	}
	err := fn(&b)
	c.mu.Unlock()
	c.emit(ctx, b)
	return err
}

// current reports whether l still carries the call captured at epoch.
func (c *Coordinator) current(l *line, epoch uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return l.epoch == epoch
}

func (c *Coordinator) emit(ctx context.Context, b batch) {
	if len(b) == 0 {
		return
	}
	c.bus.publish(ctx, b)
}

// durationSeconds is the talk time, zero if the call was never answered.
func durationSeconds(answeredAt *time.Time, now time.Time) int {
	if answeredAt == nil {
		return 0
	}
	return int(now.Sub(*answeredAt).Seconds())
}

func invalidState(n domain.LineNumber, op string, status domain.LineStatus) error {
	return fmt.Errorf("%w: cannot %s line %d while %s", domain.ErrInvalidState, op, n, status)
}
