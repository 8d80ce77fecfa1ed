package runtime_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/callboard/internal/runtime"
	"github.com/aretw0/callboard/pkg/adapters/memory"
	"github.com/aretw0/callboard/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder captures every event the coordinator publishes, in order.
type recorder struct {
	mu     sync.Mutex
	events []any
}

func (r *recorder) add(ev any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnStateChange:     func(_ context.Context, e *domain.LineStateChangeEvent) { r.add(*e) },
		OnIncomingCall:    func(_ context.Context, e *domain.LineIncomingCallEvent) { r.add(*e) },
		OnCallEnded:       func(_ context.Context, e *domain.LineCallEndedEvent) { r.add(*e) },
		OnSelectionChange: func(_ context.Context, e *domain.LineSelectionChangeEvent) { r.add(*e) },
	}
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

func (r *recorder) all() []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]any(nil), r.events...)
}

func (r *recorder) stateChanges() []domain.LineStateChangeEvent {
	var out []domain.LineStateChangeEvent
	for _, ev := range r.all() {
		if e, ok := ev.(domain.LineStateChangeEvent); ok {
			out = append(out, e)
		}
	}
	return out
}

func (r *recorder) ended() []domain.LineCallEndedEvent {
	var out []domain.LineCallEndedEvent
	for _, ev := range r.all() {
		if e, ok := ev.(domain.LineCallEndedEvent); ok {
			out = append(out, e)
		}
	}
	return out
}

func (r *recorder) selections() []domain.LineSelectionChangeEvent {
	var out []domain.LineSelectionChangeEvent
	for _, ev := range r.all() {
		if e, ok := ev.(domain.LineSelectionChangeEvent); ok {
			out = append(out, e)
		}
	}
	return out
}

// change is a compact form of a state change for assertions.
type change struct {
	line     domain.LineNumber
	from, to domain.LineStatus
}

func changes(events []domain.LineStateChangeEvent) []change {
	out := make([]change, len(events))
	for i, e := range events {
		out[i] = change{e.Line, e.PreviousStatus, e.CurrentStatus}
	}
	return out
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func newCoordinator(t *testing.T, opts ...runtime.Option) (*runtime.Coordinator, *memory.Gateway, *recorder) {
	t.Helper()
	gw := memory.NewGateway()
	rec := &recorder{}
	opts = append([]runtime.Option{runtime.WithLifecycleHooks(rec.hooks())}, opts...)
	c, err := runtime.NewCoordinator(gw, opts...)
	require.NoError(t, err)
	return c, gw, rec
}

func status(t *testing.T, c *runtime.Coordinator, n domain.LineNumber) domain.LineStatus {
	t.Helper()
	l, err := c.GetLineState(n)
	require.NoError(t, err)
	return l.Status
}

// call places an outbound call on line n and fails the test otherwise.
func call(t *testing.T, c *runtime.Coordinator, n domain.LineNumber) domain.Line {
	t.Helper()
	got, err := c.MakeCall(context.Background(), "sip:party@example.com", domain.CallOptions{Line: n})
	require.NoError(t, err)
	require.Equal(t, n, got)
	l, err := c.GetLineState(n)
	require.NoError(t, err)
	return l
}

// assertInvariants checks the cross-line rules that must hold between operations.
func assertInvariants(t *testing.T, c *runtime.Coordinator) {
	t.Helper()
	active := 0
	for _, l := range c.Lines() {
		switch l.Status {
		case domain.StatusIdle, domain.StatusError:
			assert.Nil(t, l.Session, "line %d is %s but carries a session", l.Number, l.Status)
		case domain.StatusBusy:
		default:
			assert.NotNil(t, l.Session, "line %d is %s without a session", l.Number, l.Status)
		}
		if l.Status == domain.StatusActive {
			active++
		}
	}
	if c.AutoHold() {
		assert.LessOrEqual(t, active, 1, "more than one active line with auto-hold on")
	}
}
