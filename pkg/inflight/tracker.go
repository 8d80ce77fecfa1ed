package inflight

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/aretw0/callboard/internal/logging"
	"github.com/aretw0/callboard/pkg/domain"
	"github.com/aretw0/callboard/pkg/ports"
)

// DefaultLockTTL bounds how long a distributed line lock survives a crashed owner.
const DefaultLockTTL = 30 * time.Second

// entry is the owned token for one line.
type entry struct {
	token  uint64
	unlock ports.UnlockFunc // Releases the distributed lock (if any)
}

// Tracker holds the per-line in-flight tokens.
type Tracker struct {
	mu    sync.Mutex
	held  map[domain.LineNumber]*entry
	token uint64

	locker ports.DistributedLocker // Optional distributed locker
	ttl    time.Duration
	prefix string
	logger *slog.Logger
}

// Option configures the Tracker.
type Option func(*Tracker)

// WithLocker enables distributed locking of lines.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(t *Tracker) {
		t.locker = locker
	}
}

// WithLockTTL overrides DefaultLockTTL.
func WithLockTTL(ttl time.Duration) Option {
	return func(t *Tracker) {
		t.ttl = ttl
	}
}

// WithKeyPrefix namespaces distributed lock keys (e.g. per account).
func WithKeyPrefix(prefix string) Option {
	return func(t *Tracker) {
		t.prefix = prefix
	}
}

// WithLogger configures a logger for the Tracker.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Tracker) {
		t.logger = logger
	}
}

// NewTracker creates an empty Tracker.
func NewTracker(opts ...Option) *Tracker {
	t := &Tracker{
		held:   make(map[domain.LineNumber]*entry),
		ttl:    DefaultLockTTL,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// TryAcquire takes the guard of every given line or none of them.
// The returned release func is idempotent and only frees slots still owned by this call.
func (t *Tracker) TryAcquire(ctx context.Context, lines ...domain.LineNumber) (func(), error) {
	lines = slices.Clone(lines)
	slices.Sort(lines)
	lines = slices.Compact(lines)

	t.mu.Lock()
	for _, n := range lines {
		if _, busy := t.held[n]; busy {
			t.mu.Unlock()
			return nil, fmt.Errorf("%w: operation already in flight on line %d", domain.ErrLineBusy, n)
		}
	}
	t.token++
	token := t.token
	for _, n := range lines {
		t.held[n] = &entry{token: token}
	}
	t.mu.Unlock()

	if t.locker != nil {
		if err := t.lockRemote(ctx, token, lines); err != nil {
			t.release(token, lines)
			return nil, err
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() { t.release(token, lines) })
	}, nil
}

// lockRemote takes the distributed lock of each line in ascending order.
func (t *Tracker) lockRemote(ctx context.Context, token uint64, lines []domain.LineNumber) error {
	for _, n := range lines {
		unlock, err := t.locker.TryLock(ctx, t.key(n), t.ttl)
		if err != nil {
			if errors.Is(err, ports.ErrLockHeld) {
				return fmt.Errorf("%w: line %d is owned by another instance", domain.ErrLineBusy, n)
			}
			return fmt.Errorf("failed to acquire distributed lock for line %d: %w", n, err)
		}

		t.mu.Lock()
		e, ok := t.held[n]
		if ok && e.token == token {
			e.unlock = unlock
			unlock = nil
		}
		t.mu.Unlock()

		// Force-released while we were talking to the locker.
		if unlock != nil {
			t.runUnlock(n, unlock)
		}
	}
	return nil
}

func (t *Tracker) release(token uint64, lines []domain.LineNumber) {
	var unlocks []ports.UnlockFunc
	var owners []domain.LineNumber

	t.mu.Lock()
	for _, n := range lines {
		e, ok := t.held[n]
		if !ok || e.token != token {
			continue
		}
		delete(t.held, n)
		if e.unlock != nil {
			unlocks = append(unlocks, e.unlock)
			owners = append(owners, n)
		}
	}
	t.mu.Unlock()

	for i, unlock := range unlocks {
		t.runUnlock(owners[i], unlock)
	}
}

// ForceRelease frees a line regardless of who owns it.
// Used when a line is reset while its operation is stuck at the gateway.
func (t *Tracker) ForceRelease(n domain.LineNumber) {
	t.mu.Lock()
	e, ok := t.held[n]
	delete(t.held, n)
	t.mu.Unlock()

	if ok && e.unlock != nil {
		t.runUnlock(n, e.unlock)
	}
}

// Held reports whether an operation is in flight on the line.
func (t *Tracker) Held(n domain.LineNumber) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.held[n]
	return ok
}

func (t *Tracker) runUnlock(n domain.LineNumber, unlock ports.UnlockFunc) {
	if err := unlock(context.Background()); err != nil {
		t.logger.Warn("Failed to release distributed line lock (will expire via TTL)",
			"line", n,
			"err", err,
		)
	}
}

func (t *Tracker) key(n domain.LineNumber) string {
	return t.prefix + "line:" + strconv.Itoa(int(n))
}
