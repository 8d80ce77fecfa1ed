package ports

import (
	"context"
	"errors"
	"time"
)

// ErrLockHeld is returned by TryLock when another owner holds the key.
var ErrLockHeld = errors.New("lock held by another owner")

// UnlockFunc is a function that releases a distributed lock.
type UnlockFunc func(ctx context.Context) error

// DistributedLocker defines the interface for distributed concurrency control.
// It lets several coordinator instances sharing one account agree on line ownership.
type DistributedLocker interface {
	// TryLock attempts to acquire key without waiting.
	// Returns ErrLockHeld if the key is owned elsewhere, or an UnlockFunc that MUST be called.
	TryLock(ctx context.Context, key string, ttl time.Duration) (UnlockFunc, error)
}
