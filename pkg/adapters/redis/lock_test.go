package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/callboard/pkg/adapters/redis"
	"github.com/aretw0/callboard/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ ports.DistributedLocker = (*redis.Locker)(nil)

func TestRedisLocker_LockUnlock(t *testing.T) {
	mr, client := newClient(t)
	locker := redis.NewLocker(client, "test:")
	ctx := context.Background()

	unlock, err := locker.TryLock(ctx, "line:1", 5*time.Second)
	require.NoError(t, err)
	require.NotNil(t, unlock)
	assert.True(t, mr.Exists("test:lock:line:1"), "Lock key should be set in Redis")

	require.NoError(t, unlock(ctx))
	assert.False(t, mr.Exists("test:lock:line:1"), "Lock key should be removed after unlock")
}

func TestRedisLocker_Contention(t *testing.T) {
	_, client := newClient(t)
	locker1 := redis.NewLocker(client, "test:")
	locker2 := redis.NewLocker(client, "test:")
	ctx := context.Background()

	unlock1, err := locker1.TryLock(ctx, "line:2", 5*time.Second)
	require.NoError(t, err)

	_, err = locker2.TryLock(ctx, "line:2", 5*time.Second)
	assert.ErrorIs(t, err, ports.ErrLockHeld)

	require.NoError(t, unlock1(ctx))
	unlock2, err := locker2.TryLock(ctx, "line:2", 5*time.Second)
	require.NoError(t, err)
	defer unlock2(ctx)
}

func TestRedisLocker_ExpiredOwnerCannotRelease(t *testing.T) {
	mr, client := newClient(t)
	locker := redis.NewLocker(client, "test:")
	ctx := context.Background()

	stale, err := locker.TryLock(ctx, "line:3", time.Second)
	require.NoError(t, err)
	mr.FastForward(2 * time.Second)

	fresh, err := locker.TryLock(ctx, "line:3", 5*time.Second)
	require.NoError(t, err)

	// The stale owner's release must not delete the new owner's key.
	require.NoError(t, stale(ctx))
	assert.True(t, mr.Exists("test:lock:line:3"))

	require.NoError(t, fresh(ctx))
	assert.False(t, mr.Exists("test:lock:line:3"))
}
