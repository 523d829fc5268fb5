package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/turtacn/FCE-Intelligence/pkg/errors"
)

func TestMutex_LockUnlock(t *testing.T) {
	client, mr := newTestClient(t)
	locker := NewLocker(client, "fce:", nil)
	ctx := context.Background()

	lock := locker.NewMutex("report-job:42", WithLockTTL(time.Second))
	require.NoError(t, lock.Lock(ctx))
	assert.True(t, mr.Exists("fce:lock:report-job:42"))

	ttl, err := lock.TTL(ctx)
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	require.NoError(t, lock.Unlock(ctx))
	assert.False(t, mr.Exists("fce:lock:report-job:42"))
}

func TestMutex_Contention(t *testing.T) {
	client, _ := newTestClient(t)
	locker := NewLocker(client, "fce:", nil)
	ctx := context.Background()

	lock1 := locker.NewMutex("job", WithRetryCount(1))
	lock2 := locker.NewMutex("job", WithRetryCount(2), WithRetryDelay(10*time.Millisecond))

	require.NoError(t, lock1.Lock(ctx))

	err := lock2.Lock(ctx)
	assert.True(t, pkgerrors.IsConflict(err))

	ok, err := lock2.TryLock(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	err = lock2.Unlock(ctx)
	assert.True(t, pkgerrors.IsConflict(err), "only the holder may unlock")

	require.NoError(t, lock1.Unlock(ctx))
	require.NoError(t, lock2.Lock(ctx))
}

func TestMutex_LeaseExpires(t *testing.T) {
	client, mr := newTestClient(t)
	locker := NewLocker(client, "fce:", nil)
	ctx := context.Background()

	lock1 := locker.NewMutex("job", WithLockTTL(time.Second))
	require.NoError(t, lock1.Lock(ctx))
	mr.FastForward(2 * time.Second)

	lock2 := locker.NewMutex("job", WithRetryCount(1))
	require.NoError(t, lock2.Lock(ctx))

	ok, err := lock1.Extend(ctx, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "an expired holder cannot extend someone else's lease")
}

func TestMutex_Extend(t *testing.T) {
	client, mr := newTestClient(t)
	locker := NewLocker(client, "fce:", nil)
	ctx := context.Background()

	lock := locker.NewMutex("job", WithLockTTL(time.Second))
	require.NoError(t, lock.Lock(ctx))

	ok, err := lock.Extend(ctx, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, time.Minute, mr.TTL("fce:lock:job"))
}

func TestMutex_LockHonoursContext(t *testing.T) {
	client, _ := newTestClient(t)
	locker := NewLocker(client, "fce:", nil)

	require.NoError(t, locker.NewMutex("job").Lock(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err := locker.NewMutex("job", WithRetryDelay(time.Second)).Lock(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
