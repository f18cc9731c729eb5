package redisclient

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLocker(t *testing.T) (Locker, *redis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewRedisSlotLocker(client, 5*time.Second), client
}

func TestWithSlotLockRunsCriticalSection(t *testing.T) {
	locker, _ := newTestLocker(t)

	ran := false
	err := locker.WithSlotLock(context.Background(), uuid.New(), func(ctx context.Context) error {
		ran = true
		return nil
	})

	require.NoError(t, err)
	assert.True(t, ran)
}

func TestWithSlotLockContended(t *testing.T) {
	locker, client := newTestLocker(t)
	slotID := uuid.New()

	// Simulate another worker holding the lock.
	require.NoError(t, client.Set(context.Background(), "lock:slot:"+slotID.String(), "other", time.Minute).Err())

	err := locker.WithSlotLock(context.Background(), slotID, func(ctx context.Context) error {
		t.Fatal("critical section must not run while the lock is held elsewhere")
		return nil
	})

	assert.True(t, errors.Is(err, ErrLockNotAcquired))
}

func TestWithSlotLockReleasesAfterUse(t *testing.T) {
	locker, client := newTestLocker(t)
	slotID := uuid.New()

	require.NoError(t, locker.WithSlotLock(context.Background(), slotID, func(ctx context.Context) error {
		return nil
	}))

	// Lock key is gone, so a second acquisition succeeds.
	exists, err := client.Exists(context.Background(), "lock:slot:"+slotID.String()).Result()
	require.NoError(t, err)
	assert.Zero(t, exists)

	require.NoError(t, locker.WithSlotLock(context.Background(), slotID, func(ctx context.Context) error {
		return nil
	}))
}

func TestWithSlotLockRunsWhenRedisDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	locker := NewRedisSlotLocker(client, 5*time.Second)

	mr.Close()

	ran := false
	err := locker.WithSlotLock(context.Background(), uuid.New(), func(ctx context.Context) error {
		ran = true
		return nil
	})

	require.NoError(t, err)
	assert.True(t, ran)
}

func TestWithSlotLockPropagatesError(t *testing.T) {
	locker, _ := newTestLocker(t)

	boom := errors.New("boom")
	err := locker.WithSlotLock(context.Background(), uuid.New(), func(ctx context.Context) error {
		return boom
	})

	assert.True(t, errors.Is(err, boom))
}
