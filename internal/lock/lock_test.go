package lock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"

	"github.com/nexusgate/llmgateway/common"
)

func startMiniredis(t *testing.T) *miniredis.Miniredis {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	common.RDB = redis.NewClient(&redis.Options{Addr: mr.Addr()})
	common.SetRedisEnabled(true)
	t.Cleanup(func() { common.SetRedisEnabled(false) })
	return mr
}

func TestAcquireReleaseRoundTrip(t *testing.T) {
	startMiniredis(t)
	ctx := context.Background()

	l, err := Acquire(ctx, "task_poller:video:lock", 60*time.Second)
	require.NoError(t, err)

	_, err = Acquire(ctx, "task_poller:video:lock", 60*time.Second)
	require.ErrorIs(t, err, ErrNotAcquired)

	require.NoError(t, l.Release(ctx))

	l2, err := Acquire(ctx, "task_poller:video:lock", 60*time.Second)
	require.NoError(t, err)
	require.NoError(t, l2.Release(ctx))
}

func TestReleaseDoesNotStealReacquiredLock(t *testing.T) {
	mr := startMiniredis(t)
	ctx := context.Background()

	l, err := Acquire(ctx, "k", 1*time.Second)
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)

	l2, err := Acquire(ctx, "k", 60*time.Second)
	require.NoError(t, err)

	require.NoError(t, l.Release(ctx))

	exists := mr.Exists("k")
	require.True(t, exists)
	require.NoError(t, l2.Release(ctx))
}

func TestWithLockRunsExactlyOnce(t *testing.T) {
	startMiniredis(t)
	ctx := context.Background()
	calls := 0

	err := WithLock(ctx, "task_poller:video:lock", 60*time.Second, func(ctx context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 1, calls)
}
