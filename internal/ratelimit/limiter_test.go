package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestMemoryLimiter(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	m := NewMemory(Policy{MaxAttempts: 3, Window: time.Minute})
	m.SetClock(func() time.Time { return now })

	for i := 1; i <= 3; i++ {
		blocked, _, err := m.Blocked(ctx, "alice")
		require.NoError(t, err)
		require.False(t, blocked)
		n, err := m.Fail(ctx, "alice")
		require.NoError(t, err)
		require.Equal(t, i, n)
	}
	blocked, wait, err := m.Blocked(ctx, "alice")
	require.NoError(t, err)
	require.True(t, blocked)
	require.Equal(t, time.Minute, wait)

	blocked, _, _ = m.Blocked(ctx, "bob")
	require.False(t, blocked)

	now = now.Add(time.Minute)
	blocked, _, _ = m.Blocked(ctx, "alice")
	require.False(t, blocked)

	_, _ = m.Fail(ctx, "alice")
	require.NoError(t, m.Reset(ctx, "alice"))
	n, _ := m.Fail(ctx, "alice")
	require.Equal(t, 1, n)
}

func TestRedisLimiter(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	r := NewRedis(client, Policy{MaxAttempts: 2, Window: 30 * time.Second})

	n, err := r.Fail(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, 1, n)
	blocked, _, err := r.Blocked(ctx, "alice")
	require.NoError(t, err)
	require.False(t, blocked)

	n, err = r.Fail(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, 2, n)
	blocked, wait, err := r.Blocked(ctx, "alice")
	require.NoError(t, err)
	require.True(t, blocked)
	require.True(t, wait > 0)

	mr.FastForward(31 * time.Second)
	blocked, _, err = r.Blocked(ctx, "alice")
	require.NoError(t, err)
	require.False(t, blocked)

	_, _ = r.Fail(ctx, "bob")
	require.NoError(t, r.Reset(ctx, "bob"))
	blocked, _, err = r.Blocked(ctx, "bob")
	require.NoError(t, err)
	require.False(t, blocked)
}
