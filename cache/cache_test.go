package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRedis struct {
	held   map[string]bool
	setErr error
}

func (f *fakeRedis) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd {
	if f.setErr != nil {
		return redis.NewBoolResult(false, f.setErr)
	}
	if f.held[key] {
		return redis.NewBoolResult(false, nil)
	}
	f.held[key] = true
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	for _, k := range keys {
		delete(f.held, k)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

func TestRedisGuard(t *testing.T) {
	ctx := context.Background()
	g := &RedisGuard{rdb: &fakeRedis{held: map[string]bool{}}}
	key := IdempotencyKey(7, "abc")
	assert.Equal(t, "idempotent-key:7:abc", key)

	ok, err := g.Claim(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = g.Claim(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, g.Release(ctx, key))
	ok, err = g.Claim(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisGuardError(t *testing.T) {
	boom := errors.New("connection refused")
	g := &RedisGuard{rdb: &fakeRedis{held: map[string]bool{}, setErr: boom}}

	_, err := g.Claim(context.Background(), OTPCooldownKey("a@example.com"), time.Minute)
	assert.ErrorIs(t, err, boom)
}

func TestMemoryExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewMemory()
	m.now = func() time.Time { return now }

	ok, _ := m.Claim(ctx, "k", time.Minute)
	assert.True(t, ok)
	ok, _ = m.Claim(ctx, "k", time.Minute)
	assert.False(t, ok)

	now = now.Add(2 * time.Minute)
	ok, _ = m.Claim(ctx, "k", time.Minute)
	assert.True(t, ok)
}
