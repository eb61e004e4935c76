// Package cache holds short-lived claims (idempotency keys, OTP cooldowns)
// backed by Redis.
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// Guard hands out one-time claims on keys until they expire.
type Guard interface {
	// Claim returns false when the key is already held.
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

func IdempotencyKey(userID int64, key string) string {
	return fmt.Sprintf("idempotent-key:%d:%s", userID, key)
}

func OTPCooldownKey(identifier string) string {
	return "otp-cooldown:" + identifier
}

type cmdable interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

type RedisGuard struct {
	rdb cmdable
}

func NewRedisClient(addr, password string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})
}

func NewRedisGuard(rdb *redis.Client) *RedisGuard {
	return &RedisGuard{rdb: rdb}
}

func (g *RedisGuard) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := g.rdb.SetNX(ctx, key, "exists", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim %s: %w", key, err)
	}
	return ok, nil
}

func (g *RedisGuard) Release(ctx context.Context, key string) error {
	return g.rdb.Del(ctx, key).Err()
}

// Memory is a process-local Guard for single-instance deployments and tests.
type Memory struct {
	mu   sync.Mutex
	keys map[string]time.Time
	now  func() time.Time
}

func NewMemory() *Memory {
	return &Memory{keys: make(map[string]time.Time), now: time.Now}
}

func (m *Memory) Claim(_ context.Context, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if exp, ok := m.keys[key]; ok && now.Before(exp) {
		return false, nil
	}
	m.keys[key] = now.Add(ttl)
	return true, nil
}

func (m *Memory) Release(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.keys, key)
	m.mu.Unlock()
	return nil
}
