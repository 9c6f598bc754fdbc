package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/redis/go-redis/v9"
)

const revokedKeyPrefix = "memgame:revoked:"

// Revoker remembers logged out tokens until they would have expired
type Revoker interface {
	Revoke(ctx context.Context, tokenID string, ttl time.Duration) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// RedisRevoker stores revoked token IDs in Redis, shared by all instances
type RedisRevoker struct {
	client *redis.Client
}

// NewRedisRevoker creates a new RedisRevoker
func NewRedisRevoker(client *redis.Client) *RedisRevoker {
	return &RedisRevoker{client: client}
}

func (r *RedisRevoker) Revoke(ctx context.Context, tokenID string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := r.client.Set(ctx, revokedKeyPrefix+tokenID, "1", ttl).Err(); err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	return nil
}

func (r *RedisRevoker) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := r.client.Exists(ctx, revokedKeyPrefix+tokenID).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check token revocation: %w", err)
	}
	return n > 0, nil
}

// MemoryRevoker keeps revoked token IDs in process memory
type MemoryRevoker struct {
	cache *ttlcache.Cache[string, struct{}]
}

// NewMemoryRevoker creates a MemoryRevoker and starts its expiry loop.
// Call Stop to release it.
func NewMemoryRevoker() *MemoryRevoker {
	cache := ttlcache.New[string, struct{}](
		ttlcache.WithDisableTouchOnHit[string, struct{}](),
	)
	go cache.Start()
	return &MemoryRevoker{cache: cache}
}

func (r *MemoryRevoker) Revoke(_ context.Context, tokenID string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	r.cache.Set(tokenID, struct{}{}, ttl)
	return nil
}

func (r *MemoryRevoker) IsRevoked(_ context.Context, tokenID string) (bool, error) {
	return r.cache.Get(tokenID) != nil, nil
}

// Stop stops the expiry loop
func (r *MemoryRevoker) Stop() {
	r.cache.Stop()
}
