package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/erp/invoicing/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const defaultGuardKeyPrefix = "invoicing:dispatch:"

// releaseScript deletes the key only while it still carries our token,
// so a claim that expired and was re-taken elsewhere is left alone
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisDispatchGuard implements DispatchGuard with SETNX, shared by every
// instance pointed at the same Redis
type RedisDispatchGuard struct {
	client     redis.UniversalClient
	ownsClient bool
	keyPrefix  string

	mu     sync.Mutex
	tokens map[string]string
}

// NewRedisDispatchGuard connects to Redis and verifies the connection
func NewRedisDispatchGuard(ctx context.Context, opts *redis.Options) (*RedisDispatchGuard, error) {
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	g := NewRedisDispatchGuardWithClient(client, "")
	g.ownsClient = true
	return g, nil
}

// NewRedisDispatchGuardWithClient creates a guard over an existing client.
// The caller keeps ownership of the client.
func NewRedisDispatchGuardWithClient(client redis.UniversalClient, keyPrefix string) *RedisDispatchGuard {
	if keyPrefix == "" {
		keyPrefix = defaultGuardKeyPrefix
	}
	return &RedisDispatchGuard{
		client:    client,
		keyPrefix: keyPrefix,
		tokens:    make(map[string]string),
	}
}

// Claim sets the key if absent, with ttl as its expiry
func (g *RedisDispatchGuard) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	token := uuid.NewString()
	acquired, err := g.client.SetNX(ctx, g.keyPrefix+key, token, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim %s: %w", key, err)
	}
	if !acquired {
		return false, nil
	}

	g.mu.Lock()
	g.tokens[key] = token
	g.mu.Unlock()
	return true, nil
}

// Release deletes the key if this guard still holds it
func (g *RedisDispatchGuard) Release(ctx context.Context, key string) error {
	g.mu.Lock()
	token, held := g.tokens[key]
	delete(g.tokens, key)
	g.mu.Unlock()

	if !held {
		return nil
	}
	if err := releaseScript.Run(ctx, g.client, []string{g.keyPrefix + key}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to release %s: %w", key, err)
	}
	return nil
}

// Close closes the Redis client if the guard created it
func (g *RedisDispatchGuard) Close() error {
	if !g.ownsClient {
		return nil
	}
	return g.client.Close()
}

// Ensure RedisDispatchGuard implements DispatchGuard
var _ shared.DispatchGuard = (*RedisDispatchGuard)(nil)
