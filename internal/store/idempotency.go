package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/teemow/depobot/internal/apperrors"
)

// DefaultClaimTTL is how long a processed event stays claimed.
const DefaultClaimTTL = 24 * time.Hour

// Guard hands out one-time claims on event keys. Claim returns true for
// the first caller and false for every later caller until the claim
// expires.
type Guard interface {
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// MemoryGuard keeps claims in process memory.
type MemoryGuard struct {
	mu     sync.Mutex
	claims map[string]time.Time
	now    func() time.Time
}

// NewMemoryGuard returns an empty in-process guard.
func NewMemoryGuard() *MemoryGuard {
	return &MemoryGuard{
		claims: make(map[string]time.Time),
		now:    time.Now,
	}
}

// Claim records key until now+ttl.
func (g *MemoryGuard) Claim(_ context.Context, key string, ttl time.Duration) (bool, error) {
	if key == "" {
		return false, apperrors.InvalidArgument("claim key is required")
	}
	if ttl <= 0 {
		ttl = DefaultClaimTTL
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	g.cleanupExpired(now)

	if _, held := g.claims[key]; held {
		return false, nil
	}
	g.claims[key] = now.Add(ttl)
	return true, nil
}

// cleanupExpired drops claims past their expiry. Callers hold g.mu.
func (g *MemoryGuard) cleanupExpired(now time.Time) {
	for key, expiresAt := range g.claims {
		if now.After(expiresAt) {
			delete(g.claims, key)
		}
	}
}

// RedisGuard claims keys with SET NX EX, which is atomic across replicas.
type RedisGuard struct {
	client redis.UniversalClient
}

// NewRedisGuard returns a guard backed by client.
func NewRedisGuard(client redis.UniversalClient) *RedisGuard {
	return &RedisGuard{client: client}
}

// Claim sets key only if it is absent.
func (g *RedisGuard) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if key == "" {
		return false, apperrors.InvalidArgument("claim key is required")
	}
	if ttl <= 0 {
		ttl = DefaultClaimTTL
	}
	ok, err := g.client.SetNX(ctx, keyPrefix+"claims:"+key, time.Now().UTC().Format(time.RFC3339), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim %s: %w", key, err)
	}
	return ok, nil
}
