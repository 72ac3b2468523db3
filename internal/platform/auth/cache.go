package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// accountCacheTTL bounds how stale a cached role may be. A disabled or
// re-roled account keeps its old permissions for at most this window.
const accountCacheTTL = 30 * time.Second

// AccountCache is a short-lived Redis cache in front of the account lookup
// on the hot authentication path. A nil client disables caching; every
// method is nil-safe so callers never branch on configuration.
type AccountCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewAccountCache(client *redis.Client) *AccountCache {
	return &AccountCache{client: client, ttl: accountCacheTTL}
}

func (c *AccountCache) key(id uuid.UUID) string {
	return "mediscan:account:" + id.String()
}

// Get returns the cached identity for an account id, if present and fresh.
func (c *AccountCache) Get(ctx context.Context, id uuid.UUID) (Identity, bool) {
	if c == nil || c.client == nil {
		return Identity{}, false
	}
	val, err := c.client.Get(ctx, c.key(id)).Result()
	if err != nil {
		return Identity{}, false
	}
	role, err := ParseRole(val)
	if err != nil {
		return Identity{}, false
	}
	return Identity{AccountID: id, Role: role}, true
}

// Put stores the identity's role under its account id. Cache write failures
// are ignored; the next request simply hits the database again.
func (c *AccountCache) Put(ctx context.Context, ident Identity) {
	if c == nil || c.client == nil {
		return
	}
	c.client.Set(ctx, c.key(ident.AccountID), string(ident.Role), c.ttl)
}

// Invalidate drops the cached entry for an account, used after role changes
// or deactivation so the staleness window does not apply.
func (c *AccountCache) Invalidate(ctx context.Context, id uuid.UUID) {
	if c == nil || c.client == nil {
		return
	}
	c.client.Del(ctx, c.key(id))
}
