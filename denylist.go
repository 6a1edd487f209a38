package shield

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

// Denylist records revoked signed token ids until their denial expires.
type Denylist interface {
	Put(ctx context.Context, jti string, ttl time.Duration) error
	Has(ctx context.Context, jti string) (bool, error)
}

const denylistPrefix = "shield:denylist:"

type memoryDenylist struct {
	c *gocache.Cache
}

// NewMemoryDenylist returns a process local Denylist. Expired entries are
// swept every minute.
func NewMemoryDenylist() Denylist {
	return &memoryDenylist{c: gocache.New(gocache.NoExpiration, time.Minute)}
}

func (m *memoryDenylist) Put(_ context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	m.c.Set(denylistPrefix+jti, struct{}{}, ttl)
	return nil
}

func (m *memoryDenylist) Has(_ context.Context, jti string) (bool, error) {
	_, ok := m.c.Get(denylistPrefix + jti)
	return ok, nil
}

type redisDenylist struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisDenylist stores denylist entries as redis keys with a TTL.
func NewRedisDenylist(client redis.UniversalClient, prefix string) Denylist {
	if prefix == "" {
		prefix = "shield"
	}
	return &redisDenylist{client: client, prefix: prefix + ":denylist:"}
}

func (r *redisDenylist) Put(ctx context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	return r.client.Set(ctx, r.prefix+jti, "1", ttl).Err()
}

func (r *redisDenylist) Has(ctx context.Context, jti string) (bool, error) {
	n, err := r.client.Exists(ctx, r.prefix+jti).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
