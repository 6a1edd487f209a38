package shield

import (
	"context"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

// CacheStore is the key/value backend of the AuthorizationCache. Writes must
// be visible to the next read from any caller.
type CacheStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, keys ...string) error
	Clear(ctx context.Context) error
}

type memoryStore struct {
	c *gocache.Cache
}

// NewMemoryStore returns an in process store. Entries never expire.
func NewMemoryStore() CacheStore {
	return &memoryStore{c: gocache.New(gocache.NoExpiration, 0)}
}

func (m *memoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := m.c.Get(key)
	if !ok {
		return nil, false, nil
	}
	b, _ := v.([]byte)
	return b, true, nil
}

func (m *memoryStore) Set(_ context.Context, key string, value []byte) error {
	m.c.Set(key, value, gocache.NoExpiration)
	return nil
}

func (m *memoryStore) Delete(_ context.Context, keys ...string) error {
	for _, k := range keys {
		m.c.Delete(k)
	}
	return nil
}

func (m *memoryStore) Clear(context.Context) error {
	m.c.Flush()
	return nil
}

type redisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore returns a store backed by redis. Clear only removes keys
// under prefix.
func NewRedisStore(client redis.UniversalClient, prefix string) CacheStore {
	return &redisStore{client: client, prefix: prefix}
}

func (r *redisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := r.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (r *redisStore) Set(ctx context.Context, key string, value []byte) error {
	return r.client.Set(ctx, key, value, time.Duration(0)).Err()
}

func (r *redisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return r.client.Del(ctx, keys...).Err()
}

func (r *redisStore) Clear(ctx context.Context) error {
	pattern := strings.TrimSuffix(r.prefix, ":") + ":*"
	iter := r.client.Scan(ctx, 0, pattern, 200).Iterator()
	batch := make([]string, 0, 200)
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == cap(batch) {
			if err := r.client.Del(ctx, batch...).Err(); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return err
	}
	return r.Delete(ctx, batch...)
}

// NewRedisClient builds a client from RedisConfig.
func NewRedisClient(cfg RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// NewStores returns the cache store and denylist selected by cfg.Cache.
func NewStores(cfg Config) (CacheStore, Denylist, func() error) {
	if cfg.Cache.Driver == CacheDriverRedis {
		client := NewRedisClient(cfg.Redis)
		prefix := cfg.Cache.Prefix + ":authz"
		return NewRedisStore(client, prefix), NewRedisDenylist(client, cfg.Cache.Prefix), client.Close
	}
	return NewMemoryStore(), NewMemoryDenylist(), func() error { return nil }
}
