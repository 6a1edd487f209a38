package shield_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	shield "github.com/goliatone/go-shield"
)

type countingLoader struct {
	mu    sync.Mutex
	loads map[uuid.UUID]int
	graph map[uuid.UUID]shield.Authorization
	roles map[uuid.UUID][]uuid.UUID
}

func newCountingLoader() *countingLoader {
	return &countingLoader{
		loads: map[uuid.UUID]int{},
		graph: map[uuid.UUID]shield.Authorization{},
		roles: map[uuid.UUID][]uuid.UUID{},
	}
}

func (l *countingLoader) Load(_ context.Context, userID uuid.UUID) (shield.Authorization, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.loads[userID]++
	return l.graph[userID], nil
}

func (l *countingLoader) UsersInRole(_ context.Context, roleID uuid.UUID) ([]uuid.UUID, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.roles[roleID], nil
}

func (l *countingLoader) UsersWithPrivilege(context.Context, uuid.UUID) ([]uuid.UUID, error) {
	return nil, nil
}

func (l *countingLoader) set(userID uuid.UUID, auth shield.Authorization) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.graph[userID] = auth
}

func (l *countingLoader) count(userID uuid.UUID) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loads[userID]
}

func TestCacheServesHits(t *testing.T) {
	ctx := context.Background()
	loader := newCountingLoader()
	reg := prometheus.NewRegistry()
	metrics, err := shield.NewMetrics(reg)
	require.NoError(t, err)

	cache := shield.NewAuthorizationCache(loader, shield.WithCacheMetrics(metrics))
	id := uuid.New()
	loader.set(id, shield.Authorization{Roles: []string{"user"}, Privileges: []string{"posts.read"}})

	for range 3 {
		auth, err := cache.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, []string{"user"}, auth.Roles)
	}
	assert.Equal(t, 1, loader.count(id))
	assert.Equal(t, 2.0, counterValue(t, reg, "shield_authz_cache_lookups_total", map[string]string{"result": "hit"}))
	assert.Equal(t, 1.0, counterValue(t, reg, "shield_authz_cache_lookups_total", map[string]string{"result": "miss"}))

	ok, err := cache.HasPrivilege(ctx, id, "posts.read")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = cache.HasAnyRole(ctx, id, "admin", "user")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = cache.HasRole(ctx, id, "admin")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCacheInvalidateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	loader := newCountingLoader()
	cache := shield.NewAuthorizationCache(loader)
	id := uuid.New()
	loader.set(id, shield.Authorization{Roles: []string{"user"}})

	_, err := cache.Get(ctx, id)
	require.NoError(t, err)

	loader.set(id, shield.Authorization{Roles: []string{"user", "admin"}})
	require.NoError(t, cache.Invalidate(ctx, id))
	require.NoError(t, cache.Invalidate(ctx, id, id))
	require.NoError(t, cache.Invalidate(ctx))

	auth, err := cache.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []string{"user", "admin"}, auth.Roles)
	assert.Equal(t, 2, loader.count(id))
}

func TestCacheInvalidateByRole(t *testing.T) {
	ctx := context.Background()
	loader := newCountingLoader()
	cache := shield.NewAuthorizationCache(loader)

	roleID := uuid.New()
	holder, other := uuid.New(), uuid.New()
	loader.roles[roleID] = []uuid.UUID{holder}

	for _, id := range []uuid.UUID{holder, other} {
		_, err := cache.Get(ctx, id)
		require.NoError(t, err)
	}

	require.NoError(t, cache.InvalidateByRole(ctx, roleID))

	for _, id := range []uuid.UUID{holder, other} {
		_, err := cache.Get(ctx, id)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, loader.count(holder))
	assert.Equal(t, 1, loader.count(other))
}

func TestCacheFreshAfterMutations(t *testing.T) {
	f := newFixture(t, testConfig(shield.DriverOpaque))
	user := f.register("u1@x.com")
	admin := f.stack.Admin

	_, err := admin.CreatePrivilege(f.ctx, shield.PrivilegeInput{Name: "Read posts", Slug: "posts.read"})
	require.NoError(t, err)
	_, err = admin.CreateRole(f.ctx, shield.RoleInput{Name: "Editor", Slug: "editor"})
	require.NoError(t, err)

	// warm the entry before each mutation so a stale read would show
	steps := []struct {
		name  string
		apply func() error
		check func(t *testing.T, auth shield.Authorization)
	}{
		{
			name:  "assign role",
			apply: func() error { return admin.AssignRole(f.ctx, user.ID, "editor") },
			check: func(t *testing.T, auth shield.Authorization) {
				assert.ElementsMatch(t, []string{"user", "editor"}, auth.Roles)
			},
		},
		{
			name:  "attach privilege",
			apply: func() error { return admin.AttachPrivilege(f.ctx, "editor", "posts.read") },
			check: func(t *testing.T, auth shield.Authorization) {
				assert.Equal(t, []string{"posts.read"}, auth.Privileges)
			},
		},
		{
			name: "rename privilege",
			apply: func() error {
				slug := "posts.view"
				_, err := admin.UpdatePrivilege(f.ctx, f.privilege("posts.read").ID, shield.PrivilegeUpdate{Slug: &slug})
				return err
			},
			check: func(t *testing.T, auth shield.Authorization) {
				assert.Equal(t, []string{"posts.view"}, auth.Privileges)
			},
		},
		{
			name: "rename role",
			apply: func() error {
				slug := "author"
				_, err := admin.UpdateRole(f.ctx, f.role("editor").ID, shield.RoleUpdate{Slug: &slug})
				return err
			},
			check: func(t *testing.T, auth shield.Authorization) {
				assert.ElementsMatch(t, []string{"user", "author"}, auth.Roles)
			},
		},
		{
			name:  "detach privilege",
			apply: func() error { return admin.DetachPrivilege(f.ctx, "author", "posts.view") },
			check: func(t *testing.T, auth shield.Authorization) {
				assert.Empty(t, auth.Privileges)
			},
		},
		{
			name:  "delete role",
			apply: func() error { return admin.DeleteRole(f.ctx, f.role("author").ID) },
			check: func(t *testing.T, auth shield.Authorization) {
				assert.Equal(t, []string{"user"}, auth.Roles)
			},
		},
	}

	for _, step := range steps {
		f.authz(user.ID)
		require.NoError(t, step.apply(), step.name)
		t.Run(step.name, func(t *testing.T) {
			step.check(t, f.authz(user.ID))
		})
	}
}

func TestCacheFreshAfterPrivilegeDelete(t *testing.T) {
	f := newFixture(t, testConfig(shield.DriverOpaque))
	require.NoError(t, f.stack.Admin.Seed(f.ctx, shield.SeedData{
		Privileges: []shield.PrivilegeInput{{Name: "Read posts", Slug: "posts.read"}},
		Roles:      []shield.SeedRole{{Name: "User", Slug: "user", Privileges: []string{"posts.read"}}},
	}))
	user := f.register("u1@x.com")
	assert.Equal(t, []string{"posts.read"}, f.authz(user.ID).Privileges)

	require.NoError(t, f.stack.Admin.DeletePrivilege(f.ctx, f.privilege("posts.read").ID))
	assert.Empty(t, f.authz(user.ID).Privileges)
}

func TestCacheFreshAfterPurge(t *testing.T) {
	f := newFixture(t, testConfig(shield.DriverOpaque))
	user := f.register("u1@x.com", "admin")
	assert.ElementsMatch(t, []string{"user", "admin"}, f.authz(user.ID).Roles)

	require.NoError(t, f.stack.Admin.PurgeRoles(f.ctx))
	assert.Empty(t, f.authz(user.ID).Roles)
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisStoreClearKeepsForeignKeys(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestRedis(t)
	require.NoError(t, mr.Set("other:key", "keep"))

	store := shield.NewRedisStore(client, "shield:authz")
	require.NoError(t, store.Set(ctx, "shield:authz:a", []byte("1")))
	require.NoError(t, store.Set(ctx, "shield:authz:b", []byte("2")))

	raw, ok, err := store.Get(ctx, "shield:authz:a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("1"), raw)

	require.NoError(t, store.Clear(ctx))

	_, ok, err = store.Get(ctx, "shield:authz:b")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.True(t, mr.Exists("other:key"))
}

func TestRedisBackedCache(t *testing.T) {
	ctx := context.Background()
	_, client := newTestRedis(t)
	loader := newCountingLoader()
	cache := shield.NewAuthorizationCache(loader,
		shield.WithCacheStore(shield.NewRedisStore(client, "shield:authz")),
		shield.WithCachePrefix("shield"),
	)
	id := uuid.New()
	loader.set(id, shield.Authorization{Roles: []string{"user"}})

	_, err := cache.Get(ctx, id)
	require.NoError(t, err)
	_, err = cache.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1, loader.count(id))

	require.NoError(t, cache.InvalidateAll(ctx))
	_, err = cache.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 2, loader.count(id))
}

func TestDenylists(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestRedis(t)

	t.Run("redis", func(t *testing.T) {
		d := shield.NewRedisDenylist(client, "shield")
		require.NoError(t, d.Put(ctx, "jti-1", 5*time.Minute))
		require.NoError(t, d.Put(ctx, "jti-2", 0))

		ok, err := d.Has(ctx, "jti-1")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, 5*time.Minute, mr.TTL("shield:denylist:jti-1"))

		ok, err = d.Has(ctx, "jti-2")
		require.NoError(t, err)
		assert.False(t, ok)

		mr.FastForward(6 * time.Minute)
		ok, err = d.Has(ctx, "jti-1")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("memory", func(t *testing.T) {
		d := shield.NewMemoryDenylist()
		require.NoError(t, d.Put(ctx, "jti-1", time.Minute))

		ok, err := d.Has(ctx, "jti-1")
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = d.Has(ctx, "jti-unknown")
		require.NoError(t, err)
		assert.False(t, ok)
	})
}
