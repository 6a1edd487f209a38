package shield

import (
	"context"
	"encoding/json"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Authorization is the resolved role and privilege set of one user.
type Authorization struct {
	Roles      []string `json:"roles"`
	Privileges []string `json:"privileges"`
}

// HasRole reports whether slug is among the roles.
func (a Authorization) HasRole(slug string) bool {
	return slices.Contains(a.Roles, slug)
}

// HasPrivilege reports whether slug is among the privileges.
func (a Authorization) HasPrivilege(slug string) bool {
	return slices.Contains(a.Privileges, slug)
}

// GraphLoader reads the authorization graph from the source of truth.
type GraphLoader interface {
	Load(ctx context.Context, userID uuid.UUID) (Authorization, error)
	UsersInRole(ctx context.Context, roleID uuid.UUID) ([]uuid.UUID, error)
	UsersWithPrivilege(ctx context.Context, privilegeID uuid.UUID) ([]uuid.UUID, error)
}

type graphLoader struct {
	db         bun.IDB
	roles      Roles
	privileges Privileges
}

// NewGraphLoader reads the graph through the repositories of repos.
func NewGraphLoader(repos RepositoryManager) GraphLoader {
	return &graphLoader{
		db:         repos.DB(),
		roles:      repos.Roles(),
		privileges: repos.Privileges(),
	}
}

func (g *graphLoader) Load(ctx context.Context, userID uuid.UUID) (Authorization, error) {
	roles, err := g.roles.SlugsForUserTx(ctx, g.db, userID)
	if err != nil {
		return Authorization{}, err
	}
	privileges, err := g.privileges.SlugsForUserTx(ctx, g.db, userID)
	if err != nil {
		return Authorization{}, err
	}
	return Authorization{Roles: roles, Privileges: privileges}, nil
}

func (g *graphLoader) UsersInRole(ctx context.Context, roleID uuid.UUID) ([]uuid.UUID, error) {
	return g.roles.UserIDsTx(ctx, g.db, roleID)
}

func (g *graphLoader) UsersWithPrivilege(ctx context.Context, privilegeID uuid.UUID) ([]uuid.UUID, error) {
	return g.privileges.UserIDsTx(ctx, g.db, privilegeID)
}

// AuthorizationCache memoizes Authorization per user with no expiry. Entries
// are only ever removed by explicit invalidation.
type AuthorizationCache struct {
	loader  GraphLoader
	store   CacheStore
	prefix  string
	logger  Logger
	metrics *Metrics

	// seq increases on every invalidation. A fill that observes a change
	// between its start and its write drops the result.
	seq atomic.Uint64
	mu  sync.Mutex
}

// CacheOption configures an AuthorizationCache.
type CacheOption func(*AuthorizationCache)

// WithCacheStore replaces the default in memory store.
func WithCacheStore(s CacheStore) CacheOption {
	return func(c *AuthorizationCache) {
		if s != nil {
			c.store = s
		}
	}
}

// WithCachePrefix sets the key prefix, "shield" by default.
func WithCachePrefix(prefix string) CacheOption {
	return func(c *AuthorizationCache) {
		if prefix != "" {
			c.prefix = prefix
		}
	}
}

// WithCacheLogger sets the logger.
func WithCacheLogger(l Logger) CacheOption {
	return func(c *AuthorizationCache) { c.logger = normalizeLogger(l) }
}

// WithCacheMetrics sets the metrics sink.
func WithCacheMetrics(m *Metrics) CacheOption {
	return func(c *AuthorizationCache) { c.metrics = m }
}

// NewAuthorizationCache returns a cache reading through loader.
func NewAuthorizationCache(loader GraphLoader, opts ...CacheOption) *AuthorizationCache {
	c := &AuthorizationCache{
		loader: loader,
		store:  NewMemoryStore(),
		prefix: "shield",
		logger: NopLogger(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

func (c *AuthorizationCache) key(userID uuid.UUID) string {
	return c.prefix + ":authz:" + userID.String()
}

// Get returns the user's authorization, loading and storing it on a miss.
func (c *AuthorizationCache) Get(ctx context.Context, userID uuid.UUID) (Authorization, error) {
	key := c.key(userID)

	raw, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.logger.Warn("authz cache read failed", "user_id", userID, "error", err)
	}
	if ok {
		var auth Authorization
		if err := json.Unmarshal(raw, &auth); err == nil {
			c.metrics.cacheLookup(true)
			return auth, nil
		}
		c.logger.Warn("authz cache entry corrupt", "user_id", userID)
	}
	c.metrics.cacheLookup(false)

	start := c.seq.Load()
	auth, err := c.loader.Load(ctx, userID)
	if err != nil {
		return Authorization{}, err
	}

	payload, err := json.Marshal(auth)
	if err != nil {
		return auth, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.seq.Load() != start {
		c.logger.Debug("authz fill skipped after concurrent invalidation", "user_id", userID)
		return auth, nil
	}
	if err := c.store.Set(ctx, key, payload); err != nil {
		c.logger.Warn("authz cache write failed", "user_id", userID, "error", err)
	}
	return auth, nil
}

// RoleSlugs implements RoleSource.
func (c *AuthorizationCache) RoleSlugs(ctx context.Context, userID uuid.UUID) ([]string, error) {
	auth, err := c.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	return auth.Roles, nil
}

func (c *AuthorizationCache) HasRole(ctx context.Context, userID uuid.UUID, slug string) (bool, error) {
	auth, err := c.Get(ctx, userID)
	if err != nil {
		return false, err
	}
	return auth.HasRole(slug), nil
}

func (c *AuthorizationCache) HasAnyRole(ctx context.Context, userID uuid.UUID, slugs ...string) (bool, error) {
	auth, err := c.Get(ctx, userID)
	if err != nil {
		return false, err
	}
	for _, s := range slugs {
		if auth.HasRole(s) {
			return true, nil
		}
	}
	return false, nil
}

func (c *AuthorizationCache) HasPrivilege(ctx context.Context, userID uuid.UUID, slug string) (bool, error) {
	auth, err := c.Get(ctx, userID)
	if err != nil {
		return false, err
	}
	return auth.HasPrivilege(slug), nil
}

// Invalidate drops the entries of the given users. Calling it again with
// the same ids has no further effect.
func (c *AuthorizationCache) Invalidate(ctx context.Context, userIDs ...uuid.UUID) error {
	ids := dedupeIDs(userIDs)
	if len(ids) == 0 {
		return nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = c.key(id)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq.Add(1)
	if err := c.store.Delete(ctx, keys...); err != nil {
		return err
	}
	c.metrics.invalidation("user")
	return nil
}

// InvalidateByRole drops the entries of every user currently holding roleID.
func (c *AuthorizationCache) InvalidateByRole(ctx context.Context, roleID uuid.UUID) error {
	ids, err := c.loader.UsersInRole(ctx, roleID)
	if err != nil {
		return err
	}
	return c.Invalidate(ctx, ids...)
}

// InvalidateByPrivilege drops the entries of every user reachable through a
// role that carries privilegeID.
func (c *AuthorizationCache) InvalidateByPrivilege(ctx context.Context, privilegeID uuid.UUID) error {
	ids, err := c.loader.UsersWithPrivilege(ctx, privilegeID)
	if err != nil {
		return err
	}
	return c.Invalidate(ctx, ids...)
}

// InvalidateAll empties the cache.
func (c *AuthorizationCache) InvalidateAll(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq.Add(1)
	if err := c.store.Clear(ctx); err != nil {
		return err
	}
	c.metrics.invalidation("all")
	return nil
}

// Handle implements MutationHandler.
func (c *AuthorizationCache) Handle(ctx context.Context, event MutationEvent) error {
	if event.All {
		return c.InvalidateAll(ctx)
	}
	c.logger.Debug("authz invalidation", "kind", event.Kind, "users", len(event.UserIDs))
	return c.Invalidate(ctx, event.UserIDs...)
}
