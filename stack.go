package shield

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/uptrace/bun"
)

// Stack holds every component wired from one Config.
type Stack struct {
	Config       Config
	Repos        RepositoryManager
	Hasher       *BcryptHasher
	Cache        *AuthorizationCache
	Strategy     Strategy
	Resolver     *CredentialResolver
	Orchestrator *Orchestrator
	Admin        *Admin
	Metrics      *Metrics
	Logger       Logger

	closeStores func() error
}

type stackOptions struct {
	logger     Logger
	registerer prometheus.Registerer
	sink       ActivitySink
	clock      Clock
	store      CacheStore
	denylist   Denylist
}

// StackOption configures NewStack.
type StackOption func(*stackOptions)

// WithStackLogger sets the logger shared by every component.
func WithStackLogger(l Logger) StackOption {
	return func(o *stackOptions) { o.logger = l }
}

// WithStackRegisterer registers metrics on reg. Without it no metrics are
// recorded.
func WithStackRegisterer(reg prometheus.Registerer) StackOption {
	return func(o *stackOptions) { o.registerer = reg }
}

// WithStackActivitySink sets the audit sink.
func WithStackActivitySink(s ActivitySink) StackOption {
	return func(o *stackOptions) { o.sink = s }
}

// WithStackClock sets the clock shared by the strategies and the audit trail.
func WithStackClock(c Clock) StackOption {
	return func(o *stackOptions) { o.clock = c }
}

// WithStackStores overrides the cache store and denylist selected by
// cfg.Cache.
func WithStackStores(store CacheStore, denylist Denylist) StackOption {
	return func(o *stackOptions) {
		o.store = store
		o.denylist = denylist
	}
}

// NewStack validates cfg and wires the repositories, the cache, the
// configured strategy, the orchestrator and the mutation path.
func NewStack(cfg Config, db *bun.DB, opts ...StackOption) (*Stack, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := &stackOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	logger := normalizeLogger(o.logger)
	clock := normalizeClock(o.clock)

	var metrics *Metrics
	if o.registerer != nil {
		m, err := NewMetrics(o.registerer)
		if err != nil {
			return nil, err
		}
		metrics = m
	}

	repos := NewRepositoryManager(db)
	if err := repos.Validate(); err != nil {
		return nil, err
	}

	closeStores := func() error { return nil }
	store, denylist := o.store, o.denylist
	if store == nil || denylist == nil {
		s, d, closer := NewStores(cfg)
		closeStores = closer
		if store == nil {
			store = s
		}
		if denylist == nil {
			denylist = d
		}
	}

	hasher := NewBcryptHasher(cfg.BcryptCost)

	cache := NewAuthorizationCache(NewGraphLoader(repos),
		WithCacheStore(store),
		WithCachePrefix(cfg.Cache.Prefix),
		WithCacheLogger(logger),
		WithCacheMetrics(metrics),
	)

	strategy, err := NewStrategy(cfg, StrategyDeps{
		Tokens:   repos.Tokens(),
		Grants:   NewGrantAuthority(repos.Grants(), cfg.GrantClient),
		Denylist: denylist,
		Roles:    cache,
		Clock:    clock,
		Logger:   logger,
	})
	if err != nil {
		_ = closeStores()
		return nil, err
	}

	resolver := NewCredentialResolverFromConfig(cfg, repos.Users(), hasher, WithResolverLogger(logger))

	orch := NewOrchestrator(cfg, resolver, strategy, repos.Users()).
		WithLogger(logger).
		WithActivitySink(o.sink).
		WithMetrics(metrics).
		WithClock(clock)

	admin := NewAdmin(cfg, repos, cache, hasher,
		WithAdminLogger(logger),
		WithAdminActivitySink(o.sink),
		WithAdminClock(clock),
	)

	return &Stack{
		Config:       cfg,
		Repos:        repos,
		Hasher:       hasher,
		Cache:        cache,
		Strategy:     strategy,
		Resolver:     resolver,
		Orchestrator: orch,
		Admin:        admin,
		Metrics:      metrics,
		Logger:       logger,
		closeStores:  closeStores,
	}, nil
}

// Close releases the cache backends.
func (s *Stack) Close() error {
	if s.closeStores == nil {
		return nil
	}
	return s.closeStores()
}
