package shield_test

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"golang.org/x/crypto/bcrypt"

	shield "github.com/goliatone/go-shield"
)

const (
	testPassword   = "P@ssw0rd"
	testSigningKey = "0123456789abcdef0123456789abcdef"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type captureSink struct {
	mu     sync.Mutex
	events []shield.ActivityEvent
}

func (c *captureSink) Record(_ context.Context, evt shield.ActivityEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, evt)
	return nil
}

func (c *captureSink) Types() []shield.ActivityEventType {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]shield.ActivityEventType, len(c.events))
	for i, e := range c.events {
		out[i] = e.EventType
	}
	return out
}

func newTestDB(t *testing.T) *bun.DB {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, "file::memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, shield.CreateSchema(context.Background(), db))
	return db
}

func testConfig(driver shield.Driver) shield.Config {
	cfg := shield.DefaultConfig()
	cfg.AuthDriver = driver
	cfg.BcryptCost = bcrypt.MinCost
	cfg.SigningKey = testSigningKey
	return cfg
}

type fixture struct {
	t        *testing.T
	ctx      context.Context
	cfg      shield.Config
	db       *bun.DB
	clock    *testClock
	sink     *captureSink
	registry *prometheus.Registry
	stack    *shield.Stack
}

type fixtureOption func(*fixtureOptions)

type fixtureOptions struct {
	denylist shield.Denylist
}

func withDenylist(d shield.Denylist) fixtureOption {
	return func(o *fixtureOptions) { o.denylist = d }
}

func newFixture(t *testing.T, cfg shield.Config, opts ...fixtureOption) *fixture {
	t.Helper()

	o := &fixtureOptions{denylist: shield.NewMemoryDenylist()}
	for _, opt := range opts {
		opt(o)
	}

	f := &fixture{
		t:        t,
		ctx:      context.Background(),
		cfg:      cfg,
		db:       newTestDB(t),
		clock:    newTestClock(),
		sink:     &captureSink{},
		registry: prometheus.NewRegistry(),
	}

	stack, err := shield.NewStack(cfg, f.db,
		shield.WithStackClock(f.clock.Now),
		shield.WithStackStores(shield.NewMemoryStore(), o.denylist),
		shield.WithStackActivitySink(f.sink),
		shield.WithStackRegisterer(f.registry),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = stack.Close() })
	f.stack = stack

	require.NoError(t, stack.Admin.Seed(f.ctx, shield.DefaultSeed(cfg)))
	return f
}

// register creates a verified user holding the default role plus roles.
func (f *fixture) register(email string, roles ...string) *shield.User {
	f.t.Helper()
	user, err := f.stack.Admin.RegisterUser(f.ctx, shield.NewUser{
		Name:     "User " + email,
		Email:    email,
		Password: testPassword,
		Verified: true,
	})
	require.NoError(f.t, err)
	for _, slug := range roles {
		require.NoError(f.t, f.stack.Admin.AssignRole(f.ctx, user.ID, slug))
	}
	return user
}

func (f *fixture) login(email string) *shield.AuthResult {
	f.t.Helper()
	res, err := f.stack.Orchestrator.Login(f.ctx, shield.Credentials{
		"email":                   email,
		shield.CredentialPassword: testPassword,
	})
	require.NoError(f.t, err)
	return res
}

// session authenticates token and returns a context carrying the session.
func (f *fixture) session(token string) context.Context {
	f.t.Helper()
	s, err := f.stack.Orchestrator.Authenticate(f.ctx, token)
	require.NoError(f.t, err)
	return shield.WithSession(f.ctx, s)
}

func (f *fixture) role(slug string) *shield.Role {
	f.t.Helper()
	r, err := f.stack.Admin.FindRole(f.ctx, slug)
	require.NoError(f.t, err)
	return r
}

func (f *fixture) privilege(slug string) *shield.Privilege {
	f.t.Helper()
	p, err := f.stack.Admin.FindPrivilege(f.ctx, slug)
	require.NoError(f.t, err)
	return p
}

func (f *fixture) authz(userID uuid.UUID) shield.Authorization {
	f.t.Helper()
	a, err := f.stack.Cache.Get(f.ctx, userID)
	require.NoError(f.t, err)
	return a
}

// counterValue sums every series of the named counter.
func counterValue(t *testing.T, reg prometheus.Gatherer, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)

	total := 0.0
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	metrics:
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
					continue metrics
				}
			}
			total += m.GetCounter().GetValue()
		}
	}
	return total
}
