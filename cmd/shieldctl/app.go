package main

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/goliatone/go-persistence-bun"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/uptrace/bun/schema"

	shield "github.com/goliatone/go-shield"
	"github.com/goliatone/go-shield/activitymap"
)

type app struct {
	cfg         shield.Config
	db          *bun.DB
	persistence *persistence.Client
	stack       *shield.Stack
	reg         *prometheus.Registry
}

// loadApp reads .env files, loads the config and wires the stack.
func loadApp(ctx context.Context, flags *rootFlags) (*app, error) {
	if err := loadEnv(flags.envFiles); err != nil {
		return nil, err
	}

	cfg, err := shield.LoadConfig(flags.configPath)
	if err != nil {
		return nil, err
	}
	if flags.dsn != "" {
		cfg.Database.DSN = flags.dsn
	}
	if flags.driver != "" {
		cfg.AuthDriver = shield.Driver(flags.driver)
	}

	logger := shield.NewZapLogger(cfg.Logger)

	client, err := openPersistence(cfg.Database, logger)
	if err != nil {
		return nil, err
	}
	db := client.DB()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	reg := prometheus.NewRegistry()
	stack, err := shield.NewStack(cfg, db,
		shield.WithStackLogger(logger),
		shield.WithStackRegisterer(reg),
		shield.WithStackActivitySink(auditLog(logger)),
	)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &app{cfg: cfg, db: db, persistence: client, stack: stack, reg: reg}, nil
}

func (a *app) Close() error {
	if err := a.stack.Close(); err != nil {
		return err
	}
	return a.db.Close()
}

// loadEnv loads the given files, ignoring the default .env when missing.
func loadEnv(files []string) error {
	if len(files) == 0 {
		_ = godotenv.Load()
		return nil
	}
	if err := godotenv.Load(files...); err != nil {
		return fmt.Errorf("load env: %w", err)
	}
	return nil
}

// persistenceConfig adapts DatabaseConfig to the persistence client.
type persistenceConfig struct {
	db     shield.DatabaseConfig
	driver string
}

func (p persistenceConfig) GetDebug() bool                { return p.db.Debug }
func (p persistenceConfig) GetDriver() string             { return p.driver }
func (p persistenceConfig) GetServer() string             { return p.db.DSN }
func (p persistenceConfig) GetPingTimeout() time.Duration { return 5 * time.Second }
func (p persistenceConfig) GetOtelIdentifier() string     { return "" }

// openPersistence opens sqlite:// and postgres:// DSNs and registers the
// models and the dialect migrations of the package.
func openPersistence(cfg shield.DatabaseConfig, logger shield.Logger) (*persistence.Client, error) {
	var (
		sqldb   *sql.DB
		dialect schema.Dialect
		driver  string
		err     error
	)
	switch {
	case strings.HasPrefix(cfg.DSN, "sqlite://"):
		path := strings.TrimPrefix(cfg.DSN, "sqlite://")
		if path == "" || path == ":memory:" {
			path = "file::memory:?cache=shared"
		}
		if sqldb, err = sql.Open(sqliteshim.ShimName, path); err != nil {
			return nil, err
		}
		sqldb.SetMaxOpenConns(1)
		dialect, driver = sqlitedialect.New(), "sqlite"
	case strings.HasPrefix(cfg.DSN, "postgres://"), strings.HasPrefix(cfg.DSN, "postgresql://"):
		if sqldb, err = sql.Open("pgx", cfg.DSN); err != nil {
			return nil, err
		}
		dialect, driver = pgdialect.New(), "postgres"
	default:
		return nil, fmt.Errorf("unsupported database dsn %q", cfg.DSN)
	}

	for _, model := range shield.Models() {
		persistence.RegisterModel(model)
	}

	client, err := persistence.New(persistenceConfig{db: cfg, driver: driver}, sqldb, dialect)
	if err != nil {
		_ = sqldb.Close()
		return nil, err
	}
	client.SetLogger(logger)

	migrations, err := fs.Sub(shield.GetMigrationsFS(), "data/sql/migrations")
	if err != nil {
		return nil, err
	}
	client.RegisterDialectMigrations(
		migrations,
		persistence.WithDialectSourceLabel("data/sql/migrations"),
		persistence.WithValidationTargets("postgres", "sqlite"),
	)

	if cfg.Debug {
		client.DB().AddQueryHook(queryLogger{logger: logger})
	}
	return client, nil
}

func auditLog(logger shield.Logger) shield.ActivitySink {
	return activitymap.Sink(func(_ context.Context, rec activitymap.Record) error {
		logger.Info("audit",
			"actor", rec.ActorID,
			"verb", rec.Verb,
			"object_type", rec.ObjectType,
			"object_id", rec.ObjectID,
			"meta", rec.Metadata,
		)
		return nil
	}, activitymap.WithActorFallback("shieldctl"))
}

type queryLogger struct {
	logger shield.Logger
}

func (q queryLogger) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

func (q queryLogger) AfterQuery(_ context.Context, e *bun.QueryEvent) {
	if e.Err != nil && e.Err != sql.ErrNoRows {
		q.logger.Warn("query failed", "query", e.Query, "took", time.Since(e.StartTime), "error", e.Err)
		return
	}
	q.logger.Debug("query", "query", e.Query, "took", time.Since(e.StartTime))
}
