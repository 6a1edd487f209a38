package shield

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/goliatone/go-errors"
	"gopkg.in/yaml.v3"
)

// Driver names a token strategy.
type Driver string

const (
	DriverOpaque    Driver = "opaque"
	DriverDelegated Driver = "delegated"
	DriverSigned    Driver = "signed"
)

const (
	CacheDriverMemory = "memory"
	CacheDriverRedis  = "redis"
)

// Environment variables that override values loaded from file.
const (
	EnvSigningKey = "SHIELD_SIGNING_KEY"
	EnvAuthDriver = "SHIELD_AUTH_DRIVER"
	EnvRedisAddr  = "SHIELD_REDIS_ADDR"
	EnvRedisDB    = "SHIELD_REDIS_DB"
	EnvDatabase   = "SHIELD_DATABASE_DSN"
)

var identifierPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// CredentialFields is the ordered list of user columns tried during
// credential resolution.
type CredentialFields []string

// ParseCredentialFields parses a pipe delimited list such as "email|mobile".
func ParseCredentialFields(raw string) (CredentialFields, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, invalidConfig("credential_field", "must not be empty")
	}

	seen := map[string]bool{}
	out := CredentialFields{}
	for _, part := range strings.Split(raw, "|") {
		field := strings.ToLower(strings.TrimSpace(part))
		switch {
		case field == "":
			return nil, invalidConfig("credential_field", "contains an empty entry")
		case field == CredentialLogin || field == CredentialPassword:
			return nil, invalidConfig("credential_field", fmt.Sprintf("%q is reserved", field))
		case !identifierPattern.MatchString(field):
			return nil, invalidConfig("credential_field", fmt.Sprintf("%q is not a valid column name", field))
		case seen[field]:
			return nil, invalidConfig("credential_field", fmt.Sprintf("%q listed twice", field))
		}
		seen[field] = true
		out = append(out, field)
	}
	return out, nil
}

// String renders the fields back into the pipe delimited form.
func (f CredentialFields) String() string {
	return strings.Join(f, "|")
}

// CacheConfig selects the backend used by the authorization cache and the denylist.
type CacheConfig struct {
	Driver string `yaml:"driver"`
	Prefix string `yaml:"prefix"`
}

// RedisConfig is used when CacheConfig.Driver is redis.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// DatabaseConfig is consumed by the CLI.
type DatabaseConfig struct {
	DSN   string `yaml:"dsn"`
	Debug bool   `yaml:"debug"`
}

// Config holds every option the strategies, the orchestrator and the
// mutation path consume.
type Config struct {
	AuthDriver      Driver   `yaml:"auth_driver"`
	CredentialField string   `yaml:"credential_field"`
	PhoneFields     []string `yaml:"phone_fields"`
	PhoneRegion     string   `yaml:"phone_region"`
	CheckVerified   bool     `yaml:"check_verified"`

	DeletePreviousTokensOnLogin bool `yaml:"delete_previous_tokens_on_login"`
	RotateOnRefresh             bool `yaml:"rotate_on_refresh"`
	OpaqueTTLMinutes            int  `yaml:"opaque_ttl_minutes"`

	GrantTTLMinutes int    `yaml:"grant_ttl_minutes"`
	GrantClient     string `yaml:"grant_client"`

	AccessTTLMinutes           int    `yaml:"access_ttl_minutes"`
	RefreshTTLMinutes          int    `yaml:"refresh_ttl_minutes"`
	DenylistEnabled            bool   `yaml:"denylist_enabled"`
	DenylistGracePeriodMinutes int    `yaml:"denylist_grace_period_minutes"`
	Issuer                     string `yaml:"issuer"`
	SigningKey                 string `yaml:"signing_key"`
	SigningMethod              string `yaml:"signing_method"`

	ProtectedRoleSlugs []string `yaml:"protected_role_slugs"`
	DefaultRoleSlug    string   `yaml:"default_role_slug"`
	AdminRoleSlug      string   `yaml:"admin_role_slug"`
	HashIDUserIDs      bool     `yaml:"hashid_user_ids"`
	BcryptCost         int      `yaml:"bcrypt_cost"`

	Cache    CacheConfig    `yaml:"cache"`
	Redis    RedisConfig    `yaml:"redis"`
	Database DatabaseConfig `yaml:"database"`
	Logger   LoggerConfig   `yaml:"logger"`

	fields CredentialFields
}

// DefaultConfig returns a config usable for development.
func DefaultConfig() Config {
	return Config{
		AuthDriver:                  DriverOpaque,
		CredentialField:             "email",
		PhoneFields:                 []string{"mobile"},
		PhoneRegion:                 "US",
		CheckVerified:               false,
		DeletePreviousTokensOnLogin: false,
		RotateOnRefresh:             true,
		GrantTTLMinutes:             60 * 24 * 15,
		GrantClient:                 "shield-password-grant",
		AccessTTLMinutes:            60,
		RefreshTTLMinutes:           60 * 24 * 14,
		DenylistEnabled:             true,
		DenylistGracePeriodMinutes:  0,
		Issuer:                      "go-shield",
		SigningMethod:               "HS256",
		ProtectedRoleSlugs:          []string{"admin"},
		DefaultRoleSlug:             "user",
		AdminRoleSlug:               "admin",
		BcryptCost:                  passwordHashCost(),
		Cache: CacheConfig{
			Driver: CacheDriverMemory,
			Prefix: "shield",
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Database: DatabaseConfig{
			DSN: "sqlite://shield.db",
		},
		Logger: LoggerConfig{
			Env:   "dev",
			Level: "info",
		},
	}
}

// LoadConfig reads a yaml file on top of DefaultConfig, applies environment
// overrides and validates the result. An empty path skips the file.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, errors.Wrap(err, errors.CategoryValidation, "read config file").
				WithTextCode(TextCodeInvalidConfig).
				WithMetadata(map[string]any{"path": path})
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, errors.Wrap(err, errors.CategoryValidation, "parse config file").
				WithTextCode(TextCodeInvalidConfig).
				WithMetadata(map[string]any{"path": path})
		}
	}

	cfg.ApplyEnv(os.Getenv)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ApplyEnv overrides selected values from the environment.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if getenv == nil {
		return
	}
	if v := strings.TrimSpace(getenv(EnvSigningKey)); v != "" {
		c.SigningKey = v
	}
	if v := strings.TrimSpace(getenv(EnvAuthDriver)); v != "" {
		c.AuthDriver = Driver(strings.ToLower(v))
	}
	if v := strings.TrimSpace(getenv(EnvRedisAddr)); v != "" {
		c.Redis.Addr = v
	}
	c.Redis.DB = envInt(getenv, EnvRedisDB, c.Redis.DB)
	if v := strings.TrimSpace(getenv(EnvDatabase)); v != "" {
		c.Database.DSN = v
	}
}

// Validate checks the config and parses the credential fields. It must be
// called before the config is handed to NewStrategy or NewOrchestrator.
func (c *Config) Validate() error {
	signingKeyRules := []validation.Rule{}
	if c.AuthDriver == DriverSigned {
		signingKeyRules = append(signingKeyRules, validation.Required, validation.Length(32, 0))
	}

	redisRules := []validation.Rule{}
	if c.Cache.Driver == CacheDriverRedis {
		redisRules = append(redisRules, validation.Required)
	}

	err := validation.ValidateStruct(c,
		validation.Field(&c.AuthDriver, validation.Required, validation.In(DriverOpaque, DriverDelegated, DriverSigned)),
		validation.Field(&c.CredentialField, validation.Required),
		validation.Field(&c.OpaqueTTLMinutes, validation.Min(0)),
		validation.Field(&c.GrantTTLMinutes, validation.Min(0)),
		validation.Field(&c.AccessTTLMinutes, validation.Min(0)),
		validation.Field(&c.RefreshTTLMinutes, validation.Min(0)),
		validation.Field(&c.DenylistGracePeriodMinutes, validation.Min(0)),
		validation.Field(&c.SigningKey, signingKeyRules...),
		validation.Field(&c.SigningMethod, validation.In("HS256", "HS384", "HS512")),
		validation.Field(&c.DefaultRoleSlug, validation.Required),
		validation.Field(&c.AdminRoleSlug, validation.Required),
		validation.Field(&c.BcryptCost, validation.Min(0), validation.Max(31)),
	)
	if err != nil {
		return errors.Wrap(err, errors.CategoryValidation, "invalid configuration").
			WithTextCode(TextCodeInvalidConfig).
			WithCode(errors.CodeBadRequest)
	}

	if c.AuthDriver == DriverSigned && c.AccessTTLMinutes == 0 {
		return invalidConfig("access_ttl_minutes", "signed tokens need an expiry")
	}

	err = validation.ValidateStruct(&c.Cache,
		validation.Field(&c.Cache.Driver, validation.Required, validation.In(CacheDriverMemory, CacheDriverRedis)),
	)
	if err == nil {
		err = validation.ValidateStruct(&c.Redis, validation.Field(&c.Redis.Addr, redisRules...))
	}
	if err != nil {
		return errors.Wrap(err, errors.CategoryValidation, "invalid cache configuration").
			WithTextCode(TextCodeInvalidConfig).
			WithCode(errors.CodeBadRequest)
	}

	fields, err := ParseCredentialFields(c.CredentialField)
	if err != nil {
		return err
	}
	c.fields = fields
	return nil
}

// Fields returns the parsed credential fields. Validate must run first; if it
// did not, the raw value is parsed and errors fall back to "email".
func (c Config) Fields() CredentialFields {
	if len(c.fields) > 0 {
		return c.fields
	}
	fields, err := ParseCredentialFields(c.CredentialField)
	if err != nil {
		return CredentialFields{"email"}
	}
	return fields
}

// IsProtectedRole reports whether slug is in protected_role_slugs.
func (c Config) IsProtectedRole(slug string) bool {
	for _, s := range c.ProtectedRoleSlugs {
		if strings.EqualFold(strings.TrimSpace(s), slug) {
			return true
		}
	}
	return false
}

func (c Config) OpaqueTTL() time.Duration { return minutes(c.OpaqueTTLMinutes) }

func (c Config) GrantTTL() time.Duration { return minutes(c.GrantTTLMinutes) }

func (c Config) AccessTTL() time.Duration { return minutes(c.AccessTTLMinutes) }

func (c Config) RefreshTTL() time.Duration { return minutes(c.RefreshTTLMinutes) }

func (c Config) DenylistGrace() time.Duration { return minutes(c.DenylistGracePeriodMinutes) }

func minutes(n int) time.Duration {
	return time.Duration(n) * time.Minute
}

func invalidConfig(field, reason string) error {
	return errors.New(fmt.Sprintf("%s: %s", field, reason), errors.CategoryValidation).
		WithTextCode(TextCodeInvalidConfig).
		WithCode(errors.CodeBadRequest).
		WithMetadata(map[string]any{"field": field})
}

func envInt(getenv func(string) string, key string, fallback int) int {
	v := strings.TrimSpace(getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
