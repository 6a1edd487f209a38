package shield_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	shield "github.com/goliatone/go-shield"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := shield.DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, shield.DriverOpaque, cfg.AuthDriver)
	assert.Equal(t, shield.CredentialFields{"email"}, cfg.Fields())
	assert.Zero(t, cfg.OpaqueTTL())
	assert.True(t, cfg.RotateOnRefresh)
	assert.True(t, cfg.IsProtectedRole("ADMIN"))
	assert.False(t, cfg.IsProtectedRole("user"))
}

func TestConfigValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*shield.Config)
	}{
		{"unknown driver", func(c *shield.Config) { c.AuthDriver = "kerberos" }},
		{"signed without key", func(c *shield.Config) { c.AuthDriver = shield.DriverSigned }},
		{"signed short key", func(c *shield.Config) {
			c.AuthDriver = shield.DriverSigned
			c.SigningKey = "short"
		}},
		{"signed without expiry", func(c *shield.Config) {
			c.AuthDriver = shield.DriverSigned
			c.SigningKey = testSigningKey
			c.AccessTTLMinutes = 0
		}},
		{"negative ttl", func(c *shield.Config) { c.GrantTTLMinutes = -1 }},
		{"bad method", func(c *shield.Config) { c.SigningMethod = "RS256" }},
		{"redis without addr", func(c *shield.Config) {
			c.Cache.Driver = shield.CacheDriverRedis
			c.Redis.Addr = ""
		}},
		{"bad cache driver", func(c *shield.Config) { c.Cache.Driver = "memcached" }},
		{"bad credential field", func(c *shield.Config) { c.CredentialField = "email|password" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := shield.DefaultConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Equal(t, shield.TextCodeInvalidConfig, shield.ErrorCode(err))
			assert.Equal(t, 400, shield.HTTPStatus(err))
		})
	}
}

func TestParseCredentialFields(t *testing.T) {
	fields, err := shield.ParseCredentialFields(" Email | mobile ")
	require.NoError(t, err)
	assert.Equal(t, shield.CredentialFields{"email", "mobile"}, fields)
	assert.Equal(t, "email|mobile", fields.String())

	for _, raw := range []string{"", "email||mobile", "login", "email|email", "e-mail", "1st"} {
		_, err := shield.ParseCredentialFields(raw)
		assert.Error(t, err, raw)
	}
}

func TestConfigApplyEnv(t *testing.T) {
	env := map[string]string{
		shield.EnvSigningKey: testSigningKey,
		shield.EnvAuthDriver: "SIGNED",
		shield.EnvRedisAddr:  "redis:6380",
		shield.EnvRedisDB:    "3",
		shield.EnvDatabase:   "postgres://db/shield",
	}
	cfg := shield.DefaultConfig()
	cfg.ApplyEnv(func(k string) string { return env[k] })

	assert.Equal(t, shield.DriverSigned, cfg.AuthDriver)
	assert.Equal(t, testSigningKey, cfg.SigningKey)
	assert.Equal(t, "redis:6380", cfg.Redis.Addr)
	assert.Equal(t, 3, cfg.Redis.DB)
	assert.Equal(t, "postgres://db/shield", cfg.Database.DSN)

	env[shield.EnvRedisDB] = "three"
	cfg.ApplyEnv(func(k string) string { return env[k] })
	assert.Equal(t, 3, cfg.Redis.DB)
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shield.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
auth_driver: delegated
credential_field: email|mobile
grant_ttl_minutes: 30
protected_role_slugs: [admin, owner]
cache:
  driver: memory
  prefix: app
`), 0o600))

	cfg, err := shield.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, shield.DriverDelegated, cfg.AuthDriver)
	assert.Equal(t, shield.CredentialFields{"email", "mobile"}, cfg.Fields())
	assert.Equal(t, 30, cfg.GrantTTLMinutes)
	assert.True(t, cfg.IsProtectedRole("owner"))
	assert.Equal(t, "app", cfg.Cache.Prefix)
	assert.Equal(t, "user", cfg.DefaultRoleSlug)

	_, err = shield.LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Equal(t, shield.TextCodeInvalidConfig, shield.ErrorCode(err))
}
