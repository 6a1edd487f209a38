package shield_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	shield "github.com/goliatone/go-shield"
)

func TestCredentialResolver(t *testing.T) {
	cfg := testConfig(shield.DriverOpaque)
	cfg.CredentialField = "email|mobile"
	f := newFixture(t, cfg)

	user, err := f.stack.Admin.RegisterUser(f.ctx, shield.NewUser{
		Name:     "Ada",
		Email:    "ada@example.com",
		Mobile:   "+1 415 555 2671",
		Password: testPassword,
		Verified: true,
	})
	require.NoError(t, err)

	cases := []struct {
		name  string
		creds shield.Credentials
		ok    bool
	}{
		{"email field", shield.Credentials{"email": "ada@example.com"}, true},
		{"mobile field", shield.Credentials{"mobile": "(415) 555-2671"}, true},
		{"login as email", shield.Credentials{shield.CredentialLogin: "ada@example.com"}, true},
		{"email mixed case", shield.Credentials{"email": " Ada@Example.COM "}, true},
		{"login as mixed case email", shield.Credentials{shield.CredentialLogin: "ADA@example.com"}, true},
		{"login as mobile", shield.Credentials{shield.CredentialLogin: "415.555.2671"}, true},
		{"unknown email falls back to login", shield.Credentials{"email": "x@example.com", shield.CredentialLogin: "ada@example.com"}, true},
		{"wrong password", shield.Credentials{"email": "ada@example.com"}, false},
		{"unknown user", shield.Credentials{"email": "nobody@example.com"}, false},
		{"no identifier", shield.Credentials{}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			creds := shield.Credentials{shield.CredentialPassword: testPassword}
			if tc.name == "wrong password" {
				creds[shield.CredentialPassword] = "nope"
			}
			for k, v := range tc.creds {
				creds[k] = v
			}

			res, err := f.stack.Orchestrator.Login(f.ctx, creds)
			if !tc.ok {
				require.ErrorIs(t, err, shield.ErrInvalidCredentials)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, user.ID.String(), res.ID)
		})
	}
}

func TestCredentialResolverSingleField(t *testing.T) {
	f := newFixture(t, testConfig(shield.DriverOpaque))
	user := f.register("ada@example.com")
	resolver := shield.NewCredentialResolver(f.stack.Repos.Users(), f.stack.Hasher, shield.CredentialFields{"email"})

	found, err := resolver.Resolve(f.ctx, shield.Credentials{shield.CredentialLogin: "ada@example.com"})
	require.NoError(t, err)
	assert.Equal(t, user.ID, found.ID)

	// the mobile key is ignored when only email is configured
	_, err = resolver.Resolve(f.ctx, shield.Credentials{"mobile": "ada@example.com"})
	assert.ErrorIs(t, err, shield.ErrUserNotFound)

	assert.True(t, resolver.Verify(found, testPassword))
	assert.False(t, resolver.Verify(found, ""))
	assert.False(t, resolver.Verify(nil, testPassword))
}

func TestNormalizePhone(t *testing.T) {
	assert.Equal(t, "+14155552671", shield.NormalizePhone("(415) 555-2671", "us"))
	assert.Equal(t, "+442079460958", shield.NormalizePhone("+44 20 7946 0958", "US"))
	assert.Equal(t, "not a phone", shield.NormalizePhone("not a phone", "US"))
}
