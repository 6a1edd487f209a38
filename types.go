package shield

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Logger is the logging contract used across the package. Arguments after
// the message are key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Credentials holds the raw login input keyed by field name, e.g.
// {"email": "a@b.c", "password": "..."} or {"login": "...", "password": "..."}.
type Credentials map[string]string

const (
	// CredentialLogin is the generic identifier key tried against every
	// configured credential field.
	CredentialLogin = "login"
	// CredentialPassword holds the plaintext password.
	CredentialPassword = "password"
)

// Password returns the plaintext password entry.
func (c Credentials) Password() string {
	return c[CredentialPassword]
}

// UserRepository is the slice of user persistence the core depends on.
type UserRepository interface {
	FindByField(ctx context.Context, field, value string) (*User, error)
	FindByID(ctx context.Context, id uuid.UUID) (*User, error)
	Save(ctx context.Context, user *User) error
	Delete(ctx context.Context, user *User) error
	CountInRole(ctx context.Context, roleID uuid.UUID) (int, error)
}

// PasswordHasher hashes and verifies passwords.
type PasswordHasher interface {
	Hash(plain string) (string, error)
	Verify(plain, hash string) bool
}

// RoleSource resolves the role slugs embedded in issued tokens.
type RoleSource interface {
	RoleSlugs(ctx context.Context, userID uuid.UUID) ([]string, error)
}

// RoleSourceFunc adapts a function into a RoleSource.
type RoleSourceFunc func(ctx context.Context, userID uuid.UUID) ([]string, error)

// RoleSlugs implements RoleSource.
func (f RoleSourceFunc) RoleSlugs(ctx context.Context, userID uuid.UUID) ([]string, error) {
	return f(ctx, userID)
}

// Clock returns the current time. Injected for tests.
type Clock func() time.Time

func normalizeClock(c Clock) Clock {
	if c == nil {
		return time.Now
	}
	return c
}
