package shield

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// User is the user model. Only the fields the core reads or writes are mapped.
type User struct {
	bun.BaseModel    `bun:"table:users,alias:usr"`
	ID               uuid.UUID  `bun:"id,pk,type:uuid" json:"id"`
	Name             string     `bun:"name,notnull" json:"name"`
	Email            string     `bun:"email,notnull,unique" json:"email"`
	Mobile           *string    `bun:"mobile,unique" json:"mobile,omitempty"`
	PasswordHash     string     `bun:"password_hash,notnull" json:"-"`
	EmailVerifiedAt  *time.Time `bun:"email_verified_at,nullzero" json:"email_verified_at,omitempty"`
	SuspendedAt      *time.Time `bun:"suspended_at,nullzero" json:"suspended_at,omitempty"`
	SuspensionReason string     `bun:"suspension_reason" json:"suspension_reason,omitempty"`
	CreatedAt        time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt        time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"updated_at"`
}

// IsSuspended reports whether the account carries a suspension timestamp.
func (u *User) IsSuspended() bool {
	return u != nil && u.SuspendedAt != nil
}

// IsVerified reports whether the email address was verified.
func (u *User) IsVerified() bool {
	return u != nil && u.EmailVerifiedAt != nil
}

// Role is a named group of privileges.
type Role struct {
	bun.BaseModel `bun:"table:roles,alias:rol"`
	ID            uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	Name          string    `bun:"name,notnull" json:"name"`
	Slug          string    `bun:"slug,notnull,unique" json:"slug"`
	CreatedAt     time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt     time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"updated_at"`
}

// Privilege is a named permission a role may carry.
type Privilege struct {
	bun.BaseModel `bun:"table:privileges,alias:prv"`
	ID            uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	Name          string    `bun:"name,notnull" json:"name"`
	Slug          string    `bun:"slug,notnull,unique" json:"slug"`
	Description   string    `bun:"description" json:"description,omitempty"`
	CreatedAt     time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt     time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"updated_at"`
}

// UserRole links a user to a role.
type UserRole struct {
	bun.BaseModel `bun:"table:user_roles,alias:ur"`
	UserID        uuid.UUID `bun:"user_id,pk,type:uuid"`
	RoleID        uuid.UUID `bun:"role_id,pk,type:uuid"`
	CreatedAt     time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

// RolePrivilege links a role to a privilege.
type RolePrivilege struct {
	bun.BaseModel `bun:"table:privilege_role,alias:pr"`
	RoleID        uuid.UUID `bun:"role_id,pk,type:uuid"`
	PrivilegeID   uuid.UUID `bun:"privilege_id,pk,type:uuid"`
	CreatedAt     time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

// AccessToken is a stored opaque token. Only the hash of the secret is kept.
type AccessToken struct {
	bun.BaseModel `bun:"table:access_tokens,alias:tok"`
	ID            uuid.UUID  `bun:"id,pk,type:uuid"`
	UserID        uuid.UUID  `bun:"user_id,notnull,type:uuid"`
	Name          string     `bun:"name,notnull"`
	Abilities     string     `bun:"abilities"`
	TokenHash     string     `bun:"token_hash,notnull"`
	ExpiresAt     *time.Time `bun:"expires_at,nullzero"`
	LastUsedAt    *time.Time `bun:"last_used_at,nullzero"`
	CreatedAt     time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

// AbilityList returns the abilities as a slice.
func (t *AccessToken) AbilityList() []string {
	return splitList(t.Abilities)
}

// Grant is a delegated authorization record.
type Grant struct {
	bun.BaseModel `bun:"table:oauth_grants,alias:gr"`
	ID            uuid.UUID `bun:"id,pk,type:uuid"`
	UserID        uuid.UUID `bun:"user_id,notnull,type:uuid"`
	Client        string    `bun:"client,notnull"`
	Scopes        string    `bun:"scopes"`
	SecretHash    string    `bun:"secret_hash,notnull"`
	Revoked       bool      `bun:"revoked,notnull,default:false"`
	ExpiresAt     time.Time `bun:"expires_at,notnull"`
	CreatedAt     time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

// ScopeList returns the scopes as a slice.
func (g *Grant) ScopeList() []string {
	return splitList(g.Scopes)
}

// Active reports whether the grant is usable at now.
func (g *Grant) Active(now time.Time) bool {
	return g != nil && !g.Revoked && now.Before(g.ExpiresAt)
}

func joinList(items []string) string {
	return strings.Join(items, ",")
}

func splitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return []string{}
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
