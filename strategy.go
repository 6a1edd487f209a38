package shield

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Token kinds carried by ActiveToken.
const (
	TokenKindAccess  = "access"
	TokenKindRefresh = "refresh"
)

// Strategy issues, revokes, refreshes and validates tokens for one driver.
// Account state checks belong to the Orchestrator, never to a strategy.
type Strategy interface {
	Driver() Driver
	TokenType() string
	Login(ctx context.Context, user *User) (*AuthResult, error)
	Logout(ctx context.Context, token ActiveToken) (bool, error)
	Refresh(ctx context.Context, user *User, token ActiveToken) (*AuthResult, error)
	Validate(ctx context.Context, token string) bool
	Inspect(ctx context.Context, token string) (*ActiveToken, error)
}

// AuthResult is the login response. Field names are part of the public
// contract of every transport binding.
type AuthResult struct {
	Error        int        `json:"error"`
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Email        string     `json:"email"`
	Token        string     `json:"token"`
	TokenType    string     `json:"token_type"`
	RefreshToken string     `json:"refresh_token,omitempty"`
	ExpiresIn    int64      `json:"expires_in,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	Abilities    []string   `json:"abilities,omitempty"`
	Roles        []string   `json:"roles,omitempty"`
}

// ActiveToken describes the token presented by the current caller.
type ActiveToken struct {
	ID        string
	UserID    uuid.UUID
	Kind      string
	Abilities []string
	ExpiresAt *time.Time
	Raw       string
}

// StrategyDeps are the collaborators a strategy may need. Only the ones
// used by the configured driver must be set.
type StrategyDeps struct {
	Tokens   TokenStore
	Grants   GrantAuthority
	Signer   Signer
	Denylist Denylist
	Roles    RoleSource
	Clock    Clock
	Logger   Logger
}

// NewStrategy builds the strategy selected by cfg.AuthDriver.
func NewStrategy(cfg Config, deps StrategyDeps) (Strategy, error) {
	if deps.Roles == nil {
		deps.Roles = RoleSourceFunc(func(context.Context, uuid.UUID) ([]string, error) {
			return []string{}, nil
		})
	}
	deps.Clock = normalizeClock(deps.Clock)
	deps.Logger = normalizeLogger(deps.Logger)

	switch cfg.AuthDriver {
	case DriverOpaque:
		if deps.Tokens == nil {
			return nil, invalidConfig("auth_driver", "opaque driver needs a token store")
		}
		return NewOpaqueStrategy(cfg, deps.Tokens, deps.Roles,
			WithOpaqueClock(deps.Clock),
			WithOpaqueLogger(deps.Logger),
		), nil
	case DriverDelegated:
		if deps.Grants == nil {
			return nil, invalidConfig("auth_driver", "delegated driver needs a grant authority")
		}
		return NewDelegatedStrategy(cfg, deps.Grants, deps.Roles,
			WithDelegatedClock(deps.Clock),
			WithDelegatedLogger(deps.Logger),
		), nil
	case DriverSigned:
		signer := deps.Signer
		if signer == nil {
			var err error
			signer, err = NewSigner([]byte(cfg.SigningKey), cfg.SigningMethod, cfg.Issuer, WithSignerClock(deps.Clock), WithSignerLogger(deps.Logger))
			if err != nil {
				return nil, err
			}
		}
		denylist := deps.Denylist
		if denylist == nil {
			denylist = NewMemoryDenylist()
		}
		return NewSignedStrategy(cfg, signer, denylist, deps.Roles,
			WithSignedClock(deps.Clock),
			WithSignedLogger(deps.Logger),
		), nil
	default:
		return nil, ErrUnknownDriver
	}
}

func baseResult(user *User) *AuthResult {
	return &AuthResult{
		Error: 0,
		ID:    user.ID.String(),
		Name:  user.Name,
		Email: user.Email,
	}
}

// randomSecret returns n random bytes hex encoded.
func randomSecret(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func hashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

func secretMatches(hash, secret string) bool {
	if hash == "" || secret == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(hash), []byte(hashSecret(secret))) == 1
}

// composeBearer joins a record id and its secret as "<id>|<secret>".
func composeBearer(id uuid.UUID, secret string) string {
	return id.String() + "|" + secret
}

func splitBearer(token string) (uuid.UUID, string, bool) {
	token = strings.TrimSpace(token)
	idPart, secret, ok := strings.Cut(token, "|")
	if !ok || secret == "" {
		return uuid.Nil, "", false
	}
	id, err := uuid.Parse(idPart)
	if err != nil {
		return uuid.Nil, "", false
	}
	return id, secret, true
}

func roleSlugs(ctx context.Context, roles RoleSource, userID uuid.UUID) ([]string, error) {
	slugs, err := roles.RoleSlugs(ctx, userID)
	if err != nil {
		return nil, err
	}
	if slugs == nil {
		slugs = []string{}
	}
	return slugs, nil
}
