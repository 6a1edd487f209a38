// Package httpapi binds the shield orchestrator and authorization cache to
// fiber routes. It adds no policy of its own.
package httpapi

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	shield "github.com/goliatone/go-shield"
)

const sessionLocalsKey = "shield.session"

// Auth is the slice of the orchestrator the handlers call.
type Auth interface {
	Login(ctx context.Context, creds shield.Credentials) (*shield.AuthResult, error)
	Authenticate(ctx context.Context, bearer string) (*shield.Session, error)
	Logout(ctx context.Context) (bool, error)
	Refresh(ctx context.Context) (*shield.AuthResult, error)
}

// Authorizer resolves a user's roles and privileges.
type Authorizer interface {
	Get(ctx context.Context, userID uuid.UUID) (shield.Authorization, error)
}

// PasswordChanger replaces a user's password after checking the current one.
type PasswordChanger interface {
	ChangePassword(ctx context.Context, userID uuid.UUID, in shield.PasswordChange) error
}

// Config holds the route paths and token lookup settings.
type Config struct {
	Prefix         string
	Login          string
	Logout         string
	Refresh        string
	Me             string
	ChangePassword string
	// Passwords serves ChangePassword. The route is not mounted when nil.
	Passwords PasswordChanger
	// TokenLookup lists the token sources, e.g. "header:Authorization,cookie:jwt".
	TokenLookup string
	AuthScheme  string
	Logger      shield.Logger
}

// DefaultConfig returns the default route layout.
func DefaultConfig() Config {
	return Config{
		Prefix:         "/auth",
		Login:          "/login",
		Logout:         "/logout",
		Refresh:        "/refresh",
		Me:             "/me",
		ChangePassword: "/change-password",
		TokenLookup:    defaultTokenLookup,
		AuthScheme:     "Bearer",
	}
}

// Handler serves the auth routes.
type Handler struct {
	auth       Auth
	authz      Authorizer
	cfg        Config
	extractors []Extractor
	logger     shield.Logger
}

// New returns a Handler. Zero valued fields of cfg take their defaults.
func New(auth Auth, authz Authorizer, cfg Config) *Handler {
	def := DefaultConfig()
	if cfg.Login == "" {
		cfg.Login = def.Login
	}
	if cfg.Logout == "" {
		cfg.Logout = def.Logout
	}
	if cfg.Refresh == "" {
		cfg.Refresh = def.Refresh
	}
	if cfg.Me == "" {
		cfg.Me = def.Me
	}
	if cfg.ChangePassword == "" {
		cfg.ChangePassword = def.ChangePassword
	}
	if cfg.TokenLookup == "" {
		cfg.TokenLookup = def.TokenLookup
	}
	if cfg.AuthScheme == "" {
		cfg.AuthScheme = def.AuthScheme
	}
	logger := cfg.Logger
	if logger == nil {
		logger = shield.NopLogger()
	}
	return &Handler{
		auth:       auth,
		authz:      authz,
		cfg:        cfg,
		extractors: Extractors(cfg.TokenLookup, cfg.AuthScheme),
		logger:     logger,
	}
}

// Register mounts the routes on app under cfg.Prefix.
func (h *Handler) Register(app fiber.Router) {
	group := app.Group(h.cfg.Prefix)
	group.Post(h.cfg.Login, h.LoginPost)
	group.Post(h.cfg.Logout, h.Protected(), h.LogoutPost)
	group.Post(h.cfg.Refresh, h.Protected(), h.RefreshPost)
	group.Get(h.cfg.Me, h.Protected(), h.MeGet)
	if h.cfg.Passwords != nil {
		group.Post(h.cfg.ChangePassword, h.Protected(), h.ChangePasswordPost)
	}
}

// SessionFrom returns the session stored by the Protected middleware.
func SessionFrom(c *fiber.Ctx) (*shield.Session, bool) {
	s, ok := c.Locals(sessionLocalsKey).(*shield.Session)
	return s, ok && s != nil
}
