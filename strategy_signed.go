package shield

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SignedStrategy mints self contained access and refresh tokens. Revocation
// before natural expiry goes through the Denylist.
type SignedStrategy struct {
	signer     Signer
	denylist   Denylist
	roles      RoleSource
	accessTTL  time.Duration
	refreshTTL time.Duration
	grace      time.Duration
	denyOn     bool
	clock      Clock
	logger     Logger
}

// SignedOption configures a SignedStrategy.
type SignedOption func(*SignedStrategy)

// WithSignedClock sets the clock used for iat, nbf and exp.
func WithSignedClock(c Clock) SignedOption {
	return func(s *SignedStrategy) { s.clock = normalizeClock(c) }
}

// WithSignedLogger sets the logger.
func WithSignedLogger(l Logger) SignedOption {
	return func(s *SignedStrategy) { s.logger = normalizeLogger(l) }
}

// NewSignedStrategy returns the signed token driver.
func NewSignedStrategy(cfg Config, signer Signer, denylist Denylist, roles RoleSource, opts ...SignedOption) *SignedStrategy {
	s := &SignedStrategy{
		signer:     signer,
		denylist:   denylist,
		roles:      roles,
		accessTTL:  cfg.AccessTTL(),
		refreshTTL: cfg.RefreshTTL(),
		grace:      cfg.DenylistGrace(),
		denyOn:     cfg.DenylistEnabled,
		clock:      time.Now,
		logger:     NopLogger(),
	}
	if s.refreshTTL <= 0 {
		s.refreshTTL = DefaultConfig().RefreshTTL()
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *SignedStrategy) Driver() Driver { return DriverSigned }

func (s *SignedStrategy) TokenType() string { return "bearer" }

func (s *SignedStrategy) Login(ctx context.Context, user *User) (*AuthResult, error) {
	return s.mint(ctx, user)
}

// Logout denylists the jti for its remaining lifetime plus the grace period.
// It returns false when the denylist is disabled.
func (s *SignedStrategy) Logout(ctx context.Context, token ActiveToken) (bool, error) {
	if !s.denyOn || token.ID == "" {
		return false, nil
	}

	ttl := s.grace
	if token.ExpiresAt != nil {
		if remaining := token.ExpiresAt.Sub(s.clock()); remaining > 0 {
			ttl += remaining
		}
	}
	if ttl <= 0 {
		return true, nil
	}

	if err := s.denylist.Put(ctx, token.ID, ttl); err != nil {
		return false, strategyFailure(err, "failed to denylist token")
	}
	s.logger.Debug("token denylisted", "jti", token.ID, "ttl", ttl)
	return true, nil
}

// Refresh mints a fresh pair. The presented pair is left to expire.
func (s *SignedStrategy) Refresh(ctx context.Context, user *User, _ ActiveToken) (*AuthResult, error) {
	return s.mint(ctx, user)
}

func (s *SignedStrategy) Validate(ctx context.Context, token string) bool {
	_, err := s.Inspect(ctx, token)
	return err == nil
}

// Inspect verifies signature and time claims, then checks the denylist.
func (s *SignedStrategy) Inspect(ctx context.Context, token string) (*ActiveToken, error) {
	claims, err := s.signer.Verify(token)
	if err != nil {
		return nil, ErrInvalidToken
	}

	userID, err := claims.UserID()
	if err != nil || claims.ID == "" {
		return nil, ErrInvalidToken
	}

	if s.denyOn {
		denied, err := s.denylist.Has(ctx, claims.ID)
		if err != nil {
			s.logger.Error("denylist lookup failed", "jti", claims.ID, "error", err)
			return nil, ErrInvalidToken
		}
		if denied {
			return nil, ErrInvalidToken
		}
	}

	exp := claims.Expires()
	return &ActiveToken{
		ID:        claims.ID,
		UserID:    userID,
		Kind:      claims.Kind(),
		Abilities: claims.Roles,
		ExpiresAt: &exp,
		Raw:       token,
	}, nil
}

func (s *SignedStrategy) mint(ctx context.Context, user *User) (*AuthResult, error) {
	roles, err := roleSlugs(ctx, s.roles, user.ID)
	if err != nil {
		return nil, strategyFailure(err, "failed to resolve roles")
	}

	now := s.clock()
	accessExp := now.Add(s.accessTTL)

	access := &TokenClaims{
		RegisteredClaims: registered(user, now, accessExp),
		Roles:            roles,
		Email:            user.Email,
		Name:             user.Name,
	}
	accessToken, err := s.signer.Sign(access)
	if err != nil {
		return nil, strategyFailure(err, "failed to sign access token")
	}

	refresh := &TokenClaims{
		RegisteredClaims: registered(user, now, now.Add(s.refreshTTL)),
		Type:             refreshTokenType,
	}
	refreshToken, err := s.signer.Sign(refresh)
	if err != nil {
		return nil, strategyFailure(err, "failed to sign refresh token")
	}

	res := baseResult(user)
	res.Token = accessToken
	res.TokenType = s.TokenType()
	res.RefreshToken = refreshToken
	res.ExpiresIn = int64(s.accessTTL.Seconds())
	res.ExpiresAt = &accessExp
	res.Roles = roles
	return res, nil
}

func registered(user *User, now, exp time.Time) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		Subject:   user.ID.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
}
