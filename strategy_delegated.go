package shield

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// GrantAuthority issues and revokes delegated grants. The bearer string it
// returns is opaque to the strategy.
type GrantAuthority interface {
	Issue(ctx context.Context, userID uuid.UUID, scopes []string, expiresAt time.Time) (*Grant, string, error)
	Find(ctx context.Context, bearer string) (*Grant, error)
	Revoke(ctx context.Context, grantID uuid.UUID) (bool, error)
	RevokeAllForUser(ctx context.Context, userID uuid.UUID) (int, error)
}

type grantAuthority struct {
	grants Grants
	client string
}

// NewGrantAuthority returns a GrantAuthority storing grants in a Grants
// repository under the given client name.
func NewGrantAuthority(grants Grants, client string) GrantAuthority {
	if client == "" {
		client = DefaultConfig().GrantClient
	}
	return &grantAuthority{grants: grants, client: client}
}

func (a *grantAuthority) Issue(ctx context.Context, userID uuid.UUID, scopes []string, expiresAt time.Time) (*Grant, string, error) {
	secret, err := randomSecret(32)
	if err != nil {
		return nil, "", err
	}

	grant := &Grant{
		ID:         uuid.New(),
		UserID:     userID,
		Client:     a.client,
		Scopes:     joinList(scopes),
		SecretHash: hashSecret(secret),
		ExpiresAt:  expiresAt,
	}
	if err := a.grants.Create(ctx, grant); err != nil {
		return nil, "", err
	}
	return grant, composeBearer(grant.ID, secret), nil
}

func (a *grantAuthority) Find(ctx context.Context, bearer string) (*Grant, error) {
	id, secret, ok := splitBearer(bearer)
	if !ok {
		return nil, ErrInvalidToken
	}
	grant, err := a.grants.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	if !secretMatches(grant.SecretHash, secret) {
		return nil, ErrInvalidToken
	}
	return grant, nil
}

func (a *grantAuthority) Revoke(ctx context.Context, grantID uuid.UUID) (bool, error) {
	return a.grants.Revoke(ctx, grantID)
}

func (a *grantAuthority) RevokeAllForUser(ctx context.Context, userID uuid.UUID) (int, error) {
	return a.grants.RevokeForUser(ctx, userID)
}

// DelegatedStrategy hands issuance and revocation to a GrantAuthority.
// Every grant carries an explicit expiry.
type DelegatedStrategy struct {
	authority GrantAuthority
	roles     RoleSource
	ttl       time.Duration
	purge     bool
	clock     Clock
	logger    Logger
}

// DelegatedOption configures a DelegatedStrategy.
type DelegatedOption func(*DelegatedStrategy)

// WithDelegatedClock sets the clock used for expiry.
func WithDelegatedClock(c Clock) DelegatedOption {
	return func(s *DelegatedStrategy) { s.clock = normalizeClock(c) }
}

// WithDelegatedLogger sets the logger.
func WithDelegatedLogger(l Logger) DelegatedOption {
	return func(s *DelegatedStrategy) { s.logger = normalizeLogger(l) }
}

// NewDelegatedStrategy returns the delegated grant driver.
func NewDelegatedStrategy(cfg Config, authority GrantAuthority, roles RoleSource, opts ...DelegatedOption) *DelegatedStrategy {
	s := &DelegatedStrategy{
		authority: authority,
		roles:     roles,
		ttl:       cfg.GrantTTL(),
		purge:     cfg.DeletePreviousTokensOnLogin,
		clock:     time.Now,
		logger:    NopLogger(),
	}
	if s.ttl <= 0 {
		s.ttl = DefaultConfig().GrantTTL()
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *DelegatedStrategy) Driver() Driver { return DriverDelegated }

func (s *DelegatedStrategy) TokenType() string { return "Bearer" }

func (s *DelegatedStrategy) Login(ctx context.Context, user *User) (*AuthResult, error) {
	if s.purge {
		if _, err := s.authority.RevokeAllForUser(ctx, user.ID); err != nil {
			return nil, strategyFailure(err, "failed to revoke previous grants")
		}
	}
	return s.issue(ctx, user)
}

// Logout revokes the grant referenced by the current token.
func (s *DelegatedStrategy) Logout(ctx context.Context, token ActiveToken) (bool, error) {
	id, err := uuid.Parse(token.ID)
	if err != nil {
		return false, nil
	}
	revoked, err := s.authority.Revoke(ctx, id)
	if err != nil {
		return false, strategyFailure(err, "failed to revoke grant")
	}
	return revoked, nil
}

// Refresh revokes every grant of the user and issues a new one.
func (s *DelegatedStrategy) Refresh(ctx context.Context, user *User, _ ActiveToken) (*AuthResult, error) {
	if _, err := s.authority.RevokeAllForUser(ctx, user.ID); err != nil {
		return nil, strategyFailure(err, "failed to revoke grants")
	}
	return s.issue(ctx, user)
}

func (s *DelegatedStrategy) Validate(ctx context.Context, token string) bool {
	_, err := s.Inspect(ctx, token)
	return err == nil
}

// Inspect accepts a grant that exists, is not revoked and has not expired.
func (s *DelegatedStrategy) Inspect(ctx context.Context, token string) (*ActiveToken, error) {
	grant, err := s.authority.Find(ctx, token)
	if err != nil {
		return nil, ErrInvalidToken
	}
	if !grant.Active(s.clock()) {
		return nil, ErrInvalidToken
	}

	exp := grant.ExpiresAt
	return &ActiveToken{
		ID:        grant.ID.String(),
		UserID:    grant.UserID,
		Kind:      TokenKindAccess,
		Abilities: grant.ScopeList(),
		ExpiresAt: &exp,
		Raw:       token,
	}, nil
}

func (s *DelegatedStrategy) issue(ctx context.Context, user *User) (*AuthResult, error) {
	scopes, err := roleSlugs(ctx, s.roles, user.ID)
	if err != nil {
		return nil, strategyFailure(err, "failed to resolve scopes")
	}

	expiresAt := s.clock().Add(s.ttl)
	grant, bearer, err := s.authority.Issue(ctx, user.ID, scopes, expiresAt)
	if err != nil {
		return nil, strategyFailure(err, "failed to issue grant")
	}

	s.logger.Debug("grant issued", "user_id", user.ID, "grant_id", grant.ID, "expires_at", expiresAt)

	res := baseResult(user)
	res.Token = bearer
	res.TokenType = s.TokenType()
	res.ExpiresAt = &expiresAt
	res.ExpiresIn = int64(s.ttl.Seconds())
	res.Abilities = scopes
	return res, nil
}
