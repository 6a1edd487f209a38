package shield

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const opaqueTokenName = "shield"

// OpaqueStrategy issues random bearer tokens stored in a TokenStore. The
// store is authoritative: a token is valid only while its row exists.
type OpaqueStrategy struct {
	store  TokenStore
	roles  RoleSource
	ttl    time.Duration
	purge  bool
	rotate bool
	clock  Clock
	logger Logger
}

// OpaqueOption configures an OpaqueStrategy.
type OpaqueOption func(*OpaqueStrategy)

// WithOpaqueClock sets the clock used for expiry.
func WithOpaqueClock(c Clock) OpaqueOption {
	return func(s *OpaqueStrategy) { s.clock = normalizeClock(c) }
}

// WithOpaqueLogger sets the logger.
func WithOpaqueLogger(l Logger) OpaqueOption {
	return func(s *OpaqueStrategy) { s.logger = normalizeLogger(l) }
}

// NewOpaqueStrategy returns the opaque driver.
func NewOpaqueStrategy(cfg Config, store TokenStore, roles RoleSource, opts ...OpaqueOption) *OpaqueStrategy {
	s := &OpaqueStrategy{
		store:  store,
		roles:  roles,
		ttl:    cfg.OpaqueTTL(),
		purge:  cfg.DeletePreviousTokensOnLogin,
		rotate: cfg.RotateOnRefresh,
		clock:  time.Now,
		logger: NopLogger(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *OpaqueStrategy) Driver() Driver { return DriverOpaque }

func (s *OpaqueStrategy) TokenType() string { return "Bearer" }

// Login creates a token row whose abilities are the user's role slugs.
func (s *OpaqueStrategy) Login(ctx context.Context, user *User) (*AuthResult, error) {
	if s.purge {
		if _, err := s.store.DeleteForUser(ctx, user.ID); err != nil {
			return nil, strategyFailure(err, "failed to delete previous tokens")
		}
	}
	return s.issue(ctx, user)
}

// Logout deletes the current token only.
func (s *OpaqueStrategy) Logout(ctx context.Context, token ActiveToken) (bool, error) {
	id, err := uuid.Parse(token.ID)
	if err != nil {
		return false, nil
	}
	deleted, err := s.store.Delete(ctx, id)
	if err != nil {
		return false, strategyFailure(err, "failed to delete token")
	}
	return deleted, nil
}

// Refresh rotates the current token when configured and issues a new one.
func (s *OpaqueStrategy) Refresh(ctx context.Context, user *User, token ActiveToken) (*AuthResult, error) {
	if s.purge {
		if _, err := s.store.DeleteForUser(ctx, user.ID); err != nil {
			return nil, strategyFailure(err, "failed to delete previous tokens")
		}
	} else if s.rotate {
		if _, err := s.Logout(ctx, token); err != nil {
			return nil, err
		}
	}
	return s.issue(ctx, user)
}

func (s *OpaqueStrategy) Validate(ctx context.Context, token string) bool {
	_, err := s.Inspect(ctx, token)
	return err == nil
}

// Inspect resolves a bearer string into its token row and touches last_used_at.
func (s *OpaqueStrategy) Inspect(ctx context.Context, token string) (*ActiveToken, error) {
	id, secret, ok := splitBearer(token)
	if !ok {
		return nil, ErrInvalidToken
	}

	record, err := s.store.Find(ctx, id)
	if err != nil {
		return nil, ErrInvalidToken
	}
	if !secretMatches(record.TokenHash, secret) {
		return nil, ErrInvalidToken
	}

	now := s.clock()
	if record.ExpiresAt != nil && !now.Before(*record.ExpiresAt) {
		return nil, ErrInvalidToken
	}

	if err := s.store.Touch(ctx, record.ID, now); err != nil {
		s.logger.Warn("opaque token touch failed", "token_id", record.ID, "error", err)
	}

	return &ActiveToken{
		ID:        record.ID.String(),
		UserID:    record.UserID,
		Kind:      TokenKindAccess,
		Abilities: record.AbilityList(),
		ExpiresAt: record.ExpiresAt,
		Raw:       token,
	}, nil
}

func (s *OpaqueStrategy) issue(ctx context.Context, user *User) (*AuthResult, error) {
	abilities, err := roleSlugs(ctx, s.roles, user.ID)
	if err != nil {
		return nil, strategyFailure(err, "failed to resolve abilities")
	}

	secret, err := randomSecret(20)
	if err != nil {
		return nil, strategyFailure(err, "failed to generate token")
	}

	now := s.clock()
	record := &AccessToken{
		ID:        uuid.New(),
		UserID:    user.ID,
		Name:      opaqueTokenName,
		Abilities: joinList(abilities),
		TokenHash: hashSecret(secret),
		CreatedAt: now,
	}
	if s.ttl > 0 {
		exp := now.Add(s.ttl)
		record.ExpiresAt = &exp
	}

	if err := s.store.Create(ctx, record); err != nil {
		return nil, strategyFailure(err, "failed to store token")
	}

	s.logger.Debug("opaque token issued", "user_id", user.ID, "token_id", record.ID)

	res := baseResult(user)
	res.Token = composeBearer(record.ID, secret)
	res.TokenType = s.TokenType()
	res.Abilities = abilities
	if record.ExpiresAt != nil {
		res.ExpiresAt = record.ExpiresAt
		res.ExpiresIn = int64(s.ttl.Seconds())
	}
	return res, nil
}
