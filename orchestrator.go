package shield

import (
	"context"
	"time"

	"github.com/goliatone/go-errors"
)

// Orchestrator runs the login gates and delegates token work to the
// configured Strategy.
//
// Login walks Resolved, Verified, SuspensionChecked, VerificationChecked and
// TokenIssued, stopping at the first failing gate.
type Orchestrator struct {
	resolver      *CredentialResolver
	strategy      Strategy
	users         UserRepository
	checkVerified bool
	logger        Logger
	activitySink  ActivitySink
	metrics       *Metrics
	clock         Clock
}

// NewOrchestrator returns an Orchestrator for strategy.
func NewOrchestrator(cfg Config, resolver *CredentialResolver, strategy Strategy, users UserRepository) *Orchestrator {
	return &Orchestrator{
		resolver:      resolver,
		strategy:      strategy,
		users:         users,
		checkVerified: cfg.CheckVerified,
		logger:        NopLogger(),
		activitySink:  noopActivitySink{},
		clock:         time.Now,
	}
}

func (o *Orchestrator) WithLogger(logger Logger) *Orchestrator {
	o.logger = normalizeLogger(logger)
	return o
}

// WithActivitySink configures an ActivitySink for emitting auth events.
func (o *Orchestrator) WithActivitySink(sink ActivitySink) *Orchestrator {
	o.activitySink = normalizeActivitySink(sink)
	return o
}

func (o *Orchestrator) WithMetrics(m *Metrics) *Orchestrator {
	o.metrics = m
	return o
}

func (o *Orchestrator) WithClock(c Clock) *Orchestrator {
	o.clock = normalizeClock(c)
	return o
}

// Strategy returns the configured strategy.
func (o *Orchestrator) Strategy() Strategy {
	return o.strategy
}

// Login authenticates credentials and issues a token.
func (o *Orchestrator) Login(ctx context.Context, creds Credentials) (*AuthResult, error) {
	user, err := o.resolver.Authenticate(ctx, creds)
	if err != nil {
		if !errors.Is(err, ErrInvalidCredentials) {
			o.logger.Error("login lookup failed", "error", err)
			err = strategyFailure(err, "failed to look up user")
		}
		o.loginFailed(ctx, "", err)
		return nil, err
	}

	if err := o.checkAccount(user); err != nil {
		o.loginFailed(ctx, user.ID.String(), err)
		return nil, err
	}

	res, err := o.strategy.Login(ctx, user)
	if err != nil {
		err = asStrategyFailure(err)
		o.logger.Error("login token issue failed", "user_id", user.ID, "error", err)
		o.loginFailed(ctx, user.ID.String(), err)
		return nil, err
	}

	o.metrics.login(o.strategy.Driver(), "success")
	o.emit(ctx, ActivityEventLoginSuccess, user.ID.String(), nil)
	o.logger.Info("login success", "user_id", user.ID, "driver", o.strategy.Driver())
	return res, nil
}

// Authenticate inspects a bearer token and loads its user.
func (o *Orchestrator) Authenticate(ctx context.Context, bearer string) (*Session, error) {
	if bearer == "" {
		return nil, ErrNoActiveSession
	}
	token, err := o.strategy.Inspect(ctx, bearer)
	if err != nil {
		return nil, ErrInvalidToken
	}
	user, err := o.users.FindByID(ctx, token.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, strategyFailure(err, "failed to load session user")
	}
	return &Session{User: user, Token: *token}, nil
}

// Logout revokes the token of the session in ctx.
func (o *Orchestrator) Logout(ctx context.Context) (bool, error) {
	session, ok := SessionFromContext(ctx)
	if !ok {
		return false, ErrNoActiveSession
	}

	done, err := o.strategy.Logout(ctx, session.Token)
	if err != nil {
		o.metrics.session(o.strategy.Driver(), "logout", "error")
		return false, asStrategyFailure(err)
	}

	o.metrics.session(o.strategy.Driver(), "logout", "success")
	o.emit(ctx, ActivityEventLogout, session.User.ID.String(), map[string]any{"revoked": done})
	return done, nil
}

// Refresh issues a new token for the session in ctx. The account gates run
// again since a token is issued.
func (o *Orchestrator) Refresh(ctx context.Context) (*AuthResult, error) {
	session, ok := SessionFromContext(ctx)
	if !ok {
		return nil, ErrNoActiveSession
	}

	if err := o.checkAccount(session.User); err != nil {
		o.metrics.session(o.strategy.Driver(), "refresh", "rejected")
		return nil, err
	}

	res, err := o.strategy.Refresh(ctx, session.User, session.Token)
	if err != nil {
		o.metrics.session(o.strategy.Driver(), "refresh", "error")
		return nil, asStrategyFailure(err)
	}

	o.metrics.session(o.strategy.Driver(), "refresh", "success")
	o.emit(ctx, ActivityEventRefresh, session.User.ID.String(), nil)
	return res, nil
}

// Validate delegates to the strategy.
func (o *Orchestrator) Validate(ctx context.Context, token string) bool {
	return o.strategy.Validate(ctx, token)
}

func (o *Orchestrator) checkAccount(user *User) error {
	if user.IsSuspended() {
		return ErrAccountSuspended
	}
	if o.checkVerified && !user.IsVerified() {
		return ErrAccountUnverified
	}
	return nil
}

func (o *Orchestrator) loginFailed(ctx context.Context, userID string, err error) {
	code := ErrorCode(err)
	o.metrics.login(o.strategy.Driver(), code)
	o.emit(ctx, ActivityEventLoginFailure, userID, map[string]any{"code": code})
	o.logger.Warn("login failed", "user_id", userID, "code", code)
}

func (o *Orchestrator) emit(ctx context.Context, kind ActivityEventType, userID string, meta map[string]any) {
	recordActivity(ctx, o.activitySink, o.logger, ActivityEvent{
		EventType:  kind,
		UserID:     userID,
		Driver:     o.strategy.Driver(),
		Metadata:   meta,
		OccurredAt: o.clock(),
	})
}

func asStrategyFailure(err error) error {
	if ErrorCode(err) == TextCodeStrategyFailure {
		return err
	}
	return strategyFailure(err, "token strategy failure")
}
