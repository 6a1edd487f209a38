package shield

import (
	"context"
	"strings"

	"github.com/goliatone/go-errors"
	"github.com/nyaruka/phonenumbers"
)

// burner is implemented by hashers able to spend the same time as a real
// comparison when there is no hash to compare against.
type burner interface {
	Burn(plain string)
}

// CredentialResolver finds users by the configured credential fields and
// verifies their password. It never writes.
type CredentialResolver struct {
	users       UserRepository
	hasher      PasswordHasher
	fields      CredentialFields
	phoneFields map[string]bool
	region      string
	logger      Logger
}

// ResolverOption configures a CredentialResolver.
type ResolverOption func(*CredentialResolver)

// WithPhoneFields marks fields whose values are normalized to E.164 using
// region for numbers without a country code.
func WithPhoneFields(region string, fields ...string) ResolverOption {
	return func(r *CredentialResolver) {
		r.region = strings.ToUpper(strings.TrimSpace(region))
		r.phoneFields = map[string]bool{}
		for _, f := range fields {
			r.phoneFields[strings.ToLower(strings.TrimSpace(f))] = true
		}
	}
}

// WithResolverLogger sets the logger.
func WithResolverLogger(l Logger) ResolverOption {
	return func(r *CredentialResolver) { r.logger = normalizeLogger(l) }
}

// NewCredentialResolver returns a resolver over fields, tried in order.
func NewCredentialResolver(users UserRepository, hasher PasswordHasher, fields CredentialFields, opts ...ResolverOption) *CredentialResolver {
	if len(fields) == 0 {
		fields = CredentialFields{"email"}
	}
	r := &CredentialResolver{
		users:       users,
		hasher:      hasher,
		fields:      fields,
		phoneFields: map[string]bool{},
		logger:      NopLogger(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// NewCredentialResolverFromConfig builds a resolver from the validated config.
func NewCredentialResolverFromConfig(cfg Config, users UserRepository, hasher PasswordHasher, opts ...ResolverOption) *CredentialResolver {
	base := []ResolverOption{WithPhoneFields(cfg.PhoneRegion, cfg.PhoneFields...)}
	return NewCredentialResolver(users, hasher, cfg.Fields(), append(base, opts...)...)
}

type lookup struct {
	field string
	value string
}

// candidates lists the (field, value) pairs to try, in order. Named fields
// come first, then the generic login value against every field.
func (r *CredentialResolver) candidates(creds Credentials) []lookup {
	login := strings.TrimSpace(creds[CredentialLogin])

	if len(r.fields) == 1 {
		field := r.fields[0]
		value := strings.TrimSpace(creds[field])
		if value == "" {
			value = login
		}
		if value == "" {
			return nil
		}
		return []lookup{{field, value}}
	}

	out := make([]lookup, 0, len(r.fields)*2)
	for _, field := range r.fields {
		if value := strings.TrimSpace(creds[field]); value != "" {
			out = append(out, lookup{field, value})
		}
	}
	if login != "" {
		for _, field := range r.fields {
			out = append(out, lookup{field, login})
		}
	}
	return out
}

// Resolve returns the first user matching the credentials, or ErrUserNotFound.
func (r *CredentialResolver) Resolve(ctx context.Context, creds Credentials) (*User, error) {
	for _, c := range r.candidates(creds) {
		user, err := r.users.FindByField(ctx, c.field, r.normalize(c.field, c.value))
		if err == nil && user != nil {
			return user, nil
		}
		if err != nil && !errors.Is(err, ErrUserNotFound) {
			r.logger.Error("credential lookup failed", "field", c.field, "error", err)
			return nil, err
		}
	}
	return nil, ErrUserNotFound
}

// Verify checks plaintext against the user's password hash.
func (r *CredentialResolver) Verify(user *User, plaintext string) bool {
	if user == nil {
		return false
	}
	return r.hasher.Verify(plaintext, user.PasswordHash)
}

// Authenticate resolves and verifies in one step. Unknown users and wrong
// passwords both yield ErrInvalidCredentials.
func (r *CredentialResolver) Authenticate(ctx context.Context, creds Credentials) (*User, error) {
	user, err := r.Resolve(ctx, creds)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			if b, ok := r.hasher.(burner); ok {
				b.Burn(creds.Password())
			}
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !r.Verify(user, creds.Password()) {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

func (r *CredentialResolver) normalize(field, value string) string {
	switch {
	case r.phoneFields[field]:
		return NormalizePhone(value, r.region)
	case field == "email":
		return strings.ToLower(strings.TrimSpace(value))
	}
	return value
}

// NormalizePhone formats value as E.164 using region, returning value
// unchanged when it cannot be parsed.
func NormalizePhone(value, region string) string {
	num, err := phonenumbers.Parse(strings.TrimSpace(value), strings.ToUpper(region))
	if err != nil || !phonenumbers.IsPossibleNumber(num) {
		return value
	}
	return phonenumbers.Format(num, phonenumbers.E164)
}
