package shield

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-errors"
)

// Signer signs and verifies token claims.
type Signer interface {
	Sign(claims *TokenClaims) (string, error)
	Verify(token string) (*TokenClaims, error)
}

type jwtSigner struct {
	key    []byte
	method jwt.SigningMethod
	issuer string
	clock  Clock
	logger Logger
}

// SignerOption configures the jwt signer.
type SignerOption func(*jwtSigner)

// WithSignerClock sets the time source used to validate time claims.
func WithSignerClock(c Clock) SignerOption {
	return func(s *jwtSigner) { s.clock = normalizeClock(c) }
}

// WithSignerLogger sets the logger.
func WithSignerLogger(l Logger) SignerOption {
	return func(s *jwtSigner) { s.logger = normalizeLogger(l) }
}

// NewSigner returns an HMAC Signer. method is one of HS256, HS384 or HS512
// and defaults to HS256.
func NewSigner(key []byte, method, issuer string, opts ...SignerOption) (Signer, error) {
	if len(key) == 0 {
		return nil, invalidConfig("signing_key", "must not be empty")
	}

	var m jwt.SigningMethod
	switch method {
	case "", "HS256":
		m = jwt.SigningMethodHS256
	case "HS384":
		m = jwt.SigningMethodHS384
	case "HS512":
		m = jwt.SigningMethodHS512
	default:
		return nil, invalidConfig("signing_method", fmt.Sprintf("unsupported method %q", method))
	}

	s := &jwtSigner{
		key:    key,
		method: m,
		issuer: issuer,
		clock:  time.Now,
		logger: NopLogger(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// Sign signs claims, filling in the issuer and a jti when missing.
func (s *jwtSigner) Sign(claims *TokenClaims) (string, error) {
	if claims == nil {
		return "", errors.New("claims must not be nil", errors.CategoryInternal)
	}
	if claims.Issuer == "" {
		claims.Issuer = s.issuer
	}
	if err := ensureTokenID(&claims.RegisteredClaims); err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to generate token id")
	}

	signed, err := jwt.NewWithClaims(s.method, claims).SignedString(s.key)
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to sign JWT")
	}
	return signed, nil
}

// Verify checks the signature and the exp, nbf and iss claims.
func (s *jwtSigner) Verify(token string) (*TokenClaims, error) {
	parserOptions := []jwt.ParserOption{
		jwt.WithValidMethods([]string{s.method.Alg()}),
		jwt.WithTimeFunc(s.clock),
		jwt.WithExpirationRequired(),
	}
	if s.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(s.issuer))
	}

	claims := &TokenClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			s.logger.Warn("unexpected signing method", "alg", t.Header["alg"])
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.key, nil
	}, parserOptions...)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryAuth, "invalid token").
			WithTextCode(TextCodeInvalidToken).
			WithCode(errors.CodeUnauthorized)
	}
	if !parsed.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
