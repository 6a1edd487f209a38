package shield

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const refreshTokenType = "refresh"

// TokenClaims is the payload of a signed token. Access tokens carry the
// subject's roles and display fields; refresh tokens carry typ=refresh.
type TokenClaims struct {
	jwt.RegisteredClaims
	Roles []string `json:"roles,omitempty"`
	Email string   `json:"email,omitempty"`
	Name  string   `json:"name,omitempty"`
	Type  string   `json:"typ,omitempty"`
}

// UserID parses the subject claim.
func (c *TokenClaims) UserID() (uuid.UUID, error) {
	return uuid.Parse(c.Subject)
}

// IsRefresh reports whether the claims belong to a refresh token.
func (c *TokenClaims) IsRefresh() bool {
	return c.Type == refreshTokenType
}

// Kind returns TokenKindRefresh or TokenKindAccess.
func (c *TokenClaims) Kind() string {
	if c.IsRefresh() {
		return TokenKindRefresh
	}
	return TokenKindAccess
}

// Expires returns the expiration time
func (c *TokenClaims) Expires() time.Time {
	if c.ExpiresAt != nil {
		return c.ExpiresAt.Time
	}
	return time.Time{}
}

func ensureTokenID(claims *jwt.RegisteredClaims) error {
	if claims.ID != "" {
		return nil
	}
	id, err := randomSecret(16)
	if err != nil {
		return err
	}
	claims.ID = id
	return nil
}
