package shield_test

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	shield "github.com/goliatone/go-shield"
)

func TestErrorHelpers(t *testing.T) {
	cases := []struct {
		err    error
		code   string
		status int
	}{
		{shield.ErrInvalidCredentials, shield.TextCodeInvalidCredentials, http.StatusUnauthorized},
		{shield.ErrAccountSuspended, shield.TextCodeAccountSuspended, http.StatusLocked},
		{shield.ErrAccountUnverified, shield.TextCodeAccountUnverified, http.StatusForbidden},
		{shield.ErrNoActiveSession, shield.TextCodeNoActiveSession, http.StatusUnauthorized},
		{shield.ErrProtectedResource, shield.TextCodeProtectedResource, http.StatusUnprocessableEntity},
		{shield.ErrLastAdmin, shield.TextCodeLastAdmin, http.StatusConflict},
		{shield.ErrRoleNotFound, shield.TextCodeRoleNotFound, http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			wrapped := fmt.Errorf("op: %w", tc.err)
			assert.Equal(t, tc.code, shield.ErrorCode(wrapped))
			assert.Equal(t, tc.status, shield.HTTPStatus(wrapped))
			assert.NotEqual(t, "internal error", shield.PublicMessage(wrapped))
		})
	}

	foreign := fmt.Errorf("dial tcp: connection refused")
	assert.Empty(t, shield.ErrorCode(foreign))
	assert.Equal(t, http.StatusInternalServerError, shield.HTTPStatus(foreign))
	assert.Equal(t, "internal error", shield.PublicMessage(foreign))
}

func TestIsProtectedViolation(t *testing.T) {
	assert.True(t, shield.IsProtectedViolation(shield.ErrProtectedResource))
	assert.True(t, shield.IsProtectedViolation(fmt.Errorf("revoke: %w", shield.ErrLastAdmin)))
	assert.False(t, shield.IsProtectedViolation(shield.ErrDuplicate))
}
