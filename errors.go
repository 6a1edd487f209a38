package shield

import (
	"net/http"

	"github.com/goliatone/go-errors"
)

const (
	TextCodeInvalidCredentials = "INVALID_CREDENTIALS"
	TextCodeAccountSuspended   = "ACCOUNT_SUSPENDED"
	TextCodeAccountUnverified  = "ACCOUNT_UNVERIFIED"
	TextCodeNoActiveSession    = "NO_ACTIVE_SESSION"
	TextCodeStrategyFailure    = "STRATEGY_FAILURE"
	TextCodeInvalidToken       = "INVALID_TOKEN"
	TextCodeUserNotFound       = "USER_NOT_FOUND"
	TextCodeRoleNotFound       = "ROLE_NOT_FOUND"
	TextCodePrivilegeNotFound  = "PRIVILEGE_NOT_FOUND"
	TextCodeProtectedResource  = "PROTECTED_RESOURCE"
	TextCodeLastAdmin          = "LAST_ADMIN"
	TextCodeDuplicate          = "DUPLICATE_RESOURCE"
	TextCodeCacheInvalidation  = "CACHE_INVALIDATION_FAILED"
	TextCodeInvalidConfig      = "INVALID_CONFIG"
	TextCodeUnknownDriver      = "UNKNOWN_AUTH_DRIVER"
)

// ErrInvalidCredentials is returned when the user is unknown or the password does not match.
var ErrInvalidCredentials = errors.New("invalid credentials", errors.CategoryAuth).
	WithTextCode(TextCodeInvalidCredentials).
	WithCode(errors.CodeUnauthorized)

// ErrAccountSuspended is returned when a suspended user tries to log in.
var ErrAccountSuspended = errors.New("user is suspended", errors.CategoryAuth).
	WithTextCode(TextCodeAccountSuspended).
	WithCode(http.StatusLocked)

// ErrAccountUnverified is returned when verification is required and missing.
var ErrAccountUnverified = errors.New("account not verified", errors.CategoryAuthz).
	WithTextCode(TextCodeAccountUnverified).
	WithCode(errors.CodeForbidden)

// ErrNoActiveSession is returned by logout/refresh when the caller carries no session.
var ErrNoActiveSession = errors.New("no active session", errors.CategoryAuth).
	WithTextCode(TextCodeNoActiveSession).
	WithCode(errors.CodeUnauthorized)

// ErrStrategyFailure marks store or signing failures inside a token strategy.
var ErrStrategyFailure = errors.New("token strategy failure", errors.CategoryInternal).
	WithTextCode(TextCodeStrategyFailure).
	WithCode(errors.CodeInternal)

// ErrInvalidToken is returned when a bearer token cannot be inspected.
var ErrInvalidToken = errors.New("invalid token", errors.CategoryAuth).
	WithTextCode(TextCodeInvalidToken).
	WithCode(errors.CodeUnauthorized)

// ErrUserNotFound is returned by user lookups.
var ErrUserNotFound = errors.New("user not found", errors.CategoryNotFound).
	WithTextCode(TextCodeUserNotFound).
	WithCode(errors.CodeNotFound)

// ErrRoleNotFound is returned by role lookups.
var ErrRoleNotFound = errors.New("role not found", errors.CategoryNotFound).
	WithTextCode(TextCodeRoleNotFound).
	WithCode(errors.CodeNotFound)

// ErrPrivilegeNotFound is returned by privilege lookups.
var ErrPrivilegeNotFound = errors.New("privilege not found", errors.CategoryNotFound).
	WithTextCode(TextCodePrivilegeNotFound).
	WithCode(errors.CodeNotFound)

// ErrProtectedResource is returned when renaming or deleting a protected role.
var ErrProtectedResource = errors.New("protected resource cannot be modified", errors.CategoryConflict).
	WithTextCode(TextCodeProtectedResource).
	WithCode(http.StatusUnprocessableEntity)

// ErrLastAdmin is returned when an operation would leave no user holding the admin role.
var ErrLastAdmin = errors.New("create another admin before removing the only admin user", errors.CategoryConflict).
	WithTextCode(TextCodeLastAdmin).
	WithCode(errors.CodeConflict)

// ErrDuplicate is returned when a slug or email already exists.
var ErrDuplicate = errors.New("resource already exists", errors.CategoryConflict).
	WithTextCode(TextCodeDuplicate).
	WithCode(errors.CodeConflict)

// ErrCacheInvalidation is returned when a committed mutation could not be reflected in the cache.
var ErrCacheInvalidation = errors.New("authorization cache invalidation failed", errors.CategoryInternal).
	WithTextCode(TextCodeCacheInvalidation).
	WithCode(errors.CodeInternal)

// ErrEmptyPassword is returned when hashing an empty password.
var ErrEmptyPassword = errors.New("password must not be empty", errors.CategoryBadInput).
	WithTextCode("EMPTY_PASSWORD").
	WithCode(errors.CodeBadRequest)

// ErrUnknownDriver is returned for an auth_driver outside opaque, delegated, signed.
var ErrUnknownDriver = errors.New("unknown auth driver", errors.CategoryValidation).
	WithTextCode(TextCodeUnknownDriver).
	WithCode(errors.CodeBadRequest)

// IsProtectedViolation reports whether err is one of the protected resource guards.
func IsProtectedViolation(err error) bool {
	return errors.Is(err, ErrProtectedResource) || errors.Is(err, ErrLastAdmin)
}

// ErrorCode extracts the stable text code from err, or "" for foreign errors.
func ErrorCode(err error) string {
	var rich *errors.Error
	if errors.As(err, &rich) {
		return rich.TextCode
	}
	return ""
}

// HTTPStatus maps err to a status code. Foreign errors map to 500.
func HTTPStatus(err error) int {
	var rich *errors.Error
	if errors.As(err, &rich) && rich.Code > 0 {
		return rich.Code
	}
	return http.StatusInternalServerError
}

// PublicMessage returns a message safe to show across the boundary.
func PublicMessage(err error) string {
	var rich *errors.Error
	if errors.As(err, &rich) && rich.TextCode != "" {
		return rich.Message
	}
	return "internal error"
}

func strategyFailure(err error, msg string) error {
	return errors.Wrap(err, errors.CategoryInternal, msg).
		WithTextCode(TextCodeStrategyFailure).
		WithCode(errors.CodeInternal)
}
