package httpapi

import (
	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-errors"

	shield "github.com/goliatone/go-shield"
)

var errForbidden = errors.New("insufficient permissions", errors.CategoryAuthz).
	WithTextCode("FORBIDDEN").
	WithCode(errors.CodeForbidden)

// Protected authenticates the bearer token and stores the session in the
// request context and in fiber locals.
func (h *Handler) Protected() fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := extract(c, h.extractors)
		if token == "" {
			return writeError(c, shield.ErrNoActiveSession)
		}

		session, err := h.auth.Authenticate(c.UserContext(), token)
		if err != nil {
			h.logger.Debug("bearer rejected", "path", c.Path(), "code", shield.ErrorCode(err))
			return writeError(c, err)
		}

		c.Locals(sessionLocalsKey, session)
		c.SetUserContext(shield.WithSession(c.UserContext(), session))
		return c.Next()
	}
}

// RequireRoles lets the request through when the user holds any of roles.
// It must run after Protected.
func (h *Handler) RequireRoles(roles ...string) fiber.Handler {
	return h.require(func(a shield.Authorization) bool {
		for _, r := range roles {
			if a.HasRole(r) {
				return true
			}
		}
		return false
	})
}

// RequirePrivileges lets the request through when the user holds every
// privilege. It must run after Protected.
func (h *Handler) RequirePrivileges(privileges ...string) fiber.Handler {
	return h.require(func(a shield.Authorization) bool {
		for _, p := range privileges {
			if !a.HasPrivilege(p) {
				return false
			}
		}
		return true
	})
}

func (h *Handler) require(allowed func(shield.Authorization) bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		session, ok := SessionFrom(c)
		if !ok {
			return writeError(c, shield.ErrNoActiveSession)
		}
		authz, err := h.authz.Get(c.UserContext(), session.User.ID)
		if err != nil {
			h.logger.Error("authorization lookup failed", "user_id", session.User.ID, "error", err)
			return writeError(c, err)
		}
		if !allowed(authz) {
			return writeError(c, errForbidden)
		}
		return c.Next()
	}
}

// writeError renders the stable error envelope. Messages of foreign errors
// are never exposed.
func writeError(c *fiber.Ctx, err error) error {
	return c.Status(shield.HTTPStatus(err)).JSON(fiber.Map{
		"error":   1,
		"message": shield.PublicMessage(err),
		"code":    shield.ErrorCode(err),
	})
}
