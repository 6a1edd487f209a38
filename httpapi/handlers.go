package httpapi

import (
	stderrors "errors"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-errors"

	shield "github.com/goliatone/go-shield"
)

// LoginPayload is the login request body. Any of login, email or mobile
// identifies the user.
type LoginPayload struct {
	Login    string `json:"login" form:"login"`
	Email    string `json:"email" form:"email"`
	Mobile   string `json:"mobile" form:"mobile"`
	Password string `json:"password" form:"password"`
}

// Validate will validate the payload
func (p LoginPayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Login, validation.By(p.identified)),
		validation.Field(&p.Password, validation.Required, validation.Length(1, 200)),
	)
}

func (p LoginPayload) identified(any) error {
	if strings.TrimSpace(p.Login+p.Email+p.Mobile) == "" {
		return stderrors.New("one of login, email or mobile is required")
	}
	return nil
}

// Credentials converts the payload into shield.Credentials.
func (p LoginPayload) Credentials() shield.Credentials {
	creds := shield.Credentials{shield.CredentialPassword: p.Password}
	if v := strings.TrimSpace(p.Login); v != "" {
		creds[shield.CredentialLogin] = v
	}
	if v := strings.TrimSpace(p.Email); v != "" {
		creds["email"] = v
	}
	if v := strings.TrimSpace(p.Mobile); v != "" {
		creds["mobile"] = v
	}
	return creds
}

func (h *Handler) LoginPost(c *fiber.Ctx) error {
	payload := new(LoginPayload)
	if err := c.BodyParser(payload); err != nil {
		h.logger.Debug("login parse payload", "error", err)
		return writeError(c, badRequest(err, "failed to parse body"))
	}
	if err := payload.Validate(); err != nil {
		return writeError(c, badRequest(err, "invalid login payload"))
	}

	res, err := h.auth.Login(c.UserContext(), payload.Credentials())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(res)
}

func (h *Handler) LogoutPost(c *fiber.Ctx) error {
	done, err := h.auth.Logout(c.UserContext())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{
		"error":   0,
		"revoked": done,
		"message": "logged out",
	})
}

func (h *Handler) RefreshPost(c *fiber.Ctx) error {
	res, err := h.auth.Refresh(c.UserContext())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(res)
}

func (h *Handler) MeGet(c *fiber.Ctx) error {
	session, ok := SessionFrom(c)
	if !ok {
		return writeError(c, shield.ErrNoActiveSession)
	}
	authz, err := h.authz.Get(c.UserContext(), session.User.ID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{
		"error":      0,
		"id":         session.User.ID.String(),
		"name":       session.User.Name,
		"email":      session.User.Email,
		"roles":      authz.Roles,
		"privileges": authz.Privileges,
	})
}

// ChangePasswordPayload is the change password request body.
type ChangePasswordPayload struct {
	CurrentPassword string `json:"current_password" form:"current_password"`
	NewPassword     string `json:"new_password" form:"new_password"`
}

func (p ChangePasswordPayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.CurrentPassword, validation.Required),
		validation.Field(&p.NewPassword, validation.Required),
	)
}

func (h *Handler) ChangePasswordPost(c *fiber.Ctx) error {
	session, ok := SessionFrom(c)
	if !ok {
		return writeError(c, shield.ErrNoActiveSession)
	}
	payload := new(ChangePasswordPayload)
	if err := c.BodyParser(payload); err != nil {
		h.logger.Debug("change password parse payload", "error", err)
		return writeError(c, badRequest(err, "failed to parse body"))
	}
	if err := payload.Validate(); err != nil {
		return writeError(c, badRequest(err, "invalid change password payload"))
	}

	err := h.cfg.Passwords.ChangePassword(c.UserContext(), session.User.ID, shield.PasswordChange{
		Current: payload.CurrentPassword,
		Next:    payload.NewPassword,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{
		"error":   0,
		"message": "password changed",
	})
}

func badRequest(err error, msg string) error {
	return errors.Wrap(err, errors.CategoryBadInput, msg).
		WithTextCode("BAD_REQUEST").
		WithCode(errors.CodeBadRequest)
}
