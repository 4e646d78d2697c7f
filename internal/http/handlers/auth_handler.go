package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"storefront/internal/domain"
	"storefront/internal/log"
	"storefront/internal/services"
	"storefront/internal/validate"
)

type AuthHandler struct {
	Auth         *services.AuthService
	CookieSecure bool
}

type credentials struct {
	Email    string `json:"email" form:"email"`
	Name     string `json:"name" form:"name"`
	Password string `json:"password" form:"password"`
}

// Session is returned by signup and login.
type Session struct {
	User      *domain.User `json:"user"`
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
}

// rotateSID hands out sid, a session id minted for this sign-in, and drops
// whatever session the browser carried before.
func (h *AuthHandler) rotateSID(c *fiber.Ctx, sid string) {
	if old := c.Cookies("sid"); old != "" && old != sid {
		_ = h.Auth.Logout(old)
	}
	c.Cookie(&fiber.Cookie{
		Name:     "sid",
		Value:    sid,
		Path:     "/",
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
		Secure:   h.CookieSecure,
	})
}

func (h *AuthHandler) session(c *fiber.Ctx, code int, u *domain.User) error {
	tok, exp, err := h.Auth.IssueToken(u)
	if err != nil {
		return failFrom(c, "auth.token.issue.fail", err)
	}
	return ok(c, code, "OK", Session{User: u, Token: tok, ExpiresAt: exp})
}

// POST /api/auth/signup
func (h *AuthHandler) Signup(c *fiber.Ctx) error {
	var in credentials
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "body", "Invalid request body")
	}
	email, okEmail := validate.Email(in.Email)
	if !okEmail {
		return badRequest(c, "email", "Enter a valid email")
	}
	name, okName := validate.Name(in.Name)
	if !okName {
		return badRequest(c, "name", "Name must be 1-60 characters")
	}
	if !validate.Password(in.Password) {
		return badRequest(c, "password", "Password needs 8-64 characters with upper, lower, digit and symbol")
	}

	sid := uuid.NewString()
	u, err := h.Auth.Signup(sid, email, name, in.Password)
	if err != nil {
		return failFrom(c, "auth.signup.fail", err)
	}
	h.rotateSID(c, sid)
	c.Locals("user", u)
	log.Audit(c, "auth.signup", map[string]any{"email": email})
	return h.session(c, fiber.StatusCreated, u)
}

// POST /api/auth/login
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var in credentials
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "body", "Invalid request body")
	}
	email, okEmail := validate.Email(in.Email)
	if !okEmail {
		log.Security(c, "auth.login.fail", map[string]any{"email": in.Email, "reason": "bad_format"})
		return Fail(c, fiber.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password")
	}

	sid := uuid.NewString()
	u, err := h.Auth.Login(sid, email, in.Password)
	if err != nil {
		log.Security(c, "auth.login.fail", map[string]any{"email": email})
		return failFrom(c, "auth.login.fail", err)
	}
	h.rotateSID(c, sid)
	c.Locals("user", u)
	log.Audit(c, "auth.login.success", map[string]any{"email": email})
	return h.session(c, fiber.StatusOK, u)
}

// POST /api/auth/logout
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	if sid := c.Cookies("sid"); sid != "" {
		_ = h.Auth.Logout(sid)
	}
	c.Cookie(&fiber.Cookie{
		Name:     "sid",
		Value:    "",
		Path:     "/",
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
		Secure:   h.CookieSecure,
		Expires:  time.Now().Add(-1 * time.Hour),
	})
	log.Audit(c, "auth.logout", nil)
	return ok(c, fiber.StatusOK, "Logged out", nil)
}

// GET /api/auth/session
func (h *AuthHandler) Session(c *fiber.Ctx) error {
	u := CurrentUser(c)
	if u == nil {
		return Fail(c, fiber.StatusUnauthorized, "UNAUTHORIZED", "No active session")
	}
	return ok(c, fiber.StatusOK, "OK", fiber.Map{"user": u})
}
