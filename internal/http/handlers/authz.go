package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"storefront/internal/domain"
	applog "storefront/internal/log"
	"storefront/internal/services"
)

// BearerLocal is set when the request authenticated with a bearer token.
// Such requests carry no ambient credentials and skip the CSRF check.
const BearerLocal = "auth_bearer"

// CurrentUser returns the user Authenticate attached to the request, or nil.
func CurrentUser(c *fiber.Ctx) *domain.User {
	u, _ := c.Locals("user").(*domain.User)
	return u
}

func bearerToken(c *fiber.Ctx) string {
	h := c.Get(fiber.HeaderAuthorization)
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// Authenticate resolves the caller from a bearer token or the sid cookie.
// The user and its role are read from the database on every request.
// It never rejects; guards below do.
func Authenticate(auth *services.AuthService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if tok := bearerToken(c); tok != "" {
			c.Locals(BearerLocal, true)
			u, err := auth.UserFromToken(tok)
			if err != nil {
				applog.Security(c, "auth.token.invalid", nil)
				return c.Next()
			}
			c.Locals("user", u)
			return c.Next()
		}
		if sid := c.Cookies("sid"); sid != "" {
			if u, err := auth.CurrentUser(sid); err == nil && u != nil {
				c.Locals("user", u)
			}
		}
		return c.Next()
	}
}

// RequireUser rejects anonymous requests with 401.
func RequireUser() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if CurrentUser(c) == nil {
			return Fail(c, fiber.StatusUnauthorized, "UNAUTHORIZED", "Login required")
		}
		return c.Next()
	}
}

// RequireAdmin answers 401 without a user and 403 unless the joined role is
// admin. A user without a role is denied.
func RequireAdmin() fiber.Handler {
	return func(c *fiber.Ctx) error {
		u := CurrentUser(c)
		if u == nil {
			applog.Security(c, "access.denied.admin", map[string]any{"reason": "anonymous"})
			return Fail(c, fiber.StatusUnauthorized, "UNAUTHORIZED", "Login required")
		}
		if !u.IsAdmin() {
			applog.Security(c, "access.denied.admin", map[string]any{"role": u.Role})
			return Fail(c, fiber.StatusForbidden, "FORBIDDEN", "Access denied")
		}
		return c.Next()
	}
}
