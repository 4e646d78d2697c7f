package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	applog "storefront/internal/log"
	"storefront/internal/services"
	"storefront/internal/validate"
)

// UserHandler serves the signed-in user's own profile.
type UserHandler struct {
	Auth   *services.AuthService
	Users  *services.UserAdminService
	Orders *services.OrderService
}

type profileForm struct {
	Name string `json:"name" form:"name"`
}

type passwordForm struct {
	Current string `json:"current_password" form:"current_password"`
	New     string `json:"new_password" form:"new_password"`
}

// GET /api/user/profile
func (h *UserHandler) Profile(c *fiber.Ctx) error {
	return ok(c, fiber.StatusOK, "OK", CurrentUser(c))
}

// PUT /api/user/profile
func (h *UserHandler) UpdateProfile(c *fiber.Ctx) error {
	var in profileForm
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "body", "Invalid request body")
	}
	name, valid := validate.Name(in.Name)
	if !valid {
		return badRequest(c, "name", "Name must be 1-60 characters")
	}
	u, err := h.Users.UpdateProfile(CurrentUser(c).ID, name)
	if err != nil {
		return failFrom(c, "user.profile.update.fail", err)
	}
	applog.Audit(c, "user.profile.update", nil)
	return ok(c, fiber.StatusOK, "Profile updated", u)
}

// PUT /api/user/password
func (h *UserHandler) ChangePassword(c *fiber.Ctx) error {
	var in passwordForm
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "body", "Invalid request body")
	}
	if !validate.Password(in.New) {
		return badRequest(c, "new_password", "Password needs 8-64 characters with upper, lower, digit and symbol")
	}
	err := h.Auth.ChangePassword(CurrentUser(c).ID, in.Current, in.New)
	if errors.Is(err, services.ErrBadCreds) {
		applog.Security(c, "user.password.change.fail", map[string]any{"reason": "bad_current"})
		return Fail(c, fiber.StatusUnauthorized, "INVALID_CREDENTIALS", "Current password is incorrect")
	}
	if err != nil {
		return failFrom(c, "user.password.change.fail", err)
	}
	applog.Audit(c, "user.password.change", nil)
	return ok(c, fiber.StatusOK, "Password updated", nil)
}

// GET /api/user/orders
func (h *UserHandler) ListOrders(c *fiber.Ctx) error {
	orders, err := h.Orders.ListForUser(CurrentUser(c).ID)
	if err != nil {
		return failFrom(c, "user.orders.fail", err)
	}
	return ok(c, fiber.StatusOK, "OK", orders)
}

// POST /api/user/avatar (multipart, field "avatar")
func (h *UserHandler) UploadAvatar(c *fiber.Ctx) error {
	fh, err := c.FormFile("avatar")
	if err != nil {
		return badRequest(c, "avatar", "Attach an image in the avatar field")
	}
	if fh.Size > maxImageBytes {
		return badRequest(c, "avatar", "Image must be at most 2 MiB")
	}
	img, msg, valid := readUpload(fh)
	if !valid {
		return badRequest(c, "avatar", msg)
	}
	u, err := h.Users.UploadAvatar(c.UserContext(), CurrentUser(c).ID, img)
	if err != nil {
		return failFrom(c, "user.avatar.fail", err)
	}
	applog.Audit(c, "user.avatar.update", map[string]any{"size": img.Size})
	return ok(c, fiber.StatusOK, "Avatar updated", u)
}
