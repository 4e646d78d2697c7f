package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"

	applog "storefront/internal/log"
	"storefront/internal/services"
	"storefront/internal/validate"
)

const maxImageBytes = 2 << 20

type AdminHandler struct {
	Products  *services.ProductAdminService
	Users     *services.UserAdminService
	Orders    *services.OrderService
	Inventory *services.InventoryService
}

type productForm struct {
	Name        string      `json:"name" form:"name"`
	Description string      `json:"description" form:"description"`
	Price       json.Number `json:"price" form:"price"`
	Stock       json.Number `json:"stock" form:"stock"`
}

type userForm struct {
	Email    string `json:"email" form:"email"`
	Name     string `json:"name" form:"name"`
	Role     string `json:"role" form:"role"`
	Password string `json:"password" form:"password"`
}

type stockForm struct {
	ProductID string `json:"product_id" form:"product_id"`
	Qty       int    `json:"qty" form:"qty"`
}

// imageUpload reads an optional file part. A missing part is not an error.
// The content type is sniffed from the bytes, not taken from the client.
func imageUpload(c *fiber.Ctx, field string) (*services.Upload, string, bool) {
	fh, err := c.FormFile(field)
	if err != nil || fh == nil {
		return nil, "", true
	}
	if fh.Size > maxImageBytes {
		return nil, "Image must be at most 2 MiB", false
	}
	return readUpload(fh)
}

func readUpload(fh *multipart.FileHeader) (*services.Upload, string, bool) {
	f, err := fh.Open()
	if err != nil {
		return nil, "Could not read image", false
	}
	defer f.Close()
	body, err := io.ReadAll(io.LimitReader(f, maxImageBytes+1))
	if err != nil || len(body) > maxImageBytes {
		return nil, "Could not read image", false
	}
	return &services.Upload{
		ContentType: http.DetectContentType(body),
		Size:        int64(len(body)),
		Body:        bytes.NewReader(body),
	}, "", true
}

// parseProduct writes the 400 response itself and reports false on bad input.
func (h *AdminHandler) parseProduct(c *fiber.Ctx) (services.ProductInput, bool) {
	var in productForm
	if err := c.BodyParser(&in); err != nil {
		_ = badRequest(c, "body", "Invalid request body")
		return services.ProductInput{}, false
	}
	name, valid := validate.ProductName(in.Name)
	if !valid {
		_ = badRequest(c, "name", "Name must be 1-120 characters")
		return services.ProductInput{}, false
	}
	desc, valid := validate.Description(in.Description)
	if !valid {
		_ = badRequest(c, "description", "Description is too long")
		return services.ProductInput{}, false
	}
	price, valid := validate.Price(string(in.Price))
	if !valid {
		_ = badRequest(c, "price", "Price must be a non-negative amount")
		return services.ProductInput{}, false
	}
	stock, err := strconv.Atoi(string(in.Stock))
	if err != nil || !validate.Stock(stock) {
		_ = badRequest(c, "stock", "Stock must be a non-negative integer")
		return services.ProductInput{}, false
	}
	return services.ProductInput{Name: name, Description: desc, Price: price, Stock: stock}, true
}

// GET /api/admin/products?q=
func (h *AdminHandler) ListProducts(c *fiber.Ctx) error {
	q, valid := validate.Q(c.Query("q"))
	if !valid {
		return badRequest(c, "q", "Invalid search")
	}
	items, err := h.Products.List(q)
	if err != nil {
		return failFrom(c, "admin.products.list.fail", err)
	}
	return ok(c, fiber.StatusOK, "OK", items)
}

// GET /api/admin/products/:id
func (h *AdminHandler) GetProduct(c *fiber.Ctx) error {
	id, valid := validate.ID(c.Params("id"))
	if !valid {
		return Fail(c, fiber.StatusNotFound, "NOT_FOUND", "Resource not found")
	}
	p, err := h.Products.Get(id)
	if err != nil {
		return failFrom(c, "admin.products.get.fail", err)
	}
	return ok(c, fiber.StatusOK, "OK", p)
}

// POST /api/admin/products (JSON, urlencoded or multipart with "image")
func (h *AdminHandler) CreateProduct(c *fiber.Ctx) error {
	in, valid := h.parseProduct(c)
	if !valid {
		return nil
	}
	img, msg, valid := imageUpload(c, "image")
	if !valid {
		return badRequest(c, "image", msg)
	}
	p, err := h.Products.Create(c.UserContext(), in, img)
	if err != nil {
		return failFrom(c, "admin.products.create.fail", err)
	}
	applog.Audit(c, "admin.products.create", map[string]any{"product_id": p.ID, "name": p.Name})
	return ok(c, fiber.StatusCreated, "Product created", p)
}

// PUT /api/admin/products/:id
func (h *AdminHandler) UpdateProduct(c *fiber.Ctx) error {
	id, valid := validate.ID(c.Params("id"))
	if !valid {
		return Fail(c, fiber.StatusNotFound, "NOT_FOUND", "Resource not found")
	}
	in, valid := h.parseProduct(c)
	if !valid {
		return nil
	}
	img, msg, valid := imageUpload(c, "image")
	if !valid {
		return badRequest(c, "image", msg)
	}
	p, err := h.Products.Update(c.UserContext(), id, in, img)
	if err != nil {
		return failFrom(c, "admin.products.update.fail", err)
	}
	applog.Audit(c, "admin.products.update", map[string]any{"product_id": id, "stock": p.Stock, "price": p.Price.String()})
	return ok(c, fiber.StatusOK, "Product updated", p)
}

// DELETE /api/admin/products/:id
func (h *AdminHandler) DeleteProduct(c *fiber.Ctx) error {
	id, valid := validate.ID(c.Params("id"))
	if !valid {
		return Fail(c, fiber.StatusNotFound, "NOT_FOUND", "Resource not found")
	}
	if err := h.Products.Delete(id); err != nil {
		return failFrom(c, "admin.products.delete.fail", err)
	}
	applog.Audit(c, "admin.products.delete", map[string]any{"product_id": id})
	return ok(c, fiber.StatusOK, "Product deleted", nil)
}

// PUT /api/admin/inventory
func (h *AdminHandler) UpdateInventory(c *fiber.Ctx) error {
	var in stockForm
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "body", "Invalid request body")
	}
	pid, valid := validate.ID(in.ProductID)
	if !valid || !validate.Stock(in.Qty) {
		return badRequest(c, "qty", "invalid input")
	}
	avail, err := h.Inventory.SetStock(pid, in.Qty)
	if err != nil {
		return failFrom(c, "admin.inventory.save.fail", err)
	}
	applog.Audit(c, "admin.inventory.save", map[string]any{"product": pid, "qty": in.Qty})
	return ok(c, fiber.StatusOK, "Stock saved", avail)
}

// GET /api/admin/orders
func (h *AdminHandler) ListOrders(c *fiber.Ctx) error {
	limit := validate.Int(c.Query("limit"), 100)
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	orders, err := h.Orders.ListLatest(limit)
	if err != nil {
		return failFrom(c, "admin.orders.list.fail", err)
	}
	return ok(c, fiber.StatusOK, "OK", orders)
}

func (h *AdminHandler) parseUser(c *fiber.Ctx, passwordRequired bool) (services.UserInput, bool) {
	var in userForm
	if err := c.BodyParser(&in); err != nil {
		_ = badRequest(c, "body", "Invalid request body")
		return services.UserInput{}, false
	}
	email, valid := validate.Email(in.Email)
	if !valid {
		_ = badRequest(c, "email", "Enter a valid email")
		return services.UserInput{}, false
	}
	name, valid := validate.Name(in.Name)
	if !valid {
		_ = badRequest(c, "name", "Name must be 1-60 characters")
		return services.UserInput{}, false
	}
	role, valid := validate.Role(in.Role)
	if !valid {
		_ = badRequest(c, "role", "Role must be admin or user")
		return services.UserInput{}, false
	}
	if (passwordRequired || in.Password != "") && !validate.Password(in.Password) {
		_ = badRequest(c, "password", "Password needs 8-64 characters with upper, lower, digit and symbol")
		return services.UserInput{}, false
	}
	return services.UserInput{Email: email, Name: name, Role: role, Password: in.Password}, true
}

// GET /api/admin/users
func (h *AdminHandler) ListUsers(c *fiber.Ctx) error {
	users, err := h.Users.List()
	if err != nil {
		return failFrom(c, "admin.users.list.fail", err)
	}
	return ok(c, fiber.StatusOK, "OK", users)
}

// GET /api/admin/users/:id
func (h *AdminHandler) GetUser(c *fiber.Ctx) error {
	id, valid := validate.ID(c.Params("id"))
	if !valid {
		return Fail(c, fiber.StatusNotFound, "NOT_FOUND", "Resource not found")
	}
	u, err := h.Users.Get(id)
	if err != nil {
		return failFrom(c, "admin.users.get.fail", err)
	}
	return ok(c, fiber.StatusOK, "OK", u)
}

// POST /api/admin/users
func (h *AdminHandler) CreateUser(c *fiber.Ctx) error {
	in, valid := h.parseUser(c, true)
	if !valid {
		return nil
	}
	u, err := h.Users.Create(in)
	if err != nil {
		return failFrom(c, "admin.users.create.fail", err)
	}
	applog.Audit(c, "admin.users.create", map[string]any{"user_id": u.ID, "role": u.Role})
	return ok(c, fiber.StatusCreated, "User created", u)
}

// PUT /api/admin/users/:id
func (h *AdminHandler) UpdateUser(c *fiber.Ctx) error {
	id, valid := validate.ID(c.Params("id"))
	if !valid {
		return Fail(c, fiber.StatusNotFound, "NOT_FOUND", "Resource not found")
	}
	in, valid := h.parseUser(c, false)
	if !valid {
		return nil
	}
	u, err := h.Users.Update(id, in)
	if err != nil {
		return failFrom(c, "admin.users.update.fail", err)
	}
	applog.Audit(c, "admin.users.update", map[string]any{"user_id": id, "role": u.Role, "password_changed": in.Password != ""})
	return ok(c, fiber.StatusOK, "User updated", u)
}

// DELETE /api/admin/users/:id removes the user with sessions and cart; their
// orders are kept without an owner.
func (h *AdminHandler) DeleteUser(c *fiber.Ctx) error {
	id, valid := validate.ID(c.Params("id"))
	if !valid {
		return Fail(c, fiber.StatusNotFound, "NOT_FOUND", "Resource not found")
	}
	if me := CurrentUser(c); me != nil && me.ID == id {
		return Fail(c, fiber.StatusBadRequest, "INVALID_INPUT", "You cannot delete your own account")
	}
	if err := h.Users.Delete(id); err != nil {
		return failFrom(c, "admin.users.delete.fail", err)
	}
	applog.Audit(c, "admin.users.delete", map[string]any{"user_id": id})
	return ok(c, fiber.StatusOK, "User deleted", nil)
}
