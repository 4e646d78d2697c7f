// Package http assembles the storefront's fiber application.
package http

import (
	"context"
	"embed"
	"errors"
	"io/fs"
	nethttp "net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/csrf"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	html "github.com/gofiber/template/html/v2"
	"github.com/jmoiron/sqlx"
	zlog "github.com/rs/zerolog/log"

	"storefront/internal/cache"
	"storefront/internal/config"
	"storefront/internal/http/handlers"
	applog "storefront/internal/log"
	"storefront/internal/services"
	"storefront/internal/storage"
)

//go:embed views/*.html
var viewsFS embed.FS

const (
	bodyLimit   = 5 << 20
	webhookPath = "/api/payments/webhook"
)

// Limits are the per-IP rate limits. Zero values fall back to the defaults.
type Limits struct {
	GlobalMax   int
	LoginMax    int
	LoginWindow time.Duration
	AvailMax    int
	AvailWindow time.Duration
}

func (l Limits) withDefaults() Limits {
	if l.GlobalMax == 0 {
		l.GlobalMax = 120
	}
	if l.LoginMax == 0 {
		l.LoginMax = 5
	}
	if l.LoginWindow == 0 {
		l.LoginWindow = 10 * time.Minute
	}
	if l.AvailMax == 0 {
		l.AvailMax = 15
	}
	if l.AvailWindow == 0 {
		l.AvailWindow = 30 * time.Second
	}
	return l
}

// Options carries everything New needs. Redis and Images are optional.
type Options struct {
	Config  config.Config
	DB      *sqlx.DB
	Gateway services.Gateway
	Images  storage.ImageStore
	Redis   *cache.RedisClient
	Limits  Limits
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	if code >= fiber.StatusInternalServerError {
		applog.Error(c, "server.error", err, nil)
		return handlers.Fail(c, code, "INTERNAL_ERROR", "Something went wrong. Please try again.")
	}
	return handlers.Fail(c, code, strings.ToUpper(strings.ReplaceAll(nethttp.StatusText(code), " ", "_")), fe.Message)
}

// New builds the application with all middleware and routes.
func New(o Options) *fiber.App {
	lim := o.Limits.withDefaults()
	cfg := o.Config

	views, err := fs.Sub(viewsFS, "views")
	if err != nil {
		panic(err)
	}
	engine := html.NewFileSystem(nethttp.FS(views), ".html")

	app := fiber.New(fiber.Config{
		Views:        engine,
		BodyLimit:    bodyLimit,
		ErrorHandler: errorHandler,
	})

	var limiterStore, csrfStore fiber.Storage
	if o.Redis != nil {
		limiterStore = cache.NewLimiterStorage(o.Redis, "storefront:limiter:")
		csrfStore = cache.NewLimiterStorage(o.Redis, "storefront:csrf:")
	}

	deps := handlers.NewDeps(o.DB, cfg, o.Gateway, o.Images)

	// ---------- Middlewares ----------
	app.Use(requestid.New())
	app.Use(logger.New(logger.Config{
		Format: "${time} ${status} ${method} ${path} ${latency} req_id=${locals:requestid}\n",
		Output: zlog.Logger,
	}))
	app.Use(helmet.New())
	app.Use(handlers.Authenticate(deps.Auth))
	app.Use(limiter.New(limiter.Config{
		Max:        lim.GlobalMax,
		Expiration: time.Minute,
		Storage:    limiterStore,
		Next: func(c *fiber.Ctx) bool {
			p := c.Path()
			return strings.HasPrefix(p, "/media/") || p == webhookPath || p == "/healthz"
		},
		LimitReached: func(c *fiber.Ctx) error {
			applog.Security(c, "rate.global.hit", nil)
			return handlers.Fail(c, fiber.StatusTooManyRequests, "RATE_LIMITED", "Too many requests, retry soon")
		},
	}))
	app.Use(csrf.New(csrf.Config{
		KeyLookup:      "header:X-CSRF-Token",
		CookieName:     "csrf_",
		CookieSameSite: "Lax",
		CookieSecure:   cfg.CookieSecure,
		Storage:        csrfStore,
		// Only cookie sessions carry ambient credentials.
		Next: func(c *fiber.Ctx) bool {
			if bearer, _ := c.Locals(handlers.BearerLocal).(bool); bearer {
				return true
			}
			return c.Path() == webhookPath || c.Cookies("sid") == ""
		},
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			applog.Security(c, "csrf.fail", nil)
			return handlers.Fail(c, fiber.StatusForbidden, "CSRF_FAILED", "Security check failed. Please refresh and try again.")
		},
	}))

	// ---------- Static media ----------
	if _, onDisk := o.Images.(*storage.DiskStore); onDisk || o.Images == nil {
		mountMedia(app, cfg.MediaDir)
	}

	// ---------- API ----------
	api := app.Group("/api")

	auth := api.Group("/auth")
	auth.Post("/signup", deps.AuthHandler.Signup)
	auth.Post("/login", limiter.New(limiter.Config{
		Max:        lim.LoginMax,
		Expiration: lim.LoginWindow,
		Storage:    limiterStore,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP() + "|login"
		},
		LimitReached: func(c *fiber.Ctx) error {
			applog.Security(c, "rate.login.hit", nil)
			return handlers.Fail(c, fiber.StatusTooManyRequests, "RATE_LIMITED", "Too many attempts. Please try again later.")
		},
	}), deps.AuthHandler.Login)
	auth.Post("/logout", deps.AuthHandler.Logout)
	auth.Get("/session", deps.AuthHandler.Session)

	api.Get("/products", deps.ProductHandler.List)
	api.Get("/products/:id", deps.ProductHandler.Detail)
	api.Get("/availability", limiter.New(limiter.Config{
		Max:        lim.AvailMax,
		Expiration: lim.AvailWindow,
		Storage:    limiterStore,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP() + "|avail"
		},
		LimitReached: func(c *fiber.Ctx) error {
			applog.Security(c, "rate.availability.hit", nil)
			return handlers.Fail(c, fiber.StatusTooManyRequests, "RATE_LIMITED", "rate limit exceeded, retry soon")
		},
	}), deps.InventoryHandler.Check)

	cart := api.Group("/cart", handlers.RequireUser())
	cart.Get("/", deps.CartHandler.View)
	cart.Put("/", deps.CartHandler.Replace)
	cart.Post("/add", deps.CartHandler.Add)
	cart.Put("/update", deps.CartHandler.Update)
	cart.Delete("/remove", deps.CartHandler.Remove)

	orders := api.Group("/orders", handlers.RequireUser())
	orders.Post("/", deps.OrderHandler.Create)
	orders.Get("/", deps.OrderHandler.List)
	orders.Get("/:id", deps.OrderHandler.View)

	api.Post("/payments/preference", handlers.RequireUser(), deps.PaymentHandler.Preference)
	app.Post(webhookPath, deps.PaymentHandler.Webhook)

	user := api.Group("/user", handlers.RequireUser())
	user.Get("/profile", deps.UserHandler.Profile)
	user.Put("/profile", deps.UserHandler.UpdateProfile)
	user.Put("/password", deps.UserHandler.ChangePassword)
	user.Get("/orders", deps.UserHandler.ListOrders)
	user.Post("/avatar", deps.UserHandler.UploadAvatar)

	admin := api.Group("/admin", handlers.RequireAdmin())
	admin.Get("/products", deps.AdminHandler.ListProducts)
	admin.Get("/products/:id", deps.AdminHandler.GetProduct)
	admin.Post("/products", deps.AdminHandler.CreateProduct)
	admin.Put("/products/:id", deps.AdminHandler.UpdateProduct)
	admin.Delete("/products/:id", deps.AdminHandler.DeleteProduct)
	admin.Put("/inventory", deps.AdminHandler.UpdateInventory)
	admin.Get("/orders", deps.AdminHandler.ListOrders)
	admin.Get("/users", deps.AdminHandler.ListUsers)
	admin.Get("/users/:id", deps.AdminHandler.GetUser)
	admin.Post("/users", deps.AdminHandler.CreateUser)
	admin.Put("/users/:id", deps.AdminHandler.UpdateUser)
	admin.Delete("/users/:id", deps.AdminHandler.DeleteUser)

	// ---------- Gateway return pages ----------
	for _, kind := range []string{"success", "pending", "failure"} {
		app.Get("/checkout/"+kind, deps.PageHandler.CheckoutResult(kind))
	}

	// Health & 404
	app.Get("/healthz", func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()
		if err := o.DB.PingContext(ctx); err != nil {
			applog.Error(c, "health.db.fail", err, nil)
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"ok": false})
		}
		return c.JSON(fiber.Map{"ok": true})
	})
	app.Use(func(c *fiber.Ctx) error {
		return handlers.Fail(c, fiber.StatusNotFound, "NOT_FOUND", "Page not found")
	})

	return app
}

// mountMedia serves uploaded files from dir, refusing traversal attempts.
func mountMedia(app *fiber.App, dir string) {
	if dir == "" {
		return
	}
	if !filepath.IsAbs(dir) {
		if abs, err := filepath.Abs(dir); err == nil {
			dir = abs
		}
	}
	zlog.Info().Str("dir", dir).Msg("serving /media")
	app.Get("/media/*", func(c *fiber.Ctx) error {
		path := c.Params("*")
		rawLower := strings.ToLower(path)
		if strings.Contains(rawLower, "..") || strings.Contains(rawLower, "%2e") || strings.Contains(rawLower, "\x00") {
			applog.Security(c, "media.traversal.block", map[string]any{"path": path})
			return c.SendStatus(fiber.StatusNotFound)
		}
		clean := filepath.Clean(path)
		if clean == "." || strings.Contains(clean, "..") || filepath.IsAbs(clean) {
			applog.Security(c, "media.traversal.block", map[string]any{"path": path})
			return c.SendStatus(fiber.StatusNotFound)
		}
		return c.SendFile(filepath.Join(dir, clean), true)
	})
}
