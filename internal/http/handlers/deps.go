package handlers

import (
	"github.com/jmoiron/sqlx"

	"storefront/internal/config"
	"storefront/internal/repos"
	"storefront/internal/services"
	"storefront/internal/storage"
)

type Deps struct {
	Auth             *services.AuthService
	AuthHandler      *AuthHandler
	ProductHandler   *ProductHandler
	InventoryHandler *InventoryHandler
	CartHandler      *CartHandler
	OrderHandler     *OrderHandler
	PaymentHandler   *PaymentHandler
	UserHandler      *UserHandler
	AdminHandler     *AdminHandler
	PageHandler      *PageHandler
}

// NewDeps wires repositories, services and handlers. images may be nil, in
// which case uploads are rejected.
func NewDeps(db *sqlx.DB, cfg config.Config, gw services.Gateway, images storage.ImageStore) *Deps {
	userRepo := repos.NewUserRepo(db)
	prodRepo := repos.NewProductRepo(db)
	invRepo := repos.NewInventoryRepo(db)
	cartRepo := repos.NewCartRepo(db)
	orderRepo := repos.NewOrderRepo(db)

	authSvc := services.NewAuthService(userRepo, cfg.JWTSecret, cfg.TokenTTL)
	catalogSvc := services.NewCatalogService(prodRepo)
	invSvc := services.NewInventoryService(invRepo)
	cartSvc := services.NewCartService(cartRepo, prodRepo)
	orderSvc := services.NewOrderService(orderRepo, prodRepo)
	paySvc := services.NewPaymentService(orderRepo, invRepo, cartSvc, gw, cfg.SiteURL, cfg.Currency)
	prodAdmin := services.NewProductAdminService(prodRepo, images)
	userAdmin := services.NewUserAdminService(userRepo, images)

	return &Deps{
		Auth:             authSvc,
		AuthHandler:      &AuthHandler{Auth: authSvc, CookieSecure: cfg.CookieSecure},
		ProductHandler:   &ProductHandler{Catalog: catalogSvc},
		InventoryHandler: &InventoryHandler{Inv: invSvc},
		CartHandler:      &CartHandler{Cart: cartSvc},
		OrderHandler:     &OrderHandler{Order: orderSvc},
		PaymentHandler:   &PaymentHandler{Payments: paySvc, WebhookSecret: cfg.MercadoPago.WebhookSecret},
		UserHandler:      &UserHandler{Auth: authSvc, Users: userAdmin, Orders: orderSvc},
		AdminHandler:     &AdminHandler{Products: prodAdmin, Users: userAdmin, Orders: orderSvc, Inventory: invSvc},
		PageHandler:      &PageHandler{},
	}
}
