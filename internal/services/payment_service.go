package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"storefront/internal/domain"
	"storefront/internal/repos"
	"storefront/pkg/mercadopago"
)

// Gateway is the part of the payment provider the store talks to.
type Gateway interface {
	CreatePreference(ctx context.Context, req mercadopago.PreferenceRequest) (*mercadopago.Preference, error)
	GetPayment(ctx context.Context, paymentID string) (*mercadopago.Payment, error)
}

// Outcome of a webhook delivery.
type Outcome string

const (
	OutcomeIgnored          Outcome = "ignored"
	OutcomeNotApproved      Outcome = "not_approved"
	OutcomeAlreadyProcessed Outcome = "already_processed"
	OutcomeConfirmed        Outcome = "confirmed"
)

type PaymentService struct {
	Orders   *repos.OrderRepo
	Inv      *repos.InventoryRepo
	Carts    *CartService
	Gateway  Gateway
	SiteURL  string
	Currency string
}

func NewPaymentService(orders *repos.OrderRepo, inv *repos.InventoryRepo, carts *CartService, gw Gateway, siteURL, currency string) *PaymentService {
	if currency == "" {
		currency = "COP"
	}
	return &PaymentService{
		Orders:   orders,
		Inv:      inv,
		Carts:    carts,
		Gateway:  gw,
		SiteURL:  strings.TrimRight(siteURL, "/"),
		Currency: currency,
	}
}

// PreferenceResult is what the client needs to send the buyer to the gateway.
type PreferenceResult struct {
	OrderID      string `json:"order_id"`
	PreferenceID string `json:"preference_id"`
	InitPoint    string `json:"init_point"`
}

// CreatePreference registers the order with the gateway and moves it to
// pending_payment. A gateway failure leaves the order pending.
func (s *PaymentService) CreatePreference(ctx context.Context, u *domain.User, orderID string) (PreferenceResult, error) {
	o, err := s.Orders.Get(orderID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return PreferenceResult{}, ErrNotFound
		}
		return PreferenceResult{}, err
	}
	if u == nil || (!o.OwnedBy(u.ID) && !u.IsAdmin()) {
		return PreferenceResult{}, ErrForbidden
	}
	if o.Status == domain.OrderPaid {
		return PreferenceResult{}, fmt.Errorf("%w: order already paid", ErrInvalidInput)
	}
	if len(o.Items) == 0 {
		return PreferenceResult{}, ErrEmptyOrder
	}

	pref, err := s.Gateway.CreatePreference(ctx, s.buildPreference(o))
	if err != nil {
		return PreferenceResult{}, fmt.Errorf("%w: %v", ErrPaymentGateway, err)
	}
	changed, err := s.Orders.SetPreference(o.ID, pref.ID)
	if err != nil {
		return PreferenceResult{}, err
	}
	if !changed {
		// Approved while the gateway call was in flight.
		log.Info().Str("order_id", o.ID).Msg("order paid during preference, status kept")
		return PreferenceResult{}, fmt.Errorf("%w: order already paid", ErrInvalidInput)
	}
	return PreferenceResult{OrderID: o.ID, PreferenceID: pref.ID, InitPoint: pref.InitPoint}, nil
}

func (s *PaymentService) buildPreference(o domain.Order) mercadopago.PreferenceRequest {
	items := make([]mercadopago.PreferenceItem, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, mercadopago.PreferenceItem{
			ID:         it.ProductID,
			Title:      it.Name,
			UnitPrice:  it.Price.InexactFloat64(),
			Quantity:   it.Quantity,
			CurrencyID: s.Currency,
		})
	}
	req := mercadopago.PreferenceRequest{
		Items: items,
		BackURLs: mercadopago.BackURLs{
			Success: s.SiteURL + "/checkout/success",
			Failure: s.SiteURL + "/checkout/failure",
			Pending: s.SiteURL + "/checkout/pending",
		},
		AutoReturn:        "approved",
		ExternalReference: o.ID,
		Metadata:          map[string]string{"order_id": o.ID},
	}
	// The gateway only delivers notifications to public https endpoints.
	if strings.HasPrefix(s.SiteURL, "https://") {
		req.NotificationURL = s.SiteURL + "/api/payments/webhook"
	}
	return req
}

// HandleNotification processes one webhook delivery. The payload is only a
// trigger: the payment is re-read from the gateway before anything changes.
// Stock decrements, the status change and the cart clear are separate writes.
func (s *PaymentService) HandleNotification(ctx context.Context, action, paymentID string) (Outcome, error) {
	if action != mercadopago.ActionPaymentCreated && action != mercadopago.ActionPaymentUpdated {
		return OutcomeIgnored, nil
	}
	if paymentID == "" {
		return "", fmt.Errorf("%w: missing payment id", ErrInvalidInput)
	}

	p, err := s.Gateway.GetPayment(ctx, paymentID)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrPaymentGateway, err)
	}
	orderID := p.OrderID()
	if orderID == "" {
		return "", fmt.Errorf("%w: payment %s carries no order id", ErrInvalidInput, paymentID)
	}

	logger := log.With().Str("order_id", orderID).Str("payment_id", paymentID).Str("payment_status", p.Status).Logger()

	if p.Status != mercadopago.StatusApproved {
		if status := statusForPayment(p.Status); status != "" {
			if _, err := s.Orders.UpdateStatusUnlessPaid(orderID, status, &paymentID); err != nil {
				return "", err
			}
		}
		logger.Info().Msg("payment not approved")
		return OutcomeNotApproved, nil
	}

	o, err := s.Orders.Get(orderID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", err
	}
	if o.Status == domain.OrderPaid {
		logger.Info().Msg("order already paid, skipping")
		return OutcomeAlreadyProcessed, nil
	}

	for _, it := range o.Items {
		if err := s.Inv.Decrement(it.ProductID, it.Quantity); err != nil {
			logger.Error().Err(err).Str("product_id", it.ProductID).Int("quantity", it.Quantity).Msg("stock decrement failed")
		}
	}

	if err := s.Orders.UpdateStatus(o.ID, domain.OrderPaid, &paymentID); err != nil {
		return "", err
	}

	if o.UserID != nil {
		if err := s.Carts.Clear(*o.UserID); err != nil {
			logger.Error().Err(err).Msg("cart clear failed")
		}
	}
	logger.Info().Msg("payment confirmed")
	return OutcomeConfirmed, nil
}

func statusForPayment(status string) string {
	switch status {
	case mercadopago.StatusRejected, mercadopago.StatusCancelled:
		return domain.OrderFailed
	case mercadopago.StatusPending, mercadopago.StatusInProcess, mercadopago.StatusAuthorized:
		return domain.OrderPendingPayment
	}
	return ""
}
