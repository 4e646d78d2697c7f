// Package checkout runs the client side of a purchase: confirm the session,
// create the order, ask the server for a payment preference and hand the
// gateway URL to the caller.
//
// The steps are plain sequential calls. Nothing is retried and nothing is
// undone: an order created before a failing preference call stays pending,
// and running checkout twice creates two orders.
package checkout

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"storefront/internal/apiclient"
	"storefront/internal/domain"
)

// Step names reported in StepError.
const (
	StepSession    = "session"
	StepOrder      = "create_order"
	StepPreference = "create_preference"
	StepRedirect   = "redirect"
)

var ErrEmptyCart = errors.New("cart is empty")

// API is the part of the storefront client checkout needs.
type API interface {
	Session(ctx context.Context) (*domain.User, error)
	CreateOrder(ctx context.Context, total decimal.Decimal, lines []domain.OrderLine) (domain.Order, error)
	CreatePreference(ctx context.Context, orderID string) (apiclient.Preference, error)
}

// StepError wraps the raw error of the step that aborted the run.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string { return fmt.Sprintf("checkout %s: %v", e.Step, e.Err) }
func (e *StepError) Unwrap() error { return e.Err }

type Result struct {
	// Order is set as soon as the server created it, even when a later step failed.
	Order      *domain.Order
	Preference *apiclient.Preference
}

type Orchestrator struct {
	API API
	// Open sends the user to the gateway. Nil means the caller redirects itself.
	Open func(ctx context.Context, url string) error
}

// Run checks out items. On failure the returned Result still carries whatever
// the server already created.
func (o *Orchestrator) Run(ctx context.Context, items []domain.CartItem) (Result, error) {
	var res Result
	if len(items) == 0 {
		return res, ErrEmptyCart
	}

	user, err := o.API.Session(ctx)
	if err == nil && user == nil {
		err = errors.New("not signed in")
	}
	if err != nil {
		return res, o.abort(StepSession, err, res)
	}

	lines := make([]domain.OrderLine, 0, len(items))
	for _, it := range items {
		lines = append(lines, domain.OrderLine{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	order, err := o.API.CreateOrder(ctx, domain.CartTotal(items), lines)
	if err != nil {
		return res, o.abort(StepOrder, err, res)
	}
	res.Order = &order
	log.Info().Str("order_id", order.ID).Str("user_id", user.ID).Str("total", order.Total.StringFixed(2)).Msg("checkout order created")

	pref, err := o.API.CreatePreference(ctx, order.ID)
	if err != nil {
		return res, o.abort(StepPreference, err, res)
	}
	res.Preference = &pref

	if o.Open != nil {
		if err := o.Open(ctx, pref.InitPoint); err != nil {
			return res, o.abort(StepRedirect, err, res)
		}
	}
	return res, nil
}

func (o *Orchestrator) abort(step string, err error, res Result) error {
	ev := log.Error().Err(err).Str("step", step)
	if res.Order != nil {
		ev = ev.Str("order_id", res.Order.ID)
	}
	ev.Msg("checkout aborted")
	return &StepError{Step: step, Err: err}
}
