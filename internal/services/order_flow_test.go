package services_test

import (
	"context"
	"errors"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/domain"
	"storefront/internal/repos"
	"storefront/internal/services"
	"storefront/pkg/mercadopago"
)

type flow struct {
	db      *sqlx.DB
	gw      *fakeGateway
	cart    *services.CartService
	orders  *services.OrderService
	payment *services.PaymentService
	inv     *repos.InventoryRepo
	users   *repos.UserRepo
}

func newFlow(t *testing.T) flow {
	db := memdb(t)
	gw := newFakeGateway()
	prodRepo := repos.NewProductRepo(db)
	cartRepo := repos.NewCartRepo(db)
	orderRepo := repos.NewOrderRepo(db)
	invRepo := repos.NewInventoryRepo(db)
	cart := services.NewCartService(cartRepo, prodRepo)
	return flow{
		db:      db,
		gw:      gw,
		cart:    cart,
		orders:  services.NewOrderService(orderRepo, prodRepo),
		payment: services.NewPaymentService(orderRepo, invRepo, cart, gw, "https://shop.example/", "COP"),
		inv:     invRepo,
		users:   repos.NewUserRepo(db),
	}
}

func (f flow) user(t *testing.T, id string) *domain.User {
	u, err := f.users.ByID(id)
	require.NoError(t, err)
	return u
}

func (f flow) stock(t *testing.T, id string) int {
	n, err := f.inv.Stock(id)
	require.NoError(t, err)
	return n
}

func TestOrderFlow_CartToPaid(t *testing.T) {
	f := newFlow(t)
	ctx := context.Background()
	alice := f.user(t, "u-alice")

	_, err := f.cart.Add(alice.ID, "p-headphones", 2)
	require.NoError(t, err)
	cv, err := f.cart.Add(alice.ID, "p-keyboard", 1)
	require.NoError(t, err)

	lines := make([]domain.OrderLine, 0, len(cv.Items))
	for _, it := range cv.Items {
		lines = append(lines, domain.OrderLine{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	o, err := f.orders.Create(alice.ID, lines)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderPending, o.Status)
	assert.True(t, o.Total.Equal(decimal.NewFromInt(2*249900+389900)))
	assert.Len(t, o.Items, 2)

	pref, err := f.payment.CreatePreference(ctx, alice, o.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://mp.example/init/pref-1", pref.InitPoint)
	require.Len(t, f.gw.prefs, 1)
	req := f.gw.prefs[0]
	assert.Equal(t, o.ID, req.Metadata["order_id"])
	assert.Equal(t, "https://shop.example/checkout/success", req.BackURLs.Success)
	assert.Equal(t, "https://shop.example/api/payments/webhook", req.NotificationURL)
	assert.Equal(t, "approved", req.AutoReturn)
	assert.Equal(t, "COP", req.Items[0].CurrencyID)

	got, err := f.orders.Get(alice, o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderPendingPayment, got.Status)

	f.gw.setPayment("pay-1", mercadopago.StatusApproved, o.ID)
	out, err := f.payment.HandleNotification(ctx, mercadopago.ActionPaymentUpdated, "pay-1")
	require.NoError(t, err)
	assert.Equal(t, services.OutcomeConfirmed, out)

	got, err = f.orders.Get(alice, o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderPaid, got.Status)
	require.NotNil(t, got.PaymentID)
	assert.Equal(t, "pay-1", *got.PaymentID)

	assert.Equal(t, 6, f.stock(t, "p-headphones"))
	assert.Equal(t, 2, f.stock(t, "p-keyboard"))

	after, err := f.cart.View(alice.ID)
	require.NoError(t, err)
	assert.Empty(t, after.Items)

	// Redelivery is a no-op.
	out, err = f.payment.HandleNotification(ctx, mercadopago.ActionPaymentCreated, "pay-1")
	require.NoError(t, err)
	assert.Equal(t, services.OutcomeAlreadyProcessed, out)
	assert.Equal(t, 6, f.stock(t, "p-headphones"))
}

func TestOrderFlow_SequentialWebhooksNeverDriveStockNegative(t *testing.T) {
	f := newFlow(t)
	ctx := context.Background()

	// Two buyers each order 2 keyboards; only 3 are in stock.
	var ids []string
	for i, uid := range []string{"u-alice", "u-bob"} {
		o, err := f.orders.Create(uid, []domain.OrderLine{{ProductID: "p-keyboard", Quantity: 2}})
		require.NoError(t, err)
		ids = append(ids, o.ID)
		f.gw.setPayment([]string{"pay-a", "pay-b"}[i], mercadopago.StatusApproved, o.ID)
	}

	for _, pid := range []string{"pay-a", "pay-b"} {
		out, err := f.payment.HandleNotification(ctx, mercadopago.ActionPaymentUpdated, pid)
		require.NoError(t, err)
		assert.Equal(t, services.OutcomeConfirmed, out)
	}

	assert.Equal(t, 1, f.stock(t, "p-keyboard"))
	for _, id := range ids {
		o, err := f.orders.Get(f.user(t, "u-admin"), id)
		require.NoError(t, err)
		assert.Equal(t, domain.OrderPaid, o.Status)
	}
}

func TestOrderFlow_NonApprovedPayments(t *testing.T) {
	f := newFlow(t)
	ctx := context.Background()
	alice := f.user(t, "u-alice")

	o, err := f.orders.Create(alice.ID, []domain.OrderLine{{ProductID: "p-webcam", Quantity: 1}})
	require.NoError(t, err)

	f.gw.setPayment("pay-r", mercadopago.StatusRejected, o.ID)
	out, err := f.payment.HandleNotification(ctx, mercadopago.ActionPaymentUpdated, "pay-r")
	require.NoError(t, err)
	assert.Equal(t, services.OutcomeNotApproved, out)

	got, err := f.orders.Get(alice, o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderFailed, got.Status)
	assert.Equal(t, 12, f.stock(t, "p-webcam"))

	f.gw.setPayment("pay-ok", mercadopago.StatusApproved, o.ID)
	_, err = f.payment.HandleNotification(ctx, mercadopago.ActionPaymentUpdated, "pay-ok")
	require.NoError(t, err)

	// A late pending notification does not undo the payment.
	f.gw.setPayment("pay-late", mercadopago.StatusInProcess, o.ID)
	out, err = f.payment.HandleNotification(ctx, mercadopago.ActionPaymentUpdated, "pay-late")
	require.NoError(t, err)
	assert.Equal(t, services.OutcomeNotApproved, out)
	got, err = f.orders.Get(alice, o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderPaid, got.Status)
}

func TestOrderFlow_WebhookEdgeCases(t *testing.T) {
	f := newFlow(t)
	ctx := context.Background()

	out, err := f.payment.HandleNotification(ctx, "merchant_order.updated", "x")
	require.NoError(t, err)
	assert.Equal(t, services.OutcomeIgnored, out)

	_, err = f.payment.HandleNotification(ctx, mercadopago.ActionPaymentCreated, "")
	assert.ErrorIs(t, err, services.ErrInvalidInput)

	_, err = f.payment.HandleNotification(ctx, mercadopago.ActionPaymentCreated, "unknown")
	assert.ErrorIs(t, err, services.ErrPaymentGateway)

	f.gw.setPayment("pay-noref", mercadopago.StatusApproved, "")
	_, err = f.payment.HandleNotification(ctx, mercadopago.ActionPaymentCreated, "pay-noref")
	assert.ErrorIs(t, err, services.ErrInvalidInput)

	f.gw.setPayment("pay-ghost", mercadopago.StatusApproved, "no-such-order")
	_, err = f.payment.HandleNotification(ctx, mercadopago.ActionPaymentCreated, "pay-ghost")
	assert.ErrorIs(t, err, services.ErrNotFound)
}

func TestOrderService_CreateValidation(t *testing.T) {
	f := newFlow(t)

	_, err := f.orders.Create("u-alice", nil)
	assert.ErrorIs(t, err, services.ErrEmptyOrder)
	_, err = f.orders.Create("u-alice", []domain.OrderLine{{ProductID: "p-webcam", Quantity: 0}})
	assert.ErrorIs(t, err, services.ErrInvalidInput)
	_, err = f.orders.Create("u-alice", []domain.OrderLine{{ProductID: "p-nope", Quantity: 1}})
	assert.ErrorIs(t, err, services.ErrNotFound)
}

func TestOrderService_DuplicateRequestsCreateTwoOrders(t *testing.T) {
	f := newFlow(t)
	lines := []domain.OrderLine{{ProductID: "p-webcam", Quantity: 1}}

	a, err := f.orders.Create("u-alice", lines)
	require.NoError(t, err)
	b, err := f.orders.Create("u-alice", lines)
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)

	list, err := f.orders.ListForUser("u-alice")
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestPaymentService_PreferenceOwnershipAndGatewayFailure(t *testing.T) {
	f := newFlow(t)
	ctx := context.Background()
	alice := f.user(t, "u-alice")
	bob := f.user(t, "u-bob")

	o, err := f.orders.Create(alice.ID, []domain.OrderLine{{ProductID: "p-webcam", Quantity: 1}})
	require.NoError(t, err)

	_, err = f.payment.CreatePreference(ctx, bob, o.ID)
	assert.ErrorIs(t, err, services.ErrForbidden)
	_, err = f.orders.Get(bob, o.ID)
	assert.ErrorIs(t, err, services.ErrForbidden)
	_, err = f.payment.CreatePreference(ctx, alice, "missing")
	assert.ErrorIs(t, err, services.ErrNotFound)

	f.gw.prefErr = errors.New("boom")
	_, err = f.payment.CreatePreference(ctx, alice, o.ID)
	assert.ErrorIs(t, err, services.ErrPaymentGateway)

	// The order stays pending when the gateway call fails.
	got, err := f.orders.Get(alice, o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderPending, got.Status)
}

func TestPaymentService_PreferenceNeverDowngradesPaidOrder(t *testing.T) {
	f := newFlow(t)
	ctx := context.Background()
	alice := f.user(t, "u-alice")

	o, err := f.orders.Create(alice.ID, []domain.OrderLine{{ProductID: "p-webcam", Quantity: 1}})
	require.NoError(t, err)

	// The approval webhook lands while the preference call is in flight.
	f.gw.setPayment("pay-race", mercadopago.StatusApproved, o.ID)
	f.gw.during = func() {
		out, err := f.payment.HandleNotification(ctx, mercadopago.ActionPaymentUpdated, "pay-race")
		require.NoError(t, err)
		assert.Equal(t, services.OutcomeConfirmed, out)
	}
	_, err = f.payment.CreatePreference(ctx, alice, o.ID)
	assert.ErrorIs(t, err, services.ErrInvalidInput)
	f.gw.during = nil

	got, err := f.orders.Get(alice, o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderPaid, got.Status)
	assert.Equal(t, 11, f.stock(t, "p-webcam"))

	out, err := f.payment.HandleNotification(ctx, mercadopago.ActionPaymentUpdated, "pay-race")
	require.NoError(t, err)
	assert.Equal(t, services.OutcomeAlreadyProcessed, out)
	assert.Equal(t, 11, f.stock(t, "p-webcam"))
}
