package payment

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/storefront-backend/internal/domain/cart"
	"github.com/your-org/storefront-backend/internal/domain/order"
	"github.com/your-org/storefront-backend/internal/pkg/errs"
)

type mockCartStore struct {
	carts   map[string]*cart.Cart
	saved   []*cart.Cart
	findErr error
}

func (m *mockCartStore) FindByGatewayRef(_ context.Context, ref string) (*cart.Cart, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	c, ok := m.carts[ref]
	if !ok {
		return nil, errs.NotFound("no cart matches gateway reference %s", ref)
	}
	return c, nil
}

func (m *mockCartStore) Save(_ context.Context, c *cart.Cart) error {
	m.saved = append(m.saved, c)
	return nil
}

type mockOrderStore struct {
	existing    *order.Order
	byIntent    *order.Order
	created     *order.Order
	createErr   error
	refunds     []int64
	refundIDs   []string
	nextOrderID uint
}

func (m *mockOrderStore) CreateFromCart(_ context.Context, c *cart.Cart, pricing order.Pricing, payment order.PaymentInfo, shipping order.ShippingSelection, currency string) (*order.Order, error) {
	if m.createErr != nil {
		return nil, m.createErr
	}
	id := m.nextOrderID
	if id == 0 {
		id = 1
	}
	m.created = &order.Order{
		ID:             id,
		OrderNumber:    "ORD-TEST-00001",
		CartID:         c.ID,
		UserID:         c.UserID,
		SubtotalAmount: pricing.Subtotal,
		ShippingAmount: pricing.Shipping,
		TaxAmount:      pricing.Tax,
		DiscountAmount: pricing.Discount,
		TotalAmount:    pricing.Total,
		Payment:        payment,
	}
	return m.created, nil
}

func (m *mockOrderStore) FindByCartID(_ context.Context, cartID uint) (*order.Order, error) {
	return m.existing, nil
}

func (m *mockOrderStore) FindByPaymentIntent(_ context.Context, paymentIntentID string) (*order.Order, error) {
	if m.byIntent == nil {
		return nil, errs.NotFound("order for payment intent %s does not exist", paymentIntentID)
	}
	return m.byIntent, nil
}

func (m *mockOrderStore) RecordRefund(_ context.Context, o *order.Order, amount int64, reason, gatewayRefundID string) error {
	m.refunds = append(m.refunds, amount)
	m.refundIDs = append(m.refundIDs, gatewayRefundID)
	o.TotalRefunded += amount
	return nil
}

type mockStock struct {
	committed []uint
	released  []uint
	commitErr error
}

func (m *mockStock) CommitCartStock(_ context.Context, c *cart.Cart) error {
	if m.commitErr != nil {
		return m.commitErr
	}
	m.committed = append(m.committed, c.ID)
	return nil
}

func (m *mockStock) ReleaseCartStock(_ context.Context, c *cart.Cart) error {
	m.released = append(m.released, c.ID)
	return nil
}

type mockLedger struct {
	seen      map[string]bool
	forgotten []string
	err       error
}

func (m *mockLedger) MarkProcessed(_ context.Context, eventID, eventType string) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	if m.seen == nil {
		m.seen = map[string]bool{}
	}
	if m.seen[eventID] {
		return false, nil
	}
	m.seen[eventID] = true
	return true, nil
}

func (m *mockLedger) Forget(_ context.Context, eventID string) error {
	m.forgotten = append(m.forgotten, eventID)
	delete(m.seen, eventID)
	return nil
}

type mockCoupons struct {
	consumed []string
}

func (m *mockCoupons) ConsumeCode(_ context.Context, code string, orderID uint, userID *uint, amount int64) error {
	m.consumed = append(m.consumed, code)
	return nil
}

type mockNotifier struct {
	confirmations []uint
}

func (m *mockNotifier) SendOrderConfirmation(_ context.Context, o *order.Order) error {
	m.confirmations = append(m.confirmations, o.ID)
	return nil
}

type fixture struct {
	carts    *mockCartStore
	orders   *mockOrderStore
	stock    *mockStock
	ledger   *mockLedger
	coupons  *mockCoupons
	notifier *mockNotifier
	r        *Reconciler
}

func newFixture() *fixture {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	f := &fixture{
		carts:    &mockCartStore{carts: map[string]*cart.Cart{}},
		orders:   &mockOrderStore{},
		stock:    &mockStock{},
		ledger:   &mockLedger{},
		coupons:  &mockCoupons{},
		notifier: &mockNotifier{},
	}
	f.r = NewReconciler(f.carts, f.orders, f.stock, f.ledger, f.coupons, f.notifier, "usd", logger)
	return f
}

func checkoutCart() *cart.Cart {
	c := cart.NewCart("sess-1", nil)
	c.ID = 10
	c.Email = "buyer@example.com"
	_ = c.AddItem(cart.ProductSnapshot{ProductID: 1, SKU: "MOUSE-001", Name: "Mouse", UnitPrice: 4999}, 2)
	_ = c.ApplyCoupon(cart.AppliedCoupon{Code: "SAVE10", DiscountAmount: 1000})
	c.CheckoutSessionID = "cs_1"
	c.PaymentIntentID = "pi_1"
	c.CheckoutShippingAmount = 999
	c.CheckoutTaxAmount = 742
	c.CheckoutShippingMethod = "standard"
	return c
}

func eventJSON(id, typ string, object interface{}) *Event {
	raw, _ := json.Marshal(object)
	e := &Event{ID: id, Type: typ}
	e.Data.Object = raw
	return e
}

func TestHandleEvent_SessionCompleted_CreatesOrder(t *testing.T) {
	f := newFixture()
	c := checkoutCart()
	f.carts.carts["cs_1"] = c

	event := eventJSON("evt_1", EventSessionCompleted, SessionObject{
		ID: "cs_1", PaymentIntentID: "pi_1", AmountTotal: c.Totals.Total + 999 + 742,
	})

	require.NoError(t, f.r.HandleEvent(context.Background(), event))

	require.NotNil(t, f.orders.created)
	assert.Equal(t, uint(10), f.orders.created.CartID)
	assert.Equal(t, c.Totals.Total+999+742, f.orders.created.TotalAmount)
	assert.Equal(t, []uint{10}, f.stock.committed)
	assert.Equal(t, cart.CartStatusConverted, c.Status)
	assert.Equal(t, []string{"SAVE10"}, f.coupons.consumed)
	assert.Equal(t, []uint{1}, f.notifier.confirmations)
}

func TestHandleEvent_DuplicateDelivery(t *testing.T) {
	f := newFixture()
	c := checkoutCart()
	f.carts.carts["cs_1"] = c

	event := eventJSON("evt_1", EventSessionCompleted, SessionObject{ID: "cs_1", PaymentIntentID: "pi_1"})

	require.NoError(t, f.r.HandleEvent(context.Background(), event))
	require.NoError(t, f.r.HandleEvent(context.Background(), event))

	// Second delivery stops at the ledger.
	assert.Len(t, f.stock.committed, 1)
	assert.Len(t, f.notifier.confirmations, 1)
}

func TestHandleEvent_SessionCompleted_BackfillsPaymentIntent(t *testing.T) {
	f := newFixture()
	c := checkoutCart()
	c.PaymentIntentID = ""
	f.carts.carts["cs_1"] = c

	event := eventJSON("evt_1", EventSessionCompleted, SessionObject{ID: "cs_1", PaymentIntentID: "pi_new"})

	require.NoError(t, f.r.HandleEvent(context.Background(), event))

	assert.Equal(t, "pi_new", c.PaymentIntentID)
}

func TestHandleEvent_PaymentSucceeded_UnknownCart(t *testing.T) {
	f := newFixture()

	event := eventJSON("evt_1", EventPaymentSucceeded, PaymentIntentObject{ID: "pi_ghost", Amount: 100})

	require.NoError(t, f.r.HandleEvent(context.Background(), event))
	assert.Nil(t, f.orders.created)
	assert.Empty(t, f.stock.committed)
}

func TestHandleEvent_AlreadyConvertedCart(t *testing.T) {
	f := newFixture()
	c := checkoutCart()
	require.NoError(t, c.MarkConverted(55))
	f.carts.carts["pi_1"] = c

	event := eventJSON("evt_1", EventPaymentSucceeded, PaymentIntentObject{ID: "pi_1"})

	require.NoError(t, f.r.HandleEvent(context.Background(), event))
	assert.Nil(t, f.orders.created)
	assert.Empty(t, f.stock.committed)
}

func TestHandleEvent_ExistingOrderForCart(t *testing.T) {
	f := newFixture()
	c := checkoutCart()
	f.carts.carts["pi_1"] = c
	f.orders.existing = &order.Order{ID: 77, CartID: c.ID}

	event := eventJSON("evt_1", EventPaymentSucceeded, PaymentIntentObject{ID: "pi_1"})

	require.NoError(t, f.r.HandleEvent(context.Background(), event))
	assert.Nil(t, f.orders.created)
	assert.Empty(t, f.stock.committed)
}

func TestHandleEvent_ConcurrentCreateConflict(t *testing.T) {
	f := newFixture()
	c := checkoutCart()
	f.carts.carts["pi_1"] = c
	f.orders.createErr = errs.Conflict("order already exists for cart %d", c.ID)

	event := eventJSON("evt_1", EventPaymentSucceeded, PaymentIntentObject{ID: "pi_1"})

	require.NoError(t, f.r.HandleEvent(context.Background(), event))
	assert.Empty(t, f.notifier.confirmations)
}

func TestHandleEvent_CommitFailurePropagates(t *testing.T) {
	f := newFixture()
	c := checkoutCart()
	f.carts.carts["pi_1"] = c
	f.stock.commitErr = errors.New("stock row gone")

	event := eventJSON("evt_1", EventPaymentSucceeded, PaymentIntentObject{ID: "pi_1"})

	err := f.r.HandleEvent(context.Background(), event)
	assert.ErrorContains(t, err, "failed to commit stock")
	assert.Nil(t, f.orders.created)
	// The ledger entry is rolled back so the redelivery is not swallowed.
	assert.Equal(t, []string{"evt_1"}, f.ledger.forgotten)
}

func TestHandleEvent_RedeliveryAfterTransientFailure(t *testing.T) {
	f := newFixture()
	c := checkoutCart()
	f.carts.carts["cs_1"] = c
	f.stock.commitErr = errors.New("deadlock detected")

	event := eventJSON("evt_1", EventSessionCompleted, SessionObject{ID: "cs_1", PaymentIntentID: "pi_1"})

	require.Error(t, f.r.HandleEvent(context.Background(), event))
	require.Nil(t, f.orders.created)

	// The gateway retries the same event once the transient fault clears.
	f.stock.commitErr = nil
	require.NoError(t, f.r.HandleEvent(context.Background(), event))

	require.NotNil(t, f.orders.created)
	assert.Equal(t, uint(10), f.orders.created.CartID)
	assert.Equal(t, []uint{10}, f.stock.committed)
	assert.Equal(t, []uint{1}, f.notifier.confirmations)
}

func TestHandleEvent_PaymentFailed_ReleasesHolds(t *testing.T) {
	f := newFixture()
	c := checkoutCart()
	f.carts.carts["pi_1"] = c

	event := eventJSON("evt_1", EventPaymentFailed, PaymentIntentObject{ID: "pi_1"})

	require.NoError(t, f.r.HandleEvent(context.Background(), event))

	assert.Equal(t, []uint{10}, f.stock.released)
	// Cart stays active so the customer can retry.
	assert.Equal(t, cart.CartStatusActive, c.Status)
}

func TestHandleEvent_SessionExpired_AbandonsCart(t *testing.T) {
	f := newFixture()
	c := checkoutCart()
	f.carts.carts["cs_1"] = c

	event := eventJSON("evt_1", EventSessionExpired, SessionObject{ID: "cs_1"})

	require.NoError(t, f.r.HandleEvent(context.Background(), event))

	assert.Equal(t, []uint{10}, f.stock.released)
	assert.Equal(t, cart.CartStatusAbandoned, c.Status)
}

func TestHandleEvent_ChargeRefunded_RecordsDelta(t *testing.T) {
	f := newFixture()
	f.orders.byIntent = &order.Order{ID: 5, TotalAmount: 10000, TotalRefunded: 2000}

	charge := ChargeObject{ID: "ch_1", PaymentIntentID: "pi_1", AmountRefunded: 5000}
	charge.Refunds.Data = []struct {
		ID     string `json:"id"`
		Amount int64  `json:"amount"`
		Reason string `json:"reason"`
	}{{ID: "re_9", Amount: 3000, Reason: "requested_by_customer"}}

	event := eventJSON("evt_1", EventChargeRefunded, charge)

	require.NoError(t, f.r.HandleEvent(context.Background(), event))

	assert.Equal(t, []int64{3000}, f.orders.refunds)
	assert.Equal(t, []string{"re_9"}, f.orders.refundIDs)
}

func TestHandleEvent_ChargeRefunded_NoNewDelta(t *testing.T) {
	f := newFixture()
	f.orders.byIntent = &order.Order{ID: 5, TotalRefunded: 5000}

	event := eventJSON("evt_1", EventChargeRefunded, ChargeObject{ID: "ch_1", PaymentIntentID: "pi_1", AmountRefunded: 5000})

	require.NoError(t, f.r.HandleEvent(context.Background(), event))
	assert.Empty(t, f.orders.refunds)
}

func TestHandleEvent_ChargeRefunded_UnknownOrder(t *testing.T) {
	f := newFixture()

	event := eventJSON("evt_1", EventChargeRefunded, ChargeObject{ID: "ch_1", PaymentIntentID: "pi_ghost", AmountRefunded: 100})

	require.NoError(t, f.r.HandleEvent(context.Background(), event))
	assert.Empty(t, f.orders.refunds)
}

func TestHandleEvent_UnknownEventType(t *testing.T) {
	f := newFixture()

	event := &Event{ID: "evt_1", Type: "invoice.created"}

	require.NoError(t, f.r.HandleEvent(context.Background(), event))
}

func TestHandleEvent_LedgerError(t *testing.T) {
	f := newFixture()
	f.ledger.err = errors.New("db down")

	event := &Event{ID: "evt_1", Type: EventPaymentSucceeded}

	err := f.r.HandleEvent(context.Background(), event)
	assert.ErrorContains(t, err, "failed to record webhook event")
}
