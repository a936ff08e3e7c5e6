package order

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/storefront-backend/internal/pkg/errs"
)

func paidOrder() *Order {
	return &Order{
		ID:            1,
		OrderNumber:   "ORD-20260301-00001",
		Status:        OrderStatusPaid,
		PaymentStatus: PaymentStatusCompleted,
		TotalAmount:   10000,
	}
}

func TestCanBeCancelled(t *testing.T) {
	assert.True(t, (&Order{Status: OrderStatusPending}).CanBeCancelled())
	assert.True(t, (&Order{Status: OrderStatusProcessing}).CanBeCancelled())
	assert.False(t, (&Order{Status: OrderStatusShipped}).CanBeCancelled())
	assert.False(t, (&Order{Status: OrderStatusCancelled}).CanBeCancelled())
	assert.False(t, (&Order{Status: OrderStatusRefunded}).CanBeCancelled())
}

func TestCanBeRefunded(t *testing.T) {
	assert.True(t, paidOrder().CanBeRefunded())

	pending := &Order{PaymentStatus: PaymentStatusPending, TotalAmount: 10000}
	assert.False(t, pending.CanBeRefunded())

	exhausted := paidOrder()
	exhausted.TotalRefunded = 10000
	assert.False(t, exhausted.CanBeRefunded())

	partial := paidOrder()
	partial.PaymentStatus = PaymentStatusPartiallyRefunded
	partial.TotalRefunded = 4000
	assert.True(t, partial.CanBeRefunded())
}

func TestApplyRefund_Partial(t *testing.T) {
	o := paidOrder()

	require.NoError(t, o.ApplyRefund(4000, "requested_by_customer", "re_1"))

	assert.Equal(t, int64(4000), o.TotalRefunded)
	assert.Equal(t, PaymentStatusPartiallyRefunded, o.PaymentStatus)
	assert.Equal(t, OrderStatusPartiallyRefunded, o.Status)
	require.Len(t, o.Refunds, 1)
	assert.Equal(t, "re_1", o.Refunds[0].GatewayRefundID)
}

func TestApplyRefund_FullAcrossTwoRefunds(t *testing.T) {
	o := paidOrder()

	require.NoError(t, o.ApplyRefund(4000, "", "re_1"))
	require.NoError(t, o.ApplyRefund(6000, "", "re_2"))

	assert.Equal(t, int64(10000), o.TotalRefunded)
	assert.Equal(t, PaymentStatusRefunded, o.PaymentStatus)
	assert.Equal(t, OrderStatusRefunded, o.Status)
	assert.Len(t, o.Refunds, 2)
}

func TestApplyRefund_ExceedsBalance(t *testing.T) {
	o := paidOrder()
	require.NoError(t, o.ApplyRefund(8000, "", "re_1"))

	err := o.ApplyRefund(5000, "", "re_2")

	assert.True(t, errs.IsKind(err, errs.KindValidation))
	assert.Equal(t, int64(8000), o.TotalRefunded)
}

func TestApplyRefund_UnpaidOrder(t *testing.T) {
	o := &Order{OrderNumber: "ORD-X", PaymentStatus: PaymentStatusPending, TotalAmount: 10000}

	err := o.ApplyRefund(1000, "", "re_1")

	assert.True(t, errs.IsKind(err, errs.KindState))
}

func TestApplyRefund_NonPositiveAmount(t *testing.T) {
	o := paidOrder()

	assert.True(t, errs.IsKind(o.ApplyRefund(0, "", "re_1"), errs.KindValidation))
	assert.True(t, errs.IsKind(o.ApplyRefund(-100, "", "re_1"), errs.KindValidation))
}

func TestGenerateOrderNumber(t *testing.T) {
	number := GenerateOrderNumber(42)

	assert.Regexp(t, `^ORD-\d{8}-00042$`, number)
}
