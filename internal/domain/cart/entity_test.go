package cart

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/storefront-backend/internal/pkg/errs"
)

func laptop() ProductSnapshot {
	return ProductSnapshot{ProductID: 1, SKU: "LAPTOP-001", Name: "Laptop", UnitPrice: 199999, OriginalPrice: 219999}
}

func mouse() ProductSnapshot {
	return ProductSnapshot{ProductID: 2, SKU: "MOUSE-001", Name: "Mouse", UnitPrice: 4999}
}

func TestAddItem_NewProduct(t *testing.T) {
	c := NewCart("sess-1", nil)

	require.NoError(t, c.AddItem(laptop(), 2))

	require.Len(t, c.Items, 1)
	assert.Equal(t, 2, c.Items[0].Quantity)
	assert.Equal(t, int64(399998), c.Totals.Subtotal)
	assert.Equal(t, int64(399998), c.Totals.Total)
	assert.Equal(t, 1, c.Totals.ItemCount)
	assert.Equal(t, 2, c.Totals.TotalQuantity)
}

func TestAddItem_SameProductSumsQuantity(t *testing.T) {
	c := NewCart("sess-1", nil)

	require.NoError(t, c.AddItem(mouse(), 1))
	require.NoError(t, c.AddItem(mouse(), 3))

	require.Len(t, c.Items, 1)
	assert.Equal(t, 4, c.Items[0].Quantity)
	assert.Equal(t, int64(4999*4), c.Totals.Subtotal)
}

func TestAddItem_RepriceOnReAdd(t *testing.T) {
	c := NewCart("sess-1", nil)
	require.NoError(t, c.AddItem(mouse(), 1))

	cheaper := mouse()
	cheaper.UnitPrice = 3999
	require.NoError(t, c.AddItem(cheaper, 1))

	assert.Equal(t, int64(3999), c.Items[0].UnitPrice)
	assert.Equal(t, int64(3999*2), c.Totals.Subtotal)
}

func TestAddItem_RejectsNonPositiveQuantity(t *testing.T) {
	c := NewCart("sess-1", nil)

	err := c.AddItem(mouse(), 0)

	assert.True(t, errs.IsKind(err, errs.KindValidation))
}

func TestUpdateItemQuantity_ZeroRemoves(t *testing.T) {
	c := NewCart("sess-1", nil)
	require.NoError(t, c.AddItem(mouse(), 2))

	require.NoError(t, c.UpdateItemQuantity(2, 0))

	assert.Empty(t, c.Items)
	assert.Equal(t, int64(0), c.Totals.Total)
}

func TestUpdateItemQuantity_UnknownProduct(t *testing.T) {
	c := NewCart("sess-1", nil)

	err := c.UpdateItemQuantity(99, 1)

	assert.True(t, errs.IsKind(err, errs.KindNotFound))
}

func TestCalculateTotals_SavingsFromOriginalPrice(t *testing.T) {
	c := NewCart("sess-1", nil)
	require.NoError(t, c.AddItem(laptop(), 1))

	assert.Equal(t, int64(20000), c.Totals.Savings)
	assert.InDelta(t, float64(20000)/float64(219999)*100, c.Totals.SavingsPercent, 0.001)
}

func TestApplyCoupon_DiscountReducesTotal(t *testing.T) {
	c := NewCart("sess-1", nil)
	require.NoError(t, c.AddItem(mouse(), 2))

	require.NoError(t, c.ApplyCoupon(AppliedCoupon{Code: "SAVE10", DiscountType: "percentage", Value: 10, DiscountAmount: 1000}))

	assert.Equal(t, int64(1000), c.Totals.DiscountTotal)
	assert.Equal(t, int64(4999*2-1000), c.Totals.Total)
}

func TestApplyCoupon_DuplicateCode(t *testing.T) {
	c := NewCart("sess-1", nil)
	require.NoError(t, c.AddItem(mouse(), 2))
	require.NoError(t, c.ApplyCoupon(AppliedCoupon{Code: "SAVE10", DiscountAmount: 1000}))

	err := c.ApplyCoupon(AppliedCoupon{Code: "SAVE10", DiscountAmount: 1000})

	assert.True(t, errs.IsKind(err, errs.KindValidation))
	assert.Len(t, c.Coupons, 1)
}

func TestApplyCoupon_MinimumOrderAmount(t *testing.T) {
	c := NewCart("sess-1", nil)
	require.NoError(t, c.AddItem(mouse(), 1))

	err := c.ApplyCoupon(AppliedCoupon{Code: "FLAT500", DiscountAmount: 50000, MinimumOrderAmount: 299900})

	assert.True(t, errs.IsKind(err, errs.KindValidation))
}

func TestCalculateTotals_NeverNegative(t *testing.T) {
	c := NewCart("sess-1", nil)
	require.NoError(t, c.AddItem(mouse(), 1))

	require.NoError(t, c.ApplyCoupon(AppliedCoupon{Code: "BIG", DiscountAmount: 999999}))

	assert.Equal(t, int64(0), c.Totals.Total)
}

func TestRemoveCoupon_RestoresTotal(t *testing.T) {
	c := NewCart("sess-1", nil)
	require.NoError(t, c.AddItem(mouse(), 2))
	require.NoError(t, c.ApplyCoupon(AppliedCoupon{Code: "SAVE10", DiscountAmount: 1000}))

	require.NoError(t, c.RemoveCoupon("SAVE10"))

	assert.Empty(t, c.Coupons)
	assert.Equal(t, int64(4999*2), c.Totals.Total)
}

func TestRemoveCoupon_NotApplied(t *testing.T) {
	c := NewCart("sess-1", nil)

	err := c.RemoveCoupon("NOPE")

	assert.True(t, errs.IsKind(err, errs.KindNotFound))
}

func TestMergeFrom_SumsMatchingProducts(t *testing.T) {
	userID := uint(7)
	target := NewCart("sess-user", &userID)
	require.NoError(t, target.AddItem(mouse(), 1))
	target.ID = 1

	guest := NewCart("sess-guest", nil)
	require.NoError(t, guest.AddItem(mouse(), 2))
	require.NoError(t, guest.AddItem(laptop(), 1))
	guest.ID = 2

	require.NoError(t, target.MergeFrom(guest))

	require.Len(t, target.Items, 2)
	assert.Equal(t, 3, target.FindItem(2).Quantity)
	assert.Equal(t, 1, target.FindItem(1).Quantity)
	assert.Equal(t, CartStatusMerged, guest.Status)
}

func TestMergeFrom_SelfMerge(t *testing.T) {
	c := NewCart("sess-1", nil)
	c.ID = 5

	err := c.MergeFrom(c)

	assert.True(t, errs.IsKind(err, errs.KindValidation))
}

func TestMarkConverted_Once(t *testing.T) {
	c := NewCart("sess-1", nil)
	c.ID = 3
	require.NoError(t, c.AddItem(mouse(), 1))

	require.NoError(t, c.MarkConverted(42))

	assert.Equal(t, CartStatusConverted, c.Status)
	require.NotNil(t, c.OrderID)
	assert.Equal(t, uint(42), *c.OrderID)
	assert.NotNil(t, c.ConvertedAt)

	err := c.MarkConverted(43)
	assert.True(t, errs.IsKind(err, errs.KindState))
}

func TestMutationsRejectedAfterConversion(t *testing.T) {
	c := NewCart("sess-1", nil)
	require.NoError(t, c.AddItem(mouse(), 1))
	require.NoError(t, c.MarkConverted(1))

	assert.True(t, errs.IsKind(c.AddItem(laptop(), 1), errs.KindState))
	assert.True(t, errs.IsKind(c.UpdateItemQuantity(2, 5), errs.KindState))
	assert.True(t, errs.IsKind(c.ApplyCoupon(AppliedCoupon{Code: "X"}), errs.KindState))
}

func TestHasReservation(t *testing.T) {
	c := NewCart("sess-1", nil)
	require.NoError(t, c.AddItem(mouse(), 1))
	now := time.Now().UTC()

	assert.False(t, c.HasReservation(now))

	future := now.Add(10 * time.Minute)
	c.Items[0].ReservedUntil = &future
	assert.True(t, c.HasReservation(now))

	past := now.Add(-time.Minute)
	c.Items[0].ReservedUntil = &past
	assert.False(t, c.HasReservation(now))
}
