package inventory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/storefront-backend/internal/domain/cart"
	"github.com/your-org/storefront-backend/internal/domain/product"
)

func validationCart() *cart.Cart {
	c := cart.NewCart("sess-1", nil)
	_ = c.AddItem(cart.ProductSnapshot{ProductID: 1, SKU: "MOUSE-001", Name: "Mouse", UnitPrice: 4999}, 2)
	return c
}

func TestApplyValidation_AllAvailable(t *testing.T) {
	c := validationCart()
	products := map[uint]*product.Product{
		1: {ID: 1, SKU: "MOUSE-001", Price: 4999, Quantity: 10, Status: product.ProductStatusActive},
	}

	report := ApplyValidation(c, products)

	assert.True(t, report.OK)
	assert.Empty(t, report.Issues)
	assert.Equal(t, cart.ItemStatusAvailable, c.Items[0].Status)
}

func TestApplyValidation_MissingProductIsDiscontinued(t *testing.T) {
	c := validationCart()

	report := ApplyValidation(c, map[uint]*product.Product{})

	assert.False(t, report.OK)
	require.Len(t, report.Issues, 1)
	assert.Equal(t, cart.ItemStatusDiscontinued, report.Issues[0].Status)
}

func TestApplyValidation_Discontinued(t *testing.T) {
	c := validationCart()
	products := map[uint]*product.Product{
		1: {ID: 1, Price: 4999, Quantity: 10, Status: product.ProductStatusDiscontinued},
	}

	report := ApplyValidation(c, products)

	assert.False(t, report.OK)
	assert.Equal(t, cart.ItemStatusDiscontinued, c.Items[0].Status)
}

func TestApplyValidation_OutOfStock(t *testing.T) {
	c := validationCart()
	products := map[uint]*product.Product{
		1: {ID: 1, Price: 4999, Quantity: 5, ReservedQuantity: 5, Status: product.ProductStatusActive},
	}

	report := ApplyValidation(c, products)

	assert.False(t, report.OK)
	assert.Equal(t, cart.ItemStatusOutOfStock, c.Items[0].Status)
	assert.Equal(t, 0, c.Items[0].StockAvailable)
}

func TestApplyValidation_LimitedStock(t *testing.T) {
	c := validationCart()
	products := map[uint]*product.Product{
		1: {ID: 1, Price: 4999, Quantity: 3, ReservedQuantity: 2, Status: product.ProductStatusActive},
	}

	report := ApplyValidation(c, products)

	assert.False(t, report.OK)
	assert.Equal(t, cart.ItemStatusLimitedStock, c.Items[0].Status)
	assert.Equal(t, 1, c.Items[0].StockAvailable)
	require.Len(t, report.Issues, 1)
	assert.Equal(t, 1, report.Issues[0].StockAvailable)
}

func TestApplyValidation_PriceChangedReprices(t *testing.T) {
	c := validationCart()
	products := map[uint]*product.Product{
		1: {ID: 1, Price: 3999, CompareAtPrice: 4999, Quantity: 10, Status: product.ProductStatusActive},
	}

	report := ApplyValidation(c, products)

	assert.False(t, report.OK)
	assert.Equal(t, cart.ItemStatusPriceChanged, c.Items[0].Status)
	assert.Equal(t, int64(3999), c.Items[0].UnitPrice)
	// Totals follow the reprice.
	assert.Equal(t, int64(3999*2), c.Totals.Subtotal)
	require.Len(t, report.Issues, 1)
	assert.Equal(t, int64(3999), report.Issues[0].NewPrice)
}

func TestApplyValidation_MixedIssues(t *testing.T) {
	c := validationCart()
	_ = c.AddItem(cart.ProductSnapshot{ProductID: 2, SKU: "KEYB-001", Name: "Keyboard", UnitPrice: 12999}, 1)

	products := map[uint]*product.Product{
		1: {ID: 1, Price: 4999, Quantity: 10, Status: product.ProductStatusActive},
		2: {ID: 2, Price: 12999, Quantity: 0, Status: product.ProductStatusActive},
	}

	report := ApplyValidation(c, products)

	assert.False(t, report.OK)
	require.Len(t, report.Issues, 1)
	assert.Equal(t, cart.ItemStatusAvailable, c.Items[0].Status)
	assert.Equal(t, cart.ItemStatusOutOfStock, c.Items[1].Status)
}

func TestAvailableQuantity_NeverNegative(t *testing.T) {
	p := &product.Product{Quantity: 2, ReservedQuantity: 5}

	assert.Equal(t, 0, p.AvailableQuantity())
}
