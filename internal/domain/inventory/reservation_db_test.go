package inventory

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/your-org/storefront-backend/internal/domain/cart"
	"github.com/your-org/storefront-backend/internal/domain/product"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)

	// A second pooled connection would see a different in-memory database.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&product.Product{},
		&cart.Cart{},
		&cart.CartItem{},
		&cart.AppliedCoupon{},
	))
	return db
}

func newTestService(t *testing.T, db *gorm.DB) *Service {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return NewService(db, logger)
}

func seedProduct(t *testing.T, db *gorm.DB, sku string, price int64, quantity int) *product.Product {
	t.Helper()
	p := &product.Product{
		SKU:      sku,
		Name:     sku,
		Price:    price,
		Quantity: quantity,
		Status:   product.ProductStatusActive,
	}
	require.NoError(t, db.Create(p).Error)
	return p
}

func seedCart(t *testing.T, db *gorm.DB, sessionID string, p *product.Product, quantity int) *cart.Cart {
	t.Helper()
	c := cart.NewCart(sessionID, nil)
	require.NoError(t, c.AddItem(cart.ProductSnapshot{
		ProductID: p.ID,
		SKU:       p.SKU,
		Name:      p.Name,
		UnitPrice: p.Price,
	}, quantity))
	require.NoError(t, db.Create(c).Error)
	return c
}

func loadProduct(t *testing.T, db *gorm.DB, id uint) *product.Product {
	t.Helper()
	var p product.Product
	require.NoError(t, db.First(&p, id).Error)
	return &p
}

func loadCart(t *testing.T, db *gorm.DB, id uint) *cart.Cart {
	t.Helper()
	var c cart.Cart
	require.NoError(t, db.Preload("Items").Preload("Coupons").First(&c, id).Error)
	return &c
}

func TestReserveCartStock_StampsExpiry(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(t, db)
	p := seedProduct(t, db, "MOUSE-001", 4999, 10)
	c := seedCart(t, db, "sess-1", p, 2)

	_, err := svc.ReserveCartStock(context.Background(), c, 15*time.Minute)
	require.NoError(t, err)

	assert.Equal(t, 2, loadProduct(t, db, p.ID).ReservedQuantity)
	require.NotNil(t, c.Items[0].ReservedUntil)
	assert.NotNil(t, loadCart(t, db, c.ID).Items[0].ReservedUntil)
}

func TestReleaseCartStock_SecondReleaseIsNoOp(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(t, db)
	p := seedProduct(t, db, "MOUSE-001", 4999, 10)
	first := seedCart(t, db, "sess-1", p, 2)
	second := seedCart(t, db, "sess-2", p, 3)

	ctx := context.Background()
	_, err := svc.ReserveCartStock(ctx, first, 15*time.Minute)
	require.NoError(t, err)
	_, err = svc.ReserveCartStock(ctx, second, 15*time.Minute)
	require.NoError(t, err)
	require.Equal(t, 5, loadProduct(t, db, p.ID).ReservedQuantity)

	// A copy loaded before the release still carries the expiry stamp.
	stale := loadCart(t, db, first.ID)

	require.NoError(t, svc.ReleaseCartStock(ctx, first))
	assert.Equal(t, 3, loadProduct(t, db, p.ID).ReservedQuantity)

	// Releasing the stale copy must not touch the other cart's hold.
	require.NoError(t, svc.ReleaseCartStock(ctx, stale))
	assert.Equal(t, 3, loadProduct(t, db, p.ID).ReservedQuantity)
}

func TestReleaseCartStock_AfterCommitLeavesOtherHoldsIntact(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(t, db)
	p := seedProduct(t, db, "MOUSE-001", 4999, 10)
	first := seedCart(t, db, "sess-1", p, 2)
	second := seedCart(t, db, "sess-2", p, 3)

	ctx := context.Background()
	_, err := svc.ReserveCartStock(ctx, first, 15*time.Minute)
	require.NoError(t, err)
	_, err = svc.ReserveCartStock(ctx, second, 15*time.Minute)
	require.NoError(t, err)

	stale := loadCart(t, db, first.ID)

	require.NoError(t, svc.CommitCartStock(ctx, first))
	committed := loadProduct(t, db, p.ID)
	require.Equal(t, 8, committed.Quantity)
	require.Equal(t, 3, committed.ReservedQuantity)

	// A release arriving after the commit settled the same hold.
	require.NoError(t, svc.ReleaseCartStock(ctx, stale))
	after := loadProduct(t, db, p.ID)
	assert.Equal(t, 8, after.Quantity)
	assert.Equal(t, 3, after.ReservedQuantity)
}

func TestReserveCartStock_RejectsOverReservation(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(t, db)
	p := seedProduct(t, db, "MOUSE-001", 4999, 4)
	first := seedCart(t, db, "sess-1", p, 3)
	second := seedCart(t, db, "sess-2", p, 3)

	ctx := context.Background()
	_, err := svc.ReserveCartStock(ctx, first, 15*time.Minute)
	require.NoError(t, err)

	report, err := svc.ReserveCartStock(ctx, second, 15*time.Minute)
	require.Error(t, err)
	require.NotNil(t, report)
	assert.False(t, report.OK)
	assert.Equal(t, 3, loadProduct(t, db, p.ID).ReservedQuantity)
}
