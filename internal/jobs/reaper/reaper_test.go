package reaper

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/your-org/storefront-backend/internal/config"
	"github.com/your-org/storefront-backend/internal/domain/cart"
	"github.com/your-org/storefront-backend/internal/domain/inventory"
	"github.com/your-org/storefront-backend/internal/domain/product"
)

type recordingNotifier struct {
	reminded []uint
}

func (n *recordingNotifier) SendAbandonmentReminder(_ context.Context, c *cart.Cart) error {
	n.reminded = append(n.reminded, c.ID)
	return nil
}

type reaperFixture struct {
	db       *gorm.DB
	stock    *inventory.Service
	notifier *recordingNotifier
	reaper   *Reaper
}

func newReaperFixture(t *testing.T) *reaperFixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(
		&product.Product{},
		&cart.Cart{},
		&cart.CartItem{},
		&cart.AppliedCoupon{},
	))

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	cfg := &config.Config{}
	cfg.Checkout.ReapInterval = time.Minute
	cfg.Checkout.AbandonAfter = time.Hour

	f := &reaperFixture{
		db:       db,
		stock:    inventory.NewService(db, logger),
		notifier: &recordingNotifier{},
	}
	f.reaper = NewReaper(db, f.stock, f.notifier, cfg, logger)
	return f
}

func (f *reaperFixture) seedProduct(t *testing.T, quantity int) *product.Product {
	t.Helper()
	p := &product.Product{
		SKU:      "MOUSE-001",
		Name:     "Mouse",
		Price:    4999,
		Quantity: quantity,
		Status:   product.ProductStatusActive,
	}
	require.NoError(t, f.db.Create(p).Error)
	return p
}

func (f *reaperFixture) seedReservedCart(t *testing.T, sessionID, email string, p *product.Product, quantity int) *cart.Cart {
	t.Helper()
	c := cart.NewCart(sessionID, nil)
	c.Email = email
	require.NoError(t, c.AddItem(cart.ProductSnapshot{
		ProductID: p.ID,
		SKU:       p.SKU,
		Name:      p.Name,
		UnitPrice: p.Price,
	}, quantity))
	require.NoError(t, f.db.Create(c).Error)

	_, err := f.stock.ReserveCartStock(context.Background(), c, 15*time.Minute)
	require.NoError(t, err)
	return c
}

func (f *reaperFixture) reservedQuantity(t *testing.T, productID uint) int {
	t.Helper()
	var p product.Product
	require.NoError(t, f.db.First(&p, productID).Error)
	return p.ReservedQuantity
}

func (f *reaperFixture) cartStatus(t *testing.T, cartID uint) cart.CartStatus {
	t.Helper()
	var c cart.Cart
	require.NoError(t, f.db.First(&c, cartID).Error)
	return c.Status
}

func TestReapOne_AbandonsCartAndReleasesHolds(t *testing.T) {
	f := newReaperFixture(t)
	p := f.seedProduct(t, 10)
	c := f.seedReservedCart(t, "sess-1", "buyer@example.com", p, 2)
	require.Equal(t, 2, f.reservedQuantity(t, p.ID))

	notify, err := f.reaper.reapOne(context.Background(), c)
	require.NoError(t, err)

	assert.True(t, notify)
	assert.Equal(t, cart.CartStatusAbandoned, f.cartStatus(t, c.ID))
	assert.Equal(t, 0, f.reservedQuantity(t, p.ID))
	assert.True(t, c.AbandonmentEmailSent)
}

func TestReapOne_SecondPassIsNoOp(t *testing.T) {
	f := newReaperFixture(t)
	p := f.seedProduct(t, 10)
	c := f.seedReservedCart(t, "sess-1", "buyer@example.com", p, 2)

	// A copy from an earlier sweep query, still marked active.
	var stale cart.Cart
	require.NoError(t, f.db.Preload("Items").Preload("Coupons").First(&stale, c.ID).Error)

	_, err := f.reaper.reapOne(context.Background(), c)
	require.NoError(t, err)
	require.Equal(t, 0, f.reservedQuantity(t, p.ID))

	notify, err := f.reaper.reapOne(context.Background(), &stale)
	require.NoError(t, err)

	assert.False(t, notify)
	assert.Equal(t, 0, f.reservedQuantity(t, p.ID))
}

func TestReapOne_SkipsCartConvertedMidSweep(t *testing.T) {
	f := newReaperFixture(t)
	p := f.seedProduct(t, 10)
	c := f.seedReservedCart(t, "sess-1", "buyer@example.com", p, 2)
	other := f.seedReservedCart(t, "sess-2", "", p, 3)
	require.Equal(t, 5, f.reservedQuantity(t, p.ID))

	// The sweep query saw the cart active; checkout converts it before
	// reapOne runs, settling the hold.
	var stale cart.Cart
	require.NoError(t, f.db.Preload("Items").Preload("Coupons").First(&stale, c.ID).Error)
	require.NoError(t, f.stock.CommitCartStock(context.Background(), c))
	require.NoError(t, f.db.Model(&cart.Cart{}).
		Where("id = ?", c.ID).
		Update("status", cart.CartStatusConverted).Error)

	notify, err := f.reaper.reapOne(context.Background(), &stale)
	require.NoError(t, err)

	assert.False(t, notify)
	assert.Equal(t, cart.CartStatusConverted, f.cartStatus(t, c.ID))
	// The other cart's hold survives untouched.
	assert.Equal(t, 3, f.reservedQuantity(t, p.ID))
	assert.Equal(t, cart.CartStatusActive, f.cartStatus(t, other.ID))
}

func TestSweep_OnlyReapsStaleCarts(t *testing.T) {
	f := newReaperFixture(t)
	p := f.seedProduct(t, 10)
	stale := f.seedReservedCart(t, "sess-1", "buyer@example.com", p, 2)
	fresh := f.seedReservedCart(t, "sess-2", "", p, 3)

	past := time.Now().UTC().Add(-2 * time.Hour)
	require.NoError(t, f.db.Model(&cart.Cart{}).
		Where("id = ?", stale.ID).
		UpdateColumn("updated_at", past).Error)

	f.reaper.Sweep(context.Background())

	assert.Equal(t, cart.CartStatusAbandoned, f.cartStatus(t, stale.ID))
	assert.Equal(t, cart.CartStatusActive, f.cartStatus(t, fresh.ID))
	assert.Equal(t, 3, f.reservedQuantity(t, p.ID))
	assert.Equal(t, []uint{stale.ID}, f.notifier.reminded)
}
