// internal/infrastructure/database/postgres/migration.go
package postgres

import (
	"fmt"
	"log"
	"time"

	"github.com/your-org/storefront-backend/internal/domain/cart"
	"github.com/your-org/storefront-backend/internal/domain/coupon"
	"github.com/your-org/storefront-backend/internal/domain/order"
	"github.com/your-org/storefront-backend/internal/domain/payment"
	"github.com/your-org/storefront-backend/internal/domain/product"
	"gorm.io/gorm"
)

// Migration handles database migrations
type Migration struct {
	db *gorm.DB
}

// NewMigration creates a new migration instance
func NewMigration(db *gorm.DB) *Migration {
	return &Migration{
		db: db,
	}
}

// RunAutoMigrations runs GORM auto-migrations for all models
func (m *Migration) RunAutoMigrations() error {
	log.Println("🔄 Running database auto-migrations...")

	// Models in dependency order
	models := []interface{}{
		&product.Product{},

		&cart.Cart{},
		&cart.CartItem{},
		&cart.AppliedCoupon{},

		&coupon.Coupon{},
		&coupon.CouponUsage{},

		&order.Order{},
		&order.OrderItem{},
		&order.Refund{},

		&payment.WebhookEvent{},
	}

	for _, model := range models {
		log.Printf("Migrating model: %T", model)
		if err := m.db.AutoMigrate(model); err != nil {
			return fmt.Errorf("failed to migrate model %T: %w", model, err)
		}
	}

	log.Println("✅ Database auto-migrations completed successfully")
	return nil
}

// CreateIndexes creates additional indexes for better performance
func (m *Migration) CreateIndexes() error {
	log.Println("🔄 Creating additional database indexes...")

	indexes := []string{
		// At most one active cart per guest session and per user
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_carts_active_session ON carts(session_id) WHERE status = 'active' AND deleted_at IS NULL",
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_carts_active_user ON carts(user_id) WHERE status = 'active' AND user_id IS NOT NULL AND deleted_at IS NULL",

		// Cart indexes
		"CREATE INDEX IF NOT EXISTS idx_carts_status_updated ON carts(status, updated_at)",
		"CREATE INDEX IF NOT EXISTS idx_cart_items_cart_product ON cart_items(cart_id, product_id)",
		"CREATE INDEX IF NOT EXISTS idx_cart_items_reserved_until ON cart_items(reserved_until)",
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_cart_coupons_cart_code ON cart_coupons(cart_id, code)",

		// Product indexes
		"CREATE INDEX IF NOT EXISTS idx_products_status ON products(status)",
		"CREATE INDEX IF NOT EXISTS idx_products_price ON products(price)",

		// Coupon indexes
		"CREATE INDEX IF NOT EXISTS idx_coupons_active_window ON coupons(is_active, valid_from, valid_until)",
		"CREATE INDEX IF NOT EXISTS idx_coupon_usages_coupon_user ON coupon_usages(coupon_id, user_id)",

		// Order indexes
		"CREATE INDEX IF NOT EXISTS idx_orders_user_status ON orders(user_id, status)",
		"CREATE INDEX IF NOT EXISTS idx_orders_status_created ON orders(status, created_at DESC)",
		"CREATE INDEX IF NOT EXISTS idx_orders_email ON orders(email)",
		"CREATE INDEX IF NOT EXISTS idx_order_items_order ON order_items(order_id)",
		"CREATE INDEX IF NOT EXISTS idx_order_refunds_order ON order_refunds(order_id)",
	}

	successCount := 0
	failCount := 0

	for _, indexSQL := range indexes {
		if err := m.db.Exec(indexSQL).Error; err != nil {
			log.Printf("⚠️ Failed to create index: %v", err)
			failCount++
		} else {
			successCount++
		}
	}

	log.Printf("✅ Created %d indexes successfully (%d failed)", successCount, failCount)
	return nil
}

// SeedInitialData inserts development fixtures
func (m *Migration) SeedInitialData() error {
	log.Println("🌱 Seeding initial data...")

	if err := m.seedProducts(); err != nil {
		return fmt.Errorf("failed to seed products: %w", err)
	}
	if err := m.seedCoupons(); err != nil {
		return fmt.Errorf("failed to seed coupons: %w", err)
	}

	log.Println("✅ Initial data seeded successfully")
	return nil
}

func (m *Migration) seedProducts() error {
	var count int64
	m.db.Model(&product.Product{}).Count(&count)
	if count > 0 {
		log.Println("⏭️ Products already exist, skipping seed")
		return nil
	}

	products := []product.Product{
		{
			SKU:            "LAPTOP-001",
			Name:           "Premium Gaming Laptop",
			Description:    "High-performance gaming laptop with dedicated graphics.",
			Price:          199999,
			CompareAtPrice: 249999,
			Quantity:       25,
			Status:         product.ProductStatusActive,
		},
		{
			SKU:         "MOUSE-001",
			Name:        "Wireless Gaming Mouse",
			Description: "Ergonomic wireless mouse with adjustable DPI.",
			Price:       4999,
			Quantity:    200,
			Status:      product.ProductStatusActive,
		},
		{
			SKU:         "KEYB-001",
			Name:        "Mechanical Keyboard",
			Description: "Hot-swappable mechanical keyboard, tactile switches.",
			Price:       12999,
			Quantity:    80,
			Status:      product.ProductStatusActive,
		},
	}

	for _, p := range products {
		if err := m.db.Create(&p).Error; err != nil {
			return err
		}
		log.Printf("✅ Created product: %s", p.SKU)
	}
	return nil
}

func (m *Migration) seedCoupons() error {
	var count int64
	m.db.Model(&coupon.Coupon{}).Count(&count)
	if count > 0 {
		log.Println("⏭️ Coupons already exist, skipping seed")
		return nil
	}

	now := time.Now().UTC()
	yearOut := now.AddDate(1, 0, 0)

	coupons := []coupon.Coupon{
		{
			Code:               "SAVE10",
			DiscountType:       coupon.DiscountTypePercentage,
			Value:              10,
			MinimumOrderAmount: 5000,
			IsActive:           true,
			ValidFrom:          &now,
			ValidUntil:         &yearOut,
		},
		{
			Code:               "FLAT500",
			DiscountType:       coupon.DiscountTypeFixedAmount,
			Value:              50000,
			MinimumOrderAmount: 299900,
			IsActive:           true,
			ValidFrom:          &now,
			ValidUntil:         &yearOut,
		},
		{
			Code:         "FREESHIP",
			DiscountType: coupon.DiscountTypeFreeShipping,
			Value:        0,
			IsActive:     true,
			ValidFrom:    &now,
			ValidUntil:   &yearOut,
		},
	}

	for _, c := range coupons {
		if err := m.db.Create(&c).Error; err != nil {
			return err
		}
		log.Printf("✅ Created coupon: %s", c.Code)
	}
	return nil
}
