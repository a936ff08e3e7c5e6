// internal/domain/inventory/service.go
package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/your-org/storefront-backend/internal/domain/cart"
	"github.com/your-org/storefront-backend/internal/domain/product"
	"github.com/your-org/storefront-backend/internal/pkg/errs"
	"gorm.io/gorm"
)

// Service converts a cart's line items into temporary inventory holds
// and settles or releases them when checkout resolves. Every counter
// mutation is a single guarded UPDATE at the storage layer; availability
// is never checked in application code separately from the increment.
type Service struct {
	db     *gorm.DB
	logger *logrus.Logger
}

// NewService creates a new inventory service
func NewService(db *gorm.DB, logger *logrus.Logger) *Service {
	return &Service{db: db, logger: logger}
}

// ItemIssue describes a cart item that failed validation
type ItemIssue struct {
	ProductID      uint            `json:"product_id"`
	SKU            string          `json:"sku"`
	Status         cart.ItemStatus `json:"status"`
	StockAvailable int             `json:"stock_available,omitempty"`
	NewPrice       int64           `json:"new_price,omitempty"`
	Message        string          `json:"message"`
}

// ValidationReport summarizes a cart re-check against the catalog
type ValidationReport struct {
	OK     bool        `json:"ok"`
	Issues []ItemIssue `json:"issues,omitempty"`
}

// ValidateCartItems re-checks each cart item against current catalog and
// inventory state, assigning item statuses and repricing changed items.
// Price changes mutate the cart (callers persist it); availability
// problems are reported without touching any counter.
func (s *Service) ValidateCartItems(ctx context.Context, c *cart.Cart) (*ValidationReport, error) {
	ids := make([]uint, len(c.Items))
	for i, item := range c.Items {
		ids[i] = item.ProductID
	}

	var products []product.Product
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&products).Error; err != nil {
		return nil, fmt.Errorf("failed to load products for validation: %w", err)
	}
	byID := make(map[uint]*product.Product, len(products))
	for i := range products {
		byID[products[i].ID] = &products[i]
	}

	return ApplyValidation(c, byID), nil
}

// ApplyValidation assigns item statuses from a product snapshot map and
// recomputes totals when a reprice occurred.
func ApplyValidation(c *cart.Cart, products map[uint]*product.Product) *ValidationReport {
	report := &ValidationReport{OK: true}
	repriced := false

	for i := range c.Items {
		item := &c.Items[i]

		prod, found := products[item.ProductID]
		if !found || prod.Status == product.ProductStatusDiscontinued {
			item.Status = cart.ItemStatusDiscontinued
			report.OK = false
			report.Issues = append(report.Issues, ItemIssue{
				ProductID: item.ProductID,
				SKU:       item.SKU,
				Status:    cart.ItemStatusDiscontinued,
				Message:   fmt.Sprintf("%s is no longer available", item.Name),
			})
			continue
		}

		available := prod.AvailableQuantity()
		switch {
		case available == 0:
			item.Status = cart.ItemStatusOutOfStock
			item.StockAvailable = 0
			report.OK = false
			report.Issues = append(report.Issues, ItemIssue{
				ProductID: item.ProductID,
				SKU:       item.SKU,
				Status:    cart.ItemStatusOutOfStock,
				Message:   fmt.Sprintf("%s is out of stock", item.Name),
			})

		case available < item.Quantity:
			item.Status = cart.ItemStatusLimitedStock
			item.StockAvailable = available
			report.OK = false
			report.Issues = append(report.Issues, ItemIssue{
				ProductID:      item.ProductID,
				SKU:            item.SKU,
				Status:         cart.ItemStatusLimitedStock,
				StockAvailable: available,
				Message:        fmt.Sprintf("only %d of %s left", available, item.Name),
			})

		case prod.Price != item.UnitPrice:
			item.Status = cart.ItemStatusPriceChanged
			item.UnitPrice = prod.Price
			item.OriginalPrice = prod.CompareAtPrice
			repriced = true
			report.OK = false
			report.Issues = append(report.Issues, ItemIssue{
				ProductID: item.ProductID,
				SKU:       item.SKU,
				Status:    cart.ItemStatusPriceChanged,
				NewPrice:  prod.Price,
				Message:   fmt.Sprintf("the price of %s has changed", item.Name),
			})

		default:
			item.Status = cart.ItemStatusAvailable
			item.StockAvailable = 0
		}
	}

	if repriced {
		c.CalculateTotals()
	}
	return report
}

// ReserveCartStock validates the cart and, when clean, places a hold for
// every item in one transaction. No partial reservation is ever made: a
// failed guard rolls back increments already taken. The availability
// check and the increment are one atomic conditional UPDATE, so two
// concurrent reservations for the same product cannot oversell.
func (s *Service) ReserveCartStock(ctx context.Context, c *cart.Cart, ttl time.Duration) (*ValidationReport, error) {
	if len(c.Items) == 0 {
		return nil, errs.Validation("cart is empty")
	}

	report, err := s.ValidateCartItems(ctx, c)
	if err != nil {
		return nil, err
	}
	if !report.OK {
		return report, errs.Validation("cart has unavailable items")
	}

	reservedUntil := time.Now().UTC().Add(ttl)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range c.Items {
			item := &c.Items[i]
			if err := s.reserveOne(tx, item.ProductID, item.Quantity); err != nil {
				return err
			}
			item.ReservedUntil = &reservedUntil
			if item.ID != 0 {
				if err := tx.Model(&cart.CartItem{}).
					Where("id = ?", item.ID).
					UpdateColumn("reserved_until", reservedUntil).Error; err != nil {
					return fmt.Errorf("failed to stamp reservation expiry: %w", err)
				}
			}
		}
		return nil
	})
	if err != nil {
		// Roll back the in-memory expiry stamps too.
		for i := range c.Items {
			c.Items[i].ReservedUntil = nil
		}
		return report, err
	}

	return report, nil
}

// reserveOne performs the guarded increment with one transparent retry
// before surfacing a conflict.
func (s *Service) reserveOne(tx *gorm.DB, productID uint, quantity int) error {
	for attempt := 0; attempt < 2; attempt++ {
		result := tx.Model(&product.Product{}).
			Where("id = ? AND reserved_quantity + ? <= quantity", productID, quantity).
			UpdateColumn("reserved_quantity", gorm.Expr("reserved_quantity + ?", quantity))
		if result.Error != nil {
			return fmt.Errorf("failed to reserve stock for product %d: %w", productID, result.Error)
		}
		if result.RowsAffected > 0 {
			return nil
		}
	}
	return errs.Conflict("product %d is no longer available in the requested quantity", productID)
}

// CommitCartStock settles the hold after successful checkout: both the
// reservation counter and on-hand quantity drop by the held amount.
func (s *Service) CommitCartStock(ctx context.Context, c *cart.Cart) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range c.Items {
			item := &c.Items[i]
			result := tx.Model(&product.Product{}).
				Where("id = ? AND reserved_quantity >= ? AND quantity >= ?", item.ProductID, item.Quantity, item.Quantity).
				Updates(map[string]interface{}{
					"quantity":          gorm.Expr("quantity - ?", item.Quantity),
					"reserved_quantity": gorm.Expr("reserved_quantity - ?", item.Quantity),
				})
			if result.Error != nil {
				return fmt.Errorf("failed to commit stock for product %d: %w", item.ProductID, result.Error)
			}
			if result.RowsAffected == 0 {
				// The hold vanished underneath us; this indicates the
				// reservation invariant was violated somewhere.
				s.logger.WithFields(logrus.Fields{
					"product_id": item.ProductID,
					"quantity":   item.Quantity,
				}).Error("stock commit found no matching reservation")
				return errs.State("no outstanding reservation for product %d", item.ProductID)
			}
			item.ReservedUntil = nil
			if item.ID != 0 {
				if err := tx.Model(&cart.CartItem{}).
					Where("id = ?", item.ID).
					UpdateColumn("reserved_until", nil).Error; err != nil {
					return fmt.Errorf("failed to clear reservation expiry: %w", err)
				}
			}
		}
		return nil
	})
}

// ReleaseCartStock returns held stock to sale without touching on-hand
// quantity. Used on payment failure, cancellation, session expiry, and
// reaper-driven abandonment.
func (s *Service) ReleaseCartStock(ctx context.Context, c *cart.Cart) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.ReleaseCartStockTx(tx, c)
	})
}

// ReleaseCartStockTx releases a cart's holds inside a caller-owned
// transaction, so the reaper can combine the release with its own cart
// status update. Each counter decrement is gated on winning the
// reserved_until row flip, which makes release idempotent: a stale
// in-memory cart cannot re-release a hold that commit or an earlier
// release already settled.
func (s *Service) ReleaseCartStockTx(tx *gorm.DB, c *cart.Cart) error {
	for i := range c.Items {
		item := &c.Items[i]
		if item.ID != 0 {
			result := tx.Model(&cart.CartItem{}).
				Where("id = ? AND reserved_until IS NOT NULL", item.ID).
				UpdateColumn("reserved_until", nil)
			if result.Error != nil {
				return fmt.Errorf("failed to clear reservation expiry: %w", result.Error)
			}
			if result.RowsAffected == 0 {
				// Hold already settled elsewhere; nothing to return.
				item.ReservedUntil = nil
				continue
			}
		} else if item.ReservedUntil == nil {
			continue
		}
		if err := s.releaseOne(tx, item.ProductID, item.Quantity); err != nil {
			return err
		}
		item.ReservedUntil = nil
	}
	return nil
}

func (s *Service) releaseOne(tx *gorm.DB, productID uint, quantity int) error {
	result := tx.Model(&product.Product{}).
		Where("id = ? AND reserved_quantity >= ?", productID, quantity).
		UpdateColumn("reserved_quantity", gorm.Expr("reserved_quantity - ?", quantity))
	if result.Error != nil {
		return fmt.Errorf("failed to release stock for product %d: %w", productID, result.Error)
	}
	if result.RowsAffected == 0 {
		// A hold existed on the cart item but not on the counter; the
		// reservation invariant was violated somewhere upstream.
		s.logger.WithFields(logrus.Fields{
			"product_id": productID,
			"quantity":   quantity,
		}).Error("stock release found no matching reservation")
	}
	return nil
}

// CheckReservationLeaks logs any product whose reserved counter exceeds
// its on-hand quantity. Such a state means the atomicity invariant was
// violated and needs operator attention.
func (s *Service) CheckReservationLeaks(ctx context.Context) error {
	var leaked []product.Product
	if err := s.db.WithContext(ctx).
		Where("reserved_quantity > quantity").
		Find(&leaked).Error; err != nil {
		return fmt.Errorf("failed to scan for reservation leaks: %w", err)
	}

	for _, prod := range leaked {
		s.logger.WithFields(logrus.Fields{
			"product_id":        prod.ID,
			"sku":               prod.SKU,
			"quantity":          prod.Quantity,
			"reserved_quantity": prod.ReservedQuantity,
		}).Error("reservation leak detected: reserved quantity exceeds on-hand stock")
	}
	return nil
}
