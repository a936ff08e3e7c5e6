// internal/domain/product/service.go
package product

import (
	"context"
	"errors"
	"fmt"

	"github.com/your-org/storefront-backend/internal/pkg/errs"
	"gorm.io/gorm"
)

// Service is the catalog read surface the checkout pipeline consumes.
// Catalog CRUD and search live elsewhere; the pipeline only needs
// lookups by id and sku.
type Service struct {
	db *gorm.DB
}

// NewService creates a new product service
func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// FindProduct retrieves a product by id
func (s *Service) FindProduct(ctx context.Context, id uint) (*Product, error) {
	var prod Product
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&prod).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errs.NotFound("product %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve product: %w", err)
	}
	return &prod, nil
}

// ListProducts retrieves a page of active products
func (s *Service) ListProducts(ctx context.Context, limit, offset int) ([]Product, error) {
	var products []Product
	err := s.db.WithContext(ctx).
		Where("status = ?", ProductStatusActive).
		Order("created_at DESC").
		Limit(limit).Offset(offset).
		Find(&products).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	return products, nil
}

// FindProducts retrieves products for a set of ids keyed by id
func (s *Service) FindProducts(ctx context.Context, ids []uint) (map[uint]*Product, error) {
	var products []Product
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&products).Error; err != nil {
		return nil, fmt.Errorf("failed to retrieve products: %w", err)
	}

	result := make(map[uint]*Product, len(products))
	for i := range products {
		result[products[i].ID] = &products[i]
	}
	return result, nil
}
