// internal/domain/product/entity.go
package product

import (
	"time"

	"gorm.io/gorm"
)

// ProductStatus represents the catalog status of a product
type ProductStatus string

const (
	ProductStatusActive       ProductStatus = "active"
	ProductStatusInactive     ProductStatus = "inactive"
	ProductStatusDiscontinued ProductStatus = "discontinued"
)

// Product represents a sellable catalog entry together with its
// inventory counters. AvailableQuantity (quantity - reserved_quantity)
// is what the checkout pipeline may still sell.
type Product struct {
	ID               uint           `gorm:"primaryKey" json:"id"`
	SKU              string         `gorm:"uniqueIndex;not null;size:100" json:"sku"`
	Name             string         `gorm:"not null;size:255" json:"name"`
	Description      string         `gorm:"type:text" json:"description"`
	Price            int64          `gorm:"not null" json:"price"` // In minor currency units
	CompareAtPrice   int64          `gorm:"default:0" json:"compare_at_price"`
	Quantity         int            `gorm:"not null;default:0" json:"quantity"`
	ReservedQuantity int            `gorm:"not null;default:0" json:"reserved_quantity"`
	Status           ProductStatus  `gorm:"not null;default:'active'" json:"status"`
	ImageURL         string         `gorm:"size:512" json:"image_url"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
	DeletedAt        gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName overrides the table name
func (Product) TableName() string {
	return "products"
}

// AvailableQuantity returns the quantity available to sell
func (p *Product) AvailableQuantity() int {
	available := p.Quantity - p.ReservedQuantity
	if available < 0 {
		return 0
	}
	return available
}

// IsSellable reports whether the product can still be added to a cart
func (p *Product) IsSellable() bool {
	return p.Status == ProductStatusActive
}
