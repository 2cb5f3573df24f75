package catalog

import (
	"context"

	"github.com/google/uuid"
)

// ProductRepository defines the interface for product persistence
type ProductRepository interface {
	// FindBySlug finds a product by slug within a tenant; shared.ErrNotFound if absent
	FindBySlug(ctx context.Context, tenantID uuid.UUID, slug string) (*Product, error)

	// Create inserts a new product
	Create(ctx context.Context, product *Product) error

	// UpdatePricingStructure stores the pricing structure of a product
	UpdatePricingStructure(ctx context.Context, tenantID, productID uuid.UUID, ps *PricingStructure) error
}

// AttributeRepository defines the interface for attribute group and value persistence
type AttributeRepository interface {
	// FindGroupsByProduct loads every group of a product with its values, ordered
	FindGroupsByProduct(ctx context.Context, tenantID, productID uuid.UUID) ([]AttributeGroup, error)

	// CreateGroup inserts a group
	CreateGroup(ctx context.Context, group *AttributeGroup) error

	// CreateValue inserts a value
	CreateValue(ctx context.Context, value *AttributeValue) error

	// PatchValue updates only the fields set in patch
	PatchValue(ctx context.Context, valueID uuid.UUID, patch ValuePatch) error
}

// PriceRowRepository defines the interface for generic price persistence
type PriceRowRepository interface {
	// ReplaceForProduct deletes the rows in scope, then inserts rows in batches
	ReplaceForProduct(ctx context.Context, scope ReplaceScope, rows []PriceRow, batchSize int) (ReplaceResult, error)

	// CountForProduct counts the stored rows of a product
	CountForProduct(ctx context.Context, tenantID, productID uuid.UUID) (int64, error)
}
