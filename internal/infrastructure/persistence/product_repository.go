package persistence

import (
	"context"
	"time"

	"github.com/erp/priceimport/internal/domain/catalog"
	"github.com/erp/priceimport/internal/domain/shared"
	"github.com/erp/priceimport/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormProductRepository implements catalog.ProductRepository using GORM
type GormProductRepository struct {
	db *gorm.DB
}

// NewGormProductRepository creates a new GormProductRepository
func NewGormProductRepository(db *gorm.DB) *GormProductRepository {
	return &GormProductRepository{db: db}
}

// FindBySlug finds a product by slug within a tenant
func (r *GormProductRepository) FindBySlug(ctx context.Context, tenantID uuid.UUID, slug string) (*catalog.Product, error) {
	var model models.ProductModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND slug = ?", tenantID, slug).
		First(&model).Error; err != nil {
		return nil, translateError(err)
	}
	return model.ToDomain()
}

// Create inserts a new product
func (r *GormProductRepository) Create(ctx context.Context, product *catalog.Product) error {
	var model models.ProductModel
	if err := model.FromDomain(product); err != nil {
		return err
	}
	return r.db.WithContext(ctx).Create(&model).Error
}

// UpdatePricingStructure stores ps as the product's pricing structure
func (r *GormProductRepository) UpdatePricingStructure(ctx context.Context, tenantID, productID uuid.UUID, ps *catalog.PricingStructure) error {
	data, err := ps.JSON()
	if err != nil {
		return err
	}
	result := r.db.WithContext(ctx).
		Model(&models.ProductModel{}).
		Where("tenant_id = ? AND id = ?", tenantID, productID).
		Updates(map[string]any{
			"pricing_structure": string(data),
			"updated_at":        time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

var _ catalog.ProductRepository = (*GormProductRepository)(nil)
