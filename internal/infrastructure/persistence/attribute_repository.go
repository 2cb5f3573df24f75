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

// GormAttributeRepository implements catalog.AttributeRepository using GORM
type GormAttributeRepository struct {
	db *gorm.DB
}

// NewGormAttributeRepository creates a new GormAttributeRepository
func NewGormAttributeRepository(db *gorm.DB) *GormAttributeRepository {
	return &GormAttributeRepository{db: db}
}

// FindGroupsByProduct loads the groups of a product with their values,
// both in sort order.
func (r *GormAttributeRepository) FindGroupsByProduct(ctx context.Context, tenantID, productID uuid.UUID) ([]catalog.AttributeGroup, error) {
	var rows []models.AttributeGroupModel
	if err := r.db.WithContext(ctx).
		Preload("Values", func(db *gorm.DB) *gorm.DB {
			return db.Order("sort_order ASC, name ASC")
		}).
		Where("tenant_id = ? AND product_id = ?", tenantID, productID).
		Order("sort_order ASC, name ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}

	groups := make([]catalog.AttributeGroup, 0, len(rows))
	for i := range rows {
		g, err := rows[i].ToDomain()
		if err != nil {
			return nil, err
		}
		groups = append(groups, *g)
	}
	return groups, nil
}

// CreateGroup inserts a group without its values
func (r *GormAttributeRepository) CreateGroup(ctx context.Context, group *catalog.AttributeGroup) error {
	var model models.AttributeGroupModel
	model.FromDomain(group)
	return r.db.WithContext(ctx).Omit("Values").Create(&model).Error
}

// CreateValue inserts a value
func (r *GormAttributeRepository) CreateValue(ctx context.Context, value *catalog.AttributeValue) error {
	var model models.AttributeValueModel
	if err := model.FromDomain(value); err != nil {
		return err
	}
	return r.db.WithContext(ctx).Create(&model).Error
}

// PatchValue writes only the columns set in patch. An empty patch is a no-op.
func (r *GormAttributeRepository) PatchValue(ctx context.Context, valueID uuid.UUID, patch catalog.ValuePatch) error {
	if patch.IsEmpty() {
		return nil
	}
	updates := map[string]any{"updated_at": time.Now()}
	if patch.WidthMM != nil {
		updates["width_mm"] = *patch.WidthMM
	}
	if patch.HeightMM != nil {
		updates["height_mm"] = *patch.HeightMM
	}
	if patch.Meta != nil {
		meta, err := models.EncodeJSON(patch.Meta)
		if err != nil {
			return err
		}
		updates["meta"] = *meta
	}

	result := r.db.WithContext(ctx).
		Model(&models.AttributeValueModel{}).
		Where("id = ?", valueID).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

var _ catalog.AttributeRepository = (*GormAttributeRepository)(nil)
