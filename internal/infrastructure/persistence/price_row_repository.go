package persistence

import (
	"context"
	"fmt"

	"github.com/erp/priceimport/internal/domain/catalog"
	"github.com/erp/priceimport/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormPriceRowRepository implements catalog.PriceRowRepository using GORM
type GormPriceRowRepository struct {
	db *gorm.DB
}

// NewGormPriceRowRepository creates a new GormPriceRowRepository
func NewGormPriceRowRepository(db *gorm.DB) *GormPriceRowRepository {
	return &GormPriceRowRepository{db: db}
}

// ReplaceForProduct deletes the rows in scope and inserts rows in batches
// of batchSize inside one transaction. A failed batch rolls back the delete.
func (r *GormPriceRowRepository) ReplaceForProduct(ctx context.Context, scope catalog.ReplaceScope, rows []catalog.PriceRow, batchSize int) (catalog.ReplaceResult, error) {
	if batchSize <= 0 {
		batchSize = catalog.DefaultPriceBatchSize
	}

	batch := make([]models.GenericPriceModel, len(rows))
	for i := range rows {
		if err := batch[i].FromDomain(&rows[i]); err != nil {
			return catalog.ReplaceResult{}, fmt.Errorf("price row %d: %w", i, err)
		}
	}

	var result catalog.ReplaceResult
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		del := scopeQuery(tx, scope).Delete(&models.GenericPriceModel{})
		if del.Error != nil {
			return fmt.Errorf("delete price rows: %w", del.Error)
		}
		result.Deleted = del.RowsAffected

		for start := 0; start < len(batch); start += batchSize {
			end := min(start+batchSize, len(batch))
			if err := tx.Create(batch[start:end]).Error; err != nil {
				return fmt.Errorf("insert price rows %d-%d: %w", start, end-1, err)
			}
			result.Batches++
			result.Inserted += end - start
		}
		return nil
	})
	if err != nil {
		return catalog.ReplaceResult{}, err
	}
	return result, nil
}

// CountForProduct counts the stored rows of a product
func (r *GormPriceRowRepository) CountForProduct(ctx context.Context, tenantID, productID uuid.UUID) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&models.GenericPriceModel{}).
		Where("tenant_id = ? AND product_id = ?", tenantID, productID).
		Count(&n).Error
	return n, err
}

// FindForProduct lists the stored rows of a product by variant and quantity
func (r *GormPriceRowRepository) FindForProduct(ctx context.Context, tenantID, productID uuid.UUID) ([]catalog.PriceRow, error) {
	var rows []models.GenericPriceModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND product_id = ?", tenantID, productID).
		Order("variant_name, variant_value, quantity").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]catalog.PriceRow, 0, len(rows))
	for i := range rows {
		row, err := rows[i].ToDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, *row)
	}
	return out, nil
}

// scopeQuery narrows to the product and, when set, to variants carrying the
// format value on either axis.
func scopeQuery(tx *gorm.DB, scope catalog.ReplaceScope) *gorm.DB {
	q := tx.Where("tenant_id = ? AND product_id = ?", scope.TenantID, scope.ProductID)
	if scope.FormatValueID != nil {
		id := scope.FormatValueID.String()
		q = q.Where("(variant_name LIKE ? OR variant_value = ?)", "%"+id+"%", id)
	}
	return q
}

var _ catalog.PriceRowRepository = (*GormPriceRowRepository)(nil)
