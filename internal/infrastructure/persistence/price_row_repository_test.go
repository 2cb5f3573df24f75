package persistence

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/erp/priceimport/internal/domain/catalog"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func priceRows(tenantID, productID uuid.UUID, variant, value string, quantities ...int) []catalog.PriceRow {
	rows := make([]catalog.PriceRow, 0, len(quantities))
	for _, q := range quantities {
		rows = append(rows, catalog.PriceRow{
			TenantID:     tenantID,
			ProductID:    productID,
			VariantName:  variant,
			VariantValue: value,
			Quantity:     q,
			Price:        decimal.NewFromInt(int64(q * 2)),
			ExtraData:    map[string]any{"source_index": q},
		})
	}
	return rows
}

func TestGormPriceRowRepository_ReplaceForProduct(t *testing.T) {
	db := setupCatalogTestDB(t)
	repo := NewGormPriceRowRepository(db)
	ctx := context.Background()
	tenantID, productID := uuid.New(), uuid.New()
	scope := catalog.ReplaceScope{TenantID: tenantID, ProductID: productID}

	first := priceRows(tenantID, productID, "fmt", "matt", 100, 250, 500, 1000, 2000)
	res, err := repo.ReplaceForProduct(ctx, scope, first, 2)
	require.NoError(t, err)
	assert.Equal(t, catalog.ReplaceResult{Deleted: 0, Inserted: 5, Batches: 3}, res)

	second := priceRows(tenantID, productID, "fmt", "gloss", 100, 250)
	res, err = repo.ReplaceForProduct(ctx, scope, second, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(5), res.Deleted)
	assert.Equal(t, 2, res.Inserted)
	assert.Equal(t, 1, res.Batches)

	stored, err := repo.FindForProduct(ctx, tenantID, productID)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, "gloss", stored[0].VariantValue)
	assert.Equal(t, 100, stored[0].Quantity)
	assert.True(t, stored[0].Price.Equal(decimal.NewFromInt(200)))
	assert.Equal(t, 100.0, stored[0].ExtraData["source_index"])
}

func TestGormPriceRowRepository_DuplicateKeyRollsBack(t *testing.T) {
	db := setupCatalogTestDB(t)
	repo := NewGormPriceRowRepository(db)
	ctx := context.Background()
	tenantID, productID := uuid.New(), uuid.New()
	scope := catalog.ReplaceScope{TenantID: tenantID, ProductID: productID}

	_, err := repo.ReplaceForProduct(ctx, scope, priceRows(tenantID, productID, "fmt", "matt", 100, 250), 500)
	require.NoError(t, err)

	bad := priceRows(tenantID, productID, "fmt", "matt", 100, 100)
	_, err = repo.ReplaceForProduct(ctx, scope, bad, 500)
	require.Error(t, err)

	// The delete was rolled back with the failed insert
	n, err := repo.CountForProduct(ctx, tenantID, productID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestGormPriceRowRepository_ScopeByFormat(t *testing.T) {
	db := setupCatalogTestDB(t)
	repo := NewGormPriceRowRepository(db)
	ctx := context.Background()
	tenantID, productID := uuid.New(), uuid.New()
	a4, a5, finish := uuid.New(), uuid.New(), uuid.New()

	all := append(
		priceRows(tenantID, productID, catalog.VariantKey([]uuid.UUID{a4, finish}), "matt", 100, 250),
		priceRows(tenantID, productID, catalog.VariantKey([]uuid.UUID{a5, finish}), "matt", 100)...,
	)
	_, err := repo.ReplaceForProduct(ctx, catalog.ReplaceScope{TenantID: tenantID, ProductID: productID}, all, 500)
	require.NoError(t, err)

	scope := catalog.ReplaceScope{TenantID: tenantID, ProductID: productID, FormatValueID: &a4}
	res, err := repo.ReplaceForProduct(ctx, scope,
		priceRows(tenantID, productID, catalog.VariantKey([]uuid.UUID{a4, finish}), "matt", 500), 500)
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Deleted)

	stored, err := repo.FindForProduct(ctx, tenantID, productID)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	quantities := []int{stored[0].Quantity, stored[1].Quantity}
	assert.ElementsMatch(t, []int{100, 500}, quantities)
}

func TestGormPriceRowRepository_InsertFailureRollsBack(t *testing.T) {
	gormDB, mock, mockDB := newMockGorm(t)
	defer mockDB.Close()
	repo := NewGormPriceRowRepository(gormDB)

	tenantID, productID := uuid.New(), uuid.New()
	rows := priceRows(tenantID, productID, "fmt", "matt", 100)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "generic_product_prices" WHERE .*tenant_id = \$1 AND product_id = \$2`).
		WithArgs(tenantID, productID).
		WillReturnResult(sqlmock.NewResult(0, 4))
	mock.ExpectExec(`INSERT INTO "generic_product_prices"`).
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	_, err := repo.ReplaceForProduct(context.Background(),
		catalog.ReplaceScope{TenantID: tenantID, ProductID: productID}, rows, 500)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert price rows 0-0")
	assert.NoError(t, mock.ExpectationsWereMet())
}
