package persistence

import (
	"context"
	"testing"

	"github.com/erp/priceimport/internal/domain/catalog"
	"github.com/erp/priceimport/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGormProductRepository_CreateAndFind(t *testing.T) {
	db := setupCatalogTestDB(t)
	repo := NewGormProductRepository(db)
	ctx := context.Background()
	tenantID := uuid.New()

	product, err := catalog.NewProduct(tenantID, "Business Cards", "business-cards", "print")
	require.NoError(t, err)
	product.Description = "Standard cards"
	require.NoError(t, repo.Create(ctx, product))

	found, err := repo.FindBySlug(ctx, tenantID, "business-cards")
	require.NoError(t, err)
	assert.Equal(t, product.ID, found.ID)
	assert.Equal(t, "Business Cards", found.Name)
	assert.Equal(t, "print", found.Category)
	assert.Equal(t, "Standard cards", found.Description)
	assert.Equal(t, "digital", found.TechnicalSpecs["print_method"])
	assert.Nil(t, found.PricingStructure)

	t.Run("slug is scoped by tenant", func(t *testing.T) {
		_, err := repo.FindBySlug(ctx, uuid.New(), "business-cards")
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("duplicate slug is rejected", func(t *testing.T) {
		dup, err := catalog.NewProduct(tenantID, "Cards again", "business-cards", "")
		require.NoError(t, err)
		assert.Error(t, repo.Create(ctx, dup))
	})
}

func TestGormProductRepository_UpdatePricingStructure(t *testing.T) {
	db := setupCatalogTestDB(t)
	repo := NewGormProductRepository(db)
	ctx := context.Background()
	tenantID := uuid.New()

	product, err := catalog.NewProduct(tenantID, "Flyers", "flyers", "")
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, product))

	material := &catalog.AttributeGroup{ID: uuid.New(), Kind: catalog.GroupKindMaterial}
	format := &catalog.AttributeGroup{
		ID:     uuid.New(),
		Kind:   catalog.GroupKindFormat,
		Values: []catalog.AttributeValue{{ID: uuid.New(), Name: "A5"}},
	}
	ps := catalog.NewPricingStructure(material, []*catalog.AttributeGroup{format})
	require.NoError(t, repo.UpdatePricingStructure(ctx, tenantID, product.ID, ps))

	found, err := repo.FindBySlug(ctx, tenantID, "flyers")
	require.NoError(t, err)
	require.NotNil(t, found.PricingStructure)
	assert.Equal(t, material.ID, found.PricingStructure.VerticalAxis.GroupID)
	require.Len(t, found.PricingStructure.LayoutRows, 1)
	assert.Equal(t, format.Values[0].ID, found.PricingStructure.LayoutRows[0].ValueIDs[0])

	err = repo.UpdatePricingStructure(ctx, tenantID, uuid.New(), ps)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}
