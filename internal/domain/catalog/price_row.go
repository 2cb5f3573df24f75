package catalog

import (
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DefaultPriceBatchSize is the number of price rows written per insert
const DefaultPriceBatchSize = 500

// VariantKeySeparator joins value IDs in a variant key
const VariantKeySeparator = "|"

// PriceRow is one generic product price: the price of a variant at a
// quantity for one vertical-axis value.
type PriceRow struct {
	ID           uuid.UUID
	TenantID     uuid.UUID
	ProductID    uuid.UUID
	VariantName  string
	VariantValue string
	Quantity     int
	Price        decimal.Decimal
	ExtraData    map[string]any
}

// PriceRowKey is the uniqueness key of a price row within a product
type PriceRowKey struct {
	VariantName  string
	VariantValue string
	Quantity     int
}

// Key returns the row's uniqueness key
func (r PriceRow) Key() PriceRowKey {
	return PriceRowKey{VariantName: r.VariantName, VariantValue: r.VariantValue, Quantity: r.Quantity}
}

// VariantKey canonicalises the non-vertical value IDs of a variant:
// de-duplicated, sorted and joined. The result does not depend on the order
// in which axes were visited.
func VariantKey(valueIDs []uuid.UUID) string {
	parts := make([]string, 0, len(valueIDs))
	for _, id := range valueIDs {
		if id == uuid.Nil {
			continue
		}
		parts = append(parts, id.String())
	}
	slices.Sort(parts)
	parts = slices.Compact(parts)
	return strings.Join(parts, VariantKeySeparator)
}

// ReplaceScope selects the price rows a replacement deletes
type ReplaceScope struct {
	TenantID  uuid.UUID
	ProductID uuid.UUID
	// FormatValueID narrows the delete to variants containing this format
	// value. Nil replaces every row of the product.
	FormatValueID *uuid.UUID
}

// ReplaceResult reports what a replacement did
type ReplaceResult struct {
	Deleted  int64
	Inserted int
	Batches  int
}
