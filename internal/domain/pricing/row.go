// Package pricing holds the pure price-list arithmetic of an import run:
// parsing scraped text into rows, tier-based currency transformation, and
// quantity inference. Nothing in this package performs I/O.
package pricing

import (
	"github.com/shopspring/decimal"
)

// SourceRow is one (material, quantity) observation parsed from a scraped
// text fragment, or inferred from a neighbouring observation.
type SourceRow struct {
	SourceIndex   int             `json:"source_index"`
	MaterialLabel string          `json:"material_label"`
	Quantity      int             `json:"quantity"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	SourceText    string          `json:"source_text"`
	// QuantitySynthetic is set when no quantity was found in the text and a
	// sequential one was assigned.
	QuantitySynthetic bool `json:"quantity_synthetic,omitempty"`
	// InferredFromQuantity is the observed quantity whose price was copied.
	InferredFromQuantity *int `json:"inferred_from_quantity,omitempty"`
}

// IsInferred reports whether the row was cloned from another quantity
func (r SourceRow) IsInferred() bool {
	return r.InferredFromQuantity != nil
}

// TransformedRow is a SourceRow priced in the target currency.
type TransformedRow struct {
	SourceRow
	BaseAmount     decimal.Decimal `json:"base_amount"`
	TierMultiplier decimal.Decimal `json:"tier_multiplier"`
	FinalAmount    int64           `json:"final_amount"`
}

type rowKey struct {
	material string
	quantity int
}

func keyOf(r SourceRow) rowKey {
	return rowKey{material: r.MaterialLabel, quantity: r.Quantity}
}
