package priceimport

import (
	"fmt"

	"github.com/erp/priceimport/internal/domain/pricing"
)

// AxisSelection is the value chosen on one non-format, non-material group
type AxisSelection struct {
	Group GroupSpec `json:"group"`
	Value string    `json:"value"`
}

// MappedRow is a transformed row placed on every selector axis of the
// product. Each one becomes a price-row candidate.
type MappedRow struct {
	pricing.TransformedRow
	Format    string          `json:"format"`
	Material  string          `json:"material"`
	Modifiers []AxisSelection `json:"modifiers,omitempty"`
}

// MapRows resolves each row's source material label to a catalog material
// and attaches the plan's format and modifiers. Rows whose label matches no
// material are recorded in skipped with ERR_ROW_UNMAPPED_MATERIAL.
func MapRows(plan *Plan, rows []pricing.TransformedRow, skipped *pricing.ErrorCollection) []MappedRow {
	modifiers := make([]AxisSelection, 0, len(plan.Modifiers))
	for _, m := range plan.Modifiers {
		modifiers = append(modifiers, AxisSelection{Group: m.Group, Value: m.Value.Name})
	}

	out := make([]MappedRow, 0, len(rows))
	for _, r := range rows {
		material, ok := plan.MaterialByLabel(r.MaterialLabel)
		if !ok {
			skipped.Add(pricing.NewRowError(r.SourceIndex, r.MaterialLabel, pricing.ErrCodeRowUnmappedMaterial,
				fmt.Sprintf("no material is configured for source label %q", r.MaterialLabel), r.SourceText))
			continue
		}
		out = append(out, MappedRow{
			TransformedRow: r,
			Format:         plan.Format.Name,
			Material:       material.Value.Name,
			Modifiers:      modifiers,
		})
	}
	return out
}
