// Package priceimport runs a product's price import: extraction, parsing,
// transformation, mapping and catalog reconciliation.
package priceimport

import (
	"github.com/erp/priceimport/internal/domain/catalog"
	"github.com/erp/priceimport/internal/domain/extraction"
	"github.com/erp/priceimport/internal/domain/pricing"
	"github.com/google/uuid"
)

// SourceMode selects how a plan obtains its items
type SourceMode string

const (
	// SourceModeChain reads one item list per material through the
	// provider chain.
	SourceModeChain SourceMode = "chain"
	// SourceModeMatrix drives a material select and reads the dependent
	// quantity select.
	SourceModeMatrix SourceMode = "matrix"
)

// ProductSpec is the desired product record
type ProductSpec struct {
	Name           string
	Slug           string
	Category       string
	Description    string
	TechnicalSpecs map[string]any
}

// GroupSpec identifies an attribute group by kind and name
type GroupSpec struct {
	Name string
	Kind catalog.GroupKind
}

// MaterialSource is one material value and where its prices come from.
// SourceLabel is the material as the source names it.
type MaterialSource struct {
	Value       catalog.ValueSpec
	SourceLabel string
	URL         string
	Selector    extraction.Selector
}

// ModifierSpec is a fixed value on a non-vertical group that applies to
// every row of the import.
type ModifierSpec struct {
	Group GroupSpec
	Value catalog.ValueSpec
}

// MatrixSource locates the dependent selects of a matrix page
type MatrixSource struct {
	URL            string
	MaterialSelect string
	QuantitySelect string
}

// Plan is a compiled, validated import description
type Plan struct {
	TenantID      uuid.UUID
	Product       ProductSpec
	Mode          SourceMode
	VerticalAxis  catalog.GroupKind
	FormatGroup   string
	Format        catalog.ValueSpec
	MaterialGroup string
	Materials     []MaterialSource
	Modifiers     []ModifierSpec
	// Quantities are the inference targets; empty disables inference
	Quantities    []int
	Matrix        MatrixSource
	Transformer   *pricing.Transformer
	RowOptions    pricing.RowOptions
	ScopeByFormat bool
	BatchSize     int
	// Source is what the plan was compiled from, recorded in snapshots
	Source any
}

// Groups returns the groups the product needs in sort order: format,
// material, then modifier groups in first-seen order.
func (p *Plan) Groups() []GroupSpec {
	groups := []GroupSpec{
		{Name: p.FormatGroup, Kind: catalog.GroupKindFormat},
		{Name: p.MaterialGroup, Kind: catalog.GroupKindMaterial},
	}
	seen := map[string]bool{
		groupKey(groups[0]): true,
		groupKey(groups[1]): true,
	}
	for _, m := range p.Modifiers {
		if seen[groupKey(m.Group)] {
			continue
		}
		seen[groupKey(m.Group)] = true
		groups = append(groups, m.Group)
	}
	return groups
}

// MaterialByLabel finds the material whose source label or name matches label
func (p *Plan) MaterialByLabel(label string) (MaterialSource, bool) {
	key := catalog.NameKey(label)
	for _, m := range p.Materials {
		if catalog.NameKey(m.SourceLabel) == key {
			return m, true
		}
	}
	for _, m := range p.Materials {
		if catalog.NameKey(m.Value.Name) == key {
			return m, true
		}
	}
	return MaterialSource{}, false
}

// SourceLabels returns the source label of every material in order
func (p *Plan) SourceLabels() []string {
	out := make([]string, len(p.Materials))
	for i, m := range p.Materials {
		out[i] = m.SourceLabel
	}
	return out
}

func groupKey(g GroupSpec) string {
	return string(g.Kind) + "/" + catalog.NameKey(g.Name)
}
