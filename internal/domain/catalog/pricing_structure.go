package catalog

import (
	"cmp"
	"encoding/json"
	"slices"

	"github.com/google/uuid"
)

// GroupRef points at one attribute group
type GroupRef struct {
	GroupID uuid.UUID `json:"group_id"`
	Kind    GroupKind `json:"kind"`
}

// LayoutRow is one selector section in the product configurator
type LayoutRow struct {
	GroupID  uuid.UUID   `json:"group_id"`
	Kind     GroupKind   `json:"kind"`
	ValueIDs []uuid.UUID `json:"value_ids"`
}

// PricingStructure tells the presentation layer which group forms the
// rows of the price matrix and in which order the other selectors appear.
// It only carries IDs.
type PricingStructure struct {
	VerticalAxis GroupRef    `json:"vertical_axis"`
	LayoutRows   []LayoutRow `json:"layout_rows"`
}

// NewPricingStructure assembles a structure from groups in display order.
// Value IDs inside each row follow the values' sort order.
func NewPricingStructure(vertical *AttributeGroup, layout []*AttributeGroup) *PricingStructure {
	ps := &PricingStructure{
		VerticalAxis: GroupRef{GroupID: vertical.ID, Kind: vertical.Kind},
		LayoutRows:   make([]LayoutRow, 0, len(layout)),
	}
	for _, g := range layout {
		row := LayoutRow{GroupID: g.ID, Kind: g.Kind, ValueIDs: make([]uuid.UUID, 0, len(g.Values))}
		for _, v := range sortedValues(g.Values) {
			row.ValueIDs = append(row.ValueIDs, v.ID)
		}
		ps.LayoutRows = append(ps.LayoutRows, row)
	}
	return ps
}

// JSON encodes the structure. The output is byte-identical for equal
// structures.
func (ps *PricingStructure) JSON() ([]byte, error) {
	return json.Marshal(ps)
}

// ParsePricingStructure decodes a stored structure; empty input yields nil
func ParsePricingStructure(data []byte) (*PricingStructure, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}
	var ps PricingStructure
	if err := json.Unmarshal(data, &ps); err != nil {
		return nil, err
	}
	return &ps, nil
}

func sortedValues(values []AttributeValue) []AttributeValue {
	out := slices.Clone(values)
	slices.SortStableFunc(out, func(a, b AttributeValue) int {
		return cmp.Compare(a.SortOrder, b.SortOrder)
	})
	return out
}
