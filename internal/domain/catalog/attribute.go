package catalog

import (
	"fmt"
	"maps"
	"strings"

	"github.com/erp/priceimport/internal/domain/shared"
	"github.com/google/uuid"
	"golang.org/x/text/cases"
)

// GroupKind classifies an attribute group
type GroupKind string

const (
	GroupKindFormat   GroupKind = "format"
	GroupKindMaterial GroupKind = "material"
	GroupKindFinish   GroupKind = "finish"
	GroupKindOther    GroupKind = "other"
)

// IsValid reports whether k is a known kind
func (k GroupKind) IsValid() bool {
	switch k {
	case GroupKindFormat, GroupKindMaterial, GroupKindFinish, GroupKindOther:
		return true
	}
	return false
}

// NameKey folds a display name into its identity key. Group and value names
// are compared case-insensitively.
func NameKey(name string) string {
	return cases.Fold().String(strings.TrimSpace(name))
}

// AttributeGroup is a named, ordered axis of options on a product
type AttributeGroup struct {
	ID        uuid.UUID
	TenantID  uuid.UUID
	ProductID uuid.UUID
	Name      string
	Kind      GroupKind
	SortOrder int
	Values    []AttributeValue
}

// NewAttributeGroup creates a new group at the given position
func NewAttributeGroup(tenantID, productID uuid.UUID, name string, kind GroupKind, sortOrder int) (*AttributeGroup, error) {
	if strings.TrimSpace(name) == "" {
		return nil, shared.NewDomainError("INVALID_GROUP_NAME", "Attribute group name cannot be empty")
	}
	if !kind.IsValid() {
		return nil, shared.NewDomainError("INVALID_GROUP_KIND", "Attribute group kind must be format, material, finish or other")
	}
	return &AttributeGroup{
		ID:        uuid.New(),
		TenantID:  tenantID,
		ProductID: productID,
		Name:      strings.TrimSpace(name),
		Kind:      kind,
		SortOrder: sortOrder,
	}, nil
}

// NextSortOrder returns the position after the group's last value
func (g *AttributeGroup) NextSortOrder() int {
	next := 0
	for _, v := range g.Values {
		if v.SortOrder >= next {
			next = v.SortOrder + 1
		}
	}
	return next
}

// AttributeValue is one option within a group
type AttributeValue struct {
	ID        uuid.UUID
	GroupID   uuid.UUID
	Name      string
	WidthMM   *int
	HeightMM  *int
	Meta      map[string]any
	SortOrder int
}

// ValueSpec describes the desired state of a value
type ValueSpec struct {
	Name     string
	WidthMM  *int
	HeightMM *int
	Meta     map[string]any
}

// NewAttributeValue creates a value in group at sortOrder
func NewAttributeValue(groupID uuid.UUID, spec ValueSpec, sortOrder int) (*AttributeValue, error) {
	if strings.TrimSpace(spec.Name) == "" {
		return nil, shared.NewDomainError("INVALID_VALUE_NAME", "Attribute value name cannot be empty")
	}
	return &AttributeValue{
		ID:        uuid.New(),
		GroupID:   groupID,
		Name:      strings.TrimSpace(spec.Name),
		WidthMM:   spec.WidthMM,
		HeightMM:  spec.HeightMM,
		Meta:      spec.Meta,
		SortOrder: sortOrder,
	}, nil
}

// ValuePatch carries only the fields of a value that changed
type ValuePatch struct {
	WidthMM  *int
	HeightMM *int
	Meta     map[string]any
}

// IsEmpty reports whether the patch changes nothing
func (p ValuePatch) IsEmpty() bool {
	return p.WidthMM == nil && p.HeightMM == nil && p.Meta == nil
}

// Diff returns the patch turning v into spec. Unset spec fields are left
// alone rather than cleared.
func (v *AttributeValue) Diff(spec ValueSpec) ValuePatch {
	var patch ValuePatch
	if spec.WidthMM != nil && !sameInt(v.WidthMM, spec.WidthMM) {
		patch.WidthMM = spec.WidthMM
	}
	if spec.HeightMM != nil && !sameInt(v.HeightMM, spec.HeightMM) {
		patch.HeightMM = spec.HeightMM
	}
	if spec.Meta != nil && !sameMeta(v.Meta, spec.Meta) {
		patch.Meta = spec.Meta
	}
	return patch
}

// Apply writes the patch onto v
func (v *AttributeValue) Apply(patch ValuePatch) {
	if patch.WidthMM != nil {
		v.WidthMM = patch.WidthMM
	}
	if patch.HeightMM != nil {
		v.HeightMM = patch.HeightMM
	}
	if patch.Meta != nil {
		v.Meta = patch.Meta
	}
}

func sameInt(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func sameMeta(a, b map[string]any) bool {
	return maps.EqualFunc(a, b, func(x, y any) bool {
		return normalizeMeta(x) == normalizeMeta(y)
	})
}

// normalizeMeta compares values loaded from JSON (float64) with ones from a
// descriptor (int) by their printed form.
func normalizeMeta(v any) string {
	return fmt.Sprint(v)
}
