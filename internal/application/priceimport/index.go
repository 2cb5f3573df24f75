package priceimport

import (
	"github.com/erp/priceimport/internal/domain/catalog"
)

// CatalogIndex is the in-memory view of a product's groups and values for
// one reconciliation. It is filled once from the repository and appended to
// as entities are created; it is never shared between runs.
type CatalogIndex struct {
	groups []*catalog.AttributeGroup
	byKey  map[string]*catalog.AttributeGroup
}

// NewCatalogIndex indexes loaded groups by kind and folded name
func NewCatalogIndex(groups []catalog.AttributeGroup) *CatalogIndex {
	ix := &CatalogIndex{byKey: make(map[string]*catalog.AttributeGroup, len(groups))}
	for i := range groups {
		g := groups[i]
		ix.Add(&g)
	}
	return ix
}

func indexKey(kind catalog.GroupKind, name string) string {
	return groupKey(GroupSpec{Name: name, Kind: kind})
}

// Group finds a group by kind and case-insensitive name
func (ix *CatalogIndex) Group(kind catalog.GroupKind, name string) (*catalog.AttributeGroup, bool) {
	g, ok := ix.byKey[indexKey(kind, name)]
	return g, ok
}

// Add records a group. A group with the same kind and name is replaced.
func (ix *CatalogIndex) Add(g *catalog.AttributeGroup) {
	key := indexKey(g.Kind, g.Name)
	if _, exists := ix.byKey[key]; !exists {
		ix.groups = append(ix.groups, g)
	} else {
		for i, existing := range ix.groups {
			if indexKey(existing.Kind, existing.Name) == key {
				ix.groups[i] = g
			}
		}
	}
	ix.byKey[key] = g
}

// Groups returns the indexed groups in load and creation order
func (ix *CatalogIndex) Groups() []*catalog.AttributeGroup {
	return ix.groups
}

// Len returns the number of groups
func (ix *CatalogIndex) Len() int {
	return len(ix.groups)
}

// Value finds a value of g by case-insensitive name
func (ix *CatalogIndex) Value(g *catalog.AttributeGroup, name string) (*catalog.AttributeValue, bool) {
	key := catalog.NameKey(name)
	for i := range g.Values {
		if catalog.NameKey(g.Values[i].Name) == key {
			return &g.Values[i], true
		}
	}
	return nil, false
}

// AddValue appends v to g and returns the stored copy
func (ix *CatalogIndex) AddValue(g *catalog.AttributeGroup, v *catalog.AttributeValue) *catalog.AttributeValue {
	g.Values = append(g.Values, *v)
	return &g.Values[len(g.Values)-1]
}
