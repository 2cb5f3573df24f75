package priceimport

import (
	"testing"

	"github.com/erp/priceimport/internal/domain/catalog"
	"github.com/erp/priceimport/internal/domain/pricing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapRows(t *testing.T) {
	plan := testPlan(t)
	skipped := pricing.NewErrorCollection(0)

	rows := MapRows(plan, []pricing.TransformedRow{
		transformedRow(0, "350G MATT", 100, 300),
		transformedRow(1, "Gloss 300g", 100, 330),
		transformedRow(2, "Uncoated 120g", 100, 200),
	}, skipped)

	require.Len(t, rows, 2)
	assert.Equal(t, "Matt 350g", rows[0].Material)
	assert.Equal(t, "85x55 mm", rows[0].Format)
	assert.Equal(t, []AxisSelection{{Group: GroupSpec{Name: "Finish", Kind: catalog.GroupKindFinish}, Value: "None"}}, rows[0].Modifiers)
	assert.Equal(t, "Gloss 300g", rows[1].Material)
	assert.Equal(t, int64(330), rows[1].FinalAmount)

	require.Equal(t, 1, skipped.TotalCount())
	assert.Equal(t, pricing.ErrCodeRowUnmappedMaterial, skipped.Errors()[0].Code)
	assert.Equal(t, 2, skipped.Errors()[0].SourceIndex)
}

func TestPlan_Groups(t *testing.T) {
	plan := testPlan(t)
	plan.Modifiers = append(plan.Modifiers,
		ModifierSpec{Group: GroupSpec{Name: "FINISH", Kind: catalog.GroupKindFinish}, Value: catalog.ValueSpec{Name: "Gloss"}},
		ModifierSpec{Group: GroupSpec{Name: "Corners", Kind: catalog.GroupKindOther}, Value: catalog.ValueSpec{Name: "Round"}},
	)

	groups := plan.Groups()
	require.Len(t, groups, 4)
	assert.Equal(t, catalog.GroupKindFormat, groups[0].Kind)
	assert.Equal(t, catalog.GroupKindMaterial, groups[1].Kind)
	assert.Equal(t, "Finish", groups[2].Name)
	assert.Equal(t, "Corners", groups[3].Name)
}

func TestPlan_MaterialByLabel(t *testing.T) {
	plan := testPlan(t)

	m, ok := plan.MaterialByLabel("  350g MATT ")
	require.True(t, ok)
	assert.Equal(t, "Matt 350g", m.Value.Name)

	m, ok = plan.MaterialByLabel("gloss 300G")
	require.True(t, ok)
	assert.Equal(t, "300g gloss", m.SourceLabel)

	_, ok = plan.MaterialByLabel("kraft")
	assert.False(t, ok)

	assert.Equal(t, []string{"350g matt", "300g gloss"}, plan.SourceLabels())
}

func TestCatalogIndex(t *testing.T) {
	g, err := catalog.NewAttributeGroup(testTenantID, testTenantID, "Material", catalog.GroupKindMaterial, 1)
	require.NoError(t, err)
	g.Values = []catalog.AttributeValue{{ID: testTenantID, Name: "Matt 350g", SortOrder: 0}}

	ix := NewCatalogIndex([]catalog.AttributeGroup{*g})
	found, ok := ix.Group(catalog.GroupKindMaterial, "MATERIAL")
	require.True(t, ok)
	assert.Equal(t, g.ID, found.ID)

	_, ok = ix.Group(catalog.GroupKindFormat, "Material")
	assert.False(t, ok)

	v, ok := ix.Value(found, "matt 350G")
	require.True(t, ok)
	assert.Equal(t, testTenantID, v.ID)

	added := ix.AddValue(found, &catalog.AttributeValue{Name: "Gloss", SortOrder: found.NextSortOrder()})
	assert.Equal(t, 1, added.SortOrder)
	_, ok = ix.Value(found, "gloss")
	assert.True(t, ok)

	replacement := *g
	replacement.Values = nil
	ix.Add(&replacement)
	assert.Equal(t, 1, ix.Len())
	found, _ = ix.Group(catalog.GroupKindMaterial, "material")
	assert.Empty(t, found.Values)
}
