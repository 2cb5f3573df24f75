package descriptor

import (
	"fmt"

	"github.com/erp/priceimport/internal/application/priceimport"
	"github.com/erp/priceimport/internal/domain/catalog"
	"github.com/erp/priceimport/internal/domain/extraction"
	"github.com/erp/priceimport/internal/domain/pricing"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TierTable builds the validated tier table of the descriptor
func (d *Descriptor) TierTable() (*pricing.TierTable, error) {
	tiers := make([]pricing.Tier, 0, len(d.PricingImport.Tiers))
	for _, t := range d.PricingImport.Tiers {
		tier := pricing.UnboundedTier(decimal.NewFromFloat(t.Multiplier))
		if t.MaxBase != nil {
			tier = pricing.BoundedTier(decimal.NewFromFloat(*t.MaxBase), tier.Multiplier)
		}
		tiers = append(tiers, tier)
	}
	return pricing.NewTierTable(tiers)
}

// Transformer builds the price transformer of the descriptor
func (d *Descriptor) Transformer() (*pricing.Transformer, error) {
	table, err := d.TierTable()
	if err != nil {
		return nil, err
	}
	return pricing.NewTransformer(
		decimal.NewFromFloat(d.PricingImport.CurrencyMultiplier),
		decimal.NewFromFloat(d.PricingImport.RoundingStep),
		table,
	)
}

// Compile turns a validated descriptor into an import plan
func Compile(d *Descriptor) (*priceimport.Plan, error) {
	tenantID, err := uuid.Parse(d.TenantID)
	if err != nil {
		return nil, fmt.Errorf("descriptor: tenant_id: %w", err)
	}
	transformer, err := d.Transformer()
	if err != nil {
		return nil, err
	}

	plan := &priceimport.Plan{
		TenantID: tenantID,
		Product: priceimport.ProductSpec{
			Name:           d.Product.Name,
			Slug:           d.Product.Slug,
			Category:       d.Product.Category,
			Description:    d.Product.Description,
			TechnicalSpecs: d.Product.TechnicalSpecs,
		},
		Mode:         priceimport.SourceMode(d.PricingImport.Mode),
		VerticalAxis: catalog.GroupKind(d.Matrix.VerticalAxis),
		FormatGroup:  d.Matrix.Format.Group,
		Format: catalog.ValueSpec{
			Name:     d.Matrix.Format.Name,
			WidthMM:  d.Matrix.Format.WidthMM,
			HeightMM: d.Matrix.Format.HeightMM,
		},
		MaterialGroup: d.Matrix.MaterialGroup,
		Quantities:    d.Matrix.Quantities,
		Matrix: priceimport.MatrixSource{
			URL:            d.PricingImport.SourceURL,
			MaterialSelect: d.PricingImport.MaterialSelect,
			QuantitySelect: d.PricingImport.QuantitySelect,
		},
		Transformer: transformer,
		RowOptions: pricing.RowOptions{
			QuantityStart: d.PricingImport.DefaultQuantityStart,
			QuantityStep:  d.PricingImport.DefaultQuantityStep,
		},
		ScopeByFormat: d.PricingImport.ScopeByFormat,
		BatchSize:     d.PricingImport.BatchSize,
		Source:        d,
	}

	for i, m := range d.Matrix.Materials {
		src := priceimport.MaterialSource{
			Value:       catalog.ValueSpec{Name: m.Name, Meta: m.Meta},
			SourceLabel: m.SourceLabel,
			URL:         m.SourceURL,
		}
		if plan.Mode == priceimport.SourceModeChain {
			sel, err := extraction.ParseSelector(m.ItemSelector)
			if err != nil {
				return nil, fmt.Errorf("descriptor: matrix.materials[%d].item_selector: %w", i, err)
			}
			src.Selector = sel
		}
		plan.Materials = append(plan.Materials, src)
	}
	for _, mod := range d.Matrix.Modifiers {
		plan.Modifiers = append(plan.Modifiers, priceimport.ModifierSpec{
			Group: priceimport.GroupSpec{Name: mod.Group, Kind: catalog.GroupKind(mod.Kind)},
			Value: catalog.ValueSpec{Name: mod.Name, Meta: mod.Meta},
		})
	}
	return plan, nil
}
