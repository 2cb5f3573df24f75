// Package descriptor loads product import descriptors. A descriptor is a
// YAML, JSON or TOML file declaring the product, its attribute matrix and
// where and how its prices are imported.
package descriptor

import (
	"github.com/erp/priceimport/internal/domain/catalog"
	"github.com/erp/priceimport/internal/domain/pricing"
)

// Descriptor is the on-disk shape of a product import
type Descriptor struct {
	TenantID      string        `mapstructure:"tenant_id" json:"tenant_id" validate:"required,uuid"`
	Product       Product       `mapstructure:"product" json:"product"`
	Matrix        Matrix        `mapstructure:"matrix" json:"matrix"`
	PricingImport PricingImport `mapstructure:"pricing_import" json:"pricing_import"`
}

// Product holds the product record fields
type Product struct {
	Name           string         `mapstructure:"name" json:"name" validate:"required,max=200"`
	Slug           string         `mapstructure:"slug" json:"slug" validate:"required,slug"`
	Category       string         `mapstructure:"category" json:"category" validate:"max=100"`
	Description    string         `mapstructure:"description" json:"description,omitempty"`
	TechnicalSpecs map[string]any `mapstructure:"technical_specs" json:"technical_specs,omitempty"`
}

// Matrix declares the attribute groups and values of the product
type Matrix struct {
	VerticalAxis  string     `mapstructure:"vertical_axis" json:"vertical_axis" validate:"oneof=material format"`
	MaterialGroup string     `mapstructure:"material_group" json:"material_group" validate:"required,max=100"`
	Format        Format     `mapstructure:"format" json:"format"`
	Materials     []Material `mapstructure:"materials" json:"materials" validate:"required,min=1,dive"`
	Modifiers     []Modifier `mapstructure:"modifiers" json:"modifiers,omitempty" validate:"dive"`
	Quantities    []int      `mapstructure:"quantities" json:"quantities,omitempty" validate:"dive,gt=0"`
}

// Format is the single format value the imported prices belong to
type Format struct {
	Group    string `mapstructure:"group" json:"group" validate:"required,max=100"`
	Name     string `mapstructure:"name" json:"name" validate:"required,max=100"`
	WidthMM  *int   `mapstructure:"width_mm" json:"width_mm,omitempty" validate:"omitempty,gt=0"`
	HeightMM *int   `mapstructure:"height_mm" json:"height_mm,omitempty" validate:"omitempty,gt=0"`
}

// Material is one material value. SourceLabel is how the source page names
// it and defaults to Name. In chain mode a material may override the page
// and item selector it is read from.
type Material struct {
	Name         string         `mapstructure:"name" json:"name" validate:"required,max=100"`
	SourceLabel  string         `mapstructure:"source_label" json:"source_label,omitempty"`
	SourceURL    string         `mapstructure:"source_url" json:"source_url,omitempty" validate:"omitempty,url"`
	ItemSelector string         `mapstructure:"item_selector" json:"item_selector,omitempty" validate:"omitempty,selector"`
	Meta         map[string]any `mapstructure:"meta" json:"meta,omitempty"`
}

// Modifier is a fixed value on an extra group, such as a finish
type Modifier struct {
	Group string         `mapstructure:"group" json:"group" validate:"required,max=100"`
	Kind  string         `mapstructure:"kind" json:"kind" validate:"required,oneof=finish other"`
	Name  string         `mapstructure:"name" json:"name" validate:"required,max=100"`
	Meta  map[string]any `mapstructure:"meta" json:"meta,omitempty"`
}

// PricingImport configures extraction and price transformation
type PricingImport struct {
	Mode                 string  `mapstructure:"mode" json:"mode" validate:"oneof=chain matrix"`
	SourceURL            string  `mapstructure:"source_url" json:"source_url,omitempty" validate:"omitempty,url"`
	ItemSelector         string  `mapstructure:"item_selector" json:"item_selector,omitempty" validate:"omitempty,selector"`
	MaterialSelect       string  `mapstructure:"material_select" json:"material_select,omitempty" validate:"required_if=Mode matrix"`
	QuantitySelect       string  `mapstructure:"quantity_select" json:"quantity_select,omitempty" validate:"required_if=Mode matrix"`
	CurrencyMultiplier   float64 `mapstructure:"currency_multiplier" json:"currency_multiplier" validate:"gt=0"`
	RoundingStep         float64 `mapstructure:"rounding_step" json:"rounding_step" validate:"gt=0"`
	DefaultQuantityStart int     `mapstructure:"default_quantity_start" json:"default_quantity_start" validate:"gt=0"`
	DefaultQuantityStep  int     `mapstructure:"default_quantity_step" json:"default_quantity_step" validate:"gt=0"`
	Tiers                []Tier  `mapstructure:"tiers" json:"tiers" validate:"required,min=1,dive"`
	ScopeByFormat        bool    `mapstructure:"scope_by_format" json:"scope_by_format"`
	BatchSize            int     `mapstructure:"batch_size" json:"batch_size" validate:"gt=0,lte=5000"`
}

// Tier is one tier table row. An omitted max_base marks the unbounded tier.
type Tier struct {
	MaxBase    *float64 `mapstructure:"max_base" json:"max_base,omitempty" validate:"omitempty,gt=0"`
	Multiplier float64  `mapstructure:"multiplier" json:"multiplier" validate:"gt=0"`
}

// Defaults are the named records injected into a descriptor at parse time
// for every field it leaves unset.
type Defaults struct {
	Mode           string
	VerticalAxis   string
	FormatGroup    string
	MaterialGroup  string
	QuantityStart  int
	QuantityStep   int
	BatchSize      int
	Tiers          []pricing.Tier
	TechnicalSpecs func() map[string]any
}

// StandardDefaults are the defaults of Load
var StandardDefaults = Defaults{
	Mode:           "chain",
	VerticalAxis:   string(catalog.GroupKindMaterial),
	FormatGroup:    "Format",
	MaterialGroup:  "Material",
	QuantityStart:  pricing.DefaultQuantityStart,
	QuantityStep:   pricing.DefaultQuantityStep,
	BatchSize:      catalog.DefaultPriceBatchSize,
	Tiers:          pricing.DefaultTiers,
	TechnicalSpecs: catalog.DefaultTechnicalSpecs,
}

func (d *Descriptor) applyDefaults(defaults Defaults) {
	pi := &d.PricingImport
	if pi.Mode == "" {
		pi.Mode = defaults.Mode
	}
	if pi.DefaultQuantityStart == 0 {
		pi.DefaultQuantityStart = defaults.QuantityStart
	}
	if pi.DefaultQuantityStep == 0 {
		pi.DefaultQuantityStep = defaults.QuantityStep
	}
	if pi.BatchSize == 0 {
		pi.BatchSize = defaults.BatchSize
	}
	if len(pi.Tiers) == 0 {
		pi.Tiers = tiersFromDomain(defaults.Tiers)
	}

	m := &d.Matrix
	if m.VerticalAxis == "" {
		m.VerticalAxis = defaults.VerticalAxis
	}
	if m.MaterialGroup == "" {
		m.MaterialGroup = defaults.MaterialGroup
	}
	if m.Format.Group == "" {
		m.Format.Group = defaults.FormatGroup
	}
	for i := range m.Materials {
		mat := &m.Materials[i]
		if mat.SourceLabel == "" {
			mat.SourceLabel = mat.Name
		}
		if pi.Mode == string(modeChain) {
			if mat.SourceURL == "" {
				mat.SourceURL = pi.SourceURL
			}
			if mat.ItemSelector == "" {
				mat.ItemSelector = pi.ItemSelector
			}
		}
	}

	if d.Product.TechnicalSpecs == nil && defaults.TechnicalSpecs != nil {
		d.Product.TechnicalSpecs = defaults.TechnicalSpecs()
	}
}

func tiersFromDomain(tiers []pricing.Tier) []Tier {
	out := make([]Tier, 0, len(tiers))
	for _, t := range tiers {
		row := Tier{Multiplier: t.Multiplier.InexactFloat64()}
		if t.MaxBase != nil {
			v := t.MaxBase.InexactFloat64()
			row.MaxBase = &v
		}
		out = append(out, row)
	}
	return out
}
