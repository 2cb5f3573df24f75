package models

import (
	"time"

	"github.com/erp/priceimport/internal/domain/catalog"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ProductModel is the persistence model for the Product domain entity.
type ProductModel struct {
	TenantModel
	Name             string  `gorm:"type:varchar(200);not null"`
	Slug             string  `gorm:"type:varchar(120);not null;uniqueIndex:idx_products_tenant_slug"`
	Category         string  `gorm:"type:varchar(100)"`
	Description      string  `gorm:"type:text"`
	TechnicalSpecs   *string `gorm:"type:jsonb"`
	PricingStructure *string `gorm:"type:jsonb"`
}

// TableName returns the table name for GORM
func (ProductModel) TableName() string {
	return "products"
}

// ToDomain converts the persistence model to a domain Product entity.
func (m *ProductModel) ToDomain() (*catalog.Product, error) {
	specs, err := decodeJSON(m.TechnicalSpecs)
	if err != nil {
		return nil, err
	}
	var ps *catalog.PricingStructure
	if m.PricingStructure != nil {
		ps, err = catalog.ParsePricingStructure([]byte(*m.PricingStructure))
		if err != nil {
			return nil, err
		}
	}
	return &catalog.Product{
		TenantEntity:     m.ToDomainTenantEntity(),
		Name:             m.Name,
		Slug:             m.Slug,
		Category:         m.Category,
		Description:      m.Description,
		TechnicalSpecs:   specs,
		PricingStructure: ps,
	}, nil
}

// FromDomain populates the persistence model from a domain Product entity.
func (m *ProductModel) FromDomain(p *catalog.Product) error {
	m.FromDomainTenantEntity(p.TenantEntity)
	m.Name = p.Name
	m.Slug = p.Slug
	m.Category = p.Category
	m.Description = p.Description

	specs, err := EncodeJSON(p.TechnicalSpecs)
	if err != nil {
		return err
	}
	m.TechnicalSpecs = specs

	m.PricingStructure = nil
	if p.PricingStructure != nil {
		data, err := p.PricingStructure.JSON()
		if err != nil {
			return err
		}
		s := string(data)
		m.PricingStructure = &s
	}
	return nil
}

// AttributeGroupModel is the persistence model for an attribute group.
type AttributeGroupModel struct {
	ID        uuid.UUID             `gorm:"type:uuid;primary_key"`
	TenantID  uuid.UUID             `gorm:"type:uuid;not null;index"`
	ProductID uuid.UUID             `gorm:"type:uuid;not null;index"`
	Name      string                `gorm:"type:varchar(100);not null"`
	Kind      string                `gorm:"type:varchar(20);not null"`
	SortOrder int                   `gorm:"not null;default:0"`
	Values    []AttributeValueModel `gorm:"foreignKey:GroupID"`
	CreatedAt time.Time             `gorm:"not null"`
	UpdatedAt time.Time             `gorm:"not null"`
}

// TableName returns the table name for GORM
func (AttributeGroupModel) TableName() string {
	return "product_attribute_groups"
}

// ToDomain converts the model and its loaded values.
func (m *AttributeGroupModel) ToDomain() (*catalog.AttributeGroup, error) {
	g := &catalog.AttributeGroup{
		ID:        m.ID,
		TenantID:  m.TenantID,
		ProductID: m.ProductID,
		Name:      m.Name,
		Kind:      catalog.GroupKind(m.Kind),
		SortOrder: m.SortOrder,
		Values:    make([]catalog.AttributeValue, 0, len(m.Values)),
	}
	for i := range m.Values {
		v, err := m.Values[i].ToDomain()
		if err != nil {
			return nil, err
		}
		g.Values = append(g.Values, *v)
	}
	return g, nil
}

// FromDomain populates the group columns. Values are persisted separately.
func (m *AttributeGroupModel) FromDomain(g *catalog.AttributeGroup) {
	m.ID = g.ID
	m.TenantID = g.TenantID
	m.ProductID = g.ProductID
	m.Name = g.Name
	m.Kind = string(g.Kind)
	m.SortOrder = g.SortOrder
}

// AttributeValueModel is the persistence model for an attribute value.
type AttributeValueModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key"`
	GroupID   uuid.UUID `gorm:"type:uuid;not null;index"`
	Name      string    `gorm:"type:varchar(200);not null"`
	WidthMM   *int
	HeightMM  *int
	Meta      *string   `gorm:"type:jsonb"`
	SortOrder int       `gorm:"not null;default:0"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (AttributeValueModel) TableName() string {
	return "product_attribute_values"
}

// ToDomain converts the model to a domain AttributeValue.
func (m *AttributeValueModel) ToDomain() (*catalog.AttributeValue, error) {
	meta, err := decodeJSON(m.Meta)
	if err != nil {
		return nil, err
	}
	return &catalog.AttributeValue{
		ID:        m.ID,
		GroupID:   m.GroupID,
		Name:      m.Name,
		WidthMM:   m.WidthMM,
		HeightMM:  m.HeightMM,
		Meta:      meta,
		SortOrder: m.SortOrder,
	}, nil
}

// FromDomain populates the model from a domain AttributeValue.
func (m *AttributeValueModel) FromDomain(v *catalog.AttributeValue) error {
	meta, err := EncodeJSON(v.Meta)
	if err != nil {
		return err
	}
	m.ID = v.ID
	m.GroupID = v.GroupID
	m.Name = v.Name
	m.WidthMM = v.WidthMM
	m.HeightMM = v.HeightMM
	m.Meta = meta
	m.SortOrder = v.SortOrder
	return nil
}

// GenericPriceModel is one row of generic_product_prices.
type GenericPriceModel struct {
	ID           uuid.UUID       `gorm:"type:uuid;primary_key"`
	TenantID     uuid.UUID       `gorm:"type:uuid;not null;index"`
	ProductID    uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_generic_prices_variant,priority:1"`
	VariantName  string          `gorm:"type:text;not null;uniqueIndex:idx_generic_prices_variant,priority:2"`
	VariantValue string          `gorm:"type:text;not null;uniqueIndex:idx_generic_prices_variant,priority:3"`
	Quantity     int             `gorm:"not null;uniqueIndex:idx_generic_prices_variant,priority:4"`
	Price        decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	ExtraData    *string         `gorm:"type:jsonb"`
	CreatedAt    time.Time       `gorm:"not null"`
}

// TableName returns the table name for GORM
func (GenericPriceModel) TableName() string {
	return "generic_product_prices"
}

// ToDomain converts the model to a domain PriceRow.
func (m *GenericPriceModel) ToDomain() (*catalog.PriceRow, error) {
	extra, err := decodeJSON(m.ExtraData)
	if err != nil {
		return nil, err
	}
	return &catalog.PriceRow{
		ID:           m.ID,
		TenantID:     m.TenantID,
		ProductID:    m.ProductID,
		VariantName:  m.VariantName,
		VariantValue: m.VariantValue,
		Quantity:     m.Quantity,
		Price:        m.Price,
		ExtraData:    extra,
	}, nil
}

// FromDomain populates the model from a domain PriceRow. Rows without an
// ID get a fresh one.
func (m *GenericPriceModel) FromDomain(r *catalog.PriceRow) error {
	extra, err := EncodeJSON(r.ExtraData)
	if err != nil {
		return err
	}
	m.ID = r.ID
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	m.TenantID = r.TenantID
	m.ProductID = r.ProductID
	m.VariantName = r.VariantName
	m.VariantValue = r.VariantValue
	m.Quantity = r.Quantity
	m.Price = r.Price
	m.ExtraData = extra
	return nil
}
