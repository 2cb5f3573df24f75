package catalog

import (
	"regexp"
	"strings"
	"time"

	"github.com/erp/priceimport/internal/domain/shared"
	"github.com/google/uuid"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// Product is a catalog product identified by (tenant, slug)
type Product struct {
	shared.TenantEntity
	Name             string
	Slug             string
	Category         string
	Description      string
	TechnicalSpecs   map[string]any
	PricingStructure *PricingStructure
}

// DefaultTechnicalSpecs returns the specs stored on products created by an
// import when the descriptor lists none.
func DefaultTechnicalSpecs() map[string]any {
	return map[string]any{
		"print_method":    "digital",
		"color_mode":      "CMYK",
		"bleed_mm":        3,
		"file_formats":    []string{"PDF"},
		"min_resolution":  300,
		"production_days": 5,
	}
}

// NewProduct creates a new product
func NewProduct(tenantID uuid.UUID, name, slug, category string) (*Product, error) {
	if tenantID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_TENANT", "Tenant ID cannot be empty")
	}
	if err := validateProductName(name); err != nil {
		return nil, err
	}
	if err := ValidateSlug(slug); err != nil {
		return nil, err
	}

	return &Product{
		TenantEntity:   shared.NewTenantEntity(tenantID),
		Name:           strings.TrimSpace(name),
		Slug:           slug,
		Category:       category,
		TechnicalSpecs: DefaultTechnicalSpecs(),
	}, nil
}

// SetTechnicalSpecs replaces the technical specs; nil restores the defaults
func (p *Product) SetTechnicalSpecs(specs map[string]any) {
	if specs == nil {
		specs = DefaultTechnicalSpecs()
	}
	p.TechnicalSpecs = specs
	p.UpdatedAt = time.Now()
}

// SetPricingStructure attaches the pricing structure
func (p *Product) SetPricingStructure(ps *PricingStructure) {
	p.PricingStructure = ps
	p.UpdatedAt = time.Now()
}

// ValidateSlug checks a product slug
func ValidateSlug(slug string) error {
	if slug == "" {
		return shared.NewDomainError("INVALID_SLUG", "Product slug cannot be empty")
	}
	if len(slug) > 120 {
		return shared.NewDomainError("INVALID_SLUG", "Product slug cannot exceed 120 characters")
	}
	if !slugPattern.MatchString(slug) {
		return shared.NewDomainError("INVALID_SLUG", "Product slug can only contain lowercase letters, numbers and single hyphens")
	}
	return nil
}

func validateProductName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return shared.NewDomainError("INVALID_NAME", "Product name cannot be empty")
	}
	if len(name) > 200 {
		return shared.NewDomainError("INVALID_NAME", "Product name cannot exceed 200 characters")
	}
	return nil
}
