package priceimport

import (
	"time"

	"github.com/erp/priceimport/internal/domain/pricing"
)

// ExtractionRecord is the provenance of one source's items
type ExtractionRecord struct {
	Material       string   `json:"material"`
	URL            string   `json:"url"`
	Selector       string   `json:"selector,omitempty"`
	Provider       string   `json:"provider"`
	FallbackErrors []string `json:"fallback_errors,omitempty"`
	Items          []string `json:"items"`
}

// Snapshot is everything a run read and derived before touching the
// catalog. It is written even when the run stops afterwards.
type Snapshot struct {
	RunID       string                   `json:"run_id"`
	TenantID    string                   `json:"tenant_id"`
	Slug        string                   `json:"slug"`
	CreatedAt   time.Time                `json:"created_at"`
	Mode        SourceMode               `json:"mode"`
	Descriptor  any                      `json:"descriptor,omitempty"`
	Extractions []ExtractionRecord       `json:"extractions"`
	Missing     []string                 `json:"missing_materials,omitempty"`
	Skipped     []pricing.RowError       `json:"skipped"`
	Transformed []pricing.TransformedRow `json:"transformed"`
	Mapped      []MappedRow              `json:"mapped"`
}
