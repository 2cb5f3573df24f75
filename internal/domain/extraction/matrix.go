package extraction

import (
	"context"
)

// MatrixRequest describes a page whose prices sit in a quantity select that
// depends on a material select.
type MatrixRequest struct {
	URL            string
	MaterialSelect string
	QuantitySelect string
	// Materials are the material option labels to visit
	Materials []string
}

// MaterialOptions holds the dependent option texts read for one material
type MaterialOptions struct {
	Label string   `json:"label"`
	Value string   `json:"value"`
	Items []string `json:"items"`
}

// MatrixResult is the outcome of one matrix scrape
type MatrixResult struct {
	Materials []MaterialOptions `json:"materials"`
	// Missing lists requested materials without a matching option
	Missing []string `json:"missing,omitempty"`
}

// MatrixScraper reads price lists that need stateful dropdown selection
type MatrixScraper interface {
	Scrape(ctx context.Context, req MatrixRequest) (*MatrixResult, error)
}
