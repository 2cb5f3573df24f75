package extraction

import (
	"context"
)

// Provider names
const (
	ProviderHosted  = "hosted"
	ProviderBrowser = "browser"
	ProviderStatic  = "static"
)

// Provider extracts item texts from a page
type Provider interface {
	// Name identifies the provider in results and errors
	Name() string
	// Extract returns the text of every item under the container matched by
	// selector. An empty result must be reported as an error.
	Extract(ctx context.Context, url string, selector Selector) ([]string, error)
}

// Result is a successful extraction
type Result struct {
	Provider string   `json:"provider"`
	Items    []string `json:"items"`
	// FallbackErrors explains why earlier providers were skipped
	FallbackErrors []*ProviderError `json:"fallback_errors,omitempty"`
}

// FallbackMessages returns the fallback errors as plain strings
func (r *Result) FallbackMessages() []string {
	out := make([]string, 0, len(r.FallbackErrors))
	for _, e := range r.FallbackErrors {
		out = append(out, e.Error())
	}
	return out
}
