package priceimport

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"
)

// SourceReport summarizes one extraction
type SourceReport struct {
	Material  string `json:"material"`
	Provider  string `json:"provider"`
	Items     int    `json:"items"`
	Fallbacks int    `json:"fallbacks"`
}

// Report is the outcome of one run
type Report struct {
	RunID            string           `json:"run_id"`
	Slug             string           `json:"slug"`
	Mode             SourceMode       `json:"mode"`
	DryRun           bool             `json:"dry_run"`
	Sources          []SourceReport   `json:"sources"`
	MissingMaterials []string         `json:"missing_materials,omitempty"`
	ParsedRows       int              `json:"parsed_rows"`
	InferredRows     int              `json:"inferred_rows"`
	MappedRows       int              `json:"mapped_rows"`
	SkippedRows      int              `json:"skipped_rows"`
	SkippedByCode    map[string]int   `json:"skipped_by_code,omitempty"`
	Artifacts        []string         `json:"artifacts,omitempty"`
	Reconcile        *ReconcileResult `json:"reconcile,omitempty"`
	Duration         time.Duration    `json:"duration"`
}

// WriteSummary prints a human-readable summary of the report
func (r *Report) WriteSummary(w io.Writer) {
	fmt.Fprintf(w, "product %s (%s mode", r.Slug, r.Mode)
	if r.DryRun {
		fmt.Fprint(w, ", dry run")
	}
	fmt.Fprintln(w, ")")

	for _, s := range r.Sources {
		fmt.Fprintf(w, "  source %-24s %3d items via %s", s.Material, s.Items, s.Provider)
		if s.Fallbacks > 0 {
			fmt.Fprintf(w, " after %d fallback(s)", s.Fallbacks)
		}
		fmt.Fprintln(w)
	}
	if len(r.MissingMaterials) > 0 {
		fmt.Fprintf(w, "  missing materials: %s\n", strings.Join(r.MissingMaterials, ", "))
	}
	fmt.Fprintf(w, "  rows: %d parsed, %d inferred, %d mapped, %d skipped\n",
		r.ParsedRows, r.InferredRows, r.MappedRows, r.SkippedRows)

	codes := make([]string, 0, len(r.SkippedByCode))
	for code := range r.SkippedByCode {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	for _, code := range codes {
		fmt.Fprintf(w, "    %s: %d\n", code, r.SkippedByCode[code])
	}

	for _, a := range r.Artifacts {
		fmt.Fprintf(w, "  snapshot: %s\n", a)
	}
	if rr := r.Reconcile; rr != nil {
		fmt.Fprintf(w, "  product %s (created: %t)\n", rr.ProductID, rr.ProductCreated)
		fmt.Fprintf(w, "  groups created: %d, values created: %d, values patched: %d\n",
			rr.GroupsCreated, rr.ValuesCreated, rr.ValuesPatched)
		fmt.Fprintf(w, "  price rows: %d deleted, %d inserted in %d batch(es)\n",
			rr.Replace.Deleted, rr.Replace.Inserted, rr.Replace.Batches)
	}
	fmt.Fprintf(w, "  took %s\n", r.Duration.Round(time.Millisecond))
}
