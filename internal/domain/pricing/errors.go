package pricing

import (
	"fmt"
	"strings"

	"github.com/erp/priceimport/internal/domain/shared"
)

// Row-level skip reasons
const (
	ErrCodeRowEmptyText         = "ERR_ROW_EMPTY_TEXT"
	ErrCodeRowNoAmount          = "ERR_ROW_NO_AMOUNT"
	ErrCodeRowInvalidAmount     = "ERR_ROW_INVALID_AMOUNT"
	ErrCodeRowQuantityCollision = "ERR_ROW_QUANTITY_COLLISION"
	ErrCodeRowUnmappedMaterial  = "ERR_ROW_UNMAPPED_MATERIAL"
)

var (
	// ErrInvalidTierTable is returned for unsorted or malformed tier tables
	ErrInvalidTierTable = shared.NewDomainError("INVALID_TIER_TABLE", "invalid tier table")

	// ErrInvalidConfiguration is returned for non-positive multipliers or rounding steps
	ErrInvalidConfiguration = shared.ErrInvalidConfiguration

	// ErrNoRowsParsed is returned when every scraped item was skipped
	ErrNoRowsParsed = shared.NewDomainError("NO_ROWS_PARSED", "no price rows survived parsing")
)

// RowError records why a scraped item did not become a SourceRow.
type RowError struct {
	SourceIndex int    `json:"source_index"`
	Material    string `json:"material,omitempty"`
	Code        string `json:"code"`
	Message     string `json:"message"`
	Text        string `json:"text,omitempty"`
}

// Error implements the error interface
func (e RowError) Error() string {
	if e.Material != "" {
		return fmt.Sprintf("item %d (%s): %s", e.SourceIndex, e.Material, e.Message)
	}
	return fmt.Sprintf("item %d: %s", e.SourceIndex, e.Message)
}

// NewRowError creates a new RowError
func NewRowError(index int, material, code, message, text string) RowError {
	return RowError{
		SourceIndex: index,
		Material:    material,
		Code:        code,
		Message:     message,
		Text:        text,
	}
}

// ErrorCollection accumulates row errors up to a limit while still counting
// the ones it drops.
type ErrorCollection struct {
	errors     []RowError
	maxErrors  int
	totalCount int
}

// NewErrorCollection creates a new ErrorCollection with a maximum error limit
func NewErrorCollection(maxErrors int) *ErrorCollection {
	if maxErrors <= 0 {
		maxErrors = 500
	}
	return &ErrorCollection{
		errors:    make([]RowError, 0),
		maxErrors: maxErrors,
	}
}

// Add adds an error to the collection
func (ec *ErrorCollection) Add(err RowError) {
	ec.totalCount++
	if len(ec.errors) < ec.maxErrors {
		ec.errors = append(ec.errors, err)
	}
}

// Merge adds every error of other
func (ec *ErrorCollection) Merge(other *ErrorCollection) {
	if other == nil {
		return
	}
	for _, err := range other.errors {
		ec.Add(err)
	}
	ec.totalCount += other.totalCount - len(other.errors)
}

// Errors returns the collected errors
func (ec *ErrorCollection) Errors() []RowError {
	return ec.errors
}

// TotalCount returns the total number of errors including those not collected
func (ec *ErrorCollection) TotalCount() int {
	return ec.totalCount
}

// HasErrors returns true if there are any errors
func (ec *ErrorCollection) HasErrors() bool {
	return ec.totalCount > 0
}

// IsTruncated returns true if some errors were not collected due to the limit
func (ec *ErrorCollection) IsTruncated() bool {
	return ec.totalCount > ec.maxErrors
}

// ErrorSummary returns a summary of errors by code
func (ec *ErrorCollection) ErrorSummary() map[string]int {
	summary := make(map[string]int)
	for _, err := range ec.errors {
		summary[err.Code]++
	}
	return summary
}

// String returns a string representation of all errors
func (ec *ErrorCollection) String() string {
	if !ec.HasErrors() {
		return "no errors"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d row(s) skipped", ec.totalCount)
	if ec.IsTruncated() {
		fmt.Fprintf(&sb, " (showing first %d)", ec.maxErrors)
	}
	sb.WriteString(":\n")
	for _, err := range ec.errors {
		fmt.Fprintf(&sb, "  - [%s] %s\n", err.Code, err.Error())
	}
	return sb.String()
}
