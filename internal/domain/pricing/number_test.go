package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLocalizedNumber(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
		ok    bool
	}{
		{"european grouping with decimals", "1.234,56", "1234.56", true},
		{"english grouping with decimals", "1,234.56", "1234.56", true},
		{"space grouping", "2 345,00", "2345", true},
		{"non-breaking space grouping", "2\u00a0345,00", "2345", true},
		{"comma decimal", "12,5", "12.5", true},
		{"dot decimal", "12.50", "12.5", true},
		{"dot thousands with three digit tail", "1.234", "1234", true},
		{"comma thousands with three digit tail", "12,500", "12500", true},
		{"repeated dot is grouping", "1.234.567", "1234567", true},
		{"repeated comma is grouping", "1,234,567", "1234567", true},
		{"plain integer", "750", "750", true},
		{"currency noise", "kr. 1.299,00", "1299", true},
		{"danish dash suffix", "100,-", "100", true},
		{"no digits", "n/a", "0", false},
		{"empty", "", "0", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseLocalizedNumber(tt.input)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.True(t, decimal.RequireFromString(tt.want).Equal(got), "got %s", got)
			}
		})
	}
}

func TestExtractCurrencyAmount(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
		ok    bool
	}{
		{"euro sign before", "100 stk. €12,50", "12.5", true},
		{"euro sign after", "100 stk. 12,50 €", "12.5", true},
		{"code before", "EUR 1.234,56 for 500 pcs", "1234.56", true},
		{"kr after", "250 stk - 1.299,00 kr", "1299", true},
		{"kr before with dot", "kr. 899,-", "899", true},
		{"dash suffix", "500 stk 799,-", "799", true},
		{"dollar grouping", "$1,234.50", "1234.5", true},
		{"fallback to first number", "Price 45,90", "45.9", true},
		{"no number", "Call for price", "0", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractCurrencyAmount(tt.input)
			require.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.True(t, decimal.RequireFromString(tt.want).Equal(got), "got %s", got)
			}
		})
	}
}

func TestExtractQuantity(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  int
		ok    bool
	}{
		{"explicit english", "Quantity: 250 - €30,00", 250, true},
		{"explicit danish", "Antal 1.000 stk: 899 kr", 1000, true},
		{"explicit german", "Auflage: 5.000", 5000, true},
		{"unit phrase", "500 stk. 1.299,00 kr", 500, true},
		{"unit phrase pieces", "Order 50 pieces for $20", 50, true},
		{"fraction rounds", "qty 99,6", 100, true},
		{"zero rejected", "0 stk 10 kr", 0, false},
		{"none", "€12,50", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractQuantity(tt.input)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
