package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// RoundToStep returns the multiple of step nearest to value, rounding halves
// away from zero.
func RoundToStep(value, step decimal.Decimal) decimal.Decimal {
	return value.Div(step).Round(0).Mul(step)
}

// Quote is the transformation of one unit price.
type Quote struct {
	Base       decimal.Decimal
	Multiplier decimal.Decimal
	Final      int64
}

// Transformer converts source-currency unit prices into final target-currency
// amounts.
type Transformer struct {
	currencyMultiplier decimal.Decimal
	roundingStep       decimal.Decimal
	tiers              *TierTable
}

// NewTransformer creates a transformer. Both the currency multiplier and
// the rounding step must be strictly positive.
func NewTransformer(currencyMultiplier, roundingStep decimal.Decimal, tiers *TierTable) (*Transformer, error) {
	if !currencyMultiplier.IsPositive() {
		return nil, fmt.Errorf("%w: currency multiplier must be positive, got %s", ErrInvalidConfiguration, currencyMultiplier)
	}
	if !roundingStep.IsPositive() {
		return nil, fmt.Errorf("%w: rounding step must be positive, got %s", ErrInvalidConfiguration, roundingStep)
	}
	if tiers == nil {
		return nil, fmt.Errorf("%w: tier table is required", ErrInvalidConfiguration)
	}
	return &Transformer{
		currencyMultiplier: currencyMultiplier,
		roundingStep:       roundingStep,
		tiers:              tiers,
	}, nil
}

// Tiers returns the tiers the transformer resolves multipliers from
func (t *Transformer) Tiers() []Tier {
	return t.tiers.Tiers()
}

// Transform prices a single unit price.
func (t *Transformer) Transform(unitPrice decimal.Decimal) Quote {
	base := unitPrice.Mul(t.currencyMultiplier)
	multiplier := t.tiers.Resolve(base)
	final := RoundToStep(base.Mul(multiplier), t.roundingStep).Round(0).IntPart()
	if final < 0 {
		final = 0
	}
	return Quote{Base: base, Multiplier: multiplier, Final: final}
}

// TransformRows prices every row, preserving order.
func (t *Transformer) TransformRows(rows []SourceRow) []TransformedRow {
	out := make([]TransformedRow, 0, len(rows))
	for _, r := range rows {
		q := t.Transform(r.UnitPrice)
		out = append(out, TransformedRow{
			SourceRow:      r,
			BaseAmount:     q.Base,
			TierMultiplier: q.Multiplier,
			FinalAmount:    q.Final,
		})
	}
	return out
}
