package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Tier is one row of a tier table. A nil MaxBase marks the unbounded
// catch-all tier, which may only be last.
type Tier struct {
	MaxBase    *decimal.Decimal `json:"max_base,omitempty"`
	Multiplier decimal.Decimal  `json:"multiplier"`
}

// BoundedTier creates a tier with an inclusive upper bound
func BoundedTier(maxBase, multiplier decimal.Decimal) Tier {
	return Tier{MaxBase: &maxBase, Multiplier: multiplier}
}

// UnboundedTier creates the catch-all tier
func UnboundedTier(multiplier decimal.Decimal) Tier {
	return Tier{Multiplier: multiplier}
}

// DefaultTiers is injected by descriptors that do not list their own tiers.
var DefaultTiers = []Tier{
	BoundedTier(decimal.NewFromInt(3000), decimal.RequireFromString("1.5")),
	BoundedTier(decimal.NewFromInt(10000), decimal.RequireFromString("1.4")),
	UnboundedTier(decimal.RequireFromString("1.3")),
}

// TierTable is a validated, ascending list of tiers.
type TierTable struct {
	tiers []Tier
}

// NewTierTable validates tiers. The table must be non-empty, sorted strictly
// ascending by MaxBase, carry positive multipliers, and have at most one
// unbounded tier in last position.
func NewTierTable(tiers []Tier) (*TierTable, error) {
	if len(tiers) == 0 {
		return nil, fmt.Errorf("%w: at least one tier is required", ErrInvalidTierTable)
	}

	var prev *decimal.Decimal
	for i, t := range tiers {
		if !t.Multiplier.IsPositive() {
			return nil, fmt.Errorf("%w: tier %d multiplier must be positive", ErrInvalidTierTable, i)
		}
		if t.MaxBase == nil {
			if i != len(tiers)-1 {
				return nil, fmt.Errorf("%w: only the last tier may omit max_base (tier %d)", ErrInvalidTierTable, i)
			}
			continue
		}
		if !t.MaxBase.IsPositive() {
			return nil, fmt.Errorf("%w: tier %d max_base must be positive", ErrInvalidTierTable, i)
		}
		if prev != nil && !t.MaxBase.GreaterThan(*prev) {
			return nil, fmt.Errorf("%w: tier %d max_base %s is not above %s", ErrInvalidTierTable, i, t.MaxBase, prev)
		}
		prev = t.MaxBase
	}

	copied := make([]Tier, len(tiers))
	copy(copied, tiers)
	return &TierTable{tiers: copied}, nil
}

// Tiers returns a copy of the tiers
func (t *TierTable) Tiers() []Tier {
	out := make([]Tier, len(t.tiers))
	copy(out, t.tiers)
	return out
}

// Resolve returns the multiplier of the first tier whose MaxBase is at least
// base. Without a match the unbounded tier applies; a table with no
// unbounded tier falls back to its last tier.
func (t *TierTable) Resolve(base decimal.Decimal) decimal.Decimal {
	for _, tier := range t.tiers {
		if tier.MaxBase != nil && base.LessThanOrEqual(*tier.MaxBase) {
			return tier.Multiplier
		}
	}
	return t.tiers[len(t.tiers)-1].Multiplier
}
