package pricing

import (
	"strings"
)

// Synthetic quantity defaults used when a descriptor leaves them unset.
const (
	DefaultQuantityStart = 100
	DefaultQuantityStep  = 100
	// DefaultMaxQuantityBumps bounds how far a colliding synthetic quantity
	// is pushed forward before the row is given up.
	DefaultMaxQuantityBumps = 50
)

// RowOptions controls synthetic quantity assignment.
type RowOptions struct {
	QuantityStart int
	QuantityStep  int
	MaxBumps      int
}

func (o RowOptions) normalized() RowOptions {
	if o.QuantityStart <= 0 {
		o.QuantityStart = DefaultQuantityStart
	}
	if o.QuantityStep <= 0 {
		o.QuantityStep = DefaultQuantityStep
	}
	if o.MaxBumps <= 0 {
		o.MaxBumps = DefaultMaxQuantityBumps
	}
	return o
}

// BuildResult is the outcome of turning one source's items into rows.
type BuildResult struct {
	Rows    []SourceRow
	Skipped *ErrorCollection
}

type parsedItem struct {
	index    int
	text     string
	amount   string
	quantity int
	hasQty   bool
}

// BuildSourceRows parses the scraped items of one material source. Every
// item needs a positive currency amount; a missing quantity is replaced by
// start+index*step, pushed forward by step until it is unused within this
// source. Items that cannot become a row are recorded in Skipped.
func BuildSourceRows(items []string, material string, opts RowOptions) BuildResult {
	opts = opts.normalized()
	result := BuildResult{
		Rows:    make([]SourceRow, 0, len(items)),
		Skipped: NewErrorCollection(0),
	}

	// Explicit quantities are reserved first so a synthetic one never takes
	// a quantity the page states further down.
	parsed := make([]parsedItem, 0, len(items))
	used := make(map[int]struct{})
	for i, raw := range items {
		text := strings.Join(strings.Fields(raw), " ")
		if text == "" {
			result.Skipped.Add(NewRowError(i, material, ErrCodeRowEmptyText, "empty text fragment", raw))
			continue
		}
		item := parsedItem{index: i, text: text, amount: text}
		if q, span, ok := locateQuantity(text); ok {
			item.quantity, item.hasQty = q, true
			item.amount = text[:span[0]] + " " + text[span[1]:]
			used[q] = struct{}{}
		}
		parsed = append(parsed, item)
	}

	for _, item := range parsed {
		amount, ok := ExtractCurrencyAmount(item.amount)
		if !ok {
			result.Skipped.Add(NewRowError(item.index, material, ErrCodeRowNoAmount, "no currency amount found", item.text))
			continue
		}
		if !amount.IsPositive() {
			result.Skipped.Add(NewRowError(item.index, material, ErrCodeRowInvalidAmount, "amount must be positive", item.text))
			continue
		}

		row := SourceRow{
			SourceIndex:   item.index,
			MaterialLabel: material,
			Quantity:      item.quantity,
			UnitPrice:     amount,
			SourceText:    item.text,
		}
		if !item.hasQty {
			q, ok := syntheticQuantity(item.index, opts, used)
			if !ok {
				result.Skipped.Add(NewRowError(item.index, material, ErrCodeRowQuantityCollision,
					"synthetic quantity collides with existing quantities", item.text))
				continue
			}
			used[q] = struct{}{}
			row.Quantity = q
			row.QuantitySynthetic = true
		}
		result.Rows = append(result.Rows, row)
	}

	return result
}

func syntheticQuantity(index int, opts RowOptions, used map[int]struct{}) (int, bool) {
	q := opts.QuantityStart + index*opts.QuantityStep
	for bump := 0; bump <= opts.MaxBumps; bump++ {
		if _, taken := used[q]; !taken {
			return q, true
		}
		q += opts.QuantityStep
	}
	return 0, false
}
