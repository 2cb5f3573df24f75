package pricing

import (
	"sort"
)

// FillMissingQuantities gives every material a row at every target quantity.
// A missing target copies the price of the nearest observed quantity of the
// same material (ties go to the smaller one) and records where it came from.
// Materials without any observed row are left alone. Inferred rows follow
// the input rows, grouped by material in first-seen order.
func FillMissingQuantities(rows []TransformedRow, targets []int) []TransformedRow {
	if len(targets) == 0 || len(rows) == 0 {
		return rows
	}
	wanted := uniqueSorted(targets)

	var materials []string
	observed := make(map[string]map[int]TransformedRow)
	for _, r := range rows {
		byQty, ok := observed[r.MaterialLabel]
		if !ok {
			byQty = make(map[int]TransformedRow)
			observed[r.MaterialLabel] = byQty
			materials = append(materials, r.MaterialLabel)
		}
		if r.IsInferred() {
			continue
		}
		byQty[r.Quantity] = r
	}

	out := make([]TransformedRow, len(rows), len(rows)+len(materials)*len(wanted))
	copy(out, rows)

	for _, material := range materials {
		byQty := observed[material]
		if len(byQty) == 0 {
			continue
		}
		known := make([]int, 0, len(byQty))
		for q := range byQty {
			known = append(known, q)
		}
		sort.Ints(known)

		for _, target := range wanted {
			if _, ok := byQty[target]; ok {
				continue
			}
			src := nearest(known, target)
			clone := byQty[src]
			clone.Quantity = target
			clone.QuantitySynthetic = false
			from := src
			clone.InferredFromQuantity = &from
			out = append(out, clone)
		}
	}
	return out
}

// nearest picks the candidate with the smallest distance to target; known is
// ascending so the first minimum is the smaller quantity.
func nearest(known []int, target int) int {
	best := known[0]
	bestDist := abs(best - target)
	for _, q := range known[1:] {
		if dist := abs(q - target); dist < bestDist {
			best, bestDist = q, dist
		}
	}
	return best
}

// DedupeRows collapses rows sharing (material, quantity). The last row wins
// and takes the position of the first occurrence.
func DedupeRows(rows []TransformedRow) []TransformedRow {
	index := make(map[rowKey]int, len(rows))
	out := make([]TransformedRow, 0, len(rows))
	for _, r := range rows {
		k := keyOf(r.SourceRow)
		if pos, ok := index[k]; ok {
			out[pos] = r
			continue
		}
		index[k] = len(out)
		out = append(out, r)
	}
	return out
}

func uniqueSorted(values []int) []int {
	seen := make(map[int]struct{}, len(values))
	out := make([]int, 0, len(values))
	for _, v := range values {
		if v <= 0 {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Ints(out)
	return out
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
