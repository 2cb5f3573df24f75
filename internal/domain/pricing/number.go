package pricing

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// numberToken matches a grouped number ("1.234,56", "2 345") before a plain
// one ("12,50", "100").
const numberToken = `\d{1,3}(?:[.,\x{00A0}\x{202F} ]\d{3})+(?:[.,]\d{1,2})?|\d+(?:[.,]\d+)?`

// quantityToken is numberToken without a fractional tail after grouping.
const quantityToken = `\d{1,3}(?:[.,\x{00A0}\x{202F} ]\d{3})+|\d+(?:[.,]\d+)?`

const currencyCodes = `DKK|EUR|USD|SEK|NOK|GBP|CHF`

var (
	numberPattern = regexp.MustCompile(numberToken)

	currencyBeforePattern = regexp.MustCompile(
		`(?i)(?:€|\$|£|\bkr\.?|\b(?:` + currencyCodes + `)\b)\s*(` + numberToken + `)`)
	currencyAfterPattern = regexp.MustCompile(
		`(?i)(` + numberToken + `)\s*(?:€|\$|£|,-|\bkr\b|\b(?:` + currencyCodes + `)\b)`)

	explicitQuantityPattern = regexp.MustCompile(
		`(?i)\b(?:quantity|qty|antal|anzahl|menge|oplag|auflage|stückzahl)\b\s*[:=.]?\s*(` + quantityToken + `)`)
	unitQuantityPattern = regexp.MustCompile(
		`(?i)(` + quantityToken + `)\s*(?:stk|stück|pcs|pieces?|units?|ex)\b`)
)

// ParseLocalizedNumber reads a number written with either '.' or ',' as the
// decimal separator. When both appear the last one is the decimal separator.
// When only one kind appears it groups thousands if it occurs more than once
// or is followed by exactly three trailing digits; otherwise it is decimal.
// Whitespace (including non-breaking spaces) and other noise is ignored.
func ParseLocalizedNumber(text string) (decimal.Decimal, bool) {
	var b strings.Builder
	digits := 0
	for _, r := range text {
		switch {
		case r >= '0' && r <= '9':
			digits++
			b.WriteRune(r)
		case r == '.' || r == ',':
			b.WriteRune(r)
		}
	}
	if digits == 0 {
		return decimal.Zero, false
	}
	cleaned := strings.Trim(b.String(), ".,")

	lastDot := strings.LastIndexByte(cleaned, '.')
	lastComma := strings.LastIndexByte(cleaned, ',')

	var normalized string
	switch {
	case lastDot >= 0 && lastComma >= 0:
		decimalPos := max(lastDot, lastComma)
		normalized = stripSeparators(cleaned[:decimalPos]) + "." + stripSeparators(cleaned[decimalPos+1:])
	case lastDot >= 0 || lastComma >= 0:
		sep := byte('.')
		pos := lastDot
		if lastComma >= 0 {
			sep, pos = ',', lastComma
		}
		tail := len(cleaned) - pos - 1
		if strings.Count(cleaned, string(sep)) > 1 || tail == 3 {
			normalized = stripSeparators(cleaned)
		} else {
			normalized = cleaned[:pos] + "." + cleaned[pos+1:]
		}
	default:
		normalized = cleaned
	}

	value, err := decimal.NewFromString(normalized)
	if err != nil {
		return decimal.Zero, false
	}
	return value, true
}

func stripSeparators(s string) string {
	return strings.NewReplacer(".", "", ",", "").Replace(s)
}

// ExtractCurrencyAmount finds the price in a text fragment. A currency marker
// before the number wins over one after it; with no marker at all the first
// number-looking token is used.
func ExtractCurrencyAmount(text string) (decimal.Decimal, bool) {
	for _, p := range []*regexp.Regexp{currencyBeforePattern, currencyAfterPattern} {
		if m := p.FindStringSubmatch(text); m != nil {
			if v, ok := ParseLocalizedNumber(m[1]); ok {
				return v, true
			}
		}
	}
	if token := numberPattern.FindString(text); token != "" {
		return ParseLocalizedNumber(token)
	}
	return decimal.Zero, false
}

// ExtractQuantity finds an explicit quantity ("Antal: 500") or a unit
// phrase ("500 stk"). The number is rounded to the nearest integer and only
// accepted when positive.
func ExtractQuantity(text string) (int, bool) {
	q, _, ok := locateQuantity(text)
	return q, ok
}

// locateQuantity also returns the byte span of the match so the caller can
// keep the quantity out of the amount search.
func locateQuantity(text string) (int, [2]int, bool) {
	for _, p := range []*regexp.Regexp{explicitQuantityPattern, unitQuantityPattern} {
		loc := p.FindStringSubmatchIndex(text)
		if loc == nil {
			continue
		}
		value, ok := ParseLocalizedNumber(text[loc[2]:loc[3]])
		if !ok {
			continue
		}
		q := value.Round(0).IntPart()
		if q > 0 {
			return int(q), [2]int{loc[0], loc[1]}, true
		}
	}
	return 0, [2]int{}, false
}
