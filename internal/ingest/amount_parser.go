package ingest

import (
	"regexp"
	"strconv"
	"strings"
)

// amountRegex matches a money figure with an optional magnitude suffix:
// "$5,000", "2.5k", "$1.2 million".
var amountRegex = regexp.MustCompile(`(?i)\$?\s*(\d{1,3}(?:,\d{3})+|\d+)(\.\d+)?\s*(k|thousand|m|mm|million)?\b`)

// parseAmountRange pulls a min/max award range out of free text. A single
// figure is a maximum unless the text says it is a floor. Either bound may
// be nil.
func parseAmountRange(text string) (min, max *float64) {
	lower := strings.ToLower(text)

	var amounts []float64
	for _, m := range amountRegex.FindAllStringSubmatch(text, -1) {
		// bare years and small counts are not money
		hasDollar := strings.Contains(m[0], "$")
		if !hasDollar && m[3] == "" && !strings.Contains(lower, "usd") && !strings.Contains(lower, "dollar") {
			continue
		}
		v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", "")+m[2], 64)
		if err != nil || v <= 0 {
			continue
		}
		switch strings.ToLower(m[3]) {
		case "k", "thousand":
			v *= 1_000
		case "m", "mm", "million":
			v *= 1_000_000
		}
		amounts = append(amounts, v)
	}

	switch len(amounts) {
	case 0:
		return nil, nil
	case 1:
		v := amounts[0]
		if strings.Contains(lower, "minimum") || strings.Contains(lower, "at least") {
			return &v, nil
		}
		return nil, &v
	}

	lo, hi := amounts[0], amounts[0]
	for _, a := range amounts[1:] {
		if a < lo {
			lo = a
		}
		if a > hi {
			hi = a
		}
	}
	if lo == hi {
		return nil, &hi
	}
	return &lo, &hi
}
