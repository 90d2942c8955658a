package model

import (
	"strconv"
	"strings"
)

// formulaMarkers are tokens that mark a "price" cell as formula or contract
// text rather than a dollar amount. Such cells become notes, not prices.
var formulaMarkers = []string{
	"formula", "algorithm", "see contract", "varies", "case rate",
	"per diem", "percent", "% of",
}

// ParseAmount parses a price cell into a dollar amount. It tolerates
// currency symbols, thousands separators, and accounting-style parentheses
// for negatives. The second return is false for empty or non-numeric cells.
func ParseAmount(s string) (float64, bool) {
	v := strings.TrimSpace(s)
	if v == "" {
		return 0, false
	}

	neg := false
	if strings.HasPrefix(v, "(") && strings.HasSuffix(v, ")") {
		neg = true
		v = v[1 : len(v)-1]
	}
	v = strings.TrimSpace(strings.TrimPrefix(v, "$"))
	v = strings.ReplaceAll(v, ",", "")

	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	if neg {
		f = -f
	}
	return f, true
}

// IsFormulaText reports whether a non-numeric price cell carries formula or
// contract language worth preserving as a note.
func IsFormulaText(s string) bool {
	v := strings.ToLower(strings.TrimSpace(s))
	if v == "" {
		return false
	}
	for _, marker := range formulaMarkers {
		if strings.Contains(v, marker) {
			return true
		}
	}
	return false
}
