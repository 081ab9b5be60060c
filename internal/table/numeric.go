package table

import (
	"math"
	"strconv"
	"strings"
)

// NormalizeDecimal reads s as a finite number, accepting a decimal comma.
func NormalizeDecimal(s string) (float64, bool) {
	raw := strings.TrimSpace(strings.ReplaceAll(s, ",", "."))
	if raw == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// FormatFloat renders f in its shortest round-trip decimal form.
func FormatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
