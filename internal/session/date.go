package session

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// excelEpoch is day zero of the 1900 date system as spreadsheet files store it.
var excelEpoch = time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)

// ParseDate reads a session date, dropping any time component. Bare numbers
// are read as spreadsheet date serials; other layouts go to dateparse whole.
func ParseDate(raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if isoDate(s) {
		s = s[:10]
	}
	if s == "" {
		return time.Time{}, fmt.Errorf("parse date %q: empty", raw)
	}
	if serial, ok := excelSerial(s); ok {
		return excelEpoch.AddDate(0, 0, serial), nil
	}
	t, err := dateparse.ParseAny(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", raw, err)
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
}

// isoDate reports whether s starts with YYYY-MM-DD followed by nothing, a space or T.
func isoDate(s string) bool {
	if len(s) < 10 || s[4] != '-' || s[7] != '-' {
		return false
	}
	if !allDigits(s[:4]) || !allDigits(s[5:7]) || !allDigits(s[8:10]) {
		return false
	}
	return len(s) == 10 || s[10] == ' ' || s[10] == 'T'
}

// excelSerial accepts up to six integer digits with an optional fraction.
// Longer digit runs such as 20200101 are left to dateparse.
func excelSerial(s string) (int, bool) {
	whole, frac, _ := strings.Cut(s, ".")
	if whole == "" || len(whole) > 6 || !allDigits(whole) || !allDigits(frac) {
		return 0, false
	}
	n, err := strconv.Atoi(whole)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

func allDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// DateKey formats a date as it appears in export filenames.
func DateKey(t time.Time) string {
	return t.Format("2006-01-02")
}

// DaysBetween returns the calendar-day difference b - a.
func DaysBetween(a, b time.Time) int {
	ua := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	ub := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(ub.Sub(ua).Hours() / 24)
}
