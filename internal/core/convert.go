package core

// convert.go turns raw source cells into values.
//
// The Embrapa exports are not consistent across files or years:
//   - Missing measurements appear as empty cells or markers like "nd" and "*"
//   - Some files use pt-BR separators ("1.234,5"), others US ("1,234.5")
//   - Spreadsheet round-trips leave formula prefixes (="123") and quotes
//
// ParseMeasure accepts all of these and rejects anything else, so a shifted
// column surfaces as a MalformedSourceError instead of a silent zero.

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// errInvalidNumber is wrapped by ParseMeasure for cells that are neither a
// number nor a missing-value marker.
var errInvalidNumber = errors.New("invalid number")

// numericRegex validates a cell after separators have been normalized.
var numericRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)$`)

// missingMarkers are the cell values that mean "no measurement". They count
// as zero.
var missingMarkers = map[string]struct{}{
	"nd":  {},
	"n/d": {},
	"*":   {},
	"-":   {},
	"--":  {},
	"...": {},
}

// totalMarkers are item names of aggregate rows. Totals are derived from the
// facts, never loaded.
var totalMarkers = map[string]struct{}{
	"total":       {},
	"total geral": {},
	"subtotal":    {},
}

// ParseMeasure parses a quantity or value cell.
// Empty cells and missing-value markers return 0.
func ParseMeasure(s string) (float64, error) {
	s = CleanCell(s)
	if s == "" {
		return 0, nil
	}
	if _, ok := missingMarkers[strings.ToLower(s)]; ok {
		return 0, nil
	}

	normalized := normalizeSeparators(strings.ReplaceAll(s, " ", ""))
	if !numericRegex.MatchString(normalized) {
		return 0, fmt.Errorf("%w: %q", errInvalidNumber, s)
	}
	f, err := strconv.ParseFloat(normalized, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", errInvalidNumber, s)
	}
	return f, nil
}

// normalizeSeparators rewrites a number to use '.' as the only decimal
// separator and no grouping.
//
//	"1.234,5" -> "1234.5"   (pt-BR)
//	"1,234.5" -> "1234.5"   (US)
//	"1.234"   -> "1234"     (single '.' before exactly 3 digits groups)
//	"12,5"    -> "12.5"     (single ',' is a decimal comma)
//	"1,234,567" -> "1234567"
func normalizeSeparators(s string) string {
	dots := strings.Count(s, ".")
	commas := strings.Count(s, ",")

	switch {
	case dots > 0 && commas > 0:
		// The separator that comes last is the decimal one.
		if strings.LastIndex(s, ",") > strings.LastIndex(s, ".") {
			s = strings.ReplaceAll(s, ".", "")
			return strings.Replace(s, ",", ".", 1)
		}
		return strings.ReplaceAll(s, ",", "")
	case commas > 1:
		return strings.ReplaceAll(s, ",", "")
	case commas == 1:
		return strings.Replace(s, ",", ".", 1)
	case dots > 1:
		return strings.ReplaceAll(s, ".", "")
	case dots == 1:
		i := strings.IndexByte(s, '.')
		frac := s[i+1:]
		if len(frac) == 3 && i > 0 && isDigits(frac) {
			return s[:i] + frac
		}
		return s
	default:
		return s
	}
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}

// IsTotalMarker reports whether an item name labels an aggregate row.
func IsTotalMarker(name string) bool {
	_, ok := totalMarkers[NormalizeName(name)]
	return ok
}

// ParseYear parses a year column header. Only four-digit years are accepted.
func ParseYear(s string) (int, bool) {
	s = CleanCell(s)
	if len(s) != 4 || !isDigits(s) {
		return 0, false
	}
	y, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return y, true
}

// CleanCell removes common CSV artifacts from a cell value:
// - Trims whitespace (including non-breaking spaces)
// - Removes Excel formula prefix (="...")
// - Removes surrounding quotes
func CleanCell(s string) string {
	s = strings.TrimSpace(strings.ReplaceAll(s, "\u00a0", " "))

	// Remove leading '='
	if strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") {
		s = s[2 : len(s)-1]
	} else if strings.HasPrefix(s, "=") {
		s = s[1:]
	}

	// Remove any surrounding quotes
	s = strings.Trim(s, `"'`)

	return strings.TrimSpace(s)
}
