// Package natsort orders strings the way people read page and file names:
// runs of digits compare by numeric value, everything else compares
// case-insensitively.
package natsort

import (
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Compare returns -1, 0 or +1. Digit runs compare by value (leading zeros
// ignored, any length), other runs by simple case folding. Strings that
// compare equal under those rules fall back to a plain byte comparison so
// that the order is total.
func Compare(a, b string) int {
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		ca, cb := a[i], b[j]
		if isDigit(ca) && isDigit(cb) {
			ei := digitRunEnd(a, i)
			ej := digitRunEnd(b, j)
			if c := compareNumeric(a[i:ei], b[j:ej]); c != 0 {
				return c
			}
			i, j = ei, ej
			continue
		}
		if isDigit(ca) != isDigit(cb) {
			// digits sort before text
			if isDigit(ca) {
				return -1
			}
			return 1
		}

		ra, sa := utf8.DecodeRuneInString(a[i:])
		rb, sb := utf8.DecodeRuneInString(b[j:])
		if c := compareFolded(ra, rb); c != 0 {
			return c
		}
		i += sa
		j += sb
	}

	switch {
	case i < len(a):
		return 1
	case j < len(b):
		return -1
	}
	return strings.Compare(a, b)
}

// Less reports whether a sorts before b.
func Less(a, b string) bool {
	return Compare(a, b) < 0
}

// Sort sorts names in natural order, in place.
func Sort(names []string) {
	slices.SortStableFunc(names, Compare)
}

func isDigit(c byte) bool { return '0' <= c && c <= '9' }

func digitRunEnd(s string, i int) int {
	for i < len(s) && isDigit(s[i]) {
		i++
	}
	return i
}

func compareNumeric(x, y string) int {
	x = strings.TrimLeft(x, "0")
	y = strings.TrimLeft(y, "0")
	if len(x) != len(y) {
		if len(x) < len(y) {
			return -1
		}
		return 1
	}
	return strings.Compare(x, y)
}

func compareFolded(a, b rune) int {
	la, lb := unicode.ToLower(a), unicode.ToLower(b)
	switch {
	case la < lb:
		return -1
	case la > lb:
		return 1
	}
	return 0
}
