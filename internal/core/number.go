package core

import (
	"math"
	"strconv"
	"strings"
	"unicode"
)

// ParseNumber coerces free-form input into a figure.
//
// The longest leading decimal literal is used ("12abc" is 12, " 3.5e2x" is
// 350). Anything without a numeric prefix, and any result that is not a
// finite number, becomes 0.
func ParseNumber(raw string) float64 {
	s := strings.TrimLeftFunc(raw, unicode.IsSpace)
	end := decimalPrefix(s)
	if end == 0 {
		return 0
	}
	v, err := strconv.ParseFloat(s[:end], 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v == 0 {
		return 0
	}
	return v
}

// ParseCommaNumber is ParseNumber after replacing the first comma with a dot,
// the convention of the tabular import format.
func ParseCommaNumber(raw string) float64 {
	return ParseNumber(strings.Replace(raw, ",", ".", 1))
}

// ParseIntPrefix parses the leading integer of raw. ok is false when raw has
// no leading digits.
func ParseIntPrefix(raw string) (n int, ok bool) {
	s := strings.TrimLeftFunc(raw, unicode.IsSpace)
	i := 0
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		i++
	}
	start := i
	for i < len(s) && isDigit(s[i]) {
		i++
	}
	if i == start {
		return 0, false
	}
	v, err := strconv.Atoi(s[:i])
	if err != nil {
		return 0, false
	}
	return v, true
}

func decimalPrefix(s string) int {
	i := 0
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		i++
	}
	start := i
	for i < len(s) && isDigit(s[i]) {
		i++
	}
	intDigits := i - start
	fracDigits := 0
	if i < len(s) && s[i] == '.' {
		j := i + 1
		for j < len(s) && isDigit(s[j]) {
			j++
		}
		fracDigits = j - (i + 1)
		if intDigits > 0 || fracDigits > 0 {
			i = j
		}
	}
	if intDigits == 0 && fracDigits == 0 {
		return 0
	}
	if i < len(s) && (s[i] == 'e' || s[i] == 'E') {
		j := i + 1
		if j < len(s) && (s[j] == '+' || s[j] == '-') {
			j++
		}
		k := j
		for k < len(s) && isDigit(s[k]) {
			k++
		}
		if k > j {
			i = k
		}
	}
	return i
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }
