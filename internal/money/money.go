// Package money provides shared parsing, formatting and arithmetic for
// escrow amounts.
//
// Amounts travel through the API as decimal strings and are handled
// internally as big.Int values in the smallest unit (6 decimal places,
// 1 unit = 1,000,000).
package money

import (
	"math/big"
	"strings"
)

const Decimals = 6

// Parse converts a decimal string (e.g. "1.50") to its smallest-unit
// big.Int representation (1500000). Returns (nil, false) on invalid input.
//
// Rules:
//   - Empty string returns (0, true)
//   - Negative amounts are rejected
//   - Multiple decimal points are rejected
//   - More than 6 fractional digits are rejected; fewer are zero-padded
func Parse(s string) (*big.Int, bool) {
	if s == "" {
		return big.NewInt(0), true
	}

	if strings.HasPrefix(s, "-") {
		return nil, false
	}

	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return nil, false
	}
	whole := parts[0]
	frac := ""
	if len(parts) > 1 {
		frac = parts[1]
	}

	// Excess precision would be silently lost; reject it instead.
	if len(frac) > Decimals {
		return nil, false
	}
	for len(frac) < Decimals {
		frac += "0"
	}

	combined := whole + frac
	result, ok := new(big.Int).SetString(combined, 10)
	return result, ok
}

// Format converts a smallest-unit big.Int to a human-readable decimal
// string with exactly 6 decimal places (e.g. "1.500000").
func Format(amount *big.Int) string {
	if amount == nil {
		return "0.000000"
	}
	neg := amount.Sign() < 0
	abs := new(big.Int).Abs(amount)
	s := abs.String()
	for len(s) < Decimals+1 {
		s = "0" + s
	}
	decimal := len(s) - Decimals
	result := s[:decimal] + "." + s[decimal:]
	if neg {
		result = "-" + result
	}
	return result
}

// Add sums two decimal strings. Returns ("", false) if either is invalid.
func Add(a, b string) (string, bool) {
	av, ok := Parse(a)
	if !ok {
		return "", false
	}
	bv, ok := Parse(b)
	if !ok {
		return "", false
	}
	return Format(new(big.Int).Add(av, bv)), true
}

// IsPositive reports whether s parses as a strictly positive amount.
func IsPositive(s string) bool {
	v, ok := Parse(s)
	return ok && v.Sign() > 0
}

// Equal reports whether two decimal strings denote the same amount.
func Equal(a, b string) bool {
	av, ok := Parse(a)
	if !ok {
		return false
	}
	bv, ok := Parse(b)
	if !ok {
		return false
	}
	return av.Cmp(bv) == 0
}
