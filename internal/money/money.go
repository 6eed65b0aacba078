// Package money implements fixed-point currency arithmetic.
//
// Amounts are stored as signed 64-bit integer cents (two fractional
// digits). All rounding happens at the cent boundary, half away from
// zero, so repeated aggregation never accumulates binary floating-point
// drift. The tolerance below which a balance counts as settled is one
// cent, matching the 0.01 threshold of the settlement algorithm.
package money

import (
	"errors"
	"fmt"
	"strings"
)

// Amount is a monetary value in cents.
type Amount int64

// Epsilon is the settlement tolerance: balances strictly below one cent
// in magnitude are treated as zero.
const Epsilon Amount = 1

// ErrTooManyDecimals is returned when an amount string carries more than
// two fractional digits.
var ErrTooManyDecimals = errors.New("amounts are limited to 2 decimal places")

// ParseAmount parses a non-negative decimal string like "10", "10.5" or
// "10.50" into cents. At most two fractional digits are accepted.
func ParseAmount(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty amount")
	}
	whole, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		whole, frac = s[:i], s[i+1:]
		if len(frac) > 2 {
			return 0, ErrTooManyDecimals
		}
	}
	if whole == "" && frac == "" {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	cents := int64(0)
	for _, r := range whole {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("invalid amount %q", s)
		}
		cents = cents*10 + int64(r-'0')
		if cents > (1<<53)/100 {
			return 0, fmt.Errorf("amount %q out of range", s)
		}
	}
	cents *= 100
	scale := int64(10)
	for _, r := range frac {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("invalid amount %q", s)
		}
		cents += int64(r-'0') * scale
		scale /= 10
	}
	return Amount(cents), nil
}

// String renders the amount as a decimal with two fractional digits.
func (a Amount) String() string {
	sign := ""
	if a < 0 {
		sign = "-"
		a = -a
	}
	return fmt.Sprintf("%s%d.%02d", sign, a/100, a%100)
}

// Abs returns the magnitude of the amount.
func (a Amount) Abs() Amount {
	if a < 0 {
		return -a
	}
	return a
}

// IsSettled reports whether the amount is within the settlement
// tolerance of zero.
func (a Amount) IsSettled() bool {
	return a.Abs() < Epsilon
}

// Split divides the amount into n shares, each rounded to the nearest
// cent (half away from zero). The reference behaviour is an exact
// per-head division; rounding per share keeps results on the cent grid.
func (a Amount) Split(n int) Amount {
	if n <= 0 {
		return 0
	}
	return Amount(divRound(int64(a), int64(n)))
}

// rateScale is the fixed denominator for Rate: six fractional digits.
const rateScale = 1_000_000

// Rate is a positive exchange rate with up to six fractional digits,
// stored as millionths.
type Rate int64

// ParseRate parses a decimal string into a Rate. The rate must be
// strictly positive and carry at most six fractional digits.
func ParseRate(s string) (Rate, error) {
	s = strings.TrimSpace(s)
	whole, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		whole, frac = s[:i], s[i+1:]
		if len(frac) > 6 {
			return 0, errors.New("rates are limited to 6 decimal places")
		}
	}
	if whole == "" && frac == "" {
		return 0, fmt.Errorf("invalid rate %q", s)
	}
	units := int64(0)
	for _, r := range whole {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("invalid rate %q", s)
		}
		units = units*10 + int64(r-'0')
		if units > (1<<31) {
			return 0, fmt.Errorf("rate %q out of range", s)
		}
	}
	units *= rateScale
	scale := int64(rateScale / 10)
	for _, r := range frac {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("invalid rate %q", s)
		}
		units += int64(r-'0') * scale
		scale /= 10
	}
	if units <= 0 {
		return 0, errors.New("rate must be positive")
	}
	return Rate(units), nil
}

// Apply converts an amount with this rate, rounding to the nearest cent.
func (r Rate) Apply(a Amount) Amount {
	return Amount(divRound(int64(a)*int64(r), rateScale))
}

// String renders the rate with trailing zeros trimmed.
func (r Rate) String() string {
	s := fmt.Sprintf("%d.%06d", int64(r)/rateScale, int64(r)%rateScale)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}

// divRound divides a by n rounding half away from zero.
func divRound(a, n int64) int64 {
	if n < 0 {
		a, n = -a, -n
	}
	if a >= 0 {
		return (a + n/2) / n
	}
	return -((-a + n/2) / n)
}
