// Package money provides integer minor-unit arithmetic for ledger amounts.
//
// Every amount in the ledger is an int64 count of minor units (cents for USD).
// Products are computed in 128 bits so amount*weight never overflows before
// division. Display and parsing go through govalues/money so the number of
// minor digits follows the currency.
package money

import (
	"fmt"
	"math/bits"

	gmoney "github.com/govalues/money"
)

// MulDivFloor returns floor(a*num/den) and the remainder for non-negative
// a and num with num <= den. It panics on a zero or negative den.
func MulDivFloor(a, num, den int64) (q, rem int64) {
	if den <= 0 {
		panic("money: non-positive divisor")
	}
	hi, lo := bits.Mul64(uint64(a), uint64(num))
	quo, r := bits.Div64(hi, lo, uint64(den))
	return int64(quo), int64(r)
}

// MulDivRound returns a*num/den rounded to the nearest minor unit, halves up.
func MulDivRound(a, num, den int64) int64 {
	q, rem := MulDivFloor(a, num, den)
	if rem >= den-rem {
		q++
	}
	return q
}

// DivRound returns a/n rounded to the nearest minor unit, halves up.
func DivRound(a, n int64) int64 {
	return MulDivRound(a, 1, n)
}

// WithinTolerance reports whether |residual| <= tolerance.
func WithinTolerance(residual, tolerance int64) bool {
	if residual < 0 {
		residual = -residual
	}
	return residual <= tolerance
}

// ValidCurrency reports whether code is a known ISO 4217 currency.
func ValidCurrency(code string) bool {
	_, err := gmoney.ParseCurr(code)
	return err == nil
}

// Format renders minor units in the given currency, e.g. "USD 40.00".
// Unknown currencies fall back to the bare minor-unit count.
func Format(currency string, minor int64) string {
	amt, err := gmoney.NewAmountFromMinorUnits(currency, minor)
	if err != nil {
		return fmt.Sprintf("%d", minor)
	}
	return amt.String()
}

// Parse converts a decimal string such as "12.34" into minor units of currency.
// Inputs with more fractional digits than the currency allows are rejected.
func Parse(currency, text string) (int64, error) {
	amt, err := gmoney.ParseAmount(currency, text)
	if err != nil {
		return 0, fmt.Errorf("failed to parse amount %q: %w", text, err)
	}
	if amt.Scale() > amt.Curr().Scale() {
		return 0, fmt.Errorf("amount %q has more than %d decimal places", text, amt.Curr().Scale())
	}
	units, ok := amt.MinorUnits()
	if !ok {
		return 0, fmt.Errorf("amount %q out of range", text)
	}
	return units, nil
}
