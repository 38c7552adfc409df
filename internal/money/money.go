// Package money holds the shared decimal helpers used by the cart,
// ledger, and reconciliation code. All monetary comparisons go through
// the 0.01 epsilon here; binary equality on amounts is a bug.
package money

import "github.com/shopspring/decimal"

// Epsilon absorbs floating rounding when comparing currency amounts.
var Epsilon = decimal.NewFromFloat(0.01)

// Equal reports whether a and b are the same amount within Epsilon.
func Equal(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(Epsilon)
}

// IsZero reports whether d is zero within Epsilon.
func IsZero(d decimal.Decimal) bool {
	return d.Abs().LessThanOrEqual(Epsilon)
}

// Parse converts an amount string ("1234.50") to a decimal.
func Parse(s string) (decimal.Decimal, error) {
	return decimal.NewFromString(s)
}

// String renders d with exactly two fraction digits, the format used
// for persistence and API responses.
func String(d decimal.Decimal) string {
	return d.StringFixed(2)
}
