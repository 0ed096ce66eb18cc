// Package money holds the decimal helpers shared by every monetary field.
//
// Amounts are shopspring decimals persisted as numeric(12,2). All arithmetic
// on balances happens in Go on decimal values; the database only stores the
// results.
package money

import (
	"github.com/shopspring/decimal"
)

// Scale is the number of fractional digits kept for every amount.
const Scale = 2

// MinAmount is the smallest amount a transaction may carry.
var MinAmount = decimal.New(1, -Scale)

// Zero is a convenience alias for decimal.Zero.
var Zero = decimal.Zero

// Round normalises d to two decimal places, rounding half away from zero.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(Scale)
}

// HasSubCentPrecision reports whether d carries more than two decimal places.
func HasSubCentPrecision(d decimal.Decimal) bool {
	return !d.Equal(d.Truncate(Scale))
}

// IsPositive reports whether d is strictly greater than zero.
func IsPositive(d decimal.Decimal) bool {
	return d.GreaterThan(decimal.Zero)
}

// Sum adds all values.
func Sum(values ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}

// Format renders d as a dollar string with exactly two decimals, e.g. "$12.50".
func Format(d decimal.Decimal) string {
	if d.IsNegative() {
		return "-$" + d.Abs().StringFixed(Scale)
	}
	return "$" + d.StringFixed(Scale)
}
