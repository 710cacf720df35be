package model

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// ToMinorUnits converts a USD amount to integer cents, rounding half away from zero.
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Round(0).IntPart()
}

// FromMinorUnits converts cents back to a decimal amount.
func FromMinorUnits(minor int64) decimal.Decimal {
	return decimal.New(minor, -2)
}

// SplitTax splits a tax-inclusive minor amount into base and tax using rate
// (0.12 for 12%). base is round(minor/(1+rate)) and tax takes the remainder, so
// base+tax always equals minor. A zero or negative rate yields no tax.
func SplitTax(minor int64, rate decimal.Decimal) (base, tax int64) {
	if !rate.IsPositive() || minor <= 0 {
		return minor, 0
	}
	base = decimal.NewFromInt(minor).Div(decimal.NewFromInt(1).Add(rate)).Round(0).IntPart()
	return base, minor - base
}
