// Package types provides common type aliases and numeric utilities.
package types

import (
	"github.com/shopspring/decimal"
)

// Money represents a monetary value with full precision.
// Uses decimal.Decimal to avoid floating-point errors.
type Money = decimal.Decimal

// Quantity is a stock quantity. Same representation as Money, kept as a
// separate name so signatures say what they carry.
type Quantity = decimal.Decimal

// Scales applied when values are persisted.
const (
	QuantityScale int32 = 4
	UnitCostScale int32 = 4
	MoneyScale    int32 = 2
)

// divisionPrecision is the number of fractional digits kept by intermediate
// divisions (average cost, FIFO blended cost) before persist-time rounding.
const divisionPrecision int32 = 16

// NewMoneyFromString creates a Money value from a string.
// This is the preferred method for monetary values.
func NewMoneyFromString(s string) (Money, error) {
	return decimal.NewFromString(s)
}

// MustDecimal parses s, panics on error.
// Use only for constants and tests.
func MustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Zero returns zero value.
func Zero() decimal.Decimal {
	return decimal.Zero
}

// RoundQuantity rounds half-up to 4 fractional digits.
func RoundQuantity(q Quantity) Quantity {
	return roundHalfUp(q, QuantityScale)
}

// RoundUnitCost rounds half-up to 4 fractional digits.
func RoundUnitCost(c Money) Money {
	return roundHalfUp(c, UnitCostScale)
}

// RoundMoney rounds half-up to 2 fractional digits.
func RoundMoney(m Money) Money {
	return roundHalfUp(m, MoneyScale)
}

// roundHalfUp rounds ties toward +infinity. decimal.Round rounds ties away
// from zero, which differs for negative values (signed rows in reports).
func roundHalfUp(d decimal.Decimal, places int32) decimal.Decimal {
	if !d.IsNegative() {
		return d.Round(places)
	}
	abs := d.Neg()
	down := abs.RoundDown(places)
	unit := decimal.New(1, -places)
	if abs.Sub(down).GreaterThan(unit.Div(decimal.NewFromInt(2))) {
		down = down.Add(unit)
	}
	return down.Neg()
}

// Div divides a by b keeping enough precision for persist-time rounding.
// Returns zero when b is zero.
func Div(a, b decimal.Decimal) decimal.Decimal {
	if b.IsZero() {
		return decimal.Zero
	}
	return a.DivRound(b, divisionPrecision)
}

// Min returns the smaller of a and b.
func Min(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}
