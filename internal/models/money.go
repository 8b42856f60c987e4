package models

import (
	"github.com/shopspring/decimal"
)

// Cents is a monetary amount in integer minor units (USD cents).
// All ledger arithmetic happens on this type; binary floats are only
// accepted at the API boundary and converted immediately.
type Cents int64

// CentsFromDecimal rounds to 2 decimal places and converts to cents.
func CentsFromDecimal(d decimal.Decimal) Cents {
	return Cents(d.Round(2).Shift(2).IntPart())
}

// CentsFromFloat converts a dollar amount to cents with half-up rounding.
func CentsFromFloat(v float64) Cents {
	return CentsFromDecimal(decimal.NewFromFloat(v))
}

// Decimal returns the amount as a fixed-point dollar value.
func (c Cents) Decimal() decimal.Decimal {
	return decimal.New(int64(c), -2)
}

// Dollars returns the amount as a float64 dollar value for presentation.
func (c Cents) Dollars() float64 {
	f, _ := c.Decimal().Float64()
	return f
}

// String formats the amount with two decimal places.
func (c Cents) String() string {
	return c.Decimal().StringFixed(2)
}

// Commission computes saleValue * ratePct/100 rounded to cents.
// The multiplication is done in fixed-point so the stored commission
// never drifts from the rate.
func Commission(saleValue Cents, ratePct float64) Cents {
	rate := decimal.NewFromFloat(ratePct).Div(decimal.NewFromInt(100))
	return CentsFromDecimal(saleValue.Decimal().Mul(rate))
}
