// Package core provides the domain types of the shared loan ledger.
//
// This file contains the amount codec: every conversion between a decimal
// monetary value and integer cents goes through ToMinor, so rounding happens
// exactly once per amount and never compounds across postings.
package core

import (
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// Cents is an amount of money in minor units.
type Cents int64

// DefaultCurrency is used for display when no currency is configured.
const DefaultCurrency = money.EUR

var hundred = decimal.NewFromInt(100)

// ToMinor converts a decimal amount to cents using banker's rounding
// (half to even).
//
// Examples:
//
//	ToMinor(12.345) -> 1234
//	ToMinor(12.355) -> 1236
//	ToMinor(-0.005) -> 0
func ToMinor(d decimal.Decimal) Cents {
	return Cents(d.Mul(hundred).RoundBank(0).IntPart())
}

// FromMinor returns the exact decimal value of c.
func FromMinor(c Cents) decimal.Decimal {
	return decimal.New(int64(c), -2)
}

// ParseAmount parses a decimal string into cents.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators and an
// optional leading sign. Extra fractional digits are rounded by ToMinor.
func ParseAmount(s string) (Cents, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	// Prevent overflow when scaling to cents
	if d.Abs().GreaterThan(decimal.NewFromInt((1<<63 - 1) / 100)) {
		return 0, ErrInvalidAmount
	}
	return ToMinor(d), nil
}

// Abs returns the magnitude of c.
func (c Cents) Abs() Cents {
	if c < 0 {
		return -c
	}
	return c
}

// Decimal returns the exact decimal value of c.
func (c Cents) Decimal() decimal.Decimal {
	return FromMinor(c)
}

// String renders c as a plain decimal with two fractional digits.
func (c Cents) String() string {
	return FromMinor(c).StringFixed(2)
}

// Format renders c with the symbol and separators of the given ISO currency
// code. Unknown or empty codes fall back to DefaultCurrency.
func (c Cents) Format(currency string) string {
	if currency == "" || money.GetCurrency(currency) == nil {
		currency = DefaultCurrency
	}
	return money.New(int64(c), currency).Display()
}
