// Package core provides money parsing and handling utilities.
//
// Amounts are decimals with two fractional digits. Storage backends that
// cannot hold decimals keep integer cents and convert at the edge.
package core

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// MaxAmount is the largest storable amount (10 digits, 2 of them decimals).
var MaxAmount = decimal.RequireFromString("99999999.99")

// ParseAmount converts a decimal string to an amount rounded to cents.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators and
// rounds half to even on the third decimal place, so 0.005 becomes 0.00.
// Negative values are rejected; zero is allowed.
//
// Examples:
//
//	ParseAmount("12.34")  -> 12.34
//	ParseAmount("12,345") -> 12.34
//	ParseAmount("12.355") -> 12.36
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return decimal.Zero, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	d = RoundAmount(d)
	if err := ValidateAmount(d); err != nil {
		return decimal.Zero, err
	}
	return d, nil
}

// RoundAmount rounds to cents with banker's rounding.
func RoundAmount(d decimal.Decimal) decimal.Decimal {
	return d.RoundBank(2)
}

func ValidateAmount(d decimal.Decimal) error {
	if d.IsNegative() {
		return fmt.Errorf("%w: must not be negative", ErrInvalidAmount)
	}
	if d.GreaterThan(MaxAmount) {
		return fmt.Errorf("%w: exceeds %s", ErrInvalidAmount, MaxAmount)
	}
	return nil
}

// ToCents converts a cent-rounded amount to integer cents.
func ToCents(d decimal.Decimal) int64 {
	return RoundAmount(d).Shift(2).IntPart()
}

func FromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}
