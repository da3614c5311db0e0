// Package core holds the domain entities and the summary fold.
//
// Amounts are fixed point with two decimal places, held as integer cents.
// Conversion to and from arbitrary precision decimals happens only at the
// edges (database numeric columns, JSON payloads, OCR text).
package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// MoneyScale is the number of decimal places carried by Money.
const MoneyScale = 2

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (m Money) Add(other Money) Money {
	return Money{Cents: m.Cents + other.Cents}
}

func (m Money) Sub(other Money) Money {
	return Money{Cents: m.Cents - other.Cents}
}

// Mul multiplies the amount by an integral quantity.
func (m Money) Mul(qty int64) Money {
	return Money{Cents: m.Cents * qty}
}

// Abs returns the magnitude of m.
func (m Money) Abs() Money {
	if m.Cents < 0 {
		return Money{Cents: -m.Cents}
	}
	return m
}

func (m Money) IsZero() bool {
	return m.Cents == 0
}

// Decimal returns the amount as a decimal with scale 2.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Cents, -MoneyScale)
}

// String renders the amount with exactly two decimals, e.g. "-12.30".
func (m Money) String() string {
	return m.Decimal().StringFixed(MoneyScale)
}

// MoneyFromDecimal rounds d half away from zero to cents.
func MoneyFromDecimal(d decimal.Decimal) Money {
	return Money{Cents: d.Round(MoneyScale).Shift(MoneyScale).IntPart()}
}

// ParseMoney parses a signed decimal string ("1234.5", "-0,99") into Money.
func ParseMoney(s string) (Money, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	if s == "" {
		return Money{}, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, ErrInvalidAmount
	}
	return MoneyFromDecimal(d), nil
}
