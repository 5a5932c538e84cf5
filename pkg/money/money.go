// Package money provides a non-negative decimal currency amount with at most Scale fractional digits.
package money

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Scale is the number of fractional digits an amount may carry. It matches the NUMERIC(19, 2)
// amount columns, so a stored amount reads back unchanged.
const Scale = 2

var (
	ErrNegativeAmount = errors.New("amount must not be negative")
	ErrInvalidAmount  = errors.New("invalid amount")
	ErrTooPrecise     = errors.New("amount has too many fractional digits")
)

// Money is an immutable amount. The zero value is a valid zero amount.
type Money struct {
	amount decimal.Decimal
}

func New(amount decimal.Decimal) (Money, error) {
	if amount.IsNegative() {
		return Money{}, fmt.Errorf("%w: %s", ErrNegativeAmount, amount.String())
	}
	if !amount.Equal(amount.Truncate(Scale)) {
		return Money{}, fmt.Errorf("%w: %s", ErrTooPrecise, amount.String())
	}
	return Money{amount: amount}, nil
}

// FromInt builds an amount from whole currency units. Negative input panics.
func FromInt(units int64) Money {
	m, err := New(decimal.NewFromInt(units))
	if err != nil {
		panic(err)
	}
	return m
}

func Parse(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return New(d)
}

// MustParse is Parse for constants and fixtures.
func MustParse(s string) Money {
	m, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return m
}

func Zero() Money {
	return Money{}
}

func (m Money) Decimal() decimal.Decimal {
	return m.amount
}

func (m Money) Add(other Money) Money {
	return Money{amount: m.amount.Add(other.amount)}
}

// Sub returns m - other, failing rather than going below zero.
func (m Money) Sub(other Money) (Money, error) {
	return New(m.amount.Sub(other.amount))
}

// MulRatio scales the amount and truncates to whole units.
func (m Money) MulRatio(ratio decimal.Decimal) (Money, error) {
	return New(m.amount.Mul(ratio).Truncate(0))
}

func (m Money) Cmp(other Money) int {
	return m.amount.Cmp(other.amount)
}

func (m Money) Equal(other Money) bool {
	return m.amount.Equal(other.amount)
}

func (m Money) GreaterThan(other Money) bool {
	return m.amount.GreaterThan(other.amount)
}

func (m Money) LessThan(other Money) bool {
	return m.amount.LessThan(other.amount)
}

func (m Money) IsZero() bool {
	return m.amount.IsZero()
}

func (m Money) IsPositive() bool {
	return m.amount.IsPositive()
}

func Min(a, b Money) Money {
	if a.LessThan(b) {
		return a
	}
	return b
}

func (m Money) String() string {
	return m.amount.String()
}

func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.amount.String())
}

func (m *Money) UnmarshalJSON(data []byte) error {
	var d decimal.Decimal
	if err := d.UnmarshalJSON(data); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidAmount, string(data))
	}
	parsed, err := New(d)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Value stores the amount as a NUMERIC column.
func (m Money) Value() (driver.Value, error) {
	return m.amount.Value()
}

func (m *Money) Scan(value interface{}) error {
	var d decimal.Decimal
	if err := d.Scan(value); err != nil {
		return err
	}
	parsed, err := New(d)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
