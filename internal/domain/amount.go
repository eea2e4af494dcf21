package domain

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

var (
	absoluteEpsilon = decimal.New(1, -6)
	relativeEpsilon = decimal.New(1, -6)
)

var (
	ErrAmountEmpty       = errors.New("please enter an amount")
	ErrAmountInvalid     = errors.New("please enter a valid number")
	ErrAmountNotPositive = errors.New("amount must be greater than 0")
)

// AmountExceedsError is returned when an entered amount is above the displayed maximum.
type AmountExceedsError struct {
	Max decimal.Decimal
}

func (e *AmountExceedsError) Error() string {
	return "amount exceeds available balance of " + e.Max.StringFixed(6)
}

// Tolerance returns the slack allowed above max to absorb display rounding.
func Tolerance(max decimal.Decimal) decimal.Decimal {
	return decimal.Max(absoluteEpsilon, max.Mul(relativeEpsilon))
}

// WithinMax reports whether 0 < amount <= max + tolerance.
func WithinMax(amount, max decimal.Decimal) bool {
	if amount.LessThanOrEqual(decimal.Zero) {
		return false
	}
	return amount.LessThanOrEqual(max.Add(Tolerance(max)))
}

// ParseAmount parses user input and checks it against max.
// An accepted amount above max (inside the tolerance) is clamped to max.
func ParseAmount(input string, max decimal.Decimal) (decimal.Decimal, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return decimal.Zero, ErrAmountEmpty
	}

	amount, err := decimal.NewFromString(input)
	if err != nil {
		return decimal.Zero, ErrAmountInvalid
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, ErrAmountNotPositive
	}
	if !WithinMax(amount, max) {
		return decimal.Zero, &AmountExceedsError{Max: max}
	}

	return decimal.Min(amount, max), nil
}
