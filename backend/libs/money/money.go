// Package money holds the decimal conventions shared by balances and fares.
package money

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Places is the number of fractional digits kept for monetary amounts.
const Places = 2

// ErrNegative reports a monetary amount below zero where only non-negative values are allowed.
var ErrNegative = errors.New("money: amount must not be negative")

// Round rounds half away from zero to cents.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(Places)
}

// Parse reads a non-negative amount such as "5000" or "12.50".
func Parse(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("money: parse %q: %w", raw, err)
	}
	if d.IsNegative() {
		return decimal.Zero, ErrNegative
	}
	return Round(d), nil
}

// Max returns the larger amount.
func Max(a, b decimal.Decimal) decimal.Decimal {
	if a.GreaterThanOrEqual(b) {
		return a
	}
	return b
}

// Percent returns part/total*100 rounded to cents, zero when total is zero.
func Percent(part, total int64) decimal.Decimal {
	if total <= 0 {
		return decimal.Zero
	}
	return Round(decimal.NewFromInt(part).Mul(decimal.NewFromInt(100)).Div(decimal.NewFromInt(total)))
}
