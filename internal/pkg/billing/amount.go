package billing

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Providers report amounts in different units: Lemonsqueezy sends integer
// minor units (cents), PayPal sends decimal strings, Flutterwave sends major
// units. Everything is normalized to a two-decimal major-unit amount before
// it reaches the ledger.

// AmountFromMinorUnits converts an integer minor-unit amount (e.g. 500 cents)
// to the major-unit decimal (5.00).
func AmountFromMinorUnits(minor int64) decimal.Decimal {
	return decimal.New(minor, -2)
}

// AmountFromString parses a major-unit decimal string such as "5.00".
func AmountFromString(s string) (decimal.Decimal, error) {
	v := strings.TrimSpace(s)
	if v == "" {
		return decimal.Zero, fmt.Errorf("empty amount")
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return d.Round(2), nil
}

// AmountFromFloat converts a major-unit float (Flutterwave's JSON number) to
// a two-decimal amount.
func AmountFromFloat(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f).Round(2)
}

// NormalizeCurrency uppercases an ISO 4217 code, defaulting to USD.
func NormalizeCurrency(code string) string {
	c := strings.ToUpper(strings.TrimSpace(code))
	if len(c) != 3 {
		return "USD"
	}
	return c
}
