// Package money converts order amounts into the integer minor units Stripe expects.
package money

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrNegativeAmount  = errors.New("amount must not be negative")
	ErrInexactAmount   = errors.New("amount is not representable in the currency's minor unit")
	ErrAmountTooLarge  = errors.New("amount exceeds the largest chargeable value")
	ErrInvalidCurrency = errors.New("invalid currency code")
)

// Currencies Stripe treats as having no minor unit.
// https://stripe.com/docs/currencies#zero-decimal
var zeroDecimal = map[string]struct{}{
	"BIF": {}, "CLP": {}, "DJF": {}, "GNF": {}, "JPY": {}, "KMF": {}, "KRW": {},
	"MGA": {}, "PYG": {}, "RWF": {}, "UGX": {}, "VND": {}, "VUV": {}, "XAF": {},
	"XOF": {}, "XPF": {},
}

// NormalizeCurrency upper-cases and validates a three-letter ISO code.
func NormalizeCurrency(currency string) (string, error) {
	c := strings.ToUpper(strings.TrimSpace(currency))
	if len(c) != 3 {
		return "", fmt.Errorf("%w: %q", ErrInvalidCurrency, currency)
	}
	for _, r := range c {
		if r < 'A' || r > 'Z' {
			return "", fmt.Errorf("%w: %q", ErrInvalidCurrency, currency)
		}
	}
	return c, nil
}

// MinorUnitExponent returns how many decimal places the currency's minor unit has.
func MinorUnitExponent(currency string) int32 {
	if _, ok := zeroDecimal[strings.ToUpper(currency)]; ok {
		return 0
	}
	return 2
}

// ToMinorUnits converts amount into an exact count of minor units.
// 12.34 USD becomes 1234 and 500 JPY stays 500. An amount carrying precision
// below the minor unit (12.345 USD) is rejected rather than rounded.
func ToMinorUnits(amount decimal.Decimal, currency string) (int64, error) {
	if amount.IsNegative() {
		return 0, ErrNegativeAmount
	}
	scaled := amount.Shift(MinorUnitExponent(currency))
	if !scaled.Equal(scaled.Truncate(0)) {
		return 0, fmt.Errorf("%w: %s %s", ErrInexactAmount, amount.String(), currency)
	}
	if !scaled.BigInt().IsInt64() {
		return 0, fmt.Errorf("%w: %s %s", ErrAmountTooLarge, amount.String(), currency)
	}
	return scaled.IntPart(), nil
}

// FromMinorUnits is the inverse of ToMinorUnits.
func FromMinorUnits(minor int64, currency string) decimal.Decimal {
	return decimal.New(minor, -MinorUnitExponent(currency))
}

// Format renders an amount for order comments, e.g. "$12.34" or "500 JPY".
func Format(amount decimal.Decimal, currency string) string {
	c := strings.ToUpper(currency)
	fixed := amount.StringFixed(MinorUnitExponent(c))
	switch c {
	case "USD":
		return "$" + fixed
	case "EUR":
		return "€" + fixed
	case "GBP":
		return "£" + fixed
	}
	return fixed + " " + c
}
