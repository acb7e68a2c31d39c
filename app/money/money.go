package money

import (
	"fmt"
	"math"
	"strings"
)

// Currency represents an ISO 4217 currency code
type Currency string

const (
	USD Currency = "USD"
	EUR Currency = "EUR"
	GBP Currency = "GBP"
	JPY Currency = "JPY"
	CAD Currency = "CAD"
	AUD Currency = "AUD"
	CNY Currency = "CNY"
)

var minorUnits = map[Currency]int{
	USD: 2,
	EUR: 2,
	GBP: 2,
	JPY: 0,
	CAD: 2,
	AUD: 2,
	CNY: 2,
}

// ParseCurrency normalizes a currency code. The second value reports whether
// the code is known.
func ParseCurrency(code string) (Currency, bool) {
	c := Currency(strings.ToUpper(strings.TrimSpace(code)))
	_, ok := minorUnits[c]
	return c, ok
}

// MinorUnits returns the number of decimal places of a currency.
func MinorUnits(c Currency) int {
	if units, ok := minorUnits[c]; ok {
		return units
	}
	return 2
}

// FromMajor converts a major unit amount (e.g. dollars) into minor units.
func FromMajor(amount float64, c Currency) int64 {
	return int64(math.Round(amount * math.Pow(10, float64(MinorUnits(c)))))
}

// ToMajor converts minor units to major units as float
func ToMajor(amountMinor int64, c Currency) float64 {
	return float64(amountMinor) / math.Pow(10, float64(MinorUnits(c)))
}

// Percentage calculates a percentage of an amount given in basis points,
// rounding half away from zero.
func Percentage(amountMinor int64, basisPoints int64) int64 {
	return int64(math.Round(float64(amountMinor) * float64(basisPoints) / 10000))
}

// Fee computes percentage plus fixed fee. The fixed part is expressed in
// two-decimal minor units and is rescaled for currencies with another
// precision.
func Fee(amountMinor int64, c Currency, basisPoints, fixedMinor int64) int64 {
	fixed := fixedMinor
	if units := MinorUnits(c); units != 2 {
		fixed = int64(math.Round(float64(fixedMinor) * math.Pow(10, float64(units-2))))
	}
	return Percentage(amountMinor, basisPoints) + fixed
}

// Format returns a human-readable representation
func Format(amountMinor int64, c Currency) string {
	format := fmt.Sprintf("%%.%df %%s", MinorUnits(c))
	return fmt.Sprintf(format, ToMajor(amountMinor, c), c)
}
