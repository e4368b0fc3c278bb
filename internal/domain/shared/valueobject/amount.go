package valueobject

import (
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// CurrencyPlaces is the number of decimal places every emitted amount is rounded to
const CurrencyPlaces int32 = 2

// Tolerance is the smallest currency denomination (one cent). Balances whose
// magnitude is below it are treated as settled.
var Tolerance = decimal.New(1, -CurrencyPlaces)

// Round2 rounds an amount to CurrencyPlaces decimal places (half away from zero)
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(CurrencyPlaces)
}

// IsNegligible reports whether |d| is below Tolerance
func IsNegligible(d decimal.Decimal) bool {
	return d.Abs().LessThan(Tolerance)
}

// ParseAmount parses a user or storage supplied amount leniently.
// Blank or unparsable input yields zero instead of an error so that a single
// bad record never aborts a whole batch. Thousands separators and a leading
// currency sign are tolerated.
func ParseAmount(raw string) decimal.Decimal {
	s := strings.TrimSpace(raw)
	if s == "" {
		return decimal.Zero
	}
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimPrefix(s, "$")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// AmountFromFloat converts a float amount, mapping NaN and ±Inf to zero
func AmountFromFloat(f float64) decimal.Decimal {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(f)
}

// SumAmounts returns the sum of the given amounts
func SumAmounts(amounts ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}
