package currency

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrUnsupportedCurrency is returned when a currency's minor-unit digit
// count has no conversion rule.
var ErrUnsupportedCurrency = errors.New("unsupported currency")

// zeroDecimal lists ISO 4217 currencies whose smallest unit equals the
// major unit.
var zeroDecimal = map[string]struct{}{
	"BIF": {}, "CLP": {}, "DJF": {}, "GNF": {}, "JPY": {}, "KMF": {},
	"KRW": {}, "MGA": {}, "PYG": {}, "RWF": {}, "UGX": {}, "VND": {},
	"VUV": {}, "XAF": {}, "XOF": {}, "XPF": {},
}

// threeDecimal lists currencies with a thousandth minor unit. Card networks
// still settle these on hundredths, so the last digit of any charge must be
// zero.
var threeDecimal = map[string]struct{}{
	"BHD": {}, "IQD": {}, "JOD": {}, "KWD": {}, "LYD": {}, "OMR": {}, "TND": {},
}

// twoDecimal lists the supported hundredth-minor-unit currencies. Codes
// outside the three tables have no conversion rule and fail instead of
// silently converting on hundredths.
var twoDecimal = map[string]struct{}{
	"AED": {}, "ARS": {}, "AUD": {}, "BGN": {}, "BRL": {}, "CAD": {},
	"CHF": {}, "CNY": {}, "COP": {}, "CZK": {}, "DKK": {}, "EGP": {},
	"EUR": {}, "GBP": {}, "HKD": {}, "HUF": {}, "IDR": {}, "ILS": {},
	"INR": {}, "KES": {}, "MAD": {}, "MXN": {}, "MYR": {}, "NGN": {},
	"NOK": {}, "NZD": {}, "PEN": {}, "PHP": {}, "PKR": {}, "PLN": {},
	"QAR": {}, "RON": {}, "SAR": {}, "SEK": {}, "SGD": {}, "THB": {},
	"TRY": {}, "TWD": {}, "USD": {}, "UYU": {}, "ZAR": {},
}

// Digits returns the number of minor-unit digits for the given ISO currency
// code. Unknown codes report 2, which is only safe for display; conversion
// goes through ToMinorUnits, which rejects them.
func Digits(code string) int {
	code = strings.ToUpper(code)
	if _, ok := zeroDecimal[code]; ok {
		return 0
	}
	if _, ok := threeDecimal[code]; ok {
		return 3
	}
	return 2
}

// ToMinorUnits converts a major-unit amount to the processor's integer
// minor-unit representation. Halves round away from zero.
//
// Three-decimal currencies round to hundredths first and then scale, so the
// result always ends in zero as the card networks require.
func ToMinorUnits(amount float64, code string) (int64, error) {
	upper := strings.ToUpper(code)
	if _, ok := zeroDecimal[upper]; ok {
		return int64(math.Round(amount)), nil
	}
	if _, ok := threeDecimal[upper]; ok {
		return int64(math.Round(amount*100)) * 10, nil
	}
	if _, ok := twoDecimal[upper]; ok {
		return int64(math.Round(amount * 100)), nil
	}
	return 0, fmt.Errorf("%w: %s", ErrUnsupportedCurrency, code)
}

// FromMinorUnits converts a processor integer amount back to major units.
func FromMinorUnits(minor int64, code string) float64 {
	switch Digits(code) {
	case 0:
		return float64(minor)
	case 3:
		return float64(minor) / 1000
	default:
		return float64(minor) / 100
	}
}

// Format renders a major-unit amount for customer-facing text, e.g. "19.99".
func Format(amount float64, code string) string {
	return fmt.Sprintf("%.*f", Digits(code), amount)
}

// Limits holds optional per-currency charge bounds in major units. The "*"
// key applies to any currency without its own entry. A missing bound means
// no constraint.
type Limits struct {
	Min map[string]float64
	Max map[string]float64
}

// IsAboveMinimum reports whether the amount clears the configured floor for
// the currency.
func (l *Limits) IsAboveMinimum(amount float64, code string) bool {
	if l == nil {
		return true
	}
	min, ok := lookupLimit(l.Min, code)
	if !ok {
		return true
	}
	return amount >= min
}

// IsBelowMaximum reports whether the amount stays under the configured
// ceiling for the currency.
func (l *Limits) IsBelowMaximum(amount float64, code string) bool {
	if l == nil {
		return true
	}
	max, ok := lookupLimit(l.Max, code)
	if !ok {
		return true
	}
	return amount <= max
}

func lookupLimit(limits map[string]float64, code string) (float64, bool) {
	if limits == nil {
		return 0, false
	}
	if v, ok := limits[strings.ToUpper(code)]; ok {
		return v, true
	}
	v, ok := limits["*"]
	return v, ok
}
