package i18n

import (
	"fmt"
	"math"
)

// currencySymbols maps ISO 4217 codes to a display symbol and whether it precedes the amount.
var currencySymbols = map[string]struct {
	symbol string
	prefix bool
}{
	"EUR": {"€", true},
	"USD": {"$", true},
	"GBP": {"£", true},
	"CHF": {"CHF", false},
	"DKK": {"kr.", false},
	"SEK": {"kr", false},
	"NOK": {"kr", false},
	"PLN": {"zł", false},
	"CZK": {"Kč", false},
}

// FormatAmount renders amount with the currency symbol.
//
//	FormatAmount(15.5, "EUR")  → "€15.50"
//	FormatAmount(150, "SEK")   → "150.00 kr"
//	FormatAmount(150, "XYZ")   → "150.00 XYZ"
func FormatAmount(amount float64, currencyCode string) string {
	info, ok := currencySymbols[currencyCode]
	if !ok {
		return fmt.Sprintf("%.2f %s", amount, currencyCode)
	}
	if info.prefix {
		if amount < 0 {
			return fmt.Sprintf("-%s%.2f", info.symbol, math.Abs(amount))
		}
		return fmt.Sprintf("%s%.2f", info.symbol, amount)
	}
	return fmt.Sprintf("%.2f %s", amount, info.symbol)
}
