package payment

import (
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// DisplayPrice renders the price the way the checkout page shows it, for
// example "€ 6.00". Unknown currencies fall back to "6.00 XYZ".
func DisplayPrice(price decimal.Decimal, code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	unit, err := currency.ParseISO(code)
	if err != nil {
		return price.StringFixed(2) + " " + code
	}

	p := message.NewPrinter(language.English)
	return p.Sprint(currency.Symbol(unit.Amount(price.InexactFloat64())))
}
