// Package money derives quote totals from line-item price strings.
//
// Prices arrive as free-form text typed by operators ("$1,234.50", "50.5",
// ""). Parsing keeps digits, one leading minus and one decimal point and
// treats everything else as noise; an unparsable price contributes 0.00.
// All rounding is half-up to two decimal places, matching the fixed HST
// behavior of the documents this service processes.
package money

import (
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultTaxRate is the fixed regional HST rate applied to quotes.
var DefaultTaxRate = decimal.NewFromFloat(0.13)

// Totals is the derived monetary block of a quote. The three fields are a
// pure function of the line-item prices and the tax rate; they are never
// accepted as input.
type Totals struct {
	Subtotal decimal.Decimal
	Tax      decimal.Decimal
	Total    decimal.Decimal
}

// ParsePrice converts a free-form price string to a decimal rounded to two
// places. Empty or unparsable input yields 0.00.
func ParsePrice(s string) decimal.Decimal {
	cleaned := sanitize(s)
	if cleaned == "" || cleaned == "-" {
		return decimal.Zero.Round(2)
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero.Round(2)
	}
	return d.Round(2)
}

// sanitize strips currency symbols, thousands separators and any other
// non-numeric noise, keeping at most one leading minus sign and one
// decimal point.
func sanitize(s string) string {
	var b strings.Builder
	sawDot := false
	for i, r := range strings.TrimSpace(s) {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.' && !sawDot:
			sawDot = true
			b.WriteRune(r)
		case r == '-' && i == 0:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Compute sums the parsed prices left to right and derives tax and total
// at the given rate. Decimal arithmetic is exact, so repeated calls on the
// same items can never drift.
func Compute(prices []string, rate decimal.Decimal) Totals {
	subtotal := decimal.Zero
	for _, p := range prices {
		subtotal = subtotal.Add(ParsePrice(p))
	}
	subtotal = subtotal.Round(2)
	tax := subtotal.Mul(rate).Round(2)
	total := subtotal.Add(tax).Round(2)
	return Totals{Subtotal: subtotal, Tax: tax, Total: total}
}

// Format renders a decimal with exactly two fraction digits, the form the
// snapshot JSON stores and the UI displays.
func Format(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func (t Totals) SubtotalString() string { return Format(t.Subtotal) }
func (t Totals) TaxString() string      { return Format(t.Tax) }
func (t Totals) TotalString() string    { return Format(t.Total) }
