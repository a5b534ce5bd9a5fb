package lifecycle

import (
	"github.com/shopspring/decimal"

	"github.com/CindyDuong5/pdf-polish/internal/model"
	"github.com/CindyDuong5/pdf-polish/pkg/money"
)

// NormalizeFields recomputes the derived monetary block from the line
// items. Whatever subtotal/tax/total arrived on the snapshot is
// discarded: only item prices are trusted input.
func NormalizeFields(f model.FieldsSnapshot, rate decimal.Decimal) model.FieldsSnapshot {
	prices := make([]string, len(f.Items))
	for i, it := range f.Items {
		prices[i] = it.Price
	}
	t := money.Compute(prices, rate)
	f.Subtotal = t.SubtotalString()
	f.Tax = t.TaxString()
	f.Total = t.TotalString()
	return f
}
