package shared

import "github.com/shopspring/decimal"

// Line discount kinds.
const (
	DiscountNone    = "none"
	DiscountPercent = "percent"
	DiscountFixed   = "fixed"
)

var hundred = decimal.NewFromInt(100)

// CalculateLineTotals prices one sale line. Percent discounts are rounded to
// cents and fixed discounts never exceed the line total.
func CalculateLineTotals(quantity int, unitPrice decimal.Decimal, discountType string, discountValue decimal.Decimal) (lineTotal, discountAmount, finalTotal decimal.Decimal) {
	lineTotal = unitPrice.Mul(decimal.NewFromInt(int64(quantity))).Round(2)
	switch discountType {
	case DiscountPercent:
		discountAmount = lineTotal.Mul(discountValue).Div(hundred).Round(2)
	case DiscountFixed:
		discountAmount = discountValue.Round(2)
	default:
		discountAmount = decimal.Zero
	}
	if discountAmount.GreaterThan(lineTotal) {
		discountAmount = lineTotal
	}
	if discountAmount.IsNegative() {
		discountAmount = decimal.Zero
	}
	finalTotal = lineTotal.Sub(discountAmount)
	return
}

// GrandTotal applies the order level discount and tax to the subtotal.
func GrandTotal(subtotal, discount, tax decimal.Decimal) decimal.Decimal {
	return subtotal.Sub(discount).Add(tax).Round(2)
}
