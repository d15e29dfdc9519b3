package shared

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestCalculateLineTotals(t *testing.T) {
	d := decimal.RequireFromString
	cases := []struct {
		name                 string
		qty                  int
		price                string
		kind                 string
		value                string
		line, discount, final string
	}{
		{"no discount", 3, "10.50", DiscountNone, "0", "31.5", "0", "31.5"},
		{"percent", 2, "99.99", DiscountPercent, "10", "199.98", "20", "179.98"},
		{"fixed", 1, "50", DiscountFixed, "5.25", "50", "5.25", "44.75"},
		{"fixed capped", 2, "5", DiscountFixed, "25", "10", "10", "0"},
		{"percent over 100 capped", 1, "8", DiscountPercent, "150", "8", "8", "0"},
		{"unknown kind", 1, "8", "bogus", "3", "8", "0", "8"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			line, discount, final := CalculateLineTotals(tc.qty, d(tc.price), tc.kind, d(tc.value))
			require.True(t, d(tc.line).Equal(line), "line %s", line)
			require.True(t, d(tc.discount).Equal(discount), "discount %s", discount)
			require.True(t, d(tc.final).Equal(final), "final %s", final)
		})
	}
}

func TestGrandTotal(t *testing.T) {
	got := GrandTotal(decimal.NewFromInt(100), decimal.NewFromInt(10), decimal.RequireFromString("4.5"))
	require.True(t, decimal.RequireFromString("94.5").Equal(got))
}
