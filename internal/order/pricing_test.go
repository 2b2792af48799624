package order

import (
	"testing"

	"github.com/pedidos360/backend/pkg/database"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestLineAmount(t *testing.T) {
	cases := []struct {
		name     string
		quantity int
		price    string
		discount string
		want     string
	}{
		{"no discount", 2, "10.00", "0", "20.00"},
		{"with discount", 3, "5.50", "1.50", "15.00"},
		{"rounds to two decimals", 3, "0.335", "0", "1.01"},
		{"discount equals gross", 1, "10.00", "10.00", "0.00"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := LineAmount(tc.quantity, dec(tc.price), dec(tc.discount))
			assert.True(t, dec(tc.want).Equal(got), "want %s got %s", tc.want, got)
		})
	}
}

func TestLineTax(t *testing.T) {
	assert.True(t, dec("2.60").Equal(LineTax(dec("20.00"), dec("13"))))
	assert.True(t, dec("0.00").Equal(LineTax(dec("20.00"), dec("0"))))
	// 15.00 * 13% = 1.95 exactly; 10.01 * 13% = 1.3013 rounds to 1.30
	assert.True(t, dec("1.30").Equal(LineTax(dec("10.01"), dec("13"))))
}

func TestComputeTotals(t *testing.T) {
	lines := []database.OrderLine{
		{LineTotal: dec("20.00"), TaxPercent: dec("13")},
		{LineTotal: dec("15.00"), TaxPercent: dec("13")},
		{LineTotal: dec("8.00"), TaxPercent: dec("0")},
	}

	totals := ComputeTotals(lines)
	assert.True(t, dec("43.00").Equal(totals.Subtotal), "subtotal: %s", totals.Subtotal)
	assert.True(t, dec("4.55").Equal(totals.Taxes), "taxes: %s", totals.Taxes)
	assert.True(t, dec("47.55").Equal(totals.Total), "total: %s", totals.Total)

	// Total is always the sum of the other two.
	assert.True(t, totals.Total.Equal(totals.Subtotal.Add(totals.Taxes)))
}

func TestComputeTotalsStableUnderRecomputation(t *testing.T) {
	lines := []database.OrderLine{
		{LineTotal: dec("0.99"), TaxPercent: dec("13")},
		{LineTotal: dec("1.01"), TaxPercent: dec("13")},
		{LineTotal: dec("33.33"), TaxPercent: dec("4")},
	}

	first := ComputeTotals(lines)
	for i := 0; i < 10; i++ {
		again := ComputeTotals(lines)
		assert.True(t, first.Subtotal.Equal(again.Subtotal))
		assert.True(t, first.Taxes.Equal(again.Taxes))
		assert.True(t, first.Total.Equal(again.Total))
	}
}

func TestComputeTotalsEmptyOrder(t *testing.T) {
	totals := ComputeTotals(nil)
	assert.True(t, totals.Subtotal.IsZero())
	assert.True(t, totals.Taxes.IsZero())
	assert.True(t, totals.Total.IsZero())
}
