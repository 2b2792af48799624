package order

import (
	"github.com/pedidos360/backend/pkg/database"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// LineAmount is the pre-tax amount of a line: quantity*unitPrice - discount,
// rounded to 2 decimals. This is what OrderLine.LineTotal stores; tax is
// applied at the order level so editing one line never perturbs another.
func LineAmount(quantity int, unitPrice, discount decimal.Decimal) decimal.Decimal {
	gross := unitPrice.Mul(decimal.NewFromInt(int64(quantity)))
	return gross.Sub(discount).Round(2)
}

// LineTax is the tax contribution of a line amount at the snapshotted
// percentage, rounded to 2 decimals per line so repeated recomputation
// yields identical results.
func LineTax(amount, taxPercent decimal.Decimal) decimal.Decimal {
	return amount.Mul(taxPercent).Div(hundred).Round(2)
}

// Totals are the derived money fields of an order.
type Totals struct {
	Subtotal decimal.Decimal
	Taxes    decimal.Decimal
	Total    decimal.Decimal
}

// ComputeTotals derives an order's money fields from its lines. Each line's
// LineTotal must already hold its pre-tax amount.
func ComputeTotals(lines []database.OrderLine) Totals {
	subtotal := decimal.Zero
	taxes := decimal.Zero
	for _, line := range lines {
		subtotal = subtotal.Add(line.LineTotal)
		taxes = taxes.Add(LineTax(line.LineTotal, line.TaxPercent))
	}
	return Totals{
		Subtotal: subtotal,
		Taxes:    taxes,
		Total:    subtotal.Add(taxes),
	}
}
