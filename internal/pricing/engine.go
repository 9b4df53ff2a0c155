package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/noah-isme/cart-totals/internal/promo"
)

// DefaultShippingCost is the flat shipping fee charged when no promo waives it.
var DefaultShippingCost = decimal.RequireFromString("20.00")

var hundred = decimal.NewFromInt(100)

// Item describes a line item used for pricing calculation.
type Item struct {
	Qty       int
	UnitPrice decimal.Decimal
}

// Totals aggregates computed pricing components.
type Totals struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Discount decimal.Decimal `json:"discount"`
	Shipping decimal.Decimal `json:"shipping"`
	Total    decimal.Decimal `json:"total"`
}

// Equal reports whether every component of t matches o numerically.
func (t Totals) Equal(o Totals) bool {
	return t.Subtotal.Equal(o.Subtotal) &&
		t.Discount.Equal(o.Discount) &&
		t.Shipping.Equal(o.Shipping) &&
		t.Total.Equal(o.Total)
}

// Engine computes cart totals with a configurable flat shipping fee.
type Engine struct {
	ShippingCost decimal.Decimal
}

// NewEngine returns an engine charging the given shipping fee. Negative fees
// fall back to DefaultShippingCost.
func NewEngine(shipping decimal.Decimal) Engine {
	if shipping.IsNegative() {
		shipping = DefaultShippingCost
	}
	return Engine{ShippingCost: shipping}
}

// Compute calculates cart totals given the provided inputs.
func Compute(items []Item, applied *promo.Params) Totals {
	return Engine{ShippingCost: DefaultShippingCost}.Compute(items, applied)
}

// Compute calculates cart totals given the provided inputs. applied may be nil.
func (e Engine) Compute(items []Item, applied *promo.Params) Totals {
	subtotal := Subtotal(items)
	discount := decimal.Zero
	shipping := e.ShippingCost

	if applied != nil {
		switch applied.Kind {
		case promo.KindPercent:
			discount = subtotal.Mul(applied.Value).Div(hundred)
		case promo.KindFixed:
			discount = applied.Value
		case promo.KindShipping:
			shipping = decimal.Zero
		}
	}
	if discount.GreaterThan(subtotal) {
		discount = subtotal
	}
	// Unvalidated params can carry a negative value; a promo never raises the total.
	if discount.IsNegative() {
		discount = decimal.Zero
	}

	total := subtotal.Sub(discount).Add(shipping)
	if total.IsNegative() {
		total = decimal.Zero
	}
	return Totals{
		Subtotal: subtotal,
		Discount: discount,
		Shipping: shipping,
		Total:    total,
	}
}

// Subtotal sums unit price times quantity across items.
func Subtotal(items []Item) decimal.Decimal {
	subtotal := decimal.Zero
	for _, it := range items {
		if it.Qty <= 0 {
			continue
		}
		subtotal = subtotal.Add(it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Qty))))
	}
	return subtotal
}
