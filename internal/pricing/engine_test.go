package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/cart-totals/internal/promo"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func storefrontItems() []Item {
	return []Item{
		{Qty: 1, UnitPrice: d("159.99")},
		{Qty: 1, UnitPrice: d("129.50")},
		{Qty: 1, UnitPrice: d("899.00")},
	}
}

func requireTotals(t *testing.T, got Totals, subtotal, discount, shipping, total string) {
	t.Helper()
	require.Truef(t, got.Subtotal.Equal(d(subtotal)), "subtotal: want %s got %s", subtotal, got.Subtotal)
	require.Truef(t, got.Discount.Equal(d(discount)), "discount: want %s got %s", discount, got.Discount)
	require.Truef(t, got.Shipping.Equal(d(shipping)), "shipping: want %s got %s", shipping, got.Shipping)
	require.Truef(t, got.Total.Equal(d(total)), "total: want %s got %s", total, got.Total)
}

func TestComputeNoPromo(t *testing.T) {
	requireTotals(t, Compute(storefrontItems(), nil), "1188.49", "0", "20", "1208.49")
}

func TestComputePercent(t *testing.T) {
	p := promo.Params{Code: "SAVE10", Kind: promo.KindPercent, Value: d("10")}
	requireTotals(t, Compute(storefrontItems(), &p), "1188.49", "118.849", "20", "1089.641")
}

func TestComputeFreeShipping(t *testing.T) {
	p := promo.Params{Code: "FREESHIP", Kind: promo.KindShipping}
	requireTotals(t, Compute(storefrontItems(), &p), "1188.49", "0", "0", "1188.49")
}

func TestComputeFixedClampedToSubtotal(t *testing.T) {
	p := promo.Params{Code: "BIG", Kind: promo.KindFixed, Value: d("50")}
	items := []Item{{Qty: 1, UnitPrice: d("10")}}
	requireTotals(t, Compute(items, &p), "10", "10", "20", "20")
}

func TestComputeFixedBelowSubtotal(t *testing.T) {
	p := promo.Params{Code: "FIVE", Kind: promo.KindFixed, Value: d("5")}
	items := []Item{{Qty: 3, UnitPrice: d("10")}}
	requireTotals(t, Compute(items, &p), "30", "5", "20", "45")
}

func TestComputePercentHundred(t *testing.T) {
	p := promo.Params{Code: "ALL", Kind: promo.KindPercent, Value: d("100")}
	requireTotals(t, Compute(storefrontItems(), &p), "1188.49", "1188.49", "20", "20")
}

func TestComputeEmptyCart(t *testing.T) {
	requireTotals(t, Compute(nil, nil), "0", "0", "20", "20")

	free := promo.Params{Code: "FREESHIP", Kind: promo.KindShipping}
	requireTotals(t, Compute(nil, &free), "0", "0", "0", "0")

	fixed := promo.Params{Code: "F", Kind: promo.KindFixed, Value: d("50")}
	requireTotals(t, Compute([]Item{}, &fixed), "0", "0", "20", "20")
}

func TestComputeTotalNeverNegative(t *testing.T) {
	e := NewEngine(decimal.Zero)
	p := promo.Params{Code: "ALL", Kind: promo.KindPercent, Value: d("100")}
	got := e.Compute([]Item{{Qty: 2, UnitPrice: d("4.25")}}, &p)
	requireTotals(t, got, "8.5", "8.5", "0", "0")
}

func TestSubtotalOrderIndependent(t *testing.T) {
	items := storefrontItems()
	reversed := []Item{items[2], items[1], items[0]}
	require.True(t, Subtotal(items).Equal(Subtotal(reversed)))

	items[0].Qty = 3
	reversed[2].Qty = 3
	require.True(t, Subtotal(items).Equal(d("1508.47")))
	require.True(t, Subtotal(items).Equal(Subtotal(reversed)))
}

func TestPercentDiscountNeverExceedsSubtotal(t *testing.T) {
	items := storefrontItems()
	for v := int64(0); v <= 100; v += 5 {
		p := promo.Params{Code: "P", Kind: promo.KindPercent, Value: decimal.NewFromInt(v)}
		got := Compute(items, &p)
		want := got.Subtotal.Mul(decimal.NewFromInt(v)).Div(decimal.NewFromInt(100))
		if !got.Discount.Equal(want) {
			t.Fatalf("percent %d: want discount %s got %s", v, want, got.Discount)
		}
		if got.Discount.GreaterThan(got.Subtotal) {
			t.Fatalf("percent %d: discount %s exceeds subtotal %s", v, got.Discount, got.Subtotal)
		}
		if got.Total.IsNegative() {
			t.Fatalf("percent %d: negative total %s", v, got.Total)
		}
	}
}

func TestComputeIdempotent(t *testing.T) {
	p := promo.Params{Code: "SAVE10", Kind: promo.KindPercent, Value: d("10")}
	first := Compute(storefrontItems(), &p)
	second := Compute(storefrontItems(), &p)
	require.True(t, first.Equal(second))
}

func TestNewEngineRejectsNegativeShipping(t *testing.T) {
	e := NewEngine(d("-1"))
	require.True(t, e.ShippingCost.Equal(DefaultShippingCost))

	e = NewEngine(d("7.5"))
	requireTotals(t, e.Compute(nil, nil), "0", "0", "7.5", "7.5")
}

func TestComputeNegativeDiscountFlooredAtZero(t *testing.T) {
	got := Compute(storefrontItems(), &promo.Params{Code: "ODD", Kind: promo.KindPercent, Value: d("-10")})
	requireTotals(t, got, "1188.49", "0", "20", "1208.49")

	got = Compute(storefrontItems(), &promo.Params{Code: "ODD", Kind: promo.KindFixed, Value: d("-5")})
	requireTotals(t, got, "1188.49", "0", "20", "1208.49")
}
