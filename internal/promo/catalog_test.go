package promo

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalogLookup(t *testing.T) {
	c := DefaultCatalog()

	p, err := c.Lookup("SAVE10")
	require.NoError(t, err)
	require.Equal(t, KindPercent, p.Kind)
	require.True(t, p.Value.Equal(decimal.NewFromInt(10)))

	p, err = c.Lookup("FREESHIP")
	require.NoError(t, err)
	require.Equal(t, KindShipping, p.Kind)
	require.True(t, p.Value.IsZero())

	p, err = c.Lookup("FLAT50")
	require.NoError(t, err)
	require.Equal(t, KindPercent, p.Kind)
}

func TestLookupIsCaseSensitive(t *testing.T) {
	c := DefaultCatalog()
	_, err := c.Lookup("save10")
	require.ErrorIs(t, err, ErrNotFound)
	_, err = c.Lookup("NOPE")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestNilCatalog(t *testing.T) {
	var c *Catalog
	_, err := c.Lookup("SAVE10")
	require.ErrorIs(t, err, ErrNotFound)
	require.Nil(t, c.Codes())
}

func TestCodesSorted(t *testing.T) {
	require.Equal(t, []string{"DEAL30", "FLAT50", "FREESHIP", "SAVE10", "SAVE20", "WELCOME"}, DefaultCatalog().Codes())
}

func TestNewCatalogRejectsInvalid(t *testing.T) {
	cases := []Params{
		{Code: "", Kind: KindPercent, Value: decimal.NewFromInt(1)},
		{Code: "X", Kind: "bogus"},
		{Code: "OVER", Kind: KindPercent, Value: decimal.NewFromInt(101)},
		{Code: "NEG", Kind: KindFixed, Value: decimal.NewFromInt(-1)},
	}
	for _, p := range cases {
		_, err := NewCatalog(p)
		if !errors.Is(err, ErrInvalidRule) {
			t.Fatalf("expected ErrInvalidRule for %+v, got %v", p, err)
		}
	}
}

func TestNewCatalogNormalisesShippingValue(t *testing.T) {
	c, err := NewCatalog(Params{Code: "SHIP", Kind: KindShipping, Value: decimal.NewFromInt(7)})
	require.NoError(t, err)
	p, err := c.Lookup("SHIP")
	require.NoError(t, err)
	require.True(t, p.Value.IsZero())
}

func TestParseEntries(t *testing.T) {
	entries, err := ParseEntries(" SPRING5=fixed:5 , HALF=percent:50,SHIPIT=shipping,")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	require.Equal(t, "SPRING5", entries[0].Code)
	require.Equal(t, KindFixed, entries[0].Kind)
	require.True(t, entries[0].Value.Equal(decimal.NewFromInt(5)))
	require.Equal(t, KindShipping, entries[2].Kind)

	empty, err := ParseEntries("   ")
	require.NoError(t, err)
	require.Nil(t, empty)

	_, err = ParseEntries("BROKEN")
	require.ErrorIs(t, err, ErrInvalidRule)
	_, err = ParseEntries("BAD=percent:abc")
	require.Error(t, err)
	_, err = ParseEntries("BAD=percent:150")
	require.ErrorIs(t, err, ErrInvalidRule)
}
