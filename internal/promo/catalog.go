package promo

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when no promo matches the submitted code.
	ErrNotFound = errors.New("promo not found")
	// ErrInvalidRule indicates a promo entry carries an unusable kind or value.
	ErrInvalidRule = errors.New("promo rule invalid")
)

// Kind enumerates the supported promo behaviours.
type Kind string

const (
	// KindPercent discounts a percentage of the subtotal.
	KindPercent Kind = "percent"
	// KindFixed discounts a fixed currency amount.
	KindFixed Kind = "fixed"
	// KindShipping waives the shipping cost.
	KindShipping Kind = "shipping"
)

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindPercent, KindFixed, KindShipping:
		return true
	default:
		return false
	}
}

// Params captures a single promo rule.
type Params struct {
	Code  string          `json:"code"`
	Kind  Kind            `json:"type"`
	Value decimal.Decimal `json:"value"`
}

var hundred = decimal.NewFromInt(100)

// Validate ensures the rule can be applied to a cart.
func (p Params) Validate() error {
	if strings.TrimSpace(p.Code) == "" {
		return fmt.Errorf("code is required: %w", ErrInvalidRule)
	}
	if !p.Kind.Valid() {
		return fmt.Errorf("%s: unknown kind %q: %w", p.Code, p.Kind, ErrInvalidRule)
	}
	switch p.Kind {
	case KindPercent:
		if p.Value.IsNegative() || p.Value.GreaterThan(hundred) {
			return fmt.Errorf("%s: percent must be 0-100: %w", p.Code, ErrInvalidRule)
		}
	case KindFixed:
		if p.Value.IsNegative() {
			return fmt.Errorf("%s: fixed discount cannot be negative: %w", p.Code, ErrInvalidRule)
		}
	}
	return nil
}

// Defaults returns the storefront's built-in promo codes.
func Defaults() []Params {
	return []Params{
		{Code: "SAVE10", Kind: KindPercent, Value: decimal.NewFromInt(10)},
		{Code: "SAVE20", Kind: KindPercent, Value: decimal.NewFromInt(20)},
		{Code: "WELCOME", Kind: KindPercent, Value: decimal.NewFromInt(15)},
		{Code: "DEAL30", Kind: KindPercent, Value: decimal.NewFromInt(30)},
		{Code: "FREESHIP", Kind: KindShipping, Value: decimal.Zero},
		{Code: "FLAT50", Kind: KindPercent, Value: decimal.NewFromInt(50)},
	}
}

// Catalog is a read-only lookup table of promo codes.
type Catalog struct {
	entries map[string]Params
}

// NewCatalog builds a catalog from the given entries. Later entries replace
// earlier ones sharing the same code.
func NewCatalog(entries ...Params) (*Catalog, error) {
	c := &Catalog{entries: make(map[string]Params, len(entries))}
	for _, p := range entries {
		if err := p.Validate(); err != nil {
			return nil, err
		}
		if p.Kind == KindShipping {
			p.Value = decimal.Zero
		}
		c.entries[p.Code] = p
	}
	return c, nil
}

// DefaultCatalog returns a catalog holding only the built-in codes.
func DefaultCatalog() *Catalog {
	c, err := NewCatalog(Defaults()...)
	if err != nil {
		panic(err)
	}
	return c
}

// Lookup resolves a code with a case-sensitive exact match.
func (c *Catalog) Lookup(code string) (Params, error) {
	if c == nil {
		return Params{}, ErrNotFound
	}
	p, ok := c.entries[code]
	if !ok {
		return Params{}, ErrNotFound
	}
	return p, nil
}

// Codes lists the known codes in lexical order.
func (c *Catalog) Codes() []string {
	if c == nil {
		return nil
	}
	codes := make([]string, 0, len(c.entries))
	for code := range c.entries {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// ParseEntries reads a comma separated list of CODE=kind:value pairs, e.g.
// "SPRING5=fixed:5,HALF=percent:50,SHIPIT=shipping".
func ParseEntries(csv string) ([]Params, error) {
	if strings.TrimSpace(csv) == "" {
		return nil, nil
	}
	parts := strings.Split(csv, ",")
	out := make([]Params, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		code, rule, ok := strings.Cut(trimmed, "=")
		if !ok {
			return nil, fmt.Errorf("%q: expected CODE=kind:value: %w", trimmed, ErrInvalidRule)
		}
		kind, raw, _ := strings.Cut(rule, ":")
		p := Params{
			Code: strings.TrimSpace(code),
			Kind: Kind(strings.ToLower(strings.TrimSpace(kind))),
		}
		if raw = strings.TrimSpace(raw); raw != "" {
			v, err := decimal.NewFromString(raw)
			if err != nil {
				return nil, fmt.Errorf("%s: parse value: %w", p.Code, err)
			}
			p.Value = v
		}
		if err := p.Validate(); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}
