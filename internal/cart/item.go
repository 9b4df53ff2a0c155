package cart

import (
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/cart-totals/internal/pricing"
	"github.com/noah-isme/cart-totals/internal/promo"
)

// LineItem is one product entry in the cart.
type LineItem struct {
	ID          string          `json:"id" validate:"required"`
	Name        string          `json:"name"`
	UnitPrice   decimal.Decimal `json:"price"`
	Image       string          `json:"image"`
	Description string          `json:"description"`
	Limit       int             `json:"limit" validate:"min=1"`
	Quantity    int             `json:"quantity" validate:"min=1,ltefield=Limit"`
}

// Subtotal returns UnitPrice x Quantity.
func (it LineItem) Subtotal() decimal.Decimal {
	return it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity)))
}

// State is the reactive source owned by a Session. Items must be treated as
// read-only by anyone holding a State.
type State struct {
	Items []LineItem    `json:"items"`
	Promo *promo.Params `json:"promo"`
}

// Clone returns a deep copy safe for mutation.
func (s State) Clone() State {
	out := State{Items: slices.Clone(s.Items)}
	if s.Promo != nil {
		p := *s.Promo
		out.Promo = &p
	}
	return out
}

func (s State) pricingItems() []pricing.Item {
	items := make([]pricing.Item, 0, len(s.Items))
	for _, it := range s.Items {
		items = append(items, pricing.Item{Qty: it.Quantity, UnitPrice: it.UnitPrice})
	}
	return items
}

func (s State) indexOf(id string) int {
	return slices.IndexFunc(s.Items, func(it LineItem) bool { return it.ID == id })
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" {
			return f.Name
		}
		return tag
	})
	return v
}

// ValidateItem checks a single line item.
func ValidateItem(it LineItem) error {
	if err := validate.Struct(it); err != nil {
		return formatValidationError(it.ID, err)
	}
	if it.UnitPrice.IsNegative() {
		return &ValidationError{ItemID: it.ID, Field: "price", Reason: "must not be negative"}
	}
	return nil
}

// ValidateItems checks every item and rejects duplicate ids.
func ValidateItems(items []LineItem) error {
	seen := make(map[string]struct{}, len(items))
	for _, it := range items {
		if err := ValidateItem(it); err != nil {
			return err
		}
		if _, dup := seen[it.ID]; dup {
			return &ValidationError{ItemID: it.ID, Field: "id", Reason: "is duplicated"}
		}
		seen[it.ID] = struct{}{}
	}
	return nil
}

func formatValidationError(itemID string, err error) error {
	errs, ok := err.(validator.ValidationErrors)
	if !ok || len(errs) == 0 {
		return &ValidationError{ItemID: itemID, Field: "item", Reason: err.Error()}
	}
	fe := errs[0]
	return &ValidationError{ItemID: itemID, Field: fe.Field(), Reason: validationMessage(fe)}
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "ltefield":
		return "must not exceed limit"
	}
	return "is invalid"
}
