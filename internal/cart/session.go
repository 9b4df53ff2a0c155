package cart

import (
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/cart-totals/internal/events"
	"github.com/noah-isme/cart-totals/internal/pricing"
	"github.com/noah-isme/cart-totals/internal/promo"
	"github.com/noah-isme/cart-totals/internal/reactive"
)

// Config wires a Session to its collaborators. Zero values fall back to the
// built-in promo catalog, the default shipping fee, a discarding logger and
// no event bus.
type Config struct {
	ID      string
	Items   []LineItem
	Catalog *promo.Catalog
	Engine  *pricing.Engine
	Bus     *events.Bus
	Logger  *zerolog.Logger
}

// Session owns the cart line items and the applied promo for one shopping
// session, and keeps the derived totals in step with them.
//
// Every successful mutation updates the state and recomputes totals exactly
// once, notifying subscribers synchronously before the call returns. Failed
// mutations leave the state untouched and notify nobody.
type Session struct {
	id      string
	state   *reactive.Value[State]
	totals  *reactive.Derived[State, pricing.Totals]
	compute func(State) pricing.Totals
	catalog *promo.Catalog
	bus     *events.Bus
	logger  zerolog.Logger
}

// NewSession validates the initial items and builds a session.
func NewSession(cfg Config) (*Session, error) {
	if err := ValidateItems(cfg.Items); err != nil {
		return nil, err
	}
	engine := pricing.NewEngine(pricing.DefaultShippingCost)
	if cfg.Engine != nil {
		engine = *cfg.Engine
	}
	catalog := cfg.Catalog
	if catalog == nil {
		catalog = promo.DefaultCatalog()
	}
	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}
	id := strings.TrimSpace(cfg.ID)
	if id == "" {
		id = uuid.NewString()
	}

	state := reactive.NewValue(State{Items: slices.Clone(cfg.Items)})
	s := &Session{
		id:      id,
		state:   state,
		catalog: catalog,
		bus:     cfg.Bus,
		logger:  logger.With().Str("session_id", id).Logger(),
	}
	s.compute = func(st State) pricing.Totals {
		return engine.Compute(st.pricingItems(), st.Promo)
	}
	s.totals = reactive.Derive(state, s.compute)
	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Catalog returns the promo catalog used by SubmitCode.
func (s *Session) Catalog() *promo.Catalog { return s.catalog }

// State returns a copy of the current items and applied promo.
func (s *Session) State() State { return s.state.Get().Clone() }

// Items returns a copy of the current line items in order.
func (s *Session) Items() []LineItem { return slices.Clone(s.state.Get().Items) }

// AppliedPromo returns the applied promo, or nil.
func (s *Session) AppliedPromo() *promo.Params { return s.State().Promo }

// Totals returns the totals for the current state.
func (s *Session) Totals() pricing.Totals { return s.totals.Get() }

// Snapshot returns the current state and the totals derived from that same
// state. Use it instead of State followed by Totals when writers may run
// concurrently.
func (s *Session) Snapshot() (State, pricing.Totals) {
	st, totals := s.totals.Snapshot()
	return st.Clone(), totals
}

// SubscribeState registers fn for state changes. fn receives the current
// state immediately. The delivered State is shared and must not be modified.
func (s *Session) SubscribeState(fn func(State)) (unsubscribe func()) {
	return s.state.Subscribe(fn)
}

// SubscribeTotals registers fn for totals changes. fn receives the current
// totals immediately.
func (s *Session) SubscribeTotals(fn func(pricing.Totals)) (unsubscribe func()) {
	return s.totals.Subscribe(fn)
}

// Close detaches the totals projection. The session must not be used after.
func (s *Session) Close() { s.totals.Close() }

// SetItems replaces the full collection.
func (s *Session) SetItems(items []LineItem) error {
	totals, err := s.mutate(func(cur State) (State, error) {
		if err := ValidateItems(items); err != nil {
			return cur, err
		}
		return State{Items: slices.Clone(items), Promo: cur.Promo}, nil
	})
	return s.record("set_items", totals, events.TopicItemsReplaced, err, map[string]any{"count": len(items)})
}

// AddItem appends a new line item.
func (s *Session) AddItem(item LineItem) error {
	totals, err := s.mutate(func(cur State) (State, error) {
		if err := ValidateItem(item); err != nil {
			return cur, err
		}
		if cur.indexOf(item.ID) >= 0 {
			return cur, &ValidationError{ItemID: item.ID, Field: "id", Reason: "is duplicated"}
		}
		items := append(slices.Clone(cur.Items), item)
		return State{Items: items, Promo: cur.Promo}, nil
	})
	return s.record("add_item", totals, events.TopicItemAdded, err, map[string]any{"itemId": item.ID, "quantity": item.Quantity})
}

// UpdateQuantity sets the quantity of an existing item. Quantities outside
// [1, limit] are rejected with a *ValidationError.
func (s *Session) UpdateQuantity(id string, quantity int) error {
	totals, err := s.mutate(func(cur State) (State, error) {
		idx := cur.indexOf(id)
		if idx < 0 {
			return cur, &NotFoundError{Kind: "item", Key: id}
		}
		if limit := cur.Items[idx].Limit; quantity < 1 || quantity > limit {
			return cur, &ValidationError{ItemID: id, Field: "quantity", Reason: outOfRange(limit)}
		}
		items := slices.Clone(cur.Items)
		items[idx].Quantity = quantity
		return State{Items: items, Promo: cur.Promo}, nil
	})
	return s.record("update_quantity", totals, events.TopicQuantityUpdated, err, map[string]any{"itemId": id, "quantity": quantity})
}

// RemoveItem deletes an item by id.
func (s *Session) RemoveItem(id string) error {
	totals, err := s.mutate(func(cur State) (State, error) {
		idx := cur.indexOf(id)
		if idx < 0 {
			return cur, &NotFoundError{Kind: "item", Key: id}
		}
		items := slices.Delete(slices.Clone(cur.Items), idx, idx+1)
		return State{Items: items, Promo: cur.Promo}, nil
	})
	return s.record("remove_item", totals, events.TopicItemRemoved, err, map[string]any{"itemId": id})
}

// ApplyPromo sets the applied promo, replacing any previous one. nil clears
// the slot.
func (s *Session) ApplyPromo(p *promo.Params) {
	var applied *promo.Params
	if p != nil {
		cp := *p
		applied = &cp
	}
	totals, _ := s.mutate(func(cur State) (State, error) {
		return State{Items: cur.Items, Promo: applied}, nil
	})
	if applied == nil {
		_ = s.record("clear_promo", totals, events.TopicPromoCleared, nil, nil)
		return
	}
	_ = s.record("apply_promo", totals, events.TopicPromoApplied, nil, map[string]any{"code": applied.Code, "type": applied.Kind})
}

// ClearPromo removes the applied promo.
func (s *Session) ClearPromo() { s.ApplyPromo(nil) }

// SubmitCode resolves code against the catalog, exactly as given, and
// applies the match. An unknown code yields a *NotFoundError and leaves the
// applied promo as is.
func (s *Session) SubmitCode(code string) (promo.Params, error) {
	p, err := s.catalog.Lookup(code)
	if err != nil {
		nf := &NotFoundError{Kind: "promo", Key: code, Err: err}
		s.logger.Info().Str("code", code).Msg("promo code rejected")
		s.emit(events.TopicPromoRejected, map[string]any{"code": code})
		return promo.Params{}, nf
	}
	s.ApplyPromo(&p)
	return p, nil
}

// mutate commits fn under the state's publish lock and returns the totals of
// the state it committed, not of whatever state is current afterwards.
func (s *Session) mutate(fn func(State) (State, error)) (pricing.Totals, error) {
	var committed State
	err := s.state.TryUpdate(func(cur State) (State, error) {
		next, err := fn(cur)
		committed = next
		return next, err
	})
	if err != nil {
		return pricing.Totals{}, err
	}
	return s.compute(committed), nil
}

func (s *Session) record(op string, totals pricing.Totals, topic string, err error, payload map[string]any) error {
	if err != nil {
		s.logger.Info().Err(err).Str("op", op).Msg("cart mutation rejected")
		s.emit(events.TopicMutationRejected, map[string]any{"op": op, "error": err.Error()})
		return err
	}
	s.logger.Debug().
		Str("op", op).
		Stringer("subtotal", totals.Subtotal).
		Stringer("discount", totals.Discount).
		Stringer("shipping", totals.Shipping).
		Stringer("total", totals.Total).
		Msg("cart updated")
	if payload == nil {
		payload = map[string]any{}
	}
	payload["totals"] = totals
	s.emit(topic, payload)
	return nil
}

func (s *Session) emit(topic string, payload any) {
	if s.bus == nil {
		return
	}
	if _, err := s.bus.Emit(topic, s.id, payload); err != nil {
		s.logger.Warn().Err(err).Str("topic", topic).Msg("emit cart event")
	}
}

func outOfRange(limit int) string {
	if limit == 1 {
		return "must be 1"
	}
	return fmt.Sprintf("must be between 1 and %d", limit)
}
