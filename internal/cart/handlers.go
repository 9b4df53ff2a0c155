package cart

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/noah-isme/cart-totals/internal/common"
	"github.com/noah-isme/cart-totals/internal/pricing"
)

// Handler renders a Session over HTTP. It is a presentation layer only:
// every pricing decision comes from the session.
type Handler struct {
	Session   *Session
	Logger    zerolog.Logger
	Heartbeat time.Duration
}

// Routes mounts the cart endpoints on a chi router. promoMW wraps only the
// code submission endpoint.
func (h *Handler) Routes(r chi.Router, promoMW ...func(http.Handler) http.Handler) {
	r.Get("/cart", h.Get)
	r.Put("/cart/items", h.ReplaceItems)
	r.Post("/cart/items", h.AddItem)
	r.Patch("/cart/items/{id}", h.UpdateQuantity)
	r.Delete("/cart/items/{id}", h.RemoveItem)
	r.With(promoMW...).Post("/cart/promo", h.ApplyCode)
	r.Delete("/cart/promo", h.ClearPromo)
	r.Get("/cart/totals/stream", h.StreamTotals)
	r.Get("/promos", h.Promos)
}

// Get returns cart contents and totals.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if !h.configured(w) {
		return
	}
	h.writeCart(w, http.StatusOK)
}

// ReplaceItems replaces the full item collection.
func (h *Handler) ReplaceItems(w http.ResponseWriter, r *http.Request) {
	if !h.configured(w) {
		return
	}
	var payload struct {
		Items []LineItem `json:"items"`
	}
	if appErr := common.DecodeJSON(r, &payload); appErr != nil {
		common.WriteError(w, appErr)
		return
	}
	if err := h.Session.SetItems(payload.Items); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeCart(w, http.StatusOK)
}

// AddItem appends a line item.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	if !h.configured(w) {
		return
	}
	var item LineItem
	if appErr := common.DecodeJSON(r, &item); appErr != nil {
		common.WriteError(w, appErr)
		return
	}
	if err := h.Session.AddItem(item); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeCart(w, http.StatusCreated)
}

// UpdateQuantity changes the quantity of one item.
func (h *Handler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	if !h.configured(w) {
		return
	}
	var payload struct {
		Quantity *int `json:"quantity"`
	}
	if appErr := common.DecodeJSON(r, &payload); appErr != nil {
		common.WriteError(w, appErr)
		return
	}
	if payload.Quantity == nil {
		common.WriteError(w, common.BadRequest("quantity is required", nil))
		return
	}
	if err := h.Session.UpdateQuantity(chi.URLParam(r, "id"), *payload.Quantity); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeCart(w, http.StatusOK)
}

// RemoveItem deletes one item.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	if !h.configured(w) {
		return
	}
	if err := h.Session.RemoveItem(chi.URLParam(r, "id")); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeCart(w, http.StatusOK)
}

// ApplyCode submits a promo code. Whitespace around the submitted code is
// form input noise and is dropped before the exact-match lookup.
func (h *Handler) ApplyCode(w http.ResponseWriter, r *http.Request) {
	if !h.configured(w) {
		return
	}
	var payload struct {
		Code string `json:"code"`
	}
	if appErr := common.DecodeJSON(r, &payload); appErr != nil {
		common.WriteError(w, appErr)
		return
	}
	if _, err := h.Session.SubmitCode(strings.TrimSpace(payload.Code)); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeCart(w, http.StatusOK)
}

// ClearPromo removes the applied promo.
func (h *Handler) ClearPromo(w http.ResponseWriter, r *http.Request) {
	if !h.configured(w) {
		return
	}
	h.Session.ClearPromo()
	h.writeCart(w, http.StatusOK)
}

// Promos lists the promo codes the session accepts.
func (h *Handler) Promos(w http.ResponseWriter, r *http.Request) {
	if !h.configured(w) {
		return
	}
	catalog := h.Session.Catalog()
	out := make([]any, 0)
	for _, code := range catalog.Codes() {
		p, err := catalog.Lookup(code)
		if err != nil {
			continue
		}
		out = append(out, p)
	}
	common.Data(w, http.StatusOK, out)
}

// StreamTotals pushes the current totals and every subsequent change as
// Server-Sent Events until the client disconnects.
func (h *Handler) StreamTotals(w http.ResponseWriter, r *http.Request) {
	if !h.configured(w) {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		common.WriteError(w, common.Internal(errors.New("response writer cannot flush")))
		return
	}

	// Totals are full snapshots, so a slow client only needs the latest one.
	updates := make(chan pricing.Totals, 8)
	unsubscribe := h.Session.SubscribeTotals(func(t pricing.Totals) {
		for {
			select {
			case updates <- t:
				return
			default:
			}
			select {
			case <-updates:
			default:
			}
		}
	})
	defer unsubscribe()

	headers := w.Header()
	headers.Set("Content-Type", "text/event-stream")
	headers.Set("Cache-Control", "no-cache")
	headers.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	heartbeat := time.NewTicker(h.heartbeat())
	defer heartbeat.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case t := <-updates:
			data, err := json.Marshal(t)
			if err != nil {
				h.Logger.Error().Err(err).Msg("encode totals event")
				return
			}
			if _, err := fmt.Fprintf(w, "event: totals\ndata: %s\n\n", data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (h *Handler) heartbeat() time.Duration {
	if h.Heartbeat <= 0 {
		return 15 * time.Second
	}
	return h.Heartbeat
}

func (h *Handler) configured(w http.ResponseWriter) bool {
	if h == nil || h.Session == nil {
		common.WriteError(w, common.Internal(errors.New("cart session not configured")))
		return false
	}
	return true
}

func (h *Handler) writeCart(w http.ResponseWriter, status int) {
	state, totals := h.Session.Snapshot()
	items := make([]map[string]any, 0, len(state.Items))
	for _, it := range state.Items {
		items = append(items, map[string]any{
			"id":          it.ID,
			"name":        it.Name,
			"price":       it.UnitPrice,
			"image":       it.Image,
			"description": it.Description,
			"limit":       it.Limit,
			"quantity":    it.Quantity,
			"subtotal":    it.Subtotal(),
		})
	}
	common.Data(w, status, map[string]any{
		"id":     h.Session.ID(),
		"items":  items,
		"promo":  state.Promo,
		"totals": totals,
	})
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	appErr := toAppError(err)
	if appErr.HTTPStatus >= http.StatusInternalServerError {
		h.Logger.Error().Err(err).Msg("cart request failed")
	}
	common.WriteError(w, appErr)
}

func toAppError(err error) *common.AppError {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return common.NewAppError(common.CodeValidation, ve.Error(), http.StatusUnprocessableEntity, err).
			WithDetails(map[string]string{"itemId": ve.ItemID, "field": ve.Field, "reason": ve.Reason})
	}
	var nf *NotFoundError
	if errors.As(err, &nf) {
		return common.NewAppError(common.CodeNotFound, nf.Error(), http.StatusNotFound, err).
			WithDetails(map[string]string{"kind": nf.Kind, "key": nf.Key})
	}
	return common.AsAppError(err)
}
