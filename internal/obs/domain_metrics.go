package obs

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/noah-isme/cart-totals/internal/events"
	"github.com/noah-isme/cart-totals/internal/pricing"
)

// CartMetrics groups Prometheus collectors describing cart activity.
type CartMetrics struct {
	// EventsTotal counts emitted cart events by topic.
	EventsTotal *prometheus.CounterVec
	// Subtotal, Discount, Shipping and Total mirror the latest derived totals.
	Subtotal prometheus.Gauge
	Discount prometheus.Gauge
	Shipping prometheus.Gauge
	Total    prometheus.Gauge
}

// NewCartMetrics registers and returns cart collectors. Collectors already
// registered on reg are reused.
func NewCartMetrics(namespace string, reg prometheus.Registerer) *CartMetrics {
	gauge := func(name, help string) prometheus.Gauge {
		return Register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cart",
			Name:      name,
			Help:      help,
		}))
	}
	m := &CartMetrics{
		EventsTotal: Register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cart",
			Name:      "events_total",
			Help:      "Count of cart domain events by topic.",
		}, []string{"topic"})),
		Subtotal: gauge("subtotal", "Latest cart subtotal."),
		Discount: gauge("discount", "Latest cart discount."),
		Shipping: gauge("shipping", "Latest cart shipping fee."),
		Total:    gauge("total", "Latest cart total."),
	}
	return m
}

// ObserveTotals records the latest totals. It matches the session's totals
// subscriber signature.
func (m *CartMetrics) ObserveTotals(t pricing.Totals) {
	if m == nil {
		return
	}
	m.Subtotal.Set(t.Subtotal.InexactFloat64())
	m.Discount.Set(t.Discount.InexactFloat64())
	m.Shipping.Set(t.Shipping.InexactFloat64())
	m.Total.Set(t.Total.InexactFloat64())
}

// Notify implements events.Notifier by counting the event topic.
func (m *CartMetrics) Notify(event events.Event) error {
	if m == nil {
		return nil
	}
	m.EventsTotal.WithLabelValues(event.Topic).Inc()
	return nil
}
