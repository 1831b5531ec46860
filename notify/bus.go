/*
Package notify delivers ledger events to the outside world.

PURPOSE:
  The engines only know ledger.EventSink. Bus is the sink the server
  wires in: it logs every event, counts it in Prometheus and fans it out
  to subscribed handlers (the notification dispatcher, webhooks, tests).

SUBSCRIPTIONS:
  Handlers subscribe by event kind, with wildcards:
    - "invoice.paid"  exact match
    - "invoice.*"     every invoice event
    - "*"             every event

  Handlers run synchronously in registration order. A failing handler is
  logged and does not stop delivery to the others: the ledger change is
  already stored when an event is published, so there is nothing to roll back.

SEE ALSO:
  - ledger/events.go: Event kinds
  - recorder.go: In-memory sink for tests
*/
package notify

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/warp/tutoring-ledger/ledger"
)

// Handler processes one event.
type Handler func(ctx context.Context, event ledger.Event) error

// Bus is a publish/subscribe ledger.EventSink.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	logger   zerolog.Logger
	metrics  *Metrics
}

var _ ledger.EventSink = (*Bus)(nil)

// NewBus creates a bus. metrics may be nil.
func NewBus(logger zerolog.Logger, metrics *Metrics) *Bus {
	return &Bus{
		handlers: make(map[string][]Handler),
		logger:   logger.With().Str("component", "events").Logger(),
		metrics:  metrics,
	}
}

// Subscribe registers a handler for an event kind or wildcard.
func (b *Bus) Subscribe(kind string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[kind] = append(b.handlers[kind], handler)
}

// Publish delivers event to every matching handler.
func (b *Bus) Publish(ctx context.Context, event ledger.Event) {
	b.logger.Info().
		Str("event", string(event.Kind)).
		Str("entity", event.EntityID).
		Str("number", event.Number).
		Str("party", event.PartyID).
		Int64("amount", int64(event.Amount)).
		Msg("event published")

	if b.metrics != nil {
		b.metrics.observe(event)
	}

	for _, handler := range b.matching(string(event.Kind)) {
		if err := handler(ctx, event); err != nil {
			b.logger.Error().
				Err(err).
				Str("event", string(event.Kind)).
				Str("entity", event.EntityID).
				Msg("event handler error")
		}
	}
}

// HasSubscribers reports whether any handler matches kind.
func (b *Bus) HasSubscribers(kind string) bool {
	return len(b.matching(kind)) > 0
}

// matching returns a copy so handlers run without holding the lock and
// may subscribe further handlers.
func (b *Bus) matching(kind string) []Handler {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var matched []Handler
	matched = append(matched, b.handlers[kind]...)
	if entity, _, ok := strings.Cut(kind, "."); ok {
		matched = append(matched, b.handlers[entity+".*"]...)
	}
	matched = append(matched, b.handlers["*"]...)
	return matched
}

// =============================================================================
// METRICS
// =============================================================================

// Metrics counts published events on its own registry.
type Metrics struct {
	registry     *prometheus.Registry
	EventsTotal  *prometheus.CounterVec
	AmountsTotal *prometheus.CounterVec
}

// NewMetrics creates the collectors on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		EventsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "tutorledger",
				Name:      "events_total",
				Help:      "Total number of ledger events published",
			},
			[]string{"kind"},
		),
		AmountsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "tutorledger",
				Name:      "event_amount_minor_total",
				Help:      "Sum of event amounts in minor currency units",
			},
			[]string{"kind"},
		),
	}
}

func (m *Metrics) observe(event ledger.Event) {
	kind := string(event.Kind)
	m.EventsTotal.WithLabelValues(kind).Inc()
	if event.Amount > 0 {
		m.AmountsTotal.WithLabelValues(kind).Add(float64(event.Amount))
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the /metrics handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
