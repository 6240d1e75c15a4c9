package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Transition results used as the result label.
const (
	ResultOK       = "ok"
	ResultRejected = "rejected"
	ResultConflict = "conflict"
	ResultError    = "error"
)

// OrderMetrics tracks the order lifecycle: transitions, dispatch failures and
// orders stuck in pending.
type OrderMetrics struct {
	transitions      *prometheus.CounterVec
	dispatchFailures prometheus.Counter
	stalePending     prometheus.Gauge
}

// NewOrderMetrics registers the order metrics on reg. A nil registerer yields a
// no-op recorder.
func NewOrderMetrics(reg prometheus.Registerer) *OrderMetrics {
	if reg == nil {
		return &OrderMetrics{}
	}
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "roha_order_transitions_total",
		Help: "Order status transition attempts by source, target and result.",
	}, []string{"from", "to", "result"})
	dispatchFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "roha_notification_dispatch_failures_total",
		Help: "Status notifications that could not be created after a committed transition.",
	})
	stalePending := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "roha_stale_pending_orders",
		Help: "Orders still pending past the configured threshold at the last cron run.",
	})
	reg.MustRegister(transitions, dispatchFailures, stalePending)
	return &OrderMetrics{
		transitions:      transitions,
		dispatchFailures: dispatchFailures,
		stalePending:     stalePending,
	}
}

func (m *OrderMetrics) ObserveTransition(from, to, result string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(from), normalizeLabel(to), result).Inc()
}

func (m *OrderMetrics) IncDispatchFailure() {
	if m == nil || m.dispatchFailures == nil {
		return
	}
	m.dispatchFailures.Inc()
}

func (m *OrderMetrics) SetStalePending(count int64) {
	if m == nil || m.stalePending == nil {
		return
	}
	m.stalePending.Set(float64(count))
}

// OutboxMetrics counts publish attempts made by the outbox publisher.
type OutboxMetrics struct {
	published *prometheus.CounterVec
}

func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	published := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "roha_outbox_publish_total",
		Help: "Outbox events handed to the live channels by event type and result.",
	}, []string{"event_type", "result"})
	reg.MustRegister(published)
	return &OutboxMetrics{published: published}
}

func (m *OutboxMetrics) ObservePublish(eventType, result string) {
	if m == nil || m.published == nil {
		return
	}
	m.published.WithLabelValues(normalizeLabel(eventType), result).Inc()
}
