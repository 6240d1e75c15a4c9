package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestOrderMetricsCountsTransitions(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewOrderMetrics(reg)

	m.ObserveTransition("pending", "accepted", ResultOK)
	m.ObserveTransition("pending", "accepted", ResultOK)
	m.ObserveTransition("pending", "delivered", ResultRejected)
	m.IncDispatchFailure()
	m.SetStalePending(3)

	mfs, err := reg.Gather()
	require.NoError(t, err)

	mf := findMetricFamily(mfs, "roha_order_transitions_total")
	require.NotNil(t, mf)
	var accepted float64
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), "to", "accepted") && matchesLabel(metric.GetLabel(), "result", ResultOK) {
			accepted = metric.GetCounter().GetValue()
		}
	}
	require.Equal(t, float64(2), accepted)

	failures := findMetricFamily(mfs, "roha_notification_dispatch_failures_total")
	require.NotNil(t, failures)
	require.Equal(t, float64(1), failures.GetMetric()[0].GetCounter().GetValue())

	stale := findMetricFamily(mfs, "roha_stale_pending_orders")
	require.NotNil(t, stale)
	require.Equal(t, float64(3), stale.GetMetric()[0].GetGauge().GetValue())
}

func TestNilMetricsAreNoops(t *testing.T) {
	var orders *OrderMetrics
	orders.ObserveTransition("pending", "accepted", ResultOK)
	orders.IncDispatchFailure()
	orders.SetStalePending(1)

	outbox := NewOutboxMetrics(nil)
	outbox.ObservePublish("order_updated", ResultOK)

	var httpMetrics *HTTPMetrics
	httpMetrics.ObserveRequest("GET", "/menu", 200, time.Millisecond, false)
	NewHTTPMetrics(nil).ObserveRequest("GET", "/menu", 200, time.Millisecond, false)
}

func TestOutboxMetricsLabelsByEventType(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewOutboxMetrics(reg)
	m.ObservePublish("notification_created", ResultOK)
	m.ObservePublish("", ResultError)

	require.Equal(t, float64(1), testutil.ToFloat64(m.published.WithLabelValues("notification_created", ResultOK)))
	require.Equal(t, float64(1), testutil.ToFloat64(m.published.WithLabelValues("unknown", ResultError)))
}
