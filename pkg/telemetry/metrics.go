package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "orderbook"

// Metrics holds the node's collectors. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	gatherer prometheus.Gatherer

	Calls            *prometheus.CounterVec
	OrdersCreated    prometheus.Counter
	OrdersWithdrawn  prometheus.Counter
	AuthDenied       *prometheus.CounterVec
	DispatchFailures prometheus.Counter
	QueueDepth       *prometheus.GaugeVec
	CallDuration     *prometheus.HistogramVec
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		gatherer: reg,
		Calls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calls_total",
			Help:      "Calls by kind and result",
		}, []string{"kind", "result"}),
		OrdersCreated: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_created_total",
			Help:      "Orders placed",
		}),
		OrdersWithdrawn: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_withdrawn_total",
			Help:      "Orders withdrawn",
		}),
		AuthDenied: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_denied_total",
			Help:      "Rejected view-key checks by reason",
		}, []string{"reason"}),
		DispatchFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_failures_total",
			Help:      "Outbound batches that failed delivery",
		}),
		QueueDepth: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Resting orders per side",
		}, []string{"side"}),
		CallDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "call_duration_seconds",
			Help:      "Time spent applying a call including commit",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		}, []string{"kind"}),
	}
}

func (m *Metrics) ObserveCall(kind string, err error, seconds float64) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.Calls.WithLabelValues(kind, result).Inc()
	m.CallDuration.WithLabelValues(kind).Observe(seconds)
}

func (m *Metrics) OrderCreated() {
	if m != nil {
		m.OrdersCreated.Inc()
	}
}

func (m *Metrics) OrderWithdrawn() {
	if m != nil {
		m.OrdersWithdrawn.Inc()
	}
}

func (m *Metrics) Denied(reason string) {
	if m != nil {
		m.AuthDenied.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) DispatchFailed(error) {
	if m != nil {
		m.DispatchFailures.Inc()
	}
}

func (m *Metrics) SetDepth(side string, n int) {
	if m != nil {
		m.QueueDepth.WithLabelValues(side).Set(float64(n))
	}
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
