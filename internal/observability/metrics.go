// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Job metrics
	JobsTotal        *prometheus.CounterVec
	TransfersTotal   *prometheus.CounterVec
	DispatchDuration *prometheus.HistogramVec

	// Confirmation channel metrics
	ConfirmationLatency  prometheus.Histogram
	PendingConfirmations prometheus.Gauge
	WSReconnects         prometheus.Counter
	WSProtocolErrors     *prometheus.CounterVec

	// RPC metrics
	RPCCallLatency *prometheus.HistogramVec
	RPCCallErrors  *prometheus.CounterVec

	// Fleet
	WalletsCreated prometheus.Counter
}

// NewMetrics creates a Metrics instance registered with reg.
// A nil reg registers with the default registry.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "wallet_fleet"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		JobsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "total",
			Help:      "Total number of job operations by kind, operation and outcome",
		}, []string{"kind", "operation", "outcome"}),
		TransfersTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "transfers_total",
			Help:      "Total number of transfers by kind and status",
		}, []string{"kind", "status"}),
		DispatchDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "dispatch_duration_seconds",
			Help:      "Time to dispatch and settle a batch of transfers",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"kind"}),

		ConfirmationLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "confirmation",
			Name:      "latency_seconds",
			Help:      "Time from subscription ack to confirmation notification",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60},
		}),
		PendingConfirmations: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "confirmation",
			Name:      "pending",
			Help:      "Number of registered confirmation waiters",
		}),
		WSReconnects: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "confirmation",
			Name:      "reconnects_total",
			Help:      "Total number of websocket connections established after a loss",
		}),
		WSProtocolErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "confirmation",
			Name:      "protocol_errors_total",
			Help:      "Total number of unroutable or malformed websocket messages",
		}, []string{"reason"}),

		RPCCallLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "rpc_call_latency_seconds",
			Help:      "Solana RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		RPCCallErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "rpc_call_errors_total",
			Help:      "Total number of failed Solana RPC calls",
		}, []string{"method"}),

		WalletsCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fleet",
			Name:      "wallets_created_total",
			Help:      "Total number of derived wallets persisted",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("", nil)

// RecordJob records the outcome of a job operation (initiate, complete, abort, collect).
func RecordJob(kind, operation, outcome string) {
	DefaultMetrics.JobsTotal.WithLabelValues(kind, operation, outcome).Inc()
}

// RecordTransfer records one transfer outcome.
func RecordTransfer(kind, status string) {
	DefaultMetrics.TransfersTotal.WithLabelValues(kind, status).Inc()
}

// RecordDispatch records how long a batch took to settle.
func RecordDispatch(kind string, seconds float64) {
	DefaultMetrics.DispatchDuration.WithLabelValues(kind).Observe(seconds)
}

// RecordConfirmation records subscription-to-notification latency.
func RecordConfirmation(seconds float64) {
	DefaultMetrics.ConfirmationLatency.Observe(seconds)
}

// SetPendingConfirmations updates the pending waiter gauge.
func SetPendingConfirmations(n int) {
	DefaultMetrics.PendingConfirmations.Set(float64(n))
}

// RecordReconnect increments the websocket reconnect counter.
func RecordReconnect() {
	DefaultMetrics.WSReconnects.Inc()
}

// RecordProtocolError counts an unroutable or malformed websocket message.
func RecordProtocolError(reason string) {
	DefaultMetrics.WSProtocolErrors.WithLabelValues(reason).Inc()
}

// RecordRPCCall records RPC call latency and failures.
func RecordRPCCall(method string, seconds float64, err error) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(seconds)
	if err != nil {
		DefaultMetrics.RPCCallErrors.WithLabelValues(method).Inc()
	}
}

// RecordWalletsCreated adds n to the wallets created counter.
func RecordWalletsCreated(n int) {
	DefaultMetrics.WalletsCreated.Add(float64(n))
}
