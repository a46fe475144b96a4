package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the per-client GraphQL metrics. All Record methods are safe on
// a nil receiver so callers can run without a registry.
type Metrics struct {
	OperationsTotal     *prometheus.CounterVec
	OperationDuration   *prometheus.HistogramVec
	ErrorsTotal         *prometheus.CounterVec
	TokenResolutions    *prometheus.CounterVec
	WSConnected         *prometheus.GaugeVec
	WSReconnects        *prometheus.CounterVec
	ActiveSubscriptions *prometheus.GaugeVec
	CacheTransfers      *prometheus.CounterVec
}

// NewMetrics creates the client metrics without registering them
func NewMetrics() *Metrics {
	return &Metrics{
		OperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gqlclients",
				Subsystem: "operations",
				Name:      "total",
				Help:      "GraphQL operations executed",
			},
			[]string{"client", "kind", "status"},
		),

		OperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "gqlclients",
				Subsystem: "operations",
				Name:      "duration_seconds",
				Help:      "GraphQL operation duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"client", "kind"},
		),

		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gqlclients",
				Subsystem: "errors",
				Name:      "total",
				Help:      "Errors reported through the error hook",
			},
			[]string{"client", "type"},
		),

		TokenResolutions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gqlclients",
				Subsystem: "auth",
				Name:      "token_resolutions_total",
				Help:      "Token resolutions by source (hook, cookie, local-storage, none)",
			},
			[]string{"client", "source"},
		),

		WSConnected: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "gqlclients",
				Subsystem: "ws",
				Name:      "connected",
				Help:      "Subscription transport status (0=disconnected, 1=connected)",
			},
			[]string{"client"},
		),

		WSReconnects: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gqlclients",
				Subsystem: "ws",
				Name:      "reconnects_total",
				Help:      "Subscription transport reconnects",
			},
			[]string{"client"},
		),

		ActiveSubscriptions: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "gqlclients",
				Subsystem: "ws",
				Name:      "active_subscriptions",
				Help:      "Subscriptions currently registered on the transport",
			},
			[]string{"client"},
		),

		CacheTransfers: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gqlclients",
				Subsystem: "cache",
				Name:      "transfers_total",
				Help:      "Cache snapshots written (extract) or restored (restore)",
			},
			[]string{"client", "direction"},
		),
	}
}

func (m *Metrics) mustRegister(reg prometheus.Registerer) {
	reg.MustRegister(
		m.OperationsTotal,
		m.OperationDuration,
		m.ErrorsTotal,
		m.TokenResolutions,
		m.WSConnected,
		m.WSReconnects,
		m.ActiveSubscriptions,
		m.CacheTransfers,
	)
}

// RecordOperation counts one finished operation and observes its duration
func (m *Metrics) RecordOperation(client, kind string, failed bool, duration time.Duration) {
	if m == nil {
		return
	}
	status := "ok"
	if failed {
		status = "error"
	}
	m.OperationsTotal.WithLabelValues(client, kind, status).Inc()
	m.OperationDuration.WithLabelValues(client, kind).Observe(duration.Seconds())
}

// RecordError increments the error counter
func (m *Metrics) RecordError(client, errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(client, errorType).Inc()
}

// RecordTokenResolution counts where a token came from
func (m *Metrics) RecordTokenResolution(client, source string) {
	if m == nil {
		return
	}
	m.TokenResolutions.WithLabelValues(client, source).Inc()
}

// RecordWSStatus updates the transport connection gauge
func (m *Metrics) RecordWSStatus(client string, connected bool) {
	if m == nil {
		return
	}
	value := 0.0
	if connected {
		value = 1.0
	}
	m.WSConnected.WithLabelValues(client).Set(value)
}

// RecordWSReconnect increments the reconnect counter
func (m *Metrics) RecordWSReconnect(client string) {
	if m == nil {
		return
	}
	m.WSReconnects.WithLabelValues(client).Inc()
}

// RecordActiveSubscriptions sets the active subscription gauge
func (m *Metrics) RecordActiveSubscriptions(client string, n int) {
	if m == nil {
		return
	}
	m.ActiveSubscriptions.WithLabelValues(client).Set(float64(n))
}

// RecordCacheTransfer counts a snapshot extract or restore
func (m *Metrics) RecordCacheTransfer(client, direction string) {
	if m == nil {
		return
	}
	m.CacheTransfers.WithLabelValues(client, direction).Inc()
}
