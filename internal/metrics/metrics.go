// Package metrics exposes the gateway's Prometheus metrics against a
// private registry so the engine and worker fleet stay instantiable in
// tests without colliding with the default global registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics collects ingest, derivation, and fan-out counters for one process.
type Metrics struct {
	registry *prometheus.Registry

	QuotesIngested   *prometheus.CounterVec
	EVDerived        *prometheus.CounterVec
	ArbitrageFound   *prometheus.CounterVec
	SSEReconnects    *prometheus.CounterVec
	SSEBisections    *prometheus.CounterVec
	WSConnections    prometheus.Gauge
	WSEvictions      prometheus.Counter
	ActiveWorkers    prometheus.Gauge
	BroadcastLatency prometheus.Histogram
}

// New constructs a Metrics instance bound to a fresh private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		QuotesIngested: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oddsgateway_quotes_ingested_total",
				Help: "Total number of individual odds quotes admitted into the state engine",
			},
			[]string{"sport"},
		),
		EVDerived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oddsgateway_ev_records_total",
				Help: "Total number of expected-value records derived",
			},
			[]string{"sport"},
		),
		ArbitrageFound: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oddsgateway_arbitrage_records_total",
				Help: "Total number of arbitrage opportunities derived",
			},
			[]string{"sport"},
		),
		SSEReconnects: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oddsgateway_sse_reconnects_total",
				Help: "Total number of SSE worker reconnect attempts",
			},
			[]string{"sport"},
		),
		SSEBisections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oddsgateway_sse_bisections_total",
				Help: "Total number of chunk bisections triggered by an over-long upstream URL",
			},
			[]string{"sport"},
		),
		WSConnections: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "oddsgateway_ws_connections",
				Help: "Current number of registered WebSocket subscribers",
			},
		),
		WSEvictions: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "oddsgateway_ws_evictions_total",
				Help: "Total number of subscribers evicted for a full send buffer",
			},
		),
		ActiveWorkers: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "oddsgateway_active_workers",
				Help: "Current number of running SSE workers",
			},
		),
		BroadcastLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "oddsgateway_broadcast_loop_seconds",
				Help:    "Duration of one hub broadcast dispatch across all registered clients",
				Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14),
			},
		),
	}

	registry.MustRegister(
		m.QuotesIngested,
		m.EVDerived,
		m.ArbitrageFound,
		m.SSEReconnects,
		m.SSEBisections,
		m.WSConnections,
		m.WSEvictions,
		m.ActiveWorkers,
		m.BroadcastLatency,
	)

	return m
}

// Registry returns the private registry this instance registered against.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
