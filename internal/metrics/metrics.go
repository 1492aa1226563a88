// Package metrics exposes Prometheus metrics for the HTTP API, the
// ingestion pipeline and the broadcast engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for maillist
type Metrics struct {
	// Ingestion counters
	RowsIngestedTotal *prometheus.CounterVec

	// Broadcast counters
	MailsSentTotal   prometheus.Counter
	MailsFailedTotal prometheus.Counter

	// API metrics
	APIRequestsTotal          *prometheus.CounterVec
	APIRequestDurationSeconds *prometheus.HistogramVec

	registry *prometheus.Registry
}

// New creates a new Metrics instance with all metrics registered
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		RowsIngestedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "maillist_rows_ingested_total",
				Help: "Total number of CSV rows processed, by outcome",
			},
			[]string{"outcome"},
		),
		MailsSentTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "maillist_mails_sent_total",
				Help: "Total number of broadcast mails dispatched successfully",
			},
		),
		MailsFailedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "maillist_mails_failed_total",
				Help: "Total number of broadcast mails that failed to dispatch",
			},
		),
		APIRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "maillist_api_requests_total",
				Help: "Total number of API requests",
			},
			[]string{"method", "path", "status"},
		),
		APIRequestDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "maillist_api_request_duration_seconds",
				Help:    "API request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		registry: reg,
	}

	reg.MustRegister(
		m.RowsIngestedTotal,
		m.MailsSentTotal,
		m.MailsFailedTotal,
		m.APIRequestsTotal,
		m.APIRequestDurationSeconds,
	)

	return m
}

// Handler returns the HTTP handler serving the metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveIngest records the outcome counts of one ingestion batch
func (m *Metrics) ObserveIngest(succeeded, failed int) {
	m.RowsIngestedTotal.WithLabelValues("success").Add(float64(succeeded))
	m.RowsIngestedTotal.WithLabelValues("failure").Add(float64(failed))
}

// ObserveBroadcast records the outcome counts of one broadcast
func (m *Metrics) ObserveBroadcast(sent, failed int) {
	m.MailsSentTotal.Add(float64(sent))
	m.MailsFailedTotal.Add(float64(failed))
}
