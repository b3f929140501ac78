// Package metrics defines the Prometheus collectors for the index write and
// read paths and exposes an HTTP handler for scraping. Every recording
// method is safe on a nil *Metrics, so components can run unmetered.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the index.
type Metrics struct {
	DocIDsAssigned     prometheus.Counter
	PartialAssignments prometheus.Counter
	DocsIndexedTotal   prometheus.Counter
	CommitsTotal       *prometheus.CounterVec
	CommitPuts         prometheus.Histogram
	SegmentFlushes     *prometheus.CounterVec
	SegmentTerms       prometheus.Histogram
	SearchQueriesTotal *prometheus.CounterVec
	SearchLatency      *prometheus.HistogramVec
	SearchResultsCount prometheus.Histogram

	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
}

// New creates the collectors and registers them with reg. A nil reg uses
// the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		DocIDsAssigned: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "kvindex_doc_ids_assigned_total",
				Help: "Total internal document ids handed out.",
			},
		),
		PartialAssignments: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "kvindex_partial_assignments_total",
				Help: "Id assignments where only one direction of the identity map was written.",
			},
		),
		DocsIndexedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "kvindex_docs_indexed_total",
				Help: "Total documents indexed.",
			},
		),
		CommitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kvindex_commits_total",
				Help: "Transaction log commits by status.",
			},
			[]string{"status"},
		),
		CommitPuts: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "kvindex_commit_puts",
				Help:    "Row writes sent per commit.",
				Buckets: prometheus.ExponentialBuckets(1, 4, 8),
			},
		),
		SegmentFlushes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kvindex_segment_flushes_total",
				Help: "Segment buffer flushes by status.",
			},
			[]string{"status"},
		),
		SegmentTerms: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "kvindex_segment_terms",
				Help:    "Distinct terms written per segment flush.",
				Buckets: prometheus.ExponentialBuckets(1, 4, 10),
			},
		),
		SearchQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kvindex_search_queries_total",
				Help: "Total searches by sort path (score, field) and result (ok, error).",
			},
			[]string{"path", "result"},
		),
		SearchLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "kvindex_search_latency_seconds",
				Help:    "Search latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"path"},
		),
		SearchResultsCount: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "kvindex_search_results_count",
				Help:    "Number of results returned per search.",
				Buckets: []float64{0, 1, 5, 10, 25, 50, 100},
			},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kvindex_http_requests_total",
				Help: "Total HTTP requests by method, path, and status code.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "kvindex_http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "kvindex_http_requests_in_flight",
				Help: "HTTP requests currently being served.",
			},
		),
	}

	reg.MustRegister(
		m.DocIDsAssigned,
		m.PartialAssignments,
		m.DocsIndexedTotal,
		m.CommitsTotal,
		m.CommitPuts,
		m.SegmentFlushes,
		m.SegmentTerms,
		m.SearchQueriesTotal,
		m.SearchLatency,
		m.SearchResultsCount,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
	)

	return m
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// IDAssigned records one id allocation; partial marks a half-written map.
func (m *Metrics) IDAssigned(partial bool) {
	if m == nil {
		return
	}
	m.DocIDsAssigned.Inc()
	if partial {
		m.PartialAssignments.Inc()
	}
}

func (m *Metrics) DocIndexed() {
	if m == nil {
		return
	}
	m.DocsIndexedTotal.Inc()
}

func (m *Metrics) Commit(puts int, err error) {
	if m == nil {
		return
	}
	m.CommitsTotal.WithLabelValues(status(err)).Inc()
	if err == nil {
		m.CommitPuts.Observe(float64(puts))
	}
}

func (m *Metrics) Flush(terms int, err error) {
	if m == nil {
		return
	}
	m.SegmentFlushes.WithLabelValues(status(err)).Inc()
	if err == nil {
		m.SegmentTerms.Observe(float64(terms))
	}
}

func (m *Metrics) Search(path string, results int, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	m.SearchQueriesTotal.WithLabelValues(path, status(err)).Inc()
	m.SearchLatency.WithLabelValues(path).Observe(elapsed.Seconds())
	if err == nil {
		m.SearchResultsCount.Observe(float64(results))
	}
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
