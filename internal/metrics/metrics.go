// Package metrics holds the Prometheus collectors of the service. Every
// method is safe to call on a nil *Metrics, which records nothing.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/khanglvm/osm-tag-search/internal/apperror"
)

const namespace = "osm_tag_search"

// Metrics holds Prometheus metrics for search, indexing and the HTTP surface.
type Metrics struct {
	registry *prometheus.Registry

	searchTotal    *prometheus.CounterVec
	searchDuration *prometheus.HistogramVec
	searchResults  *prometheus.HistogramVec
	cacheHits      *prometheus.CounterVec

	indexedTotal *prometheus.CounterVec

	httpRequests *prometheus.CounterVec
}

// New creates the collectors on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		searchTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_total",
			Help:      "Total number of searches by kind and outcome",
		}, []string{"kind", "outcome"}),
		searchDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_duration_seconds",
			Help:      "Search latency including embedding",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
		searchResults: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_results",
			Help:      "Number of results returned per search",
			Buckets:   []float64{0, 1, 2, 5, 10, 25},
		}, []string{"kind"}),
		cacheHits: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_cache_hits_total",
			Help:      "Searches answered from the result cache",
		}, []string{"kind"}),
		indexedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "indexed_documents_total",
			Help:      "Documents written by indexing jobs",
		}, []string{"index"}),
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code",
		}, []string{"route", "code"}),
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveSearch records one search that started at start.
func (m *Metrics) ObserveSearch(kind string, start time.Time, results int, err error) {
	if m == nil {
		return
	}
	m.searchTotal.WithLabelValues(kind, outcome(results, err)).Inc()
	m.searchDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	if err == nil {
		m.searchResults.WithLabelValues(kind).Observe(float64(results))
	}
}

// CacheHit records a search answered from the cache.
func (m *Metrics) CacheHit(kind string) {
	if m == nil {
		return
	}
	m.cacheHits.WithLabelValues(kind).Inc()
}

// AddIndexed records documents written to an index.
func (m *Metrics) AddIndexed(index string, n int) {
	if m == nil {
		return
	}
	m.indexedTotal.WithLabelValues(index).Add(float64(n))
}

// ObserveRequest records an HTTP response.
func (m *Metrics) ObserveRequest(route string, code int) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
}

func outcome(results int, err error) string {
	switch {
	case err == nil && results == 0:
		return "empty"
	case err == nil:
		return "ok"
	case errors.Is(err, apperror.ErrBackendUnavailable):
		return "unavailable"
	default:
		return "error"
	}
}
