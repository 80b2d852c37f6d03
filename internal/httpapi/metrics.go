package httpapi

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instruments for the API surface and the
// pipeline outcomes behind it.
type Metrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	searchTotal     *prometheus.CounterVec
	searchCacheHits prometheus.Counter
	generateTotal   *prometheus.CounterVec
}

// NewMetrics registers the quizd metrics on the default registry.
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith registers the metrics on a specific registerer. Tests use
// this with a private registry to avoid duplicate-registration panics.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "quizd_http_requests_total",
			Help: "HTTP requests by method, path, and status code.",
		}, []string{"method", "path", "status"}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "quizd_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds by path.",
			Buckets: []float64{0.005, 0.025, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"path"}),
		searchTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "quizd_search_total",
			Help: "Searches by resulting quality band.",
		}, []string{"quality"}),
		searchCacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "quizd_search_cache_hits_total",
			Help: "Searches served from the result cache.",
		}),
		generateTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "quizd_generate_total",
			Help: "Generation requests by outcome (success, exhausted, budget_expired, rejected, error).",
		}, []string{"outcome"}),
	}
}

func (m *Metrics) observeRequest(method, path string, status int, seconds float64) {
	m.requestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(path).Observe(seconds)
}

func (m *Metrics) observeSearch(quality string, cacheHit bool) {
	m.searchTotal.WithLabelValues(quality).Inc()
	if cacheHit {
		m.searchCacheHits.Inc()
	}
}

func (m *Metrics) observeGenerate(outcome string) {
	m.generateTotal.WithLabelValues(outcome).Inc()
}
