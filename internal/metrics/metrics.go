package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const (
	MetricsNamespace         = "qagateway"
	MetricsSubsystemHTTP     = "http"
	MetricsSubsystemCache    = "cache"
	MetricsSubsystemUpstream = "upstream"
)

type Metrics interface {
	GetRegistry() *prometheus.Registry

	ObserveHTTPRequest(route, method, statusCode string, elapsed float64)

	IncrementAnswers(source string)
	IncrementLookup(hit bool)
	IncrementExactHit()

	ObserveUpstreamDuration(elapsed float64)
	IncrementUpstreamErrors()
}

type metrics struct {
	registry *prometheus.Registry

	httpTime *prometheus.HistogramVec

	answersTotal   *prometheus.CounterVec
	lookupsTotal   *prometheus.CounterVec
	exactHitsTotal prometheus.Counter

	upstreamTime        prometheus.Histogram
	upstreamErrorsTotal prometheus.Counter
}

// NewMetrics creates a collector set on its own registry.
func NewMetrics() Metrics {
	m := &metrics{}

	m.registry = prometheus.NewRegistry()
	m.registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{
		Namespace: MetricsNamespace,
	}))
	m.registry.MustRegister(collectors.NewGoCollector())

	m.httpTime = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: MetricsNamespace,
			Subsystem: MetricsSubsystemHTTP,
			Name:      "request_duration_seconds",
			Help:      "Time to serve an HTTP request.",
		},
		[]string{"route", "method", "status_code"},
	)
	m.registry.MustRegister(m.httpTime)

	m.answersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Subsystem: MetricsSubsystemCache,
			Name:      "answers_total",
			Help:      "Answers returned, by source tag.",
		},
		[]string{"source"},
	)
	m.registry.MustRegister(m.answersTotal)

	m.lookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Subsystem: MetricsSubsystemCache,
			Name:      "similarity_lookups_total",
			Help:      "Similarity scans, by whether a record cleared the threshold.",
		},
		[]string{"result"},
	)
	m.registry.MustRegister(m.lookupsTotal)

	m.exactHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Subsystem: MetricsSubsystemCache,
		Name:      "exact_hits_total",
		Help:      "Answers served from the exact-text cache without embedding.",
	})
	m.registry.MustRegister(m.exactHitsTotal)

	m.upstreamTime = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: MetricsNamespace,
		Subsystem: MetricsSubsystemUpstream,
		Name:      "request_duration_seconds",
		Help:      "Time spent waiting on the completion API.",
		Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32, 64},
	})
	m.registry.MustRegister(m.upstreamTime)

	m.upstreamErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Subsystem: MetricsSubsystemUpstream,
		Name:      "errors_total",
		Help:      "Failed completion API calls.",
	})
	m.registry.MustRegister(m.upstreamErrorsTotal)

	return m
}

func (m *metrics) GetRegistry() *prometheus.Registry {
	return m.registry
}

func (m *metrics) ObserveHTTPRequest(route, method, statusCode string, elapsed float64) {
	m.httpTime.With(prometheus.Labels{"route": route, "method": method, "status_code": statusCode}).Observe(elapsed)
}

func (m *metrics) IncrementAnswers(source string) {
	m.answersTotal.WithLabelValues(source).Inc()
}

func (m *metrics) IncrementLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.lookupsTotal.WithLabelValues(result).Inc()
}

func (m *metrics) IncrementExactHit() {
	m.exactHitsTotal.Inc()
}

func (m *metrics) ObserveUpstreamDuration(elapsed float64) {
	m.upstreamTime.Observe(elapsed)
}

func (m *metrics) IncrementUpstreamErrors() {
	m.upstreamErrorsTotal.Inc()
}
