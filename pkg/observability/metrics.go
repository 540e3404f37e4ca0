package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"sightline/pkg/cache"
)

// LOSCollector bundles Prometheus metrics for line-of-sight queries and the
// HTTP surface. It implements los.Recorder.
type LOSCollector struct {
	gatherer prometheus.Gatherer
	reg      prometheus.Registerer

	Queries          *prometheus.CounterVec
	QueryDurations   *prometheus.HistogramVec
	SamplesEvaluated prometheus.Histogram

	HTTPRequests  *prometheus.CounterVec
	HTTPDurations *prometheus.HistogramVec
}

// NewLOSCollector registers metrics against reg, defaulting to the global
// Prometheus registry when nil. Registering twice against the same registry
// reuses the existing collectors.
func NewLOSCollector(reg prometheus.Registerer) (*LOSCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	queries, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "los_queries_total",
		Help: "Total number of line-of-sight queries, labeled by outcome.",
	}, []string{"outcome"}), "los_queries_total")
	if err != nil {
		return nil, err
	}

	durations, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "los_query_duration_seconds",
		Help:    "Line-of-sight query latency in seconds.",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 10},
	}, []string{"outcome"}), "los_query_duration_seconds")
	if err != nil {
		return nil, err
	}

	samples, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "los_samples_evaluated",
		Help:    "Terrain samples compared per line-of-sight query.",
		Buckets: prometheus.ExponentialBuckets(1, 4, 10),
	}), "los_samples_evaluated")
	if err != nil {
		return nil, err
	}

	httpRequests, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of handled HTTP requests, labeled by route and status code.",
	}, []string{"route", "code"}), "http_requests_total")
	if err != nil {
		return nil, err
	}

	httpDurations, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"}), "http_request_duration_seconds")
	if err != nil {
		return nil, err
	}

	return &LOSCollector{
		gatherer:         gatherer,
		reg:              reg,
		Queries:          queries,
		QueryDurations:   durations,
		SamplesEvaluated: samples,
		HTTPRequests:     httpRequests,
		HTTPDurations:    httpDurations,
	}, nil
}

// ObserveQuery records one finished query.
func (c *LOSCollector) ObserveQuery(outcome string, samples int, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.Queries.WithLabelValues(outcome).Inc()
	c.QueryDurations.WithLabelValues(outcome).Observe(elapsed.Seconds())
	c.SamplesEvaluated.Observe(float64(samples))
}

// Instrument wraps h so its requests are counted under route.
func (c *LOSCollector) Instrument(route string, h http.Handler) http.Handler {
	if c == nil {
		return h
	}
	labels := prometheus.Labels{"route": route}
	h = promhttp.InstrumentHandlerCounter(c.HTTPRequests.MustCurryWith(labels), h)
	return promhttp.InstrumentHandlerDuration(c.HTTPDurations.MustCurryWith(labels), h)
}

// WatchCache exports the lookup counters of an elevation cache.
func (c *LOSCollector) WatchCache(ec *cache.Elevation) error {
	if c == nil || ec == nil {
		return nil
	}
	layers := []struct {
		layer string
		value func(cache.Stats) uint64
	}{
		{"memory", func(s cache.Stats) uint64 { return s.MemoryHits }},
		{"store", func(s cache.Stats) uint64 { return s.StoreHits }},
		{"miss", func(s cache.Stats) uint64 { return s.Misses }},
	}
	for _, l := range layers {
		value := l.value
		fn := prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name:        "elevation_cache_lookups_total",
			Help:        "Elevation lookups, labeled by the cache layer that answered them.",
			ConstLabels: prometheus.Labels{"layer": l.layer},
		}, func() float64 { return float64(value(ec.Stats())) })
		if err := c.reg.Register(fn); err != nil {
			return fmt.Errorf("register elevation cache metrics: %w", err)
		}
	}
	return nil
}

// Handler exposes a ready-to-use /metrics handler.
func (c *LOSCollector) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogram(reg prometheus.Registerer, h prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(h); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return h, nil
}
