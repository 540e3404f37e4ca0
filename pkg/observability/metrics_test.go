package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"

	"sightline/pkg/cache"
	"sightline/pkg/geo"
	"sightline/pkg/los"
	"sightline/pkg/terrain"
)

func TestObserveQuery(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewLOSCollector(reg)
	if err != nil {
		t.Fatalf("NewLOSCollector: %v", err)
	}

	collector.ObserveQuery(los.OutcomeVisible, 10, 5*time.Millisecond)
	collector.ObserveQuery(los.OutcomeObstructed, 3, time.Millisecond)
	collector.ObserveQuery(los.OutcomeVisible, 10, time.Millisecond)

	if got := testutil.ToFloat64(collector.Queries.WithLabelValues("visible")); got != 2 {
		t.Fatalf("los_queries_total{visible} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(collector.Queries.WithLabelValues("obstructed")); got != 1 {
		t.Fatalf("los_queries_total{obstructed} = %v, want 1", got)
	}
	if count := histogramSampleCount(t, reg, "los_query_duration_seconds", map[string]string{"outcome": "visible"}); count != 2 {
		t.Fatalf("los_query_duration_seconds sample_count = %d, want 2", count)
	}
	if count := histogramSampleCount(t, reg, "los_samples_evaluated", nil); count != 3 {
		t.Fatalf("los_samples_evaluated sample_count = %d, want 3", count)
	}
}

func TestAnalyzerReportsToCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewLOSCollector(reg)
	if err != nil {
		t.Fatalf("NewLOSCollector: %v", err)
	}

	a := los.NewAnalyzer(los.Options{Metrics: collector})
	req := los.Request{
		Start:         geo.Point3D{X: 0, Y: 0, Z: 100},
		End:           geo.Point3D{X: 1000, Y: 0, Z: 100},
		SampleSpacing: 100,
	}
	if _, err := a.Compute(context.Background(), req, terrain.FlatSurface{}, nil); err != nil {
		t.Fatalf("Compute: %v", err)
	}
	req.SampleSpacing = 0
	if _, err := a.Compute(context.Background(), req, terrain.FlatSurface{}, nil); err == nil {
		t.Fatal("expected invalid request error")
	}

	if got := testutil.ToFloat64(collector.Queries.WithLabelValues("visible")); got != 1 {
		t.Fatalf("los_queries_total{visible} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.Queries.WithLabelValues("error")); got != 1 {
		t.Fatalf("los_queries_total{error} = %v, want 1", got)
	}
}

func TestRegisterTwiceReusesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewLOSCollector(reg)
	if err != nil {
		t.Fatalf("NewLOSCollector: %v", err)
	}
	second, err := NewLOSCollector(reg)
	if err != nil {
		t.Fatalf("second NewLOSCollector: %v", err)
	}

	second.ObserveQuery(los.OutcomeVisible, 1, time.Millisecond)
	if got := testutil.ToFloat64(first.Queries.WithLabelValues("visible")); got != 1 {
		t.Fatalf("shared counter = %v, want 1", got)
	}
}

func TestNilCollectorIsSafe(t *testing.T) {
	var c *LOSCollector
	c.ObserveQuery(los.OutcomeVisible, 1, time.Millisecond)

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	if c.Instrument("x", h) == nil {
		t.Fatal("Instrument on nil collector must return the handler")
	}
	if err := c.WatchCache(nil); err != nil {
		t.Fatalf("WatchCache: %v", err)
	}
}

func TestInstrumentAndHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewLOSCollector(reg)
	if err != nil {
		t.Fatalf("NewLOSCollector: %v", err)
	}

	h := collector.Instrument("los", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/los", nil))

	if got := testutil.ToFloat64(collector.HTTPRequests.WithLabelValues("los", "400")); got != 1 {
		t.Fatalf("http_requests_total{los,400} = %v, want 1", got)
	}

	ec := cache.NewElevation(terrain.FlatSurface{Height: 5}, nil, "flat", 10)
	if err := collector.WatchCache(ec); err != nil {
		t.Fatalf("WatchCache: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := ec.Elevation(context.Background(), 1, 2); err != nil {
			t.Fatal(err)
		}
	}

	rr := httptest.NewRecorder()
	collector.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("/metrics status = %d, want 200", rr.Code)
	}
	body := rr.Body.String()
	for _, metric := range []string{
		"http_requests_total",
		"http_request_duration_seconds",
		`elevation_cache_lookups_total{layer="memory"} 2`,
		`elevation_cache_lookups_total{layer="miss"} 1`,
	} {
		if !strings.Contains(body, metric) {
			t.Fatalf("expected %q in /metrics output:\n%s", metric, body)
		}
	}
}

func histogramSampleCount(t *testing.T, gatherer prometheus.Gatherer, name string, labels map[string]string) uint64 {
	t.Helper()

	metrics, err := gatherer.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metrics {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.Metric {
			if matchLabels(m.GetLabel(), labels) && m.GetHistogram() != nil {
				return m.GetHistogram().GetSampleCount()
			}
		}
	}
	return 0
}

func matchLabels(got []*dto.LabelPair, want map[string]string) bool {
	if len(got) < len(want) {
		return false
	}
	matched := 0
	for _, lp := range got {
		if val, ok := want[lp.GetName()]; ok && val == lp.GetValue() {
			matched++
		}
	}
	return matched == len(want)
}
