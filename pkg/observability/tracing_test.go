package observability

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"sightline/pkg/config"
)

// restoreGlobals puts the global tracer provider and propagator back after a
// test.
func restoreGlobals(t *testing.T) {
	t.Helper()
	tp := otel.GetTracerProvider()
	prop := otel.GetTextMapPropagator()
	t.Cleanup(func() {
		otel.SetTracerProvider(tp)
		otel.SetTextMapPropagator(prop)
	})
}

func TestInitTracing(t *testing.T) {
	tests := []struct {
		name      string
		cfg       config.TracingConfig
		wantSpans bool
		wantErr   bool
	}{
		{"Disabled", config.TracingConfig{Enabled: false, Exporter: config.ExporterStdout}, false, false},
		{"Stdout", config.TracingConfig{Enabled: true, ServiceName: "sightline-test", Exporter: config.ExporterStdout, SampleRatio: 1}, true, false},
		{"NeverSampled", config.TracingConfig{Enabled: true, Exporter: config.ExporterStdout, SampleRatio: 0}, false, false},
		{"UnknownExporter", config.TracingConfig{Enabled: true, Exporter: "zipkin"}, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			restoreGlobals(t)
			var out bytes.Buffer

			shutdown, err := InitTracing(context.Background(), &tt.cfg, &out)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)

			_, span := otel.Tracer("test").Start(context.Background(), "sample-span")
			span.End()
			require.NoError(t, shutdown(context.Background()))

			if tt.wantSpans {
				assert.Contains(t, out.String(), "sample-span")
				assert.Contains(t, out.String(), "sightline-test")
			} else {
				assert.Empty(t, out.String())
			}
		})
	}
}

func TestShutdownTracing(t *testing.T) {
	called := false
	ShutdownTracing(func(ctx context.Context) error {
		called = true
		_, ok := ctx.Deadline()
		assert.True(t, ok, "shutdown should be bounded")
		return nil
	})
	assert.True(t, called)

	ShutdownTracing(nil)
}

func TestTrace(t *testing.T) {
	restoreGlobals(t)
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	var inner trace.SpanContext
	h := Trace("los_compute", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		inner = trace.SpanContextFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/los", nil)
	req.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	require.True(t, inner.IsValid())
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", inner.TraceID().String())

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "HTTP los_compute", spans[0].Name())
	assert.Equal(t, trace.SpanKindServer, spans[0].SpanKind())
	assert.Equal(t, "00f067aa0ba902b7", spans[0].Parent().SpanID().String())
}
