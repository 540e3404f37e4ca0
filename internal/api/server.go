package api

import (
	"log/slog"
	"net/http"
	"time"

	"sightline/pkg/observability"
	"sightline/pkg/version"
)

// NewServer creates and configures the HTTP server.
// stream serves the websocket feed and may be nil, as may metrics.
func NewServer(addr string, losH *LOSHandler, cfgH *ConfigHandler, stream http.Handler, metrics *observability.LOSCollector, shutdown func()) *http.Server {
	mux := http.NewServeMux()
	route := func(pattern, name string, h http.Handler) {
		mux.Handle(pattern, observability.Trace(name, metrics.Instrument(name, h)))
	}

	// 1. Health and version
	mux.HandleFunc("GET /health", handleHealth)
	mux.HandleFunc("GET /api/version", handleVersion)

	// 2. Config and logs
	if cfgH != nil {
		mux.HandleFunc("GET /api/config", cfgH.HandleGet)
	}
	mux.HandleFunc("GET /api/log/latest", handleLatestLog)

	// 3. Metrics
	mux.Handle("GET /metrics", metrics.Handler())

	// 4. Line of sight
	route("POST /api/los", "los_compute", http.HandlerFunc(losH.HandleCompute))
	route("GET /api/los/history", "los_history", http.HandlerFunc(losH.HandleHistory))
	route("GET /api/los/{id}", "los_get", http.HandlerFunc(losH.HandleGet))
	if stream != nil {
		mux.Handle("GET /api/los/stream", stream)
	}

	// 5. Shutdown
	if shutdown != nil {
		mux.HandleFunc("POST /api/shutdown", func(w http.ResponseWriter, r *http.Request) {
			slog.Info("Graceful shutdown initiated via API")
			w.WriteHeader(http.StatusOK)
			if _, err := w.Write([]byte("Shutting down...")); err != nil {
				slog.Error("Failed to write shutdown response", "error", err)
			}
			// Let the response flush first
			go func() {
				time.Sleep(100 * time.Millisecond)
				shutdown()
			}()
		})
	}

	return &http.Server{
		Addr:         addr,
		Handler:      withRequestLog(mux),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("OK")); err != nil {
		slog.Error("Failed to write health response", "error", err)
	}
}

func handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, version.Get())
}
