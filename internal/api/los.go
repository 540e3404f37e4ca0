package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/paulmach/orb/geojson"

	"sightline/pkg/geo"
	"sightline/pkg/los"
	"sightline/pkg/render"
	"sightline/pkg/store"
	"sightline/pkg/terrain"
)

const maxHistoryLimit = 1000

// LOSHandler serves line-of-sight queries and their history.
type LOSHandler struct {
	analyzer *los.Analyzer
	elev     terrain.ElevationService
	history  store.HistoryStore
	live     render.Sink

	spacing      float64
	timeout      time.Duration
	historyLimit int
}

// LOSHandlerConfig carries the request defaults of a LOSHandler.
type LOSHandlerConfig struct {
	SampleSpacing float64       // Used when a request omits it; 0 falls back to terrain resolution
	Timeout       time.Duration // Per-query deadline; 0 means none
	HistoryLimit  int           // Default page size for /api/los/history
}

// NewLOSHandler creates a handler. history and live may be nil.
func NewLOSHandler(a *los.Analyzer, elev terrain.ElevationService, history store.HistoryStore, live render.Sink, cfg LOSHandlerConfig) *LOSHandler {
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 100
	}
	return &LOSHandler{
		analyzer:     a,
		elev:         elev,
		history:      history,
		live:         live,
		spacing:      cfg.SampleSpacing,
		timeout:      cfg.Timeout,
		historyLimit: cfg.HistoryLimit,
	}
}

// LOSRequest is the body of POST /api/los. SampleSpacing is optional.
type LOSRequest struct {
	Start         geo.Point3D `json:"start"`
	End           geo.Point3D `json:"end"`
	SampleSpacing *float64    `json:"sample_spacing,omitempty"`
}

// LOSResponse is returned by POST /api/los.
type LOSResponse struct {
	ID      string                     `json:"id,omitempty"`
	Request los.Request                `json:"request"`
	Result  los.Result                 `json:"result"`
	GeoJSON *geojson.FeatureCollection `json:"geojson"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// HandleCompute runs one query, broadcasts its polylines and stores it.
func (h *LOSHandler) HandleCompute(w http.ResponseWriter, r *http.Request) {
	var body LOSRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	req := los.Request{Start: body.Start, End: body.End, SampleSpacing: h.defaultSpacing()}
	if body.SampleSpacing != nil {
		req.SampleSpacing = *body.SampleSpacing
	}

	ctx := r.Context()
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	collect := render.NewGeoJSONSink()
	res, err := h.analyzer.Compute(ctx, req, h.elev, render.Multi(collect, h.live))
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			slog.Error("LOS query failed", "error", err)
		} else {
			slog.Debug("LOS query rejected", "status", status, "error", err)
		}
		writeError(w, status, err)
		return
	}

	resp := LOSResponse{Request: req, Result: res, GeoJSON: collect.FeatureCollection()}
	if h.history != nil {
		rec := &store.QueryRecord{Request: req, Result: res}
		// Persist even if the client has gone away.
		if err := h.history.SaveQuery(context.WithoutCancel(r.Context()), rec); err != nil {
			slog.Warn("Failed to save LOS query", "error", err)
		} else {
			resp.ID = rec.ID
		}
	}

	slog.Info("LOS computed",
		"visible", res.Visible,
		"samples", res.SamplesEvaluated,
		"id", resp.ID)
	writeJSON(w, http.StatusOK, resp)
}

// HandleGet returns one stored query.
func (h *LOSHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		writeError(w, http.StatusNotFound, errors.New("query history is disabled"))
		return
	}
	id := r.PathValue("id")
	rec, err := h.history.GetQuery(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, fmt.Errorf("query %q not found", id))
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// HandleHistory lists recent queries, newest first.
func (h *LOSHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	limit := h.historyLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > maxHistoryLimit {
			writeError(w, http.StatusBadRequest, fmt.Errorf("limit must be between 1 and %d", maxHistoryLimit))
			return
		}
		limit = n
	}

	recs := []*store.QueryRecord{}
	if h.history != nil {
		got, err := h.history.RecentQueries(r.Context(), limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		if got != nil {
			recs = got
		}
	}
	writeJSON(w, http.StatusOK, recs)
}

func (h *LOSHandler) defaultSpacing() float64 {
	if h.spacing > 0 {
		return h.spacing
	}
	if res, ok := h.elev.(terrain.Resolver); ok {
		return res.Resolution()
	}
	return 0
}

// statusFor maps query errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, los.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, los.ErrSampleLimit):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return 499 // Client closed request
	case errors.Is(err, los.ErrElevationUnavailable):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to write JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}
