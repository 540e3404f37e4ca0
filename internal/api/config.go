package api

import (
	"net/http"

	"sightline/pkg/config"
)

// ConfigHandler exposes the effective, non-secret settings.
type ConfigHandler struct {
	appCfg *config.Config
}

// NewConfigHandler creates a new ConfigHandler.
func NewConfigHandler(cfg *config.Config) *ConfigHandler {
	return &ConfigHandler{appCfg: cfg}
}

// ConfigResponse represents the config API response.
type ConfigResponse struct {
	SampleSpacing   float64 `json:"sample_spacing"`
	Lookahead       int     `json:"lookahead"`
	IncludeEndpoint bool    `json:"include_endpoint"`
	TimeoutMS       int64   `json:"timeout_ms"`
	Provider        string  `json:"terrain_provider"`
	CellSize        float64 `json:"cell_size"`
	HistoryLimit    int     `json:"history_limit"`
}

// HandleGet returns the current configuration.
func (h *ConfigHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	c := h.appCfg
	writeJSON(w, http.StatusOK, ConfigResponse{
		SampleSpacing:   c.LOS.SampleSpacing.Meters(),
		Lookahead:       c.LOS.Lookahead,
		IncludeEndpoint: c.LOS.IncludeEndpoint,
		TimeoutMS:       c.LOS.Timeout.Std().Milliseconds(),
		Provider:        c.Terrain.Provider,
		CellSize:        c.Terrain.CellSize.Meters(),
		HistoryLimit:    c.DB.HistoryLimit,
	})
}
