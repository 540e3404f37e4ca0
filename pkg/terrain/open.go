package terrain

import (
	"fmt"
	"io"

	"sightline/pkg/config"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// FromConfig builds the configured elevation service. The returned closer
// releases any open raster and is never nil.
func FromConfig(cfg *config.TerrainConfig) (ElevationService, io.Closer, error) {
	switch cfg.Provider {
	case config.ProviderFlat, "":
		return FlatSurface{Height: cfg.FlatElevation, CellSize: cfg.CellSize.Meters()}, nopCloser{}, nil
	case config.ProviderGrid:
		g, err := NewGridProvider(cfg.ElevationFile, GridSpec{
			OriginX:  cfg.OriginX,
			OriginY:  cfg.OriginY,
			CellSize: cfg.CellSize.Meters(),
			Rows:     cfg.Rows,
			Cols:     cfg.Cols,
			NoData:   cfg.NoData,
		})
		if err != nil {
			return nil, nil, err
		}
		return g, g, nil
	default:
		return nil, nil, fmt.Errorf("unknown terrain provider %q", cfg.Provider)
	}
}
