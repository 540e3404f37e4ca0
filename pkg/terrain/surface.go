package terrain

import (
	"context"
	"math"
)

// FlatSurface is terrain at a constant elevation everywhere.
type FlatSurface struct {
	Height   float64
	CellSize float64 // Reported resolution; 0 means unknown
}

// Elevation implements ElevationService.
func (f FlatSurface) Elevation(ctx context.Context, x, y float64) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return f.Height, nil
}

// Resolution implements Resolver.
func (f FlatSurface) Resolution() float64 {
	return f.CellSize
}

// SurfaceFunc adapts a plain function to ElevationService.
type SurfaceFunc func(x, y float64) (float64, error)

// Elevation implements ElevationService.
func (fn SurfaceFunc) Elevation(ctx context.Context, x, y float64) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return fn(x, y)
}

// Ridge is a wall of terrain running parallel to the Y axis.
type Ridge struct {
	X         float64 // Center easting
	HalfWidth float64 // Cells within |x-X| <= HalfWidth are raised
	Height    float64 // Absolute elevation of the crest
}

// RidgeSurface is a flat base with vertical ridges. Overlapping ridges take
// the highest crest.
type RidgeSurface struct {
	Base   float64
	Ridges []Ridge
}

// Elevation implements ElevationService.
func (s RidgeSurface) Elevation(ctx context.Context, x, y float64) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	h := s.Base
	for _, r := range s.Ridges {
		if math.Abs(x-r.X) <= r.HalfWidth && r.Height > h {
			h = r.Height
		}
	}
	return h, nil
}
