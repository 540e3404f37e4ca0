package terrain

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/paulmach/orb"
)

// ErrElevationUnavailable is returned when a position cannot be resolved to
// a terrain height (outside coverage, nodata cell, source not loaded).
var ErrElevationUnavailable = errors.New("elevation unavailable")

// ElevationService resolves a horizontal position to a terrain height in
// meters, on the same datum as geo.Point3D.Z.
type ElevationService interface {
	Elevation(ctx context.Context, x, y float64) (float64, error)
}

// Resolver is implemented by services that know their ground resolution.
type Resolver interface {
	// Resolution returns the size of one elevation cell in meters.
	Resolution() float64
}

// DefaultNoData marks cells without a value.
const DefaultNoData int16 = math.MinInt16

// GridSpec describes a headerless raster of 16-bit little-endian signed
// integers, north-up, row-major, cell-registered.
type GridSpec struct {
	OriginX  float64 // Easting of the upper-left corner
	OriginY  float64 // Northing of the upper-left corner
	CellSize float64 // Meters per cell, both axes
	Rows     int
	Cols     int
	NoData   int16
}

// Size returns the expected file size in bytes.
func (s GridSpec) Size() int64 {
	return int64(s.Rows) * int64(s.Cols) * 2
}

// Bounds returns the covered area.
func (s GridSpec) Bounds() orb.Bound {
	return orb.Bound{
		Min: orb.Point{s.OriginX, s.OriginY - float64(s.Rows)*s.CellSize},
		Max: orb.Point{s.OriginX + float64(s.Cols)*s.CellSize, s.OriginY},
	}
}

func (s GridSpec) validate() error {
	if s.Rows <= 0 || s.Cols <= 0 {
		return fmt.Errorf("invalid grid dimensions %dx%d", s.Rows, s.Cols)
	}
	if !(s.CellSize > 0) || math.IsInf(s.CellSize, 0) {
		return fmt.Errorf("invalid cell size %v", s.CellSize)
	}
	if math.IsNaN(s.OriginX) || math.IsNaN(s.OriginY) || math.IsInf(s.OriginX, 0) || math.IsInf(s.OriginY, 0) {
		return fmt.Errorf("invalid origin (%v, %v)", s.OriginX, s.OriginY)
	}
	return nil
}

// cell maps a position to its row and column. ok is false outside the grid.
func (s GridSpec) cell(x, y float64) (row, col int, ok bool) {
	c := math.Floor((x - s.OriginX) / s.CellSize)
	r := math.Floor((s.OriginY - y) / s.CellSize)
	if math.IsNaN(c) || math.IsNaN(r) {
		return 0, 0, false
	}
	if r < 0 || r >= float64(s.Rows) || c < 0 || c >= float64(s.Cols) {
		return 0, 0, false
	}
	return int(r), int(c), true
}

// GridProvider reads elevation data from a raster file described by a GridSpec.
type GridProvider struct {
	file *os.File
	spec GridSpec
}

// NewGridProvider opens the raster file and checks it matches spec.
func NewGridProvider(path string, spec GridSpec) (*GridProvider, error) {
	if err := spec.validate(); err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	if info.Size() != spec.Size() {
		f.Close()
		return nil, fmt.Errorf("invalid grid file size: expected %d, got %d", spec.Size(), info.Size())
	}

	return &GridProvider{
		file: f,
		spec: spec,
	}, nil
}

// Close closes the file handle.
func (g *GridProvider) Close() error {
	return g.file.Close()
}

// Spec returns the raster layout.
func (g *GridProvider) Spec() GridSpec {
	return g.spec
}

// Resolution implements Resolver.
func (g *GridProvider) Resolution() float64 {
	return g.spec.CellSize
}

// Elevation returns the elevation in meters of the cell containing (x, y).
func (g *GridProvider) Elevation(ctx context.Context, x, y float64) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	row, col, ok := g.spec.cell(x, y)
	if !ok {
		return 0, fmt.Errorf("position (%.2f, %.2f) outside grid coverage: %w", x, y, ErrElevationUnavailable)
	}

	offset := (int64(row)*int64(g.spec.Cols) + int64(col)) * 2

	b := make([]byte, 2)
	if _, err := g.file.ReadAt(b, offset); err != nil {
		return 0, fmt.Errorf("read cell %d,%d: %v: %w", row, col, err, ErrElevationUnavailable)
	}

	val := int16(binary.LittleEndian.Uint16(b))
	if val == g.spec.NoData {
		return 0, fmt.Errorf("no data at cell %d,%d: %w", row, col, ErrElevationUnavailable)
	}
	return float64(val), nil
}

// WriteGrid writes data as a raster matching spec. len(data) must equal
// Rows*Cols.
func WriteGrid(path string, spec GridSpec, data []int16) error {
	if err := spec.validate(); err != nil {
		return err
	}
	if len(data) != spec.Rows*spec.Cols {
		return fmt.Errorf("grid data has %d cells, spec needs %d", len(data), spec.Rows*spec.Cols)
	}

	buf := make([]byte, len(data)*2)
	for i, v := range data {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(v))
	}
	return os.WriteFile(path, buf, 0o644)
}
