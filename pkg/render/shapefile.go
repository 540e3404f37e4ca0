package render

import (
	"fmt"
	"math"
	"sync"

	"github.com/jonas-p/go-shp"
)

// Shapefile is a Sink that keeps polylines for export as a PolyLineZ
// shapefile with a style attribute per record.
type Shapefile struct {
	mu    sync.Mutex
	lines []Polyline
}

// NewShapefile creates an empty shapefile sink.
func NewShapefile() *Shapefile {
	return &Shapefile{}
}

// Draw implements Sink.
func (s *Shapefile) Draw(line Polyline) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = append(s.lines, clone(line))
}

// Save writes path (.shp) with its .shx and .dbf companions.
func (s *Shapefile) Save(path string) error {
	s.mu.Lock()
	lines := append([]Polyline(nil), s.lines...)
	s.mu.Unlock()

	w, err := shp.Create(path, shp.POLYLINEZ)
	if err != nil {
		return fmt.Errorf("create shapefile: %w", err)
	}
	defer w.Close()

	if err := w.SetFields([]shp.Field{
		shp.StringField("STYLE", 12),
		shp.NumberField("POINTS", 6),
	}); err != nil {
		return fmt.Errorf("shapefile fields: %w", err)
	}

	for _, line := range lines {
		if len(line.Points) == 0 {
			continue
		}
		row := w.Write(polyLineZ(line))
		if err := w.WriteAttribute(int(row), 0, line.Style.String()); err != nil {
			return err
		}
		if err := w.WriteAttribute(int(row), 1, len(line.Points)); err != nil {
			return err
		}
	}
	return nil
}

func polyLineZ(line Polyline) *shp.PolyLineZ {
	n := len(line.Points)
	pts := make([]shp.Point, n)
	zs := make([]float64, n)
	zRange := [2]float64{math.Inf(1), math.Inf(-1)}
	for i, p := range line.Points {
		pts[i] = shp.Point{X: p.X, Y: p.Y}
		zs[i] = p.Z
		zRange[0] = math.Min(zRange[0], p.Z)
		zRange[1] = math.Max(zRange[1], p.Z)
	}
	return &shp.PolyLineZ{
		Box:       shp.BBoxFromPoints(pts),
		NumParts:  1,
		NumPoints: int32(n),
		Parts:     []int32{0},
		Points:    pts,
		ZRange:    zRange,
		ZArray:    zs,
		MArray:    make([]float64, n),
	}
}
