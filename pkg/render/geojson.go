package render

import (
	"sync"

	"github.com/paulmach/orb/geojson"

	"sightline/pkg/geo"
)

// Feature converts a polyline into a GeoJSON LineString feature. The
// horizontal geometry goes in the coordinates, per-vertex elevations in the
// "z" property.
func Feature(line Polyline) *geojson.Feature {
	f := geojson.NewFeature(geo.LineString(line.Points...))

	zs := make([]float64, len(line.Points))
	for i, p := range line.Points {
		zs[i] = p.Z
	}

	f.Properties["style"] = line.Style.String()
	f.Properties["stroke"] = line.Style.Color()
	f.Properties["stroke-width"] = 2
	f.Properties["z"] = zs
	return f
}

// GeoJSONSink collects drawn polylines into a FeatureCollection.
type GeoJSONSink struct {
	mu sync.Mutex
	fc *geojson.FeatureCollection
}

// NewGeoJSONSink creates an empty sink.
func NewGeoJSONSink() *GeoJSONSink {
	return &GeoJSONSink{fc: geojson.NewFeatureCollection()}
}

// Draw implements Sink.
func (s *GeoJSONSink) Draw(line Polyline) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fc.Append(Feature(line))
}

// FeatureCollection returns the collected features. The returned value is
// shared with the sink; do not draw into the sink while using it.
func (s *GeoJSONSink) FeatureCollection() *geojson.FeatureCollection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fc
}

// MarshalJSON implements json.Marshaler.
func (s *GeoJSONSink) MarshalJSON() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fc.MarshalJSON()
}
