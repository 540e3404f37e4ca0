package los

import (
	"errors"
	"fmt"
	"math"

	"sightline/pkg/geo"
	"sightline/pkg/terrain"
)

var (
	// ErrInvalidRequest is returned before scanning for malformed requests.
	ErrInvalidRequest = errors.New("invalid line of sight request")

	// ErrElevationUnavailable is the terrain sentinel, surfaced unchanged so
	// callers need not import terrain to test for it.
	ErrElevationUnavailable = terrain.ErrElevationUnavailable

	// ErrNumericDomain is returned when a NaN or Inf would enter the angle
	// comparison.
	ErrNumericDomain = errors.New("numeric domain error")

	// ErrSampleLimit is returned for well-formed requests whose spacing is
	// too fine for the path length.
	ErrSampleLimit = errors.New("sample limit exceeded")
)

// MaxSamples bounds the scan length so a tiny spacing cannot stall a query.
const MaxSamples = 1 << 24

// Request is one observer/target pair to test.
type Request struct {
	Start         geo.Point3D `json:"start"`
	End           geo.Point3D `json:"end"`
	SampleSpacing float64     `json:"sample_spacing"` // Meters between samples, > 0
}

// Validate checks the request invariants.
func (r Request) Validate() error {
	if math.IsNaN(r.SampleSpacing) || math.IsInf(r.SampleSpacing, 0) || r.SampleSpacing <= 0 {
		return fmt.Errorf("%w: sample spacing must be a positive finite number, got %v", ErrInvalidRequest, r.SampleSpacing)
	}
	if !r.Start.IsFinite() {
		return fmt.Errorf("%w: start %v has non-finite coordinates", ErrInvalidRequest, r.Start)
	}
	if !r.End.IsFinite() {
		return fmt.Errorf("%w: end %v has non-finite coordinates", ErrInvalidRequest, r.End)
	}
	return nil
}

// Segment is a straight piece of the sight line.
type Segment [2]geo.Point3D

// Result describes the outcome of a line-of-sight query.
// ObstructionPoint and ObstructedSegment are set iff Visible is false.
type Result struct {
	Visible           bool         `json:"visible"`
	ObstructionPoint  *geo.Point3D `json:"obstruction_point,omitempty"`
	VisibleSegment    Segment      `json:"visible_segment"`
	ObstructedSegment *Segment     `json:"obstructed_segment,omitempty"`

	// ObserverAngle is the elevation angle of the sight line in radians.
	ObserverAngle float64 `json:"observer_angle"`
	// SamplesEvaluated counts terrain samples compared against the sight line.
	SamplesEvaluated int `json:"samples_evaluated"`
}

// Sample is one terrain point under the sight line.
type Sample struct {
	Index             int
	DistanceFromStart float64
	Position          geo.Point3D // Z holds the terrain elevation
	Angle             float64
}
