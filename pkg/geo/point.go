package geo

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// ErrNonFinite is returned when a coordinate or derived value is NaN or Inf.
var ErrNonFinite = errors.New("non-finite value")

// Point3D is a position in a planar (locally projected) spatial reference.
// X and Y are easting/northing in meters, Z is elevation above the same
// datum the elevation service uses.
type Point3D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// IsFinite reports whether all three coordinates are finite.
func (p Point3D) IsFinite() bool {
	return isFinite(p.X) && isFinite(p.Y) && isFinite(p.Z)
}

// WithZ returns a copy of p with its elevation replaced.
func (p Point3D) WithZ(z float64) Point3D {
	p.Z = z
	return p
}

// Orb returns the horizontal projection of p.
func (p Point3D) Orb() orb.Point {
	return orb.Point{p.X, p.Y}
}

func (p Point3D) String() string {
	return fmt.Sprintf("(%.3f, %.3f, %.3f)", p.X, p.Y, p.Z)
}

// HorizontalDistance returns the planar distance between a and b, ignoring Z.
func HorizontalDistance(a, b Point3D) (float64, error) {
	if !isFinite(a.X) || !isFinite(a.Y) || !isFinite(b.X) || !isFinite(b.Y) {
		return 0, fmt.Errorf("horizontal distance %v -> %v: %w", a, b, ErrNonFinite)
	}
	d := planar.Distance(a.Orb(), b.Orb())
	if !isFinite(d) {
		// Finite inputs can still overflow (e.g. 1e308 apart).
		return 0, fmt.Errorf("horizontal distance %v -> %v overflowed: %w", a, b, ErrNonFinite)
	}
	return d, nil
}

// PointAlong returns the point distanceFromA meters from a towards b in the
// x,y plane. The distance is not clamped to the segment, so values past the
// end (or negative) extrapolate along the same line. Z of the result is zero
// and must be filled in by the caller.
func PointAlong(a, b Point3D, distanceFromA float64) Point3D {
	dx := b.X - a.X
	dy := b.Y - a.Y
	// Same formula as HorizontalDistance so scan bounds and positions agree.
	length := planar.Distance(a.Orb(), b.Orb())
	if length == 0 {
		return Point3D{X: a.X, Y: a.Y}
	}
	t := distanceFromA / length
	return Point3D{
		X: a.X + dx*t,
		Y: a.Y + dy*t,
	}
}

// ElevationAngle returns the angle in radians above (positive) or below
// (negative) the horizontal from observer to target.
// Coincident horizontal positions yield ±π/2 (or 0 when Z is equal too).
func ElevationAngle(observer, target Point3D) (float64, error) {
	dist, err := HorizontalDistance(observer, target)
	if err != nil {
		return 0, err
	}
	dz := target.Z - observer.Z
	if !isFinite(dz) {
		return 0, fmt.Errorf("elevation delta %v -> %v: %w", observer, target, ErrNonFinite)
	}
	return math.Atan2(dz, dist), nil
}

// LineString projects points onto the horizontal plane.
func LineString(points ...Point3D) orb.LineString {
	ls := make(orb.LineString, 0, len(points))
	for _, p := range points {
		ls = append(ls, p.Orb())
	}
	return ls
}

// RadToDeg converts radians to degrees.
func RadToDeg(rad float64) float64 {
	return rad * (180.0 / math.Pi)
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
