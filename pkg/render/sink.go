package render

import (
	"log/slog"
	"sync"

	"sightline/pkg/geo"
)

// Style tags a polyline as part of the visible or the obstructed path.
type Style int

const (
	StyleVisible Style = iota
	StyleObstructed
)

func (s Style) String() string {
	switch s {
	case StyleVisible:
		return "visible"
	case StyleObstructed:
		return "obstructed"
	default:
		return "unknown"
	}
}

// Color returns the overlay stroke color for the style.
func (s Style) Color() string {
	if s == StyleObstructed {
		return "#ff0000"
	}
	return "#00ff00"
}

// Polyline is one drawable piece of a line-of-sight result.
type Polyline struct {
	Points []geo.Point3D
	Style  Style
}

// Sink consumes polylines for display. Implementations must be safe for
// concurrent use if shared between queries.
type Sink interface {
	Draw(line Polyline)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Polyline)

// Draw implements Sink.
func (fn SinkFunc) Draw(line Polyline) { fn(line) }

// Recorder keeps every drawn polyline in memory.
type Recorder struct {
	mu    sync.Mutex
	lines []Polyline
}

// Draw implements Sink.
func (r *Recorder) Draw(line Polyline) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, clone(line))
}

// Lines returns a copy of the recorded polylines in draw order.
func (r *Recorder) Lines() []Polyline {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Polyline, len(r.lines))
	for i, l := range r.lines {
		out[i] = clone(l)
	}
	return out
}

// Reset drops everything recorded so far.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = nil
}

// LogSink writes polylines to a structured logger.
type LogSink struct {
	Logger *slog.Logger
}

// Draw implements Sink.
func (s LogSink) Draw(line Polyline) {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	args := []any{"style", line.Style.String(), "vertices", len(line.Points)}
	if n := len(line.Points); n > 0 {
		args = append(args, "from", line.Points[0].String(), "to", line.Points[n-1].String())
	}
	logger.Info("LOS segment", args...)
}

type multiSink []Sink

func (m multiSink) Draw(line Polyline) {
	for _, s := range m {
		s.Draw(line)
	}
}

// Multi fans a polyline out to every non-nil sink.
func Multi(sinks ...Sink) Sink {
	out := make(multiSink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

func clone(line Polyline) Polyline {
	pts := make([]geo.Point3D, len(line.Points))
	copy(pts, line.Points)
	return Polyline{Points: pts, Style: line.Style}
}
