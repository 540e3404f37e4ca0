package los

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"sightline/pkg/geo"
	"sightline/pkg/logging"
	"sightline/pkg/render"
	"sightline/pkg/terrain"
)

// Query outcomes reported to a Recorder.
const (
	OutcomeVisible    = "visible"
	OutcomeObstructed = "obstructed"
	OutcomeError      = "error"
)

// Recorder receives one observation per Compute call.
type Recorder interface {
	ObserveQuery(outcome string, samples int, elapsed time.Duration)
}

// Options tune an Analyzer. The zero value is a sequential scan that never
// samples the exact endpoint.
type Options struct {
	// Lookahead is the number of elevation queries kept in flight ahead of
	// the sample being compared. Values <= 1 query strictly one at a time.
	Lookahead int

	// IncludeEndpoint adds a final sample at the target's horizontal
	// position. Without it the tail after the last whole spacing is unchecked.
	IncludeEndpoint bool

	Metrics  Recorder
	Logger   *slog.Logger
	Tracer   trace.Tracer // Defaults to the global provider
	OnSample func(Sample) // Called in scan order for every compared sample
}

// Analyzer computes line-of-sight results. It keeps no state between calls
// and is safe for concurrent use.
type Analyzer struct {
	opts Options
}

// NewAnalyzer creates an analyzer.
func NewAnalyzer(opts Options) *Analyzer {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer("sightline/pkg/los")
	}
	return &Analyzer{opts: opts}
}

// ComputeLineOfSight runs a query with default options.
func ComputeLineOfSight(ctx context.Context, req Request, elev terrain.ElevationService, sink render.Sink) (Result, error) {
	return NewAnalyzer(Options{}).Compute(ctx, req, elev, sink)
}

// Compute walks the horizontal projection of req.Start -> req.End at
// req.SampleSpacing and stops at the first terrain sample whose elevation
// angle from the observer is strictly greater than the angle to the target.
// The terrain directly below the observer blocks only when it is above
// req.Start.Z. On success the result is also drawn into sink (which may be
// nil). On error nothing is drawn and the zero Result is returned.
//
// Paths needing more than MaxSamples samples fail with ErrSampleLimit before
// any elevation is queried.
func (a *Analyzer) Compute(ctx context.Context, req Request, elev terrain.ElevationService, sink render.Sink) (Result, error) {
	began := time.Now()
	ctx, span := a.opts.Tracer.Start(ctx, "los.Compute", trace.WithAttributes(
		attribute.Float64("los.sample_spacing", req.SampleSpacing),
		attribute.Int("los.lookahead", a.opts.Lookahead),
	))
	defer span.End()

	res, err := a.compute(ctx, req, elev)
	span.SetAttributes(attribute.Int("los.samples_evaluated", res.SamplesEvaluated))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		a.observe(OutcomeError, res.SamplesEvaluated, time.Since(began))
		return Result{}, err
	}
	span.SetAttributes(attribute.Bool("los.visible", res.Visible))

	if res.Visible {
		a.observe(OutcomeVisible, res.SamplesEvaluated, time.Since(began))
	} else {
		a.observe(OutcomeObstructed, res.SamplesEvaluated, time.Since(began))
	}

	if sink != nil {
		draw(sink, res)
	}
	return res, nil
}

func (a *Analyzer) observe(outcome string, samples int, elapsed time.Duration) {
	if a.opts.Metrics != nil {
		a.opts.Metrics.ObserveQuery(outcome, samples, elapsed)
	}
}

// scan holds the per-call state of one query.
type scan struct {
	req           Request
	observerAngle float64
	length2d      float64
	evaluated     int
	opts          *Options
}

func (a *Analyzer) compute(ctx context.Context, req Request, elev terrain.ElevationService) (Result, error) {
	if err := req.Validate(); err != nil {
		return Result{}, err
	}
	if elev == nil {
		return Result{}, fmt.Errorf("no elevation service: %w", ErrElevationUnavailable)
	}

	observerAngle, err := geo.ElevationAngle(req.Start, req.End)
	if err != nil {
		return Result{}, fmt.Errorf("%w: observer angle: %w", ErrNumericDomain, err)
	}
	length2d, err := geo.HorizontalDistance(req.Start, req.End)
	if err != nil {
		return Result{}, fmt.Errorf("%w: path length: %w", ErrNumericDomain, err)
	}
	if length2d/req.SampleSpacing > MaxSamples {
		return Result{}, fmt.Errorf("%w: %.0f m at %v m spacing needs more than %d samples",
			ErrSampleLimit, length2d, req.SampleSpacing, MaxSamples)
	}

	s := &scan{
		req:           req,
		observerAngle: observerAngle,
		length2d:      length2d,
		opts:          &a.opts,
	}

	var blocked *geo.Point3D
	if a.opts.Lookahead > 1 {
		blocked, err = s.runPipelined(ctx, elev, a.opts.Lookahead)
	} else {
		blocked, err = s.runSequential(ctx, elev)
	}
	if err != nil {
		return Result{SamplesEvaluated: s.evaluated}, err
	}

	res := Result{
		Visible:          blocked == nil,
		ObserverAngle:    observerAngle,
		SamplesEvaluated: s.evaluated,
	}
	if res.Visible {
		res.VisibleSegment = Segment{req.Start, req.End}
		return res, nil
	}

	res.ObstructionPoint = blocked
	res.VisibleSegment = Segment{req.Start, *blocked}
	res.ObstructedSegment = &Segment{*blocked, req.End}
	return res, nil
}

// positions yields sample distances in scan order. The accumulation is
// identical for both scan modes so results match bit for bit.
func (s *scan) positions(yield func(idx int, dist float64, pos geo.Point3D) bool) {
	idx := 0
	for d := 0.0; d < s.length2d; d += s.req.SampleSpacing {
		if !yield(idx, d, geo.PointAlong(s.req.Start, s.req.End, d)) {
			return
		}
		idx++
	}
	if s.opts.IncludeEndpoint && s.length2d > 0 {
		yield(idx, s.length2d, geo.Point3D{X: s.req.End.X, Y: s.req.End.Y})
	}
}

func (s *scan) runSequential(ctx context.Context, elev terrain.ElevationService) (*geo.Point3D, error) {
	var (
		blocked *geo.Point3D
		scanErr error
	)
	s.positions(func(idx int, dist float64, pos geo.Point3D) bool {
		if err := ctx.Err(); err != nil {
			scanErr = cancelled(err)
			return false
		}
		z, err := elev.Elevation(ctx, pos.X, pos.Y)
		blocked, scanErr = s.evaluate(ctx, idx, dist, pos, z, err)
		return blocked == nil && scanErr == nil
	})
	return blocked, scanErr
}

type fetched struct {
	z   float64
	err error
}

type pending struct {
	idx  int
	dist float64
	pos  geo.Point3D
	res  <-chan fetched
}

// runPipelined keeps up to window elevation queries in flight. Samples are
// still compared strictly in order; once the scan stops, the remaining
// queries are cancelled and their results dropped.
func (s *scan) runPipelined(ctx context.Context, elev terrain.ElevationService, window int) (*geo.Point3D, error) {
	scanCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	queue := make(chan pending, window)
	slots := make(chan struct{}, window)

	go func() {
		defer close(queue)
		s.positions(func(idx int, dist float64, pos geo.Point3D) bool {
			select {
			case slots <- struct{}{}:
			case <-scanCtx.Done():
				return false
			}

			out := make(chan fetched, 1)
			go func() {
				defer func() { <-slots }()
				z, err := elev.Elevation(scanCtx, pos.X, pos.Y)
				out <- fetched{z: z, err: err}
			}()

			select {
			case queue <- pending{idx: idx, dist: dist, pos: pos, res: out}:
				return true
			case <-scanCtx.Done():
				return false
			}
		})
	}()

	for p := range queue {
		var f fetched
		select {
		case f = <-p.res:
		case <-ctx.Done():
			return nil, cancelled(ctx.Err())
		}
		blocked, err := s.evaluate(ctx, p.idx, p.dist, p.pos, f.z, f.err)
		if err != nil || blocked != nil {
			return blocked, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, cancelled(err)
	}
	return nil, nil
}

// evaluate compares one sample against the sight line. It returns the
// obstruction point when the sample blocks it.
func (s *scan) evaluate(ctx context.Context, idx int, dist float64, pos geo.Point3D, z float64, lookupErr error) (*geo.Point3D, error) {
	if lookupErr != nil {
		if err := ctx.Err(); err != nil {
			return nil, cancelled(err)
		}
		if errors.Is(lookupErr, ErrElevationUnavailable) {
			return nil, fmt.Errorf("sample %d at (%.2f, %.2f): %w", idx, pos.X, pos.Y, lookupErr)
		}
		return nil, fmt.Errorf("sample %d at (%.2f, %.2f): %w: %w", idx, pos.X, pos.Y, ErrElevationUnavailable, lookupErr)
	}
	if math.IsNaN(z) || math.IsInf(z, 0) {
		return nil, fmt.Errorf("%w: sample %d at (%.2f, %.2f) has elevation %v", ErrNumericDomain, idx, pos.X, pos.Y, z)
	}

	sample3D := pos.WithZ(z)
	angle, err := geo.ElevationAngle(s.req.Start, sample3D)
	if err != nil {
		return nil, fmt.Errorf("%w: sample %d: %w", ErrNumericDomain, idx, err)
	}

	s.evaluated++
	logging.Trace(s.opts.Logger, "LOS sample",
		"sample", idx,
		"dist_m", dist,
		"ground_m", z,
		"angle_rad", angle)
	if s.opts.OnSample != nil {
		s.opts.OnSample(Sample{Index: idx, DistanceFromStart: dist, Position: sample3D, Angle: angle})
	}

	if s.blocks(dist, z, angle) {
		s.opts.Logger.Debug("LOS blocked by terrain",
			"sample", idx,
			"dist_m", fmt.Sprintf("%.1f", dist),
			"of_m", fmt.Sprintf("%.1f", s.length2d),
			"ground_m", fmt.Sprintf("%.1f", z),
			"sample_deg", fmt.Sprintf("%.3f", geo.RadToDeg(angle)),
			"observer_deg", fmt.Sprintf("%.3f", geo.RadToDeg(s.observerAngle)))
		return &sample3D, nil
	}
	return nil, nil
}

// blocks reports whether a sample rises above the sight line. At the
// observer's own position the sight line is the observer itself, so only
// ground above it blocks; ground level with it lies on the line.
func (s *scan) blocks(dist, z, angle float64) bool {
	if dist == 0 {
		return z > s.req.Start.Z
	}
	return angle > s.observerAngle
}

func cancelled(err error) error {
	return fmt.Errorf("line of sight query abandoned: %w", err)
}

func draw(sink render.Sink, res Result) {
	if res.Visible {
		sink.Draw(render.Polyline{
			Points: []geo.Point3D{res.VisibleSegment[0], res.VisibleSegment[1]},
			Style:  render.StyleVisible,
		})
		return
	}
	sink.Draw(render.Polyline{
		Points: []geo.Point3D{res.VisibleSegment[0], res.VisibleSegment[1]},
		Style:  render.StyleVisible,
	})
	sink.Draw(render.Polyline{
		Points: []geo.Point3D{res.ObstructedSegment[0], res.ObstructedSegment[1]},
		Style:  render.StyleObstructed,
	})
}
