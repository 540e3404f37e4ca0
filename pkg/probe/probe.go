// Package probe runs startup checks against the terrain source and the
// query history database before the server starts accepting requests.
package probe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"sightline/pkg/geo"
	"sightline/pkg/los"
	"sightline/pkg/terrain"
)

// DefaultTimeout bounds a single check when Run is given none.
const DefaultTimeout = 5 * time.Second

// CheckFunc returns nil if the check passes.
type CheckFunc func(ctx context.Context) error

// Probe is a single startup check.
type Probe struct {
	Name     string
	Check    CheckFunc
	Critical bool // A failure prevents startup
}

// Result holds the outcome of a single probe.
type Result struct {
	Probe    Probe
	Error    error
	Duration time.Duration
}

// Run executes probes in order, each under its own timeout.
func Run(ctx context.Context, probes []Probe, timeout time.Duration) []Result {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	results := make([]Result, len(probes))

	for i, p := range probes {
		start := time.Now()
		checkCtx, cancel := context.WithTimeout(ctx, timeout)
		err := p.Check(checkCtx)
		cancel()

		results[i] = Result{
			Probe:    p,
			Error:    err,
			Duration: time.Since(start),
		}
	}
	return results
}

// AnalyzeResults logs every result and joins the errors of failed critical
// probes.
func AnalyzeResults(results []Result) error {
	var criticalErrors []error

	slog.Info("Startup Checks Summary")

	for _, r := range results {
		status := "PASS"
		if r.Error != nil {
			status = "FAIL"
		}
		msg := fmt.Sprintf("[%s] %-20s (%v)", status, r.Probe.Name, r.Duration.Round(time.Millisecond))

		if r.Error != nil {
			slog.Error(msg, "error", r.Error)
			if r.Probe.Critical {
				criticalErrors = append(criticalErrors, fmt.Errorf("%s: %w", r.Probe.Name, r.Error))
			}
		} else {
			slog.Info(msg)
		}
	}

	return errors.Join(criticalErrors...)
}

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Database checks that the history database answers.
func Database(p Pinger) CheckFunc {
	return func(ctx context.Context) error {
		return p.PingContext(ctx)
	}
}

// Elevation samples the terrain at (x, y) and rejects non-finite heights.
func Elevation(elev terrain.ElevationService, x, y float64) CheckFunc {
	return func(ctx context.Context) error {
		z, err := elev.Elevation(ctx, x, y)
		if err != nil {
			return err
		}
		if math.IsNaN(z) || math.IsInf(z, 0) {
			return fmt.Errorf("elevation at (%.2f, %.2f) is %v", x, y, z)
		}
		return nil
	}
}

// SightLine runs a query over flat ground between two raised points with
// the given analyzer options and expects it to be visible. Metrics are not
// recorded.
func SightLine(opts los.Options) CheckFunc {
	opts.Metrics = nil
	a := los.NewAnalyzer(opts)
	return func(ctx context.Context) error {
		req := los.Request{
			Start:         geo.Point3D{X: 0, Y: 0, Z: 10},
			End:           geo.Point3D{X: 100, Y: 0, Z: 10},
			SampleSpacing: 10,
		}
		res, err := a.Compute(ctx, req, terrain.FlatSurface{}, nil)
		if err != nil {
			return err
		}
		if !res.Visible {
			return errors.New("line of sight over flat ground reported obstructed")
		}
		return nil
	}
}
