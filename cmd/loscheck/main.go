// Command loscheck runs a single line-of-sight query and prints the result.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"sightline/pkg/config"
	"sightline/pkg/geo"
	"sightline/pkg/logging"
	"sightline/pkg/los"
	"sightline/pkg/render"
	"sightline/pkg/terrain"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "loscheck: %v\n", err)
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

type options struct {
	configPath string
	start, end geo.Point3D
	spacing    float64
	flat       *float64
	lookahead  int
	endpoint   bool
	geojson    bool
	plotPath   string
	shpPath    string
	trace      bool
}

func parseArgs(args []string) (*options, error) {
	var o options
	fs := flag.NewFlagSet("loscheck", flag.ContinueOnError)
	fs.StringVar(&o.configPath, "config", "configs/sightline.yaml", "Config file providing terrain and defaults")
	fs.Func("start", "Observer as x,y,z in meters", func(s string) (err error) {
		o.start, err = parsePoint(s)
		return err
	})
	fs.Func("end", "Target as x,y,z in meters", func(s string) (err error) {
		o.end, err = parsePoint(s)
		return err
	})
	fs.Float64Var(&o.spacing, "spacing", 0, "Sample spacing in meters (default from config, then terrain resolution)")
	fs.Func("flat", "Ignore configured terrain and use a flat surface at this height", func(s string) error {
		h, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return err
		}
		o.flat = &h
		return nil
	})
	fs.IntVar(&o.lookahead, "lookahead", -1, "Elevation queries kept in flight (default from config)")
	fs.BoolVar(&o.endpoint, "endpoint", false, "Also sample the target's own position")
	fs.BoolVar(&o.geojson, "geojson", false, "Print the drawn polylines as GeoJSON instead of the result")
	fs.StringVar(&o.plotPath, "plot", "", "Also write an elevation profile chart (.png, .svg or .pdf)")
	fs.StringVar(&o.shpPath, "shp", "", "Also export the drawn polylines as a PolyLineZ shapefile")
	fs.BoolVar(&o.trace, "trace", false, "Log every sample to stderr")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	seen := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { seen[f.Name] = true })
	if !seen["start"] || !seen["end"] {
		return nil, errors.New("-start and -end are required")
	}
	return &o, nil
}

// parsePoint reads "x,y,z".
func parsePoint(s string) (geo.Point3D, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return geo.Point3D{}, fmt.Errorf("point %q: want x,y,z", s)
	}
	var v [3]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return geo.Point3D{}, fmt.Errorf("point %q: %w", s, err)
		}
		v[i] = f
	}
	return geo.Point3D{X: v[0], Y: v[1], Z: v[2]}, nil
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	o, err := parseArgs(args)
	if err != nil {
		return err
	}

	cfg := config.DefaultConfig()
	if o.flat == nil {
		if cfg, err = config.Load(o.configPath); err != nil {
			return err
		}
	} else {
		cfg.Terrain.Provider = config.ProviderFlat
		cfg.Terrain.FlatElevation = *o.flat
	}

	elev, closer, err := terrain.FromConfig(&cfg.Terrain)
	if err != nil {
		return err
	}
	defer closer.Close()

	req := los.Request{Start: o.start, End: o.end, SampleSpacing: o.spacing}
	if req.SampleSpacing == 0 {
		req.SampleSpacing = cfg.LOS.SampleSpacing.Meters()
	}
	if req.SampleSpacing == 0 {
		if r, ok := elev.(terrain.Resolver); ok {
			req.SampleSpacing = r.Resolution()
		}
	}

	lookahead := cfg.LOS.Lookahead
	if o.lookahead >= 0 {
		lookahead = o.lookahead
	}

	opts := los.Options{
		Lookahead:       lookahead,
		IncludeEndpoint: o.endpoint || cfg.LOS.IncludeEndpoint,
	}
	if o.trace {
		opts.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level:       logging.LevelTrace,
			ReplaceAttr: logging.ReplaceLevel,
		}))
	}

	sink := render.NewGeoJSONSink()
	sinks := []render.Sink{sink}
	var profile *render.Profile
	if o.plotPath != "" {
		profile = render.NewProfile()
		sinks = append(sinks, profile)
		opts.OnSample = func(s los.Sample) {
			profile.AddGround(s.DistanceFromStart, s.Position.Z)
		}
	}

	var shape *render.Shapefile
	if o.shpPath != "" {
		shape = render.NewShapefile()
		sinks = append(sinks, shape)
	}

	res, err := los.NewAnalyzer(opts).Compute(ctx, req, elev, render.Multi(sinks...))
	if err != nil {
		return err
	}

	if shape != nil {
		if err := shape.Save(o.shpPath); err != nil {
			return fmt.Errorf("write shapefile: %w", err)
		}
	}

	if profile != nil {
		title := fmt.Sprintf("%v to %v (visible: %t)", o.start, o.end, res.Visible)
		if err := profile.Save(o.plotPath, title); err != nil {
			return fmt.Errorf("write profile chart: %w", err)
		}
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if o.geojson {
		return enc.Encode(sink)
	}
	return enc.Encode(res)
}
