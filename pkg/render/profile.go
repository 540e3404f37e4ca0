package render

import (
	"fmt"
	"image/color"
	"sync"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"sightline/pkg/geo"
)

var (
	groundColor     = color.RGBA{R: 139, G: 90, B: 43, A: 255}
	visibleColor    = color.RGBA{G: 200, A: 255}
	obstructedColor = color.RGBA{R: 220, A: 255}
)

// Profile is a Sink that also collects ground samples and renders both as
// an elevation-versus-distance chart. Distances are measured horizontally
// from the first point of the first drawn polyline.
type Profile struct {
	mu     sync.Mutex
	ground plotter.XYs
	lines  []Polyline
}

// NewProfile creates an empty profile.
func NewProfile() *Profile {
	return &Profile{}
}

// AddGround records the terrain elevation at a distance along the path.
func (p *Profile) AddGround(distance, z float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ground = append(p.ground, plotter.XY{X: distance, Y: z})
}

// Draw implements Sink.
func (p *Profile) Draw(line Polyline) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lines = append(p.lines, clone(line))
}

// sightLines projects every polyline onto the distance/elevation plane.
func (p *Profile) sightLines() ([]plotter.XYs, []Style) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.lines) == 0 || len(p.lines[0].Points) == 0 {
		return nil, nil
	}
	origin := p.lines[0].Points[0]

	out := make([]plotter.XYs, 0, len(p.lines))
	styles := make([]Style, 0, len(p.lines))
	for _, line := range p.lines {
		xys := make(plotter.XYs, 0, len(line.Points))
		for _, pt := range line.Points {
			d, err := geo.HorizontalDistance(origin, pt)
			if err != nil {
				continue
			}
			xys = append(xys, plotter.XY{X: d, Y: pt.Z})
		}
		out = append(out, xys)
		styles = append(styles, line.Style)
	}
	return out, styles
}

// Plot builds the chart.
func (p *Profile) Plot(title string) (*plot.Plot, error) {
	pl := plot.New()
	pl.Title.Text = title
	pl.X.Label.Text = "Distance (m)"
	pl.Y.Label.Text = "Elevation (m)"

	p.mu.Lock()
	ground := append(plotter.XYs(nil), p.ground...)
	p.mu.Unlock()

	if len(ground) > 0 {
		line, points, err := plotter.NewLinePoints(ground)
		if err != nil {
			return nil, fmt.Errorf("ground profile: %w", err)
		}
		line.Color = groundColor
		line.Width = vg.Points(1)
		points.Color = groundColor
		points.Radius = vg.Points(1.5)
		pl.Add(line, points)
		pl.Legend.Add("terrain", line)
	}

	lines, styles := p.sightLines()
	for i, xys := range lines {
		if len(xys) < 2 {
			continue
		}
		line, err := plotter.NewLine(xys)
		if err != nil {
			return nil, fmt.Errorf("%s segment: %w", styles[i], err)
		}
		line.Color = visibleColor
		if styles[i] == StyleObstructed {
			line.Color = obstructedColor
			line.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
		}
		line.Width = vg.Points(1.5)
		pl.Add(line)
		pl.Legend.Add(styles[i].String(), line)
	}

	pl.Legend.Top = true
	pl.Legend.Left = false
	pl.Legend.XOffs = -10
	pl.Legend.YOffs = -10
	return pl, nil
}

// Save renders the chart to path. The format follows the file extension.
func (p *Profile) Save(path, title string) error {
	pl, err := p.Plot(title)
	if err != nil {
		return err
	}
	return pl.Save(10*vg.Inch, 4*vg.Inch, path)
}
