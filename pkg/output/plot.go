package output

import (
	"image/color"
	"log/slog"
	"math"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/iglpdc/dmrg-helpers/pkg/declutter"
	"github.com/iglpdc/dmrg-helpers/pkg/estimator"
	"github.com/iglpdc/dmrg-helpers/pkg/types"
)

// PlotOptions controls how Plot renders a NamedSeries.
type PlotOptions struct {
	Title  string
	XLabel string
	YLabel string

	// Width and Height of the image, in inches.
	Width  float64
	Height float64

	// MinSeparation above zero drops runs whose last samples are closer than
	// this fraction of the y range. Protected runs are never dropped.
	MinSeparation float64
	Protected     []string
	TieBreak      declutter.TieBreak

	// Markers are x positions drawn as dashed vertical lines, such as Fermi
	// momenta.
	Markers []float64

	Logger *slog.Logger
}

// DefaultPlotOptions returns a 5x4 inch plot with no decluttering.
func DefaultPlotOptions() PlotOptions {
	return PlotOptions{Width: 5, Height: 4, XLabel: "q"}
}

// Plot draws every run of s as a line in one figure and saves it to path.
// The format follows the extension of path (png, pdf, svg, ...). It returns
// the fingerprints of the runs drawn.
func Plot(path string, s types.NamedSeries, opts PlotOptions) ([]string, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	fps, err := plottedRuns(s, opts, logger)
	if err != nil {
		return nil, err
	}
	if len(fps) == 0 {
		return nil, errors.Errorf("nothing to plot for %s", s.Name)
	}

	p := plot.New()
	p.Title.Text = opts.Title
	if p.Title.Text == "" {
		p.Title.Text = s.Name
	}
	p.X.Label.Text = opts.XLabel
	p.Y.Label.Text = opts.YLabel
	p.Add(plotter.NewGrid())

	for i, fp := range fps {
		l, err := plotter.NewLine(s.Runs[fp])
		if err != nil {
			return nil, errors.Wrapf(err, "line for run %q", fp)
		}
		l.LineStyle.Color = plotutil.Color(i)
		l.LineStyle.Width = vg.Points(1)
		p.Add(l)
		p.Legend.Add(RunLabel(s.FingerprintKeys, fp), l)
	}

	if len(opts.Markers) > 0 {
		lo, hi := yRange(s, fps)
		for _, x := range opts.Markers {
			m, err := plotter.NewLine(types.XYSeries{{X: x, Y: lo}, {X: x, Y: hi}})
			if err != nil {
				return nil, errors.Wrap(err, "marker")
			}
			m.LineStyle.Color = color.Gray{Y: 128}
			m.LineStyle.Dashes = []vg.Length{vg.Points(3), vg.Points(3)}
			p.Add(m)
		}
	}

	width, height := opts.Width, opts.Height
	if width <= 0 || height <= 0 {
		d := DefaultPlotOptions()
		width, height = d.Width, d.Height
	}
	if err := p.Save(vg.Length(width)*vg.Inch, vg.Length(height)*vg.Inch, path); err != nil {
		return nil, errors.Wrapf(err, "failed to save plot %s", path)
	}

	logger.Info("saved plot", "path", path, "runs", len(fps))
	return fps, nil
}

// plottedRuns returns the fingerprints of the non-empty runs of s, after
// decluttering when it is enabled.
func plottedRuns(s types.NamedSeries, opts PlotOptions, logger *slog.Logger) ([]string, error) {
	fps := make([]string, 0, len(s.Runs))
	for fp, series := range s.Runs {
		if series.Len() > 0 {
			fps = append(fps, fp)
		}
	}
	sort.Strings(fps)

	if opts.MinSeparation <= 0 || len(fps) < 2 {
		return fps, nil
	}

	lo, hi := yRange(s, fps)
	height := hi - lo
	if height <= 0 {
		height = 1
	}

	last := make(map[string]float64, len(fps))
	for _, fp := range fps {
		series := s.Runs[fp]
		last[fp] = series[series.Len()-1].Y
	}

	kept, err := declutter.Select(
		[]declutter.Group{{Values: last, Height: height}},
		opts.MinSeparation,
		opts.Protected,
		declutter.WithTieBreak(opts.TieBreak),
		declutter.WithLogger(logger),
	)
	if err != nil {
		return nil, errors.Wrapf(err, "declutter %s", s.Name)
	}
	return kept, nil
}

func yRange(s types.NamedSeries, fps []string) (float64, float64) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, fp := range fps {
		ys := s.Runs[fp].Ys()
		if len(ys) == 0 {
			continue
		}
		lo = math.Min(lo, floats.Min(ys))
		hi = math.Max(hi, floats.Max(ys))
	}
	return lo, hi
}

// RunLabel renders a run as "key=value" pairs for legends. It falls back to
// the raw fingerprint values when they do not match the keys.
func RunLabel(fingerprintKeys, fp string) string {
	meta, err := estimator.Metadata(fingerprintKeys, fp)
	if err != nil || len(meta) == 0 {
		return fp
	}
	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, len(keys))
	for i, k := range keys {
		pairs[i] = k + "=" + meta[k]
	}
	return strings.Join(pairs, ", ")
}
