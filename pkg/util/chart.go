package util

import (
	"fmt"
	"io"
	"math"
	"sort"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

const (
	chartWidth  = 6 * vg.Inch
	chartHeight = 4 * vg.Inch

	// Floor for log-scale axes; a mismatch of exactly zero would break them.
	minMismatch = 1e-18
)

// ConvergenceChart plots the mismatch norm of every Newton iteration on a
// logarithmic axis.
func ConvergenceChart(title string, history []float64) (*plot.Plot, error) {
	if len(history) == 0 {
		return nil, fmt.Errorf("convergence chart: empty history")
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "iteration"
	p.Y.Label.Text = "max |mismatch| (p.u.)"
	p.Y.Scale = plot.LogScale{}
	p.Y.Tick.Marker = plot.LogTicks{Prec: -1}

	pts := make(plotter.XYs, len(history))
	for i, m := range history {
		if math.IsInf(m, 0) || math.IsNaN(m) {
			return nil, fmt.Errorf("convergence chart: non-finite mismatch at iteration %d", i)
		}
		pts[i].X = float64(i)
		pts[i].Y = math.Max(m, minMismatch)
	}

	line, points, err := plotter.NewLinePoints(pts)
	if err != nil {
		return nil, err
	}
	p.Add(plotter.NewGrid(), line, points)
	return p, nil
}

// SweepChart plots voltage magnitude against the load scale for the named
// nodes, the classic nose curve. results must hold SCALE and VM(name) series.
func SweepChart(title string, results map[string][]float64, names []string) (*plot.Plot, error) {
	scales, ok := results["SCALE"]
	if !ok || len(scales) == 0 {
		return nil, fmt.Errorf("sweep chart: no sweep points")
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "load scale"
	p.Y.Label.Text = "|V| (p.u.)"
	p.Add(plotter.NewGrid())

	names = append([]string(nil), names...)
	sort.Strings(names)

	var lines []any
	for _, name := range names {
		vm, ok := results[fmt.Sprintf("VM(%s)", name)]
		if !ok {
			return nil, fmt.Errorf("sweep chart: no results for node %s", name)
		}
		pts := make(plotter.XYs, len(scales))
		for i := range scales {
			pts[i].X, pts[i].Y = scales[i], vm[i]
		}
		lines = append(lines, name, pts)
	}
	if err := plotutil.AddLinePoints(p, lines...); err != nil {
		return nil, err
	}
	return p, nil
}

// WriteChart renders p to w in the given format (png, svg, pdf, ...).
func WriteChart(w io.Writer, p *plot.Plot, format string) error {
	wt, err := p.WriterTo(chartWidth, chartHeight, format)
	if err != nil {
		return err
	}
	_, err = wt.WriteTo(w)
	return err
}

// SaveChart writes p to path; the extension selects the format.
func SaveChart(p *plot.Plot, path string) error {
	return p.Save(chartWidth, chartHeight, path)
}
