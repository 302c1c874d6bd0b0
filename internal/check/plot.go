package check

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// WritePlots saves one PNG per report into dir, plotting |grouped - reference|
// per flat element index for every comparison. It returns the written paths.
func WritePlots(dir string, reports []*Report) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create plot dir: %w", err)
	}

	paths := make([]string, 0, len(reports))
	for _, r := range reports {
		path := filepath.Join(dir, fmt.Sprintf("%s_%s_diffs.png", r.Scenario, r.DType))
		if err := writeDiffPlot(path, r); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func writeDiffPlot(path string, r *Report) error {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s (%s) - grouped vs split |diff|", r.Scenario, r.DType)
	p.X.Label.Text = "Element"
	p.Y.Label.Text = "|diff|"

	for i, c := range r.Comparisons() {
		pts := make(plotter.XYs, len(c.Diffs))
		for j, d := range c.Diffs {
			pts[j] = plotter.XY{X: float64(j), Y: plottable(d)}
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return fmt.Errorf("plot %s: %w", c.Name, err)
		}
		line.Width = vg.Points(1)
		line.Color = plotutil.Color(i)
		p.Add(line)
		p.Legend.Add(c.Name, line)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	if err := p.Save(14*vg.Inch, 6*vg.Inch, path); err != nil {
		return fmt.Errorf("save plot %s: %w", path, err)
	}
	return nil
}

// plottable clamps non-finite diffs; plotter.NewLine rejects NaN and Inf.
func plottable(d float64) float64 {
	if math.IsNaN(d) || math.IsInf(d, 0) {
		return math.MaxFloat32
	}
	return math.Abs(d)
}
