package stats

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"rescap/internal/benchmark"
)

var (
	meanColor = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	stdColor  = color.RGBA{R: 255, G: 127, B: 14, A: 77}
	varColor  = color.RGBA{R: 44, G: 160, B: 44, A: 77}
)

// WriteMemoryPlot renders the per-delay mean memory of summary with shaded
// ±std and ±var bands and saves it as an image; the format follows the file
// extension.
func WriteMemoryPlot(path string, summary benchmark.Summary) error {
	if len(summary.Means) == 0 || len(summary.Means) != len(summary.Delays) {
		return fmt.Errorf("memory plot needs one mean per delay, got delays=%d means=%d", len(summary.Delays), len(summary.Means))
	}

	p := plot.New()
	p.Title.Text = "Memory Capacity over delay steps"
	p.X.Label.Text = "Delay"
	p.Y.Label.Text = "Memory Capacity"

	grid := plotter.NewGrid()
	grid.Vertical.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
	grid.Horizontal.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
	p.Add(grid)

	stdBand, err := band(summary, summary.Std, stdColor)
	if err != nil {
		return err
	}
	varBand, err := band(summary, summary.Var, varColor)
	if err != nil {
		return err
	}
	mean := make(plotter.XYs, len(summary.Means))
	for i, m := range summary.Means {
		mean[i].X = float64(summary.Delays[i])
		mean[i].Y = m
	}
	line, err := plotter.NewLine(mean)
	if err != nil {
		return fmt.Errorf("memory plot mean line: %w", err)
	}
	line.Color = meanColor
	line.Width = vg.Points(1.5)

	p.Add(stdBand, varBand, line)
	p.Legend.Add("Mean", line)
	p.Legend.Add("Std", stdBand)
	p.Legend.Add("Var", varBand)
	p.Legend.Top = true

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := p.Save(12*vg.Inch, 6*vg.Inch, path); err != nil {
		return fmt.Errorf("save memory plot: %w", err)
	}
	return nil
}

// band is the closed polygon mean-width .. mean+width over all delays.
func band(summary benchmark.Summary, width float64, c color.Color) (*plotter.Polygon, error) {
	n := len(summary.Means)
	pts := make(plotter.XYs, 0, 2*n)
	for i := 0; i < n; i++ {
		pts = append(pts, plotter.XY{X: float64(summary.Delays[i]), Y: summary.Means[i] - width})
	}
	for i := n - 1; i >= 0; i-- {
		pts = append(pts, plotter.XY{X: float64(summary.Delays[i]), Y: summary.Means[i] + width})
	}
	poly, err := plotter.NewPolygon(pts)
	if err != nil {
		return nil, fmt.Errorf("memory plot band: %w", err)
	}
	poly.Color = c
	poly.LineStyle.Width = 0
	return poly, nil
}
