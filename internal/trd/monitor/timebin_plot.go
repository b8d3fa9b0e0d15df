// Package monitor renders diagnostics of the tracklet transformer.
package monitor

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/trdcalib/internal/monitoring"
)

// boundaryEpsilon is the X step used to take the drift-branch limit at the
// amplification region boundary.
const boundaryEpsilon = 1e-9

// TimebinSource estimates the drift timebin of a local X coordinate.
type TimebinSource interface {
	Timebin(det int, x float64) (float64, error)
}

// TimebinCurve is a sampled timebin(x) curve of one chamber.
type TimebinCurve struct {
	Detector int
	Points   plotter.XYs

	// Boundary is the X where the estimate switches from the drift formula
	// to the amplification region guess (-CamHght/2).
	Boundary float64
	// Jump is timebin just below Boundary minus timebin at Boundary.
	Jump float64
}

// SampleTimebin samples src for det at n evenly spaced X values in
// [xMin, xMax] and measures the branch discontinuity at -camHght/2.
func SampleTimebin(src TimebinSource, det int, camHght, xMin, xMax float64, n int) (*TimebinCurve, error) {
	if n < 2 {
		return nil, fmt.Errorf("need at least 2 samples, got %d", n)
	}
	if xMax <= xMin {
		return nil, fmt.Errorf("invalid x range [%g, %g]", xMin, xMax)
	}

	curve := &TimebinCurve{
		Detector: det,
		Points:   make(plotter.XYs, n),
		Boundary: -camHght / 2,
	}
	step := (xMax - xMin) / float64(n-1)
	for i := range curve.Points {
		x := xMin + float64(i)*step
		tb, err := src.Timebin(det, x)
		if err != nil {
			return nil, fmt.Errorf("timebin at x=%g: %w", x, err)
		}
		curve.Points[i] = plotter.XY{X: x, Y: tb}
	}

	below, err := src.Timebin(det, curve.Boundary-boundaryEpsilon)
	if err != nil {
		return nil, err
	}
	at, err := src.Timebin(det, curve.Boundary)
	if err != nil {
		return nil, err
	}
	curve.Jump = below - at

	monitoring.Logf("timebin curve chamber %d: %d samples in [%.3f, %.3f], jump %.4f at x=%.3f",
		det, n, xMin, xMax, curve.Jump, curve.Boundary)
	return curve, nil
}

// Save writes the curve as a PNG (or any format gonum/plot infers from the
// file extension) with the branch boundary marked.
func (c *TimebinCurve) Save(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create output dir: %w", err)
		}
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Chamber %d: timebin vs local X (jump %.3f at x=%.3f)", c.Detector, c.Jump, c.Boundary)
	p.X.Label.Text = "local X (cm)"
	p.Y.Label.Text = "timebin"
	p.Add(plotter.NewGrid())

	line, err := plotter.NewLine(c.Points)
	if err != nil {
		return fmt.Errorf("failed to build timebin line: %w", err)
	}
	line.Color = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	line.Width = vg.Points(1.5)
	p.Add(line)
	p.Legend.Add("timebin", line)

	yMin, yMax := c.Points[0].Y, c.Points[0].Y
	for _, pt := range c.Points {
		yMin = min(yMin, pt.Y)
		yMax = max(yMax, pt.Y)
	}
	marker, err := plotter.NewLine(plotter.XYs{{X: c.Boundary, Y: yMin}, {X: c.Boundary, Y: yMax}})
	if err != nil {
		return fmt.Errorf("failed to build boundary marker: %w", err)
	}
	marker.Color = color.RGBA{R: 214, G: 39, B: 40, A: 255}
	marker.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
	p.Add(marker)
	p.Legend.Add("-CamHght/2", marker)

	if err := p.Save(10*vg.Inch, 5*vg.Inch, path); err != nil {
		return fmt.Errorf("failed to save timebin plot: %w", err)
	}
	return nil
}
