package plot

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"meshstab/internal/mesh"
)

var (
	originalColor = color.RGBA{R: 200, G: 40, B: 40, A: 255}
	smoothedColor = color.RGBA{R: 30, G: 90, B: 200, A: 255}
)

// TrajectoryPlotter renders original and smoothed x-paths of sampled
// vertices: every grid row, every Stride-th column.
type TrajectoryPlotter struct {
	outputDir string
	stride    int
}

func NewTrajectoryPlotter(outputDir string, stride int) (*TrajectoryPlotter, error) {
	if stride < 1 {
		return nil, fmt.Errorf("plot stride must be at least 1, got %d", stride)
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}
	return &TrajectoryPlotter{outputDir: outputDir, stride: stride}, nil
}

// PlotTrajectories writes one PNG per sampled vertex and returns the paths.
func (tp *TrajectoryPlotter) PlotTrajectories(original, smoothed mesh.Trajectory) ([]string, error) {
	if err := original.X.CheckShape(smoothed.X); err != nil {
		return nil, err
	}

	var paths []string
	for r := 0; r < original.X.Rows; r++ {
		for c := 0; c < original.X.Cols; c += tp.stride {
			i := r*original.X.Cols + c
			path := filepath.Join(tp.outputDir, fmt.Sprintf("vertex_%03d_%03d.png", r, c))
			title := fmt.Sprintf("Vertex (%d, %d) x motion", r, c)
			if err := SaveSeries(path, title, original.X.Series[i], smoothed.X.Series[i]); err != nil {
				return paths, err
			}
			paths = append(paths, path)
		}
	}
	return paths, nil
}

// SaveSeries plots two same-length series against the frame index.
func SaveSeries(path, title string, original, smoothed []float64) error {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "frame"
	p.Y.Label.Text = "cumulative motion (px)"

	for _, s := range []struct {
		label  string
		values []float64
		color  color.Color
	}{
		{"original", original, originalColor},
		{"smoothed", smoothed, smoothedColor},
	} {
		pts := make(plotter.XYs, len(s.values))
		for t, v := range s.values {
			pts[t] = plotter.XY{X: float64(t), Y: v}
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return fmt.Errorf("%s line: %w", s.label, err)
		}
		line.Color = s.color
		line.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add(s.label, line)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	if err := p.Save(10*vg.Inch, 4*vg.Inch, path); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}
