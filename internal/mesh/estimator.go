package mesh

import (
	"context"
	"fmt"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"

	"meshstab/internal/homography"
)

type EstimatorConfig struct {
	PatchSize int
	// Radius bounds, exclusively, the distance from a source point to a
	// vertex for its residual to vote on that vertex.
	Radius  float64
	Workers int
}

func DefaultEstimatorConfig() EstimatorConfig {
	return EstimatorConfig{PatchSize: 16, Radius: 300}
}

func (c EstimatorConfig) Validate() error {
	if c.PatchSize < 2 {
		return fmt.Errorf("patch size must be at least 2, got %d", c.PatchSize)
	}
	if c.Radius <= 0 || math.IsNaN(c.Radius) {
		return fmt.Errorf("propagation radius must be positive, got %v", c.Radius)
	}
	return nil
}

// Estimator turns a frame-to-frame correspondence set into a per-vertex
// motion field: global homography baseline plus a median of nearby residuals,
// then a 3x3 spatial median.
type Estimator struct {
	cfg    EstimatorConfig
	fitter homography.Fitter
}

func NewEstimator(cfg EstimatorConfig, fitter homography.Fitter) *Estimator {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}
	return &Estimator{cfg: cfg, fitter: fitter}
}

func (e *Estimator) Grid(width, height int) (Grid, error) {
	return NewGrid(width, height, e.cfg.PatchSize)
}

// Estimate computes the motion field for one frame pair.
//
// When the global fit fails the returned field is all zeros and the error
// wraps homography.ErrDegenerateCorrespondence; callers may keep the field.
// Any other error leaves the field unusable.
func (e *Estimator) Estimate(ctx context.Context, c Correspondences, width, height int) (Field, error) {
	grid, err := e.Grid(width, height)
	if err != nil {
		return Field{}, err
	}
	if err := c.Validate(); err != nil {
		return Field{}, err
	}

	h, err := e.fitter.Fit(c.Source, c.Destination)
	if err != nil {
		return NewField(grid.Rows, grid.Cols), fmt.Errorf("global homography over %d points: %w", c.Len(), err)
	}

	arena := newResidualArena(grid.Rows, grid.Cols)
	for i := range c.Source {
		e.vote(grid, arena, c.Source[i], c.Destination[i], h)
	}

	field := NewField(grid.Rows, grid.Cols)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Workers)
	for r := 0; r < grid.Rows; r++ {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			for col := 0; col < grid.Cols; col++ {
				p := grid.Vertex(r, col)
				q := h.Apply(p)
				lx, ly := arena.median(r, col)
				field.Set(r, col, p.X-q.X+lx, p.Y-q.Y+ly)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Field{}, err
	}

	field.X = MedianFilter3(field.X, field.Rows, field.Cols)
	field.Y = MedianFilter3(field.Y, field.Rows, field.Cols)
	return field, nil
}

// vote appends the residual of one correspondence to every vertex within the
// radius of its source point. Only the bounding box of the disc is scanned.
func (e *Estimator) vote(grid Grid, arena *residualArena, src, dst Point, h homography.Matrix) {
	projected := h.Apply(src)
	rx := dst.X - projected.X
	ry := dst.Y - projected.Y
	if math.IsNaN(rx) || math.IsNaN(ry) || math.IsInf(rx, 0) || math.IsInf(ry, 0) {
		return
	}

	ps := float64(grid.PatchSize)
	r := e.cfg.Radius
	r0 := max(int(math.Ceil((src.Y-r)/ps)), 0)
	r1 := min(int(math.Floor((src.Y+r)/ps)), grid.Rows-1)
	c0 := max(int(math.Ceil((src.X-r)/ps)), 0)
	c1 := min(int(math.Floor((src.X+r)/ps)), grid.Cols-1)

	for row := r0; row <= r1; row++ {
		for col := c0; col <= c1; col++ {
			v := grid.Vertex(row, col)
			if math.Hypot(v.X-src.X, v.Y-src.Y) < r {
				arena.add(row, col, rx, ry)
			}
		}
	}
}

// residualArena holds, per vertex, the residuals that voted on it. Every list
// starts with a single zero so the median is always defined.
type residualArena struct {
	cols int
	x    [][]float64
	y    [][]float64
}

func newResidualArena(rows, cols int) *residualArena {
	a := &residualArena{
		cols: cols,
		x:    make([][]float64, rows*cols),
		y:    make([][]float64, rows*cols),
	}
	for i := range a.x {
		a.x[i] = []float64{0}
		a.y[i] = []float64{0}
	}
	return a
}

func (a *residualArena) add(row, col int, dx, dy float64) {
	i := row*a.cols + col
	a.x[i] = append(a.x[i], dx)
	a.y[i] = append(a.y[i], dy)
}

// median sorts the vertex's lists in place; call once per vertex.
func (a *residualArena) median(row, col int) (float64, float64) {
	i := row*a.cols + col
	return upperMedian(a.x[i]), upperMedian(a.y[i])
}
