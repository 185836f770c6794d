package warp

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"meshstab/internal/homography"
	"meshstab/internal/mesh"
)

// Table is a per-pixel sampling map: output pixel (x, y) reads the source
// frame at (MapX[i], MapY[i]) with i = y*Width + x.
type Table struct {
	Width  int
	Height int
	MapX   []float32
	MapY   []float32
	// CellFallbacks counts cells whose local fit failed and used identity.
	CellFallbacks int
}

func (t *Table) At(x, y int) (float32, float32) {
	i := y*t.Width + x
	return t.MapX[i], t.MapY[i]
}

type Builder struct {
	patchSize int
	workers   int
	fitter    homography.Fitter
}

func NewBuilder(patchSize, workers int) *Builder {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Builder{patchSize: patchSize, workers: workers, fitter: homography.DLT{}}
}

// Build maps each grid cell's corner quad onto the quad displaced by the
// correction field and fills the cell's pixels through that homography.
// Pixels past the last complete cell row or column copy the displacement of
// the nearest computed pixel.
func (b *Builder) Build(ctx context.Context, width, height int, correction mesh.Field) (*Table, error) {
	grid, err := mesh.NewGrid(width, height, b.patchSize)
	if err != nil {
		return nil, err
	}
	if !grid.Matches(correction) {
		return nil, fmt.Errorf("correction %dx%d for grid %s: %w",
			correction.Rows, correction.Cols, grid, mesh.ErrShapeMismatch)
	}

	t := &Table{
		Width:  width,
		Height: height,
		MapX:   make([]float32, width*height),
		MapY:   make([]float32, width*height),
	}

	cellRows, cellCols := grid.Cells()
	var fallbacks atomic.Int64

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(b.workers)
	for r := 0; r < cellRows; r++ {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			for c := 0; c < cellCols; c++ {
				h, ok := b.cellHomography(grid, correction, r, c)
				if !ok {
					fallbacks.Add(1)
				}
				t.fillCell(h, c*b.patchSize, r*b.patchSize, b.patchSize)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	t.CellFallbacks = int(fallbacks.Load())
	t.replicate(cellCols*b.patchSize, cellRows*b.patchSize)
	return t, nil
}

// cellHomography fits the quad mapping for cell (r, c). The bool is false
// when the fit failed and identity was substituted.
func (b *Builder) cellHomography(grid mesh.Grid, correction mesh.Field, r, c int) (homography.Matrix, bool) {
	corners := [4][2]int{{r, c}, {r, c + 1}, {r + 1, c + 1}, {r + 1, c}}

	src := make([]homography.Point, 4)
	dst := make([]homography.Point, 4)
	still := true
	for i, rc := range corners {
		src[i] = grid.Vertex(rc[0], rc[1])
		dx, dy := correction.At(rc[0], rc[1])
		dst[i] = homography.Point{X: src[i].X + dx, Y: src[i].Y + dy}
		still = still && dx == 0 && dy == 0
	}
	if still {
		return homography.Identity(), true
	}

	h, err := b.fitter.Fit(src, dst)
	if err != nil {
		return homography.Identity(), false
	}
	return h, true
}

func (t *Table) fillCell(h homography.Matrix, x0, y0, size int) {
	for y := y0; y < y0+size; y++ {
		row := y * t.Width
		for x := x0; x < x0+size; x++ {
			p := homography.Point{X: float64(x), Y: float64(y)}
			q, err := h.Project(p)
			if err != nil || math.IsNaN(q.X) || math.IsNaN(q.Y) {
				q = p
			}
			t.MapX[row+x] = float32(q.X)
			t.MapY[row+x] = float32(q.Y)
		}
	}
}

// replicate fills everything outside [0, coverW) x [0, coverH). With no
// complete cell at all the map is the identity.
func (t *Table) replicate(coverW, coverH int) {
	if coverW == 0 || coverH == 0 {
		for y := 0; y < t.Height; y++ {
			for x := 0; x < t.Width; x++ {
				t.MapX[y*t.Width+x] = float32(x)
				t.MapY[y*t.Width+x] = float32(y)
			}
		}
		return
	}

	for y := 0; y < coverH; y++ {
		row := y * t.Width
		edge := row + coverW - 1
		dx := t.MapX[edge] - float32(coverW-1)
		dy := t.MapY[edge] - float32(y)
		for x := coverW; x < t.Width; x++ {
			t.MapX[row+x] = float32(x) + dx
			t.MapY[row+x] = float32(y) + dy
		}
	}

	last := (coverH - 1) * t.Width
	for y := coverH; y < t.Height; y++ {
		row := y * t.Width
		for x := 0; x < t.Width; x++ {
			t.MapX[row+x] = t.MapX[last+x]
			t.MapY[row+x] = t.MapY[last+x] - float32(coverH-1) + float32(y)
		}
	}
}

// Identity returns the map that samples every pixel from itself.
func Identity(width, height int) *Table {
	t := &Table{
		Width:  width,
		Height: height,
		MapX:   make([]float32, width*height),
		MapY:   make([]float32, width*height),
	}
	t.replicate(0, 0)
	return t
}
