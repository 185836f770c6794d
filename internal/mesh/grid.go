package mesh

import (
	"errors"
	"fmt"

	"meshstab/internal/homography"
)

// ErrShapeMismatch signals a programming or configuration error: two meshes,
// fields or tensors that must agree in shape do not.
var ErrShapeMismatch = errors.New("mesh shape mismatch")

type Point = homography.Point

// Grid is the regular vertex lattice laid over a frame. Vertex (r, c) sits at
// pixel (PatchSize*c, PatchSize*r).
type Grid struct {
	Rows      int
	Cols      int
	PatchSize int
}

// NewGrid sizes the lattice for a width x height frame with floor division.
func NewGrid(width, height, patchSize int) (Grid, error) {
	if patchSize <= 0 {
		return Grid{}, fmt.Errorf("patch size must be positive, got %d", patchSize)
	}
	if width <= 0 || height <= 0 {
		return Grid{}, fmt.Errorf("invalid frame dimensions %dx%d", width, height)
	}

	g := Grid{Rows: height / patchSize, Cols: width / patchSize, PatchSize: patchSize}
	if g.Rows < 1 || g.Cols < 1 {
		return Grid{}, fmt.Errorf("patch size %d exceeds frame %dx%d", patchSize, width, height)
	}
	return g, nil
}

func (g Grid) Vertices() int {
	return g.Rows * g.Cols
}

func (g Grid) Index(row, col int) int {
	return row*g.Cols + col
}

func (g Grid) Vertex(row, col int) Point {
	return Point{X: float64(g.PatchSize * col), Y: float64(g.PatchSize * row)}
}

// Cells is the number of complete quadrilaterals between vertices.
func (g Grid) Cells() (rows, cols int) {
	return max(g.Rows-1, 0), max(g.Cols-1, 0)
}

func (g Grid) Matches(f Field) bool {
	return f.Rows == g.Rows && f.Cols == g.Cols
}

func (g Grid) String() string {
	return fmt.Sprintf("%dx%d@%d", g.Rows, g.Cols, g.PatchSize)
}

// Correspondences pairs each source point with its tracked position in the
// following frame.
type Correspondences struct {
	Source      []Point
	Destination []Point
}

func (c Correspondences) Len() int {
	return len(c.Source)
}

func (c Correspondences) Validate() error {
	if len(c.Source) != len(c.Destination) {
		return fmt.Errorf("%d source points, %d destination points: %w",
			len(c.Source), len(c.Destination), ErrShapeMismatch)
	}
	return nil
}
