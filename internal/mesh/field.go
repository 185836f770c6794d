package mesh

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// Field holds one displacement per vertex, row-major in X and Y.
type Field struct {
	Rows int
	Cols int
	X    []float64
	Y    []float64
}

func NewField(rows, cols int) Field {
	return Field{
		Rows: rows,
		Cols: cols,
		X:    make([]float64, rows*cols),
		Y:    make([]float64, rows*cols),
	}
}

func (f Field) At(row, col int) (dx, dy float64) {
	i := row*f.Cols + col
	return f.X[i], f.Y[i]
}

func (f Field) Set(row, col int, dx, dy float64) {
	i := row*f.Cols + col
	f.X[i] = dx
	f.Y[i] = dy
}

func (f Field) Clone() Field {
	c := NewField(f.Rows, f.Cols)
	copy(c.X, f.X)
	copy(c.Y, f.Y)
	return c
}

func (f Field) CheckShape(o Field) error {
	if f.Rows != o.Rows || f.Cols != o.Cols {
		return fmt.Errorf("field %dx%d vs %dx%d: %w", f.Rows, f.Cols, o.Rows, o.Cols, ErrShapeMismatch)
	}
	return nil
}

// IsZero reports whether every displacement is exactly zero.
func (f Field) IsZero() bool {
	for i := range f.X {
		if f.X[i] != 0 || f.Y[i] != 0 {
			return false
		}
	}
	return true
}

// Add returns the elementwise sum a + b.
func Add(a, b Field) (Field, error) {
	if err := a.CheckShape(b); err != nil {
		return Field{}, err
	}
	out := NewField(a.Rows, a.Cols)
	floats.AddTo(out.X, a.X, b.X)
	floats.AddTo(out.Y, a.Y, b.Y)
	return out, nil
}

// Sub returns the elementwise difference a - b.
func Sub(a, b Field) (Field, error) {
	if err := a.CheckShape(b); err != nil {
		return Field{}, err
	}
	out := NewField(a.Rows, a.Cols)
	floats.SubTo(out.X, a.X, b.X)
	floats.SubTo(out.Y, a.Y, b.Y)
	return out, nil
}

// MaxMagnitude is the length of the longest displacement in f.
func (f Field) MaxMagnitude() float64 {
	var m float64
	for i := range f.X {
		m = max(m, f.X[i]*f.X[i]+f.Y[i]*f.Y[i])
	}
	return math.Sqrt(m)
}
