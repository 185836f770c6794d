package mesh

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// Tensor is a rows x cols x T scalar volume, stored as one time series per
// vertex so that per-vertex smoothing reads a contiguous slice.
type Tensor struct {
	Rows   int
	Cols   int
	Series [][]float64
}

func NewTensor(rows, cols, length int) Tensor {
	t := Tensor{Rows: rows, Cols: cols, Series: make([][]float64, rows*cols)}
	for i := range t.Series {
		t.Series[i] = make([]float64, length)
	}
	return t
}

// Len is the number of time slices.
func (t Tensor) Len() int {
	if len(t.Series) == 0 {
		return 0
	}
	return len(t.Series[0])
}

// Slice gathers the row-major vertex values at time index k.
func (t Tensor) Slice(k int) []float64 {
	out := make([]float64, len(t.Series))
	for i, s := range t.Series {
		out[i] = s[k]
	}
	return out
}

func (t Tensor) Clone() Tensor {
	c := Tensor{Rows: t.Rows, Cols: t.Cols, Series: make([][]float64, len(t.Series))}
	for i, s := range t.Series {
		c.Series[i] = append([]float64(nil), s...)
	}
	return c
}

func (t Tensor) CheckShape(o Tensor) error {
	if t.Rows != o.Rows || t.Cols != o.Cols || t.Len() != o.Len() {
		return fmt.Errorf("tensor %dx%dx%d vs %dx%dx%d: %w",
			t.Rows, t.Cols, t.Len(), o.Rows, o.Cols, o.Len(), ErrShapeMismatch)
	}
	return nil
}

// SubTensor returns a - b elementwise.
func SubTensor(a, b Tensor) (Tensor, error) {
	if err := a.CheckShape(b); err != nil {
		return Tensor{}, err
	}
	out := NewTensor(a.Rows, a.Cols, a.Len())
	for i := range out.Series {
		floats.SubTo(out.Series[i], a.Series[i], b.Series[i])
	}
	return out, nil
}

// Trajectory is the pair of X and Y tensors describing per-vertex paths.
type Trajectory struct {
	X Tensor
	Y Tensor
}

func (tr Trajectory) Len() int {
	return tr.X.Len()
}

// Field extracts time slice k as a motion field.
func (tr Trajectory) Field(k int) Field {
	return Field{
		Rows: tr.X.Rows,
		Cols: tr.X.Cols,
		X:    tr.X.Slice(k),
		Y:    tr.Y.Slice(k),
	}
}

// Corrective computes smoothed - original for both axes. The result at index
// t is the displacement that moves frame t onto the smoothed path.
func Corrective(original, smoothed Trajectory) (Trajectory, error) {
	x, err := SubTensor(smoothed.X, original.X)
	if err != nil {
		return Trajectory{}, fmt.Errorf("x axis: %w", err)
	}
	y, err := SubTensor(smoothed.Y, original.Y)
	if err != nil {
		return Trajectory{}, fmt.Errorf("y axis: %w", err)
	}
	return Trajectory{X: x, Y: y}, nil
}

// ExtendFields pads a motion field sequence with a copy of its last element so
// that it covers as many frames as the trajectory built from it. An empty
// sequence is left empty.
func ExtendFields(fields []Field) []Field {
	if len(fields) == 0 {
		return fields
	}
	out := make([]Field, len(fields), len(fields)+1)
	copy(out, fields)
	return append(out, fields[len(fields)-1].Clone())
}

// Stack builds a trajectory whose time slice k is fields[k].
func Stack(rows, cols int, fields []Field) (Trajectory, error) {
	tr := Trajectory{X: NewTensor(rows, cols, len(fields)), Y: NewTensor(rows, cols, len(fields))}
	for k, f := range fields {
		if f.Rows != rows || f.Cols != cols || len(f.X) != rows*cols || len(f.Y) != rows*cols {
			return Trajectory{}, fmt.Errorf("slice %d is %dx%d, want %dx%d: %w", k, f.Rows, f.Cols, rows, cols, ErrShapeMismatch)
		}
		for i := range f.X {
			tr.X.Series[i][k] = f.X[i]
			tr.Y.Series[i][k] = f.Y[i]
		}
	}
	return tr, nil
}
