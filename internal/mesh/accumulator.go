package mesh

// Accumulator integrates per-frame motion fields into cumulative vertex
// paths. Slice 0 is all zeros and slice t+1 is slice t plus field t.
type Accumulator struct {
	rows, cols int
	x, y       [][]float64
	latest     Field
}

func NewAccumulator(rows, cols int) *Accumulator {
	a := &Accumulator{
		rows:   rows,
		cols:   cols,
		x:      make([][]float64, rows*cols),
		y:      make([][]float64, rows*cols),
		latest: NewField(rows, cols),
	}
	for i := range a.x {
		a.x[i] = []float64{0}
		a.y[i] = []float64{0}
	}
	return a
}

func (a *Accumulator) Append(f Field) error {
	next, err := Add(a.latest, f)
	if err != nil {
		return err
	}
	for i := range a.x {
		a.x[i] = append(a.x[i], next.X[i])
		a.y[i] = append(a.y[i], next.Y[i])
	}
	a.latest = next
	return nil
}

// Len is the number of time slices held, one more than fields appended.
func (a *Accumulator) Len() int {
	return len(a.x[0])
}

// Latest returns a copy of the most recent cumulative slice.
func (a *Accumulator) Latest() Field {
	return a.latest.Clone()
}

// Trajectory returns a deep copy of the accumulated paths.
func (a *Accumulator) Trajectory() Trajectory {
	tx := Tensor{Rows: a.rows, Cols: a.cols, Series: a.x}
	ty := Tensor{Rows: a.rows, Cols: a.cols, Series: a.y}
	return Trajectory{X: tx.Clone(), Y: ty.Clone()}
}

// Path accumulates a complete field sequence in one call.
func Path(rows, cols int, fields []Field) (Trajectory, error) {
	a := NewAccumulator(rows, cols)
	for _, f := range fields {
		if err := a.Append(f); err != nil {
			return Trajectory{}, err
		}
	}
	return a.Trajectory(), nil
}
