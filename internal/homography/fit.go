package homography

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// rankTolerance bounds the ratio between the eighth and the largest singular
// value of the DLT system below which the point set is treated as degenerate.
const rankTolerance = 1e-10

// Fitter estimates the projective transform that carries src onto dst.
type Fitter interface {
	Fit(src, dst []Point) (Matrix, error)
}

// DLT fits a homography by least squares over every correspondence, with no
// outlier rejection. Exactly four points give the exact solution.
type DLT struct{}

func (DLT) Fit(src, dst []Point) (Matrix, error) {
	return FitDLT(src, dst)
}

// FitDLT solves the normalized direct linear transform over all pairs.
func FitDLT(src, dst []Point) (Matrix, error) {
	if len(src) != len(dst) {
		return Matrix{}, fmt.Errorf("%d source points, %d destination points: %w",
			len(src), len(dst), ErrDegenerateCorrespondence)
	}
	if len(src) < MinPoints {
		return Matrix{}, fmt.Errorf("%d points, need %d: %w", len(src), MinPoints, ErrDegenerateCorrespondence)
	}

	srcNorm, srcT, ok := normalize(src)
	if !ok {
		return Matrix{}, fmt.Errorf("coincident source points: %w", ErrDegenerateCorrespondence)
	}
	dstNorm, dstT, ok := normalize(dst)
	if !ok {
		return Matrix{}, fmt.Errorf("coincident destination points: %w", ErrDegenerateCorrespondence)
	}

	n := len(src)
	a := mat.NewDense(2*n, 9, nil)
	for i := 0; i < n; i++ {
		x, y := srcNorm[i].X, srcNorm[i].Y
		u, v := dstNorm[i].X, dstNorm[i].Y
		a.SetRow(2*i, []float64{-x, -y, -1, 0, 0, 0, u * x, u * y, u})
		a.SetRow(2*i+1, []float64{0, 0, 0, -x, -y, -1, v * x, v * y, v})
	}

	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDFull) {
		return Matrix{}, fmt.Errorf("svd did not converge: %w", ErrDegenerateCorrespondence)
	}

	values := svd.Values(nil)
	if values[0] == 0 || values[7]/values[0] < rankTolerance {
		return Matrix{}, fmt.Errorf("rank deficient system: %w", ErrDegenerateCorrespondence)
	}

	var v mat.Dense
	svd.VTo(&v)

	var hn Matrix
	for i := 0; i < 9; i++ {
		hn[i] = v.At(i, 8)
	}

	h := dstT.inverse().Mul(hn).Mul(srcT.matrix()).Normalized()
	if !h.IsFinite() || math.Abs(h.Determinant()) < projectionEpsilon {
		return Matrix{}, fmt.Errorf("singular fit: %w", ErrDegenerateCorrespondence)
	}

	return h, nil
}

// similarity is the isotropic scaling and translation that moves a point set
// to zero mean and mean distance sqrt(2) from the origin.
type similarity struct {
	scale  float64
	cx, cy float64
}

func (s similarity) matrix() Matrix {
	return Matrix{
		s.scale, 0, -s.scale * s.cx,
		0, s.scale, -s.scale * s.cy,
		0, 0, 1,
	}
}

func (s similarity) inverse() Matrix {
	return Matrix{
		1 / s.scale, 0, s.cx,
		0, 1 / s.scale, s.cy,
		0, 0, 1,
	}
}

func normalize(points []Point) ([]Point, similarity, bool) {
	var cx, cy float64
	for _, p := range points {
		cx += p.X
		cy += p.Y
	}
	cx /= float64(len(points))
	cy /= float64(len(points))

	var spread float64
	for _, p := range points {
		spread += math.Hypot(p.X-cx, p.Y-cy)
	}
	spread /= float64(len(points))
	if spread < projectionEpsilon {
		return nil, similarity{}, false
	}

	s := similarity{scale: math.Sqrt2 / spread, cx: cx, cy: cy}
	out := make([]Point, len(points))
	for i, p := range points {
		out[i] = Point{X: s.scale * (p.X - cx), Y: s.scale * (p.Y - cy)}
	}
	return out, s, true
}
