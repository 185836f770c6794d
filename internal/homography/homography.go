package homography

import (
	"errors"
	"math"
)

var (
	// ErrDegenerateCorrespondence is returned when a point set cannot support a
	// projective fit: too few points, mismatched lengths, or collinear samples.
	ErrDegenerateCorrespondence = errors.New("degenerate correspondence set")

	// ErrSingularProjection is returned when the homogeneous scale of a
	// projected point is too close to zero to divide by.
	ErrSingularProjection = errors.New("singular projection")
)

// MinPoints is the smallest correspondence set a homography can be fitted to.
const MinPoints = 4

const projectionEpsilon = 1e-12

// Point is a 2D image coordinate in pixels.
type Point struct {
	X float64
	Y float64
}

// Matrix is a 3x3 projective transform stored row-major.
type Matrix [9]float64

func Identity() Matrix {
	return Matrix{1, 0, 0, 0, 1, 0, 0, 0, 1}
}

func Translation(dx, dy float64) Matrix {
	return Matrix{1, 0, dx, 0, 1, dy, 0, 0, 1}
}

// Project maps p through h, dividing by the homogeneous scale.
func (h Matrix) Project(p Point) (Point, error) {
	w := h[6]*p.X + h[7]*p.Y + h[8]
	if math.Abs(w) < projectionEpsilon {
		return p, ErrSingularProjection
	}

	return Point{
		X: (h[0]*p.X + h[1]*p.Y + h[2]) / w,
		Y: (h[3]*p.X + h[4]*p.Y + h[5]) / w,
	}, nil
}

// Apply is Project with the singular case resolved to the untransformed point.
func (h Matrix) Apply(p Point) Point {
	q, err := h.Project(p)
	if err != nil {
		return p
	}
	return q
}

func (h Matrix) Mul(o Matrix) Matrix {
	var r Matrix
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			r[i*3+j] = h[i*3]*o[j] + h[i*3+1]*o[3+j] + h[i*3+2]*o[6+j]
		}
	}
	return r
}

func (h Matrix) Determinant() float64 {
	return h[0]*(h[4]*h[8]-h[5]*h[7]) -
		h[1]*(h[3]*h[8]-h[5]*h[6]) +
		h[2]*(h[3]*h[7]-h[4]*h[6])
}

func (h Matrix) IsFinite() bool {
	for _, v := range h {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Normalized scales h so that its bottom-right element is one. Matrices whose
// bottom-right element vanishes are scaled to unit Frobenius norm instead.
func (h Matrix) Normalized() Matrix {
	scale := h[8]
	if math.Abs(scale) < projectionEpsilon {
		var norm float64
		for _, v := range h {
			norm += v * v
		}
		scale = math.Sqrt(norm)
		if scale == 0 {
			return h
		}
	}

	var r Matrix
	for i, v := range h {
		r[i] = v / scale
	}
	return r
}

func distance(a, b Point) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}
