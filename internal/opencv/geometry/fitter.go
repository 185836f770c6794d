package geometry

import (
	"fmt"

	"gocv.io/x/gocv"

	"meshstab/internal/homography"
)

// Fitter is a homography.Fitter backed by cv::findHomography with RANSAC.
type Fitter struct {
	cfg homography.RANSACConfig
}

func NewFitter(cfg homography.RANSACConfig) *Fitter {
	return &Fitter{cfg: cfg}
}

func (f *Fitter) Fit(src, dst []homography.Point) (homography.Matrix, error) {
	if len(src) != len(dst) {
		return homography.Matrix{}, fmt.Errorf("%d source points, %d destination points: %w",
			len(src), len(dst), homography.ErrDegenerateCorrespondence)
	}
	if len(src) < homography.MinPoints {
		return homography.Matrix{}, fmt.Errorf("%d points, need %d: %w",
			len(src), homography.MinPoints, homography.ErrDegenerateCorrespondence)
	}

	srcMat := pointsMat(src)
	defer srcMat.Close()
	dstMat := pointsMat(dst)
	defer dstMat.Close()
	mask := gocv.NewMat()
	defer mask.Close()

	h := gocv.FindHomography(srcMat, &dstMat, gocv.HomograpyMethodRANSAC,
		f.cfg.Threshold, &mask, f.cfg.MaxIterations, f.cfg.Confidence)
	defer h.Close()

	if h.Empty() || h.Rows() != 3 || h.Cols() != 3 {
		return homography.Matrix{}, fmt.Errorf("findHomography returned no model: %w",
			homography.ErrDegenerateCorrespondence)
	}

	var m homography.Matrix
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			m[r*3+c] = h.GetDoubleAt(r, c)
		}
	}
	if !m.IsFinite() {
		return homography.Matrix{}, fmt.Errorf("non-finite model: %w", homography.ErrDegenerateCorrespondence)
	}
	return m.Normalized(), nil
}

// pointsMat packs points into an N x 2 CV_64F matrix.
func pointsMat(points []homography.Point) gocv.Mat {
	m := gocv.NewMatWithSize(len(points), 2, gocv.MatTypeCV64F)
	for i, p := range points {
		m.SetDoubleAt(i, 0, p.X)
		m.SetDoubleAt(i, 1, p.Y)
	}
	return m
}
