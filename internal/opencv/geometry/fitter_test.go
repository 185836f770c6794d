package geometry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meshstab/internal/homography"
)

func TestFitterTranslation(t *testing.T) {
	var src, dst []homography.Point
	for y := 0; y < 5; y++ {
		for x := 0; x < 5; x++ {
			p := homography.Point{X: float64(x * 30), Y: float64(y * 20)}
			src = append(src, p)
			dst = append(dst, homography.Point{X: p.X + 5, Y: p.Y - 2})
		}
	}

	h, err := NewFitter(homography.DefaultRANSACConfig()).Fit(src, dst)
	require.NoError(t, err)

	want := homography.Translation(5, -2)
	for i := range want {
		assert.InDelta(t, want[i], h[i], 1e-6)
	}
}

func TestFitterTooFewPoints(t *testing.T) {
	_, err := NewFitter(homography.DefaultRANSACConfig()).Fit(nil, nil)
	assert.ErrorIs(t, err, homography.ErrDegenerateCorrespondence)

	_, err = NewFitter(homography.DefaultRANSACConfig()).Fit(make([]homography.Point, 4), make([]homography.Point, 5))
	assert.ErrorIs(t, err, homography.ErrDegenerateCorrespondence)
}
