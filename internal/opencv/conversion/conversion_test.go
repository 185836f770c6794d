package conversion

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"meshstab/internal/opencv/safe"
)

func solid(t *testing.T, matType gocv.MatType, value float64) *safe.Mat {
	t.Helper()
	m, err := safe.Adopt(gocv.NewMatWithSizeFromScalar(gocv.NewScalar(value, value, value, 255), 6, 8, matType), "solid")
	require.NoError(t, err)
	t.Cleanup(m.Close)
	return m
}

func TestToGray(t *testing.T) {
	for _, mt := range []gocv.MatType{gocv.MatTypeCV8UC1, gocv.MatTypeCV8UC3, gocv.MatTypeCV8UC4} {
		out, err := ToGray(solid(t, mt, 90))
		require.NoError(t, err)
		assert.Equal(t, 1, out.Channels())
		assert.Equal(t, uint8(90), out.GetMat().GetUCharAt(3, 4))
		out.Close()
	}
}

func TestToBGR(t *testing.T) {
	for _, mt := range []gocv.MatType{gocv.MatTypeCV8UC1, gocv.MatTypeCV8UC3, gocv.MatTypeCV8UC4} {
		out, err := ToBGR(solid(t, mt, 40))
		require.NoError(t, err)
		assert.Equal(t, 3, out.Channels())
		w, h := out.Size()
		assert.Equal(t, [2]int{8, 6}, [2]int{w, h})
		out.Close()
	}
}

func TestConvertRejectsFloatFrames(t *testing.T) {
	_, err := ToGray(solid(t, gocv.MatTypeCV32FC1, 1))
	assert.Error(t, err)
}
