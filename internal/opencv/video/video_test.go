package video

import (
	"errors"
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"meshstab/internal/opencv/safe"
)

func solid(t *testing.T, v float64) *safe.Mat {
	t.Helper()
	m, err := safe.Adopt(gocv.NewMatWithSizeFromScalar(gocv.NewScalar(v, v, v, 0), 36, 64, gocv.MatTypeCV8UC3), "solid")
	require.NoError(t, err)
	return m
}

func TestFramesRewind(t *testing.T) {
	src := NewFrames(solid(t, 10), solid(t, 20))
	defer src.Close()

	for pass := 0; pass < 2; pass++ {
		count := 0
		for {
			f, err := src.Next()
			if errors.Is(err, io.EOF) {
				break
			}
			require.NoError(t, err)
			f.Close()
			count++
		}
		assert.Equal(t, 2, count)
		require.NoError(t, src.Rewind())
	}
}

func TestPNGSequence(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	sink, err := NewPNGSequence(dir)
	require.NoError(t, err)

	frame := solid(t, 128)
	defer frame.Close()
	require.NoError(t, sink.WriteFrame(7, frame))

	path := filepath.Join(dir, "00007.png")
	assert.Equal(t, path, sink.Path(7))
	assert.FileExists(t, path)

	back := gocv.IMRead(path, gocv.IMReadColor)
	defer back.Close()
	assert.Equal(t, 64, back.Cols())
	assert.Equal(t, 36, back.Rows())
}

func TestVideoFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.avi")
	sink, err := NewFile(path, "MJPG", 10, 64, 36)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		frame := solid(t, float64(40*i))
		require.NoError(t, sink.WriteFrame(i, frame))
		frame.Close()
	}
	require.NoError(t, sink.Close())

	capture, err := Open(path)
	require.NoError(t, err)
	defer capture.Close()

	w, h := capture.Size()
	assert.Equal(t, 64, w)
	assert.Equal(t, 36, h)

	read := 0
	for {
		f, err := capture.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		f.Close()
		read++
	}
	assert.Equal(t, 3, read)

	require.NoError(t, capture.Rewind())
	f, err := capture.Next()
	require.NoError(t, err)
	f.Close()
}

func TestNewFileValidation(t *testing.T) {
	_, err := NewFile(filepath.Join(t.TempDir(), "x.avi"), "MJPEG", 10, 64, 36)
	assert.Error(t, err)
	_, err = NewFile(filepath.Join(t.TempDir(), "x.avi"), "MJPG", 0, 64, 36)
	assert.Error(t, err)
}
