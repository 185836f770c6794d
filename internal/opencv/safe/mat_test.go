package safe

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func TestNewMatValidation(t *testing.T) {
	_, err := NewMat(0, 10, gocv.MatTypeCV8UC3, "bad")
	assert.Error(t, err)

	m, err := NewMat(9, 16, gocv.MatTypeCV8UC3, "frame")
	require.NoError(t, err)
	defer m.Close()

	w, h := m.Size()
	assert.Equal(t, 16, w)
	assert.Equal(t, 9, h)
	assert.Equal(t, 3, m.Channels())
	assert.NoError(t, ValidateFrame(m, "test"))
}

func TestCloseInvalidates(t *testing.T) {
	m, err := NewMat(4, 4, gocv.MatTypeCV8UC1, "x")
	require.NoError(t, err)

	m.Close()
	m.Close()
	assert.False(t, m.IsValid())
	assert.True(t, m.Empty())
	assert.Equal(t, 0, m.Rows())

	_, err = m.Clone()
	assert.Error(t, err)
	assert.Error(t, ValidateMatForOperation(m, "test"))
}

func TestCloseIsIdempotent(t *testing.T) {
	m, err := NewMat(4, 4, gocv.MatTypeCV8UC1, "x")
	require.NoError(t, err)

	m.Close()
	m.Close()
	assert.False(t, m.IsValid())
	assert.Zero(t, m.Rows())
}

func TestAdoptAndCrop(t *testing.T) {
	raw := gocv.NewMatWithSize(20, 30, gocv.MatTypeCV8UC1)
	m, err := Adopt(raw, "adopted")
	require.NoError(t, err)
	defer m.Close()

	c, err := m.Crop(image.Rect(5, 5, 25, 15))
	require.NoError(t, err)
	defer c.Close()
	w, h := c.Size()
	assert.Equal(t, 20, w)
	assert.Equal(t, 10, h)

	_, err = m.Crop(image.Rect(0, 0, 40, 10))
	assert.Error(t, err)

	_, err = Adopt(gocv.NewMat(), "empty")
	assert.Error(t, err)
}

func TestValidators(t *testing.T) {
	assert.Error(t, ValidateMatForOperation(nil, "nil"))
	assert.Error(t, ValidateDimensions(0, 5, "zero"))
	assert.Error(t, ValidateDimensions(40000, 5, "huge"))

	a, err := NewMat(4, 4, gocv.MatTypeCV8UC1, "a")
	require.NoError(t, err)
	defer a.Close()
	b, err := NewMat(4, 5, gocv.MatTypeCV8UC1, "b")
	require.NoError(t, err)
	defer b.Close()
	assert.Error(t, ValidateSameSize(a, b, "pair"))

	f, err := NewMat(4, 4, gocv.MatTypeCV32FC1, "f")
	require.NoError(t, err)
	defer f.Close()
	assert.Error(t, ValidateFrame(f, "float"))
}
