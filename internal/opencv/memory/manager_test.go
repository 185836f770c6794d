package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"meshstab/internal/opencv/safe"
)

func TestManagerReusesReleasedMat(t *testing.T) {
	m := NewManager(nil)
	defer m.Cleanup()

	a, err := m.GetMat(90, 160, gocv.MatTypeCV32FC1)
	require.NoError(t, err)
	id := a.ID()
	m.ReleaseMat(a)

	b, err := m.GetMat(90, 160, gocv.MatTypeCV32FC1)
	require.NoError(t, err)
	assert.Equal(t, id, b.ID())

	stats := m.GetStats()
	assert.Equal(t, int64(1), stats.PoolHits)
	assert.Equal(t, int64(1), stats.PoolMisses)
	assert.Equal(t, int64(1), stats.ActiveMats)
	m.ReleaseMat(b)
}

func TestManagerKeysByShape(t *testing.T) {
	m := NewManager(nil)
	defer m.Cleanup()

	a, err := m.GetMat(10, 10, gocv.MatTypeCV32FC1)
	require.NoError(t, err)
	m.ReleaseMat(a)

	b, err := m.GetMat(10, 20, gocv.MatTypeCV32FC1)
	require.NoError(t, err)
	assert.NotEqual(t, a.ID(), b.ID())
	assert.Equal(t, int64(2), m.GetStats().PoolMisses)
	m.ReleaseMat(b)
}

func TestManagerClosesUntracked(t *testing.T) {
	m := NewManager(nil)
	mat, err := safe.NewMat(4, 4, gocv.MatTypeCV8UC1, "foreign")
	require.NoError(t, err)

	m.ReleaseMat(mat)
	assert.False(t, mat.IsValid())
}

func TestFreeListBounded(t *testing.T) {
	f := newFreeList(1)
	a, err := safe.NewMat(2, 2, gocv.MatTypeCV8UC1, "a")
	require.NoError(t, err)
	b, err := safe.NewMat(2, 2, gocv.MatTypeCV8UC1, "b")
	require.NoError(t, err)
	defer b.Close()

	assert.True(t, f.give(a))
	assert.False(t, f.give(b))
	assert.Equal(t, 1, f.drain())
	assert.False(t, a.IsValid())
	assert.Nil(t, f.take())
}

func TestFreeListSkipsClosedMats(t *testing.T) {
	f := newFreeList(2)
	a, err := safe.NewMat(2, 2, gocv.MatTypeCV8UC1, "a")
	require.NoError(t, err)
	b, err := safe.NewMat(2, 2, gocv.MatTypeCV8UC1, "b")
	require.NoError(t, err)
	defer a.Close()

	require.True(t, f.give(a))
	require.True(t, f.give(b))
	b.Close()

	assert.Equal(t, a.ID(), f.take().ID())
	assert.Nil(t, f.take())
}
