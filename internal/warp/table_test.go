package warp

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meshstab/internal/mesh"
)

func uniformField(rows, cols int, dx, dy float64) mesh.Field {
	f := mesh.NewField(rows, cols)
	for i := range f.X {
		f.X[i] = dx
		f.Y[i] = dy
	}
	return f
}

func TestBuildZeroFieldIsIdentity(t *testing.T) {
	b := NewBuilder(16, 2)
	table, err := b.Build(context.Background(), 160, 90, mesh.NewField(5, 10))
	require.NoError(t, err)

	assert.Equal(t, Identity(160, 90).MapX, table.MapX)
	assert.Equal(t, Identity(160, 90).MapY, table.MapY)
	assert.Zero(t, table.CellFallbacks)
}

func TestBuildTranslation(t *testing.T) {
	b := NewBuilder(16, 0)
	table, err := b.Build(context.Background(), 160, 90, uniformField(5, 10, 3, -2))
	require.NoError(t, err)

	for _, pt := range [][2]int{{0, 0}, {17, 33}, {143, 63}, {159, 89}, {150, 10}, {5, 80}} {
		mx, my := table.At(pt[0], pt[1])
		assert.InDelta(t, float64(pt[0])+3, float64(mx), 1e-3, "x at %v", pt)
		assert.InDelta(t, float64(pt[1])-2, float64(my), 1e-3, "y at %v", pt)
	}
}

func TestBuildReplicatesDisplacementBeyondLastCell(t *testing.T) {
	b := NewBuilder(16, 1)
	// 40x40 frame: 2x2 vertices, one 16x16 cell, the rest replicated.
	field := mesh.NewField(2, 2)
	field.Set(0, 1, 2, 0)
	field.Set(1, 1, 2, 0)

	table, err := b.Build(context.Background(), 40, 40, field)
	require.NoError(t, err)

	edgeX, edgeY := table.At(15, 7)
	farX, farY := table.At(39, 7)
	assert.InDelta(t, float64(edgeX)-15, float64(farX)-39, 1e-4)
	assert.InDelta(t, float64(edgeY), float64(farY), 1e-4)

	bottomX, bottomY := table.At(5, 15)
	belowX, belowY := table.At(5, 39)
	assert.InDelta(t, float64(bottomX), float64(belowX), 1e-4)
	assert.InDelta(t, float64(bottomY)-15, float64(belowY)-39, 1e-4)
}

func TestBuildDegenerateCellFallsBackToIdentity(t *testing.T) {
	b := NewBuilder(16, 1)
	// Every corner of the single cell collapses onto (8, 8).
	field := mesh.NewField(2, 2)
	field.Set(0, 0, 8, 8)
	field.Set(0, 1, -8, 8)
	field.Set(1, 1, -8, -8)
	field.Set(1, 0, 8, -8)

	table, err := b.Build(context.Background(), 32, 32, field)
	require.NoError(t, err)
	assert.Equal(t, 1, table.CellFallbacks)

	mx, my := table.At(10, 12)
	assert.Equal(t, float32(10), mx)
	assert.Equal(t, float32(12), my)
}

func TestBuildShapeMismatch(t *testing.T) {
	b := NewBuilder(16, 1)
	_, err := b.Build(context.Background(), 160, 90, mesh.NewField(4, 10))
	assert.ErrorIs(t, err, mesh.ErrShapeMismatch)
}

func TestBuildCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewBuilder(16, 1).Build(ctx, 160, 90, mesh.NewField(5, 10))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIdentitySingleRowGrid(t *testing.T) {
	b := NewBuilder(16, 1)
	// One vertex row means no complete cell.
	table, err := b.Build(context.Background(), 64, 20, uniformField(1, 4, 5, 5))
	require.NoError(t, err)
	assert.Equal(t, Identity(64, 20).MapX, table.MapX)
}
