package preview

import (
	"image"
	"testing"

	"fyne.io/fyne/v2/test"
	"github.com/stretchr/testify/assert"

	"meshstab/internal/mesh"
	"meshstab/internal/pipeline"
)

func TestStatus(t *testing.T) {
	motion := mesh.NewField(2, 2)
	motion.Set(0, 0, 3, 4)
	r := pipeline.FrameResult{Index: 7, Motion: motion, Correction: mesh.NewField(2, 2)}

	assert.Equal(t, "frame 7  max motion 5.00 px  max correction 0.00 px", Status(r))

	r.Degenerate = true
	assert.Contains(t, Status(r), "no motion estimate")

	r.Fallback = true
	assert.Contains(t, Status(r), "unwarped")
}

func TestViewerShow(t *testing.T) {
	test.NewApp()
	v := NewViewer()
	assert.NotNil(t, v.Container())
	assert.Equal(t, "waiting for frames", v.status.Text)

	a := image.NewGray(image.Rect(0, 0, 4, 3))
	b := image.NewGray(image.Rect(0, 0, 4, 3))
	v.show(a, b, "frame 0")

	assert.Same(t, a, v.original.Image)
	assert.Same(t, b, v.stabilized.Image)
	assert.Equal(t, "frame 0", v.status.Text)
}
