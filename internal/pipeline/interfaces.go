package pipeline

import (
	"context"

	"meshstab/internal/mesh"
	"meshstab/internal/opencv/safe"
)

// FrameSource yields decoded frames in temporal order and io.EOF after the
// last one. The caller owns and closes every returned frame.
type FrameSource interface {
	Next() (*safe.Mat, error)
}

// RewindableSource can restart from the first frame for a second pass.
type RewindableSource interface {
	FrameSource
	Rewind() error
}

// FrameSink receives stabilized frames in order. Frames are closed after
// WriteFrame returns.
type FrameSink interface {
	WriteFrame(index int, frame *safe.Mat) error
}

// CorrespondenceProvider matches points between two consecutive frames.
type CorrespondenceProvider interface {
	Correspondences(prev, curr *safe.Mat) (mesh.Correspondences, error)
}

// MotionEstimator turns one frame pair's correspondences into a motion field.
type MotionEstimator interface {
	Estimate(ctx context.Context, c mesh.Correspondences, width, height int) (mesh.Field, error)
	Grid(width, height int) (mesh.Grid, error)
}

// FrameRenderer warps a frame by a corrective field and finishes it for
// output. See remap.Renderer for the fallback contract.
type FrameRenderer interface {
	Render(ctx context.Context, frame *safe.Mat, correction mesh.Field) (*safe.Mat, int, error)
}

// FrameResult describes one emitted frame. Original and Stabilized are only
// valid during the ObserveFrame call; clone them to keep them.
type FrameResult struct {
	Index      int
	Original   *safe.Mat
	Stabilized *safe.Mat
	Motion     mesh.Field
	Correction mesh.Field
	Degenerate bool
	Fallback   bool
}

type FrameObserver interface {
	ObserveFrame(r FrameResult) error
}

// TrajectoryObserver is notified once per run with the complete paths.
type TrajectoryObserver interface {
	ObserveTrajectories(original, smoothed mesh.Trajectory) error
}
