package pipeline

import (
	"meshstab/internal/mesh"
	"meshstab/internal/opencv/overlay"
	"meshstab/internal/plot"
)

// OverlayObserver writes motion and corrective vector overlays per frame.
type OverlayObserver struct {
	Writer *overlay.Writer
}

func (o OverlayObserver) ObserveFrame(r FrameResult) error {
	return o.Writer.Write(r.Index, r.Original, r.Stabilized, r.Motion, r.Correction)
}

// PlotObserver renders sampled vertex paths once a run has its trajectories.
type PlotObserver struct {
	Plotter *plot.TrajectoryPlotter
}

func (o PlotObserver) ObserveTrajectories(original, smoothed mesh.Trajectory) error {
	_, err := o.Plotter.PlotTrajectories(original, smoothed)
	return err
}

// FrameObserverFunc adapts a function to FrameObserver.
type FrameObserverFunc func(r FrameResult) error

func (f FrameObserverFunc) ObserveFrame(r FrameResult) error {
	return f(r)
}
