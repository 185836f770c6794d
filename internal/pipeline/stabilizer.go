package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"

	"meshstab/internal/debug/timing"
	"meshstab/internal/homography"
	"meshstab/internal/logger"
	"meshstab/internal/mesh"
	"meshstab/internal/opencv/remap"
	"meshstab/internal/opencv/safe"
	"meshstab/internal/smoothing"
)

// ErrEmptySource is returned when the source has no frames at all.
var ErrEmptySource = errors.New("source produced no frames")

type Options struct {
	Mode      smoothing.Mode
	Smoothing smoothing.Params
	Workers   int
}

// Stabilizer drives correspondences through estimation, accumulation,
// smoothing and rendering, in frame order.
type Stabilizer struct {
	opts      Options
	provider  CorrespondenceProvider
	estimator MotionEstimator
	renderer  FrameRenderer
	logger    logger.Logger

	frameObservers      []FrameObserver
	trajectoryObservers []TrajectoryObserver
}

func New(opts Options, provider CorrespondenceProvider, estimator MotionEstimator, renderer FrameRenderer, log logger.Logger) (*Stabilizer, error) {
	if _, err := smoothing.ParseMode(string(opts.Mode)); err != nil {
		return nil, err
	}
	if err := opts.Smoothing.Validate(); err != nil {
		return nil, fmt.Errorf("smoothing: %w", err)
	}
	if provider == nil || estimator == nil || renderer == nil {
		return nil, errors.New("stabilizer needs a correspondence provider, an estimator and a renderer")
	}
	return &Stabilizer{
		opts:      opts,
		provider:  provider,
		estimator: estimator,
		renderer:  renderer,
		logger:    logger.OrNoOp(log),
	}, nil
}

func (s *Stabilizer) AddFrameObserver(o FrameObserver) {
	s.frameObservers = append(s.frameObservers, o)
}

func (s *Stabilizer) AddTrajectoryObserver(o TrajectoryObserver) {
	s.trajectoryObservers = append(s.trajectoryObservers, o)
}

type framePair struct {
	prev, curr *safe.Mat
}

type renderInput struct {
	frame      *safe.Mat
	correction mesh.Field
}

type renderOutput struct {
	frame *safe.Mat
	cells int
}

// run holds the state of one Run or Stream call.
type run struct {
	s       *Stabilizer
	log     logger.Logger
	tracker *timing.Tracker
	stats   Stats

	width, height int
	grid          mesh.Grid

	track    Stage[framePair, mesh.Correspondences]
	estimate Stage[mesh.Correspondences, mesh.Field]
	render   Stage[renderInput, renderOutput]
}

func (s *Stabilizer) newRun(first *safe.Mat, kind string) (*run, error) {
	if err := safe.ValidateFrame(first, "Stabilizer"); err != nil {
		return nil, err
	}
	width, height := first.Size()
	grid, err := s.estimator.Grid(width, height)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	r := &run{
		s:       s,
		log:     logger.With(s.logger, map[string]interface{}{"run_id": id}),
		tracker: timing.NewTracker(),
		stats:   Stats{RunID: id},
		width:   width,
		height:  height,
		grid:    grid,
	}

	r.track = Instrument("track", r.tracker, r.log, func(_ context.Context, p framePair) (mesh.Correspondences, error) {
		return s.provider.Correspondences(p.prev, p.curr)
	})
	r.estimate = Instrument("estimate", r.tracker, r.log, func(ctx context.Context, c mesh.Correspondences) (mesh.Field, error) {
		return s.estimator.Estimate(ctx, c, width, height)
	})
	r.render = Instrument("render", r.tracker, r.log, func(ctx context.Context, in renderInput) (renderOutput, error) {
		frame, cells, err := s.renderer.Render(ctx, in.frame, in.correction)
		return renderOutput{frame: frame, cells: cells}, err
	})

	r.log.Info("Pipeline", kind+" run started", map[string]interface{}{
		"mode":   string(s.opts.Mode),
		"width":  width,
		"height": height,
		"grid":   grid.String(),
	})
	return r, nil
}

// motion estimates the field between prev and curr. Degenerate frames are
// counted and yield a zero field.
func (r *run) motion(ctx context.Context, index int, prev, curr *safe.Mat) (mesh.Field, bool, error) {
	if w, h := curr.Size(); w != r.width || h != r.height {
		return mesh.Field{}, false, fmt.Errorf("frame %d is %dx%d, run is %dx%d: %w",
			index, w, h, r.width, r.height, mesh.ErrShapeMismatch)
	}

	c, err := r.track(ctx, framePair{prev: prev, curr: curr})
	if err != nil {
		return mesh.Field{}, false, fmt.Errorf("frame %d: track: %w", index, err)
	}

	field, err := r.estimate(ctx, c)
	if err != nil {
		if !errors.Is(err, homography.ErrDegenerateCorrespondence) {
			return mesh.Field{}, false, fmt.Errorf("frame %d: estimate: %w", index, err)
		}
		r.stats.Degenerate++
		r.log.Warning("Pipeline", "degenerate correspondences, assuming no motion", map[string]interface{}{
			"frame":  index,
			"points": c.Len(),
		})
		return mesh.NewField(r.grid.Rows, r.grid.Cols), true, nil
	}
	return field, false, nil
}

// emit renders frame, writes it and notifies observers.
func (r *run) emit(ctx context.Context, sink FrameSink, index int, frame *safe.Mat, motion, correction mesh.Field, degenerate bool) error {
	out, err := r.render(ctx, renderInput{frame: frame, correction: correction})
	fallback := false
	if err != nil {
		if !errors.Is(err, remap.ErrFrameFallback) || out.frame == nil {
			return fmt.Errorf("frame %d: render: %w", index, err)
		}
		fallback = true
		r.stats.FrameFallbacks++
		r.log.Warning("Pipeline", "frame passed through unwarped", map[string]interface{}{
			"frame": index,
			"error": err.Error(),
		})
	}
	defer out.frame.Close()

	if out.cells > 0 {
		r.stats.CellFallbacks += out.cells
		r.log.Warning("Pipeline", "cell homographies fell back to identity", map[string]interface{}{
			"frame": index,
			"cells": out.cells,
		})
	}

	if err := sink.WriteFrame(index, out.frame); err != nil {
		return fmt.Errorf("frame %d: write: %w", index, err)
	}

	result := FrameResult{
		Index:      index,
		Original:   frame,
		Stabilized: out.frame,
		Motion:     motion,
		Correction: correction,
		Degenerate: degenerate,
		Fallback:   fallback,
	}
	for _, o := range r.s.frameObservers {
		if err := o.ObserveFrame(result); err != nil {
			return fmt.Errorf("frame %d: observer: %w", index, err)
		}
	}

	r.stats.Frames++
	return nil
}

func (r *run) notifyTrajectories(original, smoothed mesh.Trajectory) error {
	for _, o := range r.s.trajectoryObservers {
		if err := o.ObserveTrajectories(original, smoothed); err != nil {
			return fmt.Errorf("trajectory observer: %w", err)
		}
	}
	return nil
}

func (r *run) finish() Stats {
	r.stats.Timings = r.tracker.Summaries()
	r.stats.log(r.log)
	return r.stats
}

// Run stabilizes src in two passes. The first pass estimates every motion
// field and builds the vertex paths; the paths are smoothed as a whole; the
// second pass rewinds src and renders each frame with its corrective field.
// Frame t is reported with the motion from t to t+1, the last frame repeats
// the final field.
func (s *Stabilizer) Run(ctx context.Context, src RewindableSource, sink FrameSink) (Stats, error) {
	first, err := readFirst(src)
	if err != nil {
		return Stats{}, err
	}
	r, err := s.newRun(first, "offline")
	if err != nil {
		first.Close()
		return Stats{}, err
	}

	acc := mesh.NewAccumulator(r.grid.Rows, r.grid.Cols)
	fields, flags, err := r.collect(ctx, src, first, acc)
	if err != nil {
		return r.finish(), err
	}

	original := acc.Trajectory()
	smoother, err := smoothing.New(s.opts.Mode, s.opts.Smoothing, s.opts.Workers)
	if err != nil {
		return r.finish(), err
	}
	smooth := Instrument("smooth", r.tracker, r.log, func(ctx context.Context, tr mesh.Trajectory) (mesh.Trajectory, error) {
		x, err := smoother.Smooth(ctx, tr.X)
		if err != nil {
			return mesh.Trajectory{}, err
		}
		y, err := smoother.Smooth(ctx, tr.Y)
		if err != nil {
			return mesh.Trajectory{}, err
		}
		return mesh.Trajectory{X: x, Y: y}, nil
	})
	smoothed, err := smooth(ctx, original)
	r.stats.NonFinite = smoother.NonFinite()
	if err != nil {
		return r.finish(), fmt.Errorf("smooth: %w", err)
	}
	if r.stats.NonFinite > 0 {
		r.log.Warning("Pipeline", "non-finite smoothed values replaced", map[string]interface{}{
			"count": r.stats.NonFinite,
		})
	}

	corrective, err := mesh.Corrective(original, smoothed)
	if err != nil {
		return r.finish(), err
	}
	if err := r.notifyTrajectories(original, smoothed); err != nil {
		return r.finish(), err
	}

	motion := mesh.ExtendFields(fields)
	if len(flags) > 0 {
		flags = append(flags, flags[len(flags)-1])
	}

	if err := src.Rewind(); err != nil {
		return r.finish(), fmt.Errorf("rewind: %w", err)
	}
	for index := 0; index < corrective.Len(); index++ {
		if err := ctx.Err(); err != nil {
			return r.finish(), err
		}
		frame, err := src.Next()
		if errors.Is(err, io.EOF) {
			return r.finish(), fmt.Errorf("second pass ended at frame %d of %d: %w",
				index, corrective.Len(), mesh.ErrShapeMismatch)
		}
		if err != nil {
			return r.finish(), fmt.Errorf("read frame %d: %w", index, err)
		}

		m, degenerate := mesh.NewField(r.grid.Rows, r.grid.Cols), false
		if index < len(motion) {
			m, degenerate = motion[index], flags[index]
		}
		err = r.emit(ctx, sink, index, frame, m, corrective.Field(index), degenerate)
		frame.Close()
		if err != nil {
			return r.finish(), err
		}
	}

	if extra, err := src.Next(); err == nil {
		extra.Close()
		return r.finish(), fmt.Errorf("second pass has more than %d frames: %w",
			corrective.Len(), mesh.ErrShapeMismatch)
	} else if !errors.Is(err, io.EOF) {
		return r.finish(), fmt.Errorf("read past frame %d: %w", corrective.Len()-1, err)
	}

	return r.finish(), nil
}

// collect reads every remaining frame after first, appending one motion
// field per consecutive pair to acc. It closes every frame it reads,
// including first.
func (r *run) collect(ctx context.Context, src FrameSource, first *safe.Mat, acc *mesh.Accumulator) ([]mesh.Field, []bool, error) {
	var fields []mesh.Field
	var flags []bool

	prev := first
	defer func() { prev.Close() }()

	for index := 1; ; index++ {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		curr, err := src.Next()
		if errors.Is(err, io.EOF) {
			return fields, flags, nil
		}
		if err != nil {
			return nil, nil, fmt.Errorf("read frame %d: %w", index, err)
		}

		field, degenerate, err := r.motion(ctx, index, prev, curr)
		prev.Close()
		prev = curr
		if err != nil {
			return nil, nil, err
		}
		if err := acc.Append(field); err != nil {
			return nil, nil, fmt.Errorf("frame %d: accumulate: %w", index, err)
		}
		fields = append(fields, field)
		flags = append(flags, degenerate)
	}
}

func readFirst(src FrameSource) (*safe.Mat, error) {
	first, err := src.Next()
	if errors.Is(err, io.EOF) {
		return nil, ErrEmptySource
	}
	if err != nil {
		return nil, fmt.Errorf("read frame 0: %w", err)
	}
	return first, nil
}
