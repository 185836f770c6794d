package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"

	"meshstab/internal/mesh"
	"meshstab/internal/opencv/safe"
	"meshstab/internal/smoothing"
)

// Stream stabilizes src in a single causal pass with one online smoothing
// session per vertex and axis. Frame t is rendered as soon as the motion
// from t-1 to t is known and is reported with that motion; frame 0 carries a
// zero field. The smoothing mode option is ignored.
func (s *Stabilizer) Stream(ctx context.Context, src FrameSource, sink FrameSink) (Stats, error) {
	first, err := readFirst(src)
	if err != nil {
		return Stats{}, err
	}
	r, err := s.newRun(first, "streaming")
	if err != nil {
		first.Close()
		return Stats{}, err
	}

	prev := first
	defer func() { prev.Close() }()

	st, err := newStreamState(r)
	if err != nil {
		return r.finish(), err
	}

	zero := mesh.NewField(r.grid.Rows, r.grid.Cols)
	if err := st.step(ctx, sink, 0, first, zero, false); err != nil {
		return r.finish(), err
	}

	for index := 1; ; index++ {
		if err := ctx.Err(); err != nil {
			return r.finish(), err
		}
		curr, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return r.finish(), fmt.Errorf("read frame %d: %w", index, err)
		}

		field, degenerate, err := r.motion(ctx, index, prev, curr)
		prev.Close()
		prev = curr
		if err != nil {
			return r.finish(), err
		}
		if err := st.acc.Append(field); err != nil {
			return r.finish(), fmt.Errorf("frame %d: accumulate: %w", index, err)
		}
		if err := st.step(ctx, sink, index, curr, field, degenerate); err != nil {
			return r.finish(), err
		}
	}

	if len(s.trajectoryObservers) > 0 {
		smoothed, err := mesh.Stack(r.grid.Rows, r.grid.Cols, st.smoothed)
		if err != nil {
			return r.finish(), err
		}
		if err := r.notifyTrajectories(st.acc.Trajectory(), smoothed); err != nil {
			return r.finish(), err
		}
	}
	return r.finish(), nil
}

type streamState struct {
	r      *run
	acc    *mesh.Accumulator
	x, y   *smoothing.Bank
	push   Stage[mesh.Field, mesh.Field]
	record bool

	smoothed []mesh.Field
}

func newStreamState(r *run) (*streamState, error) {
	opts := r.s.opts
	x, err := smoothing.NewBank(r.grid.Vertices(), opts.Smoothing, opts.Workers)
	if err != nil {
		return nil, err
	}
	y, err := smoothing.NewBank(r.grid.Vertices(), opts.Smoothing, opts.Workers)
	if err != nil {
		return nil, err
	}

	st := &streamState{
		r:      r,
		acc:    mesh.NewAccumulator(r.grid.Rows, r.grid.Cols),
		x:      x,
		y:      y,
		record: len(r.s.trajectoryObservers) > 0,
	}
	st.push = Instrument("smooth", r.tracker, r.log, st.pushSlice)
	return st, nil
}

func (st *streamState) pushSlice(ctx context.Context, latest mesh.Field) (mesh.Field, error) {
	x, nx, err := st.x.Push(ctx, latest.X)
	if err != nil {
		return mesh.Field{}, fmt.Errorf("x axis: %w", err)
	}
	y, ny, err := st.y.Push(ctx, latest.Y)
	if err != nil {
		return mesh.Field{}, fmt.Errorf("y axis: %w", err)
	}
	if replaced := nx + ny; replaced > 0 {
		st.r.stats.NonFinite += int64(replaced)
		st.r.log.Warning("Pipeline", "non-finite smoothed values replaced", map[string]interface{}{
			"frame": st.acc.Len() - 1,
			"count": replaced,
		})
	}
	return mesh.Field{Rows: latest.Rows, Cols: latest.Cols, X: x, Y: y}, nil
}

// step smooths the newest path slice and renders frame with the resulting
// correction.
func (st *streamState) step(ctx context.Context, sink FrameSink, index int, frame *safe.Mat, motion mesh.Field, degenerate bool) error {
	latest := st.acc.Latest()
	smoothed, err := st.push(ctx, latest)
	if err != nil {
		return fmt.Errorf("frame %d: smooth: %w", index, err)
	}
	correction, err := mesh.Sub(smoothed, latest)
	if err != nil {
		return err
	}
	if st.record {
		st.smoothed = append(st.smoothed, smoothed)
	}
	return st.r.emit(ctx, sink, index, frame, motion, correction, degenerate)
}
