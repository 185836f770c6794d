package smoothing

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"meshstab/internal/mesh"
)

// Smoother applies one smoothing mode independently to every vertex series of
// a trajectory tensor, spreading vertices over a bounded worker pool.
type Smoother struct {
	mode      Mode
	params    Params
	workers   int
	nonFinite atomic.Int64
}

func New(mode Mode, params Params, workers int) (*Smoother, error) {
	if _, err := ParseMode(string(mode)); err != nil {
		return nil, err
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Smoother{mode: mode, params: params, workers: workers}, nil
}

func (s *Smoother) Mode() Mode {
	return s.mode
}

// NonFinite is the running total of substituted values.
func (s *Smoother) NonFinite() int64 {
	return s.nonFinite.Load()
}

// Smooth returns a new tensor of the same shape. Substitutions are counted in
// NonFinite and do not fail the call.
func (s *Smoother) Smooth(ctx context.Context, t mesh.Tensor) (mesh.Tensor, error) {
	out := mesh.Tensor{Rows: t.Rows, Cols: t.Cols, Series: make([][]float64, len(t.Series))}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, series := range t.Series {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			var replaced int
			switch s.mode {
			case ModeOffline:
				out.Series[i], replaced = Offline(series, s.params)
			default:
				out.Series[i], replaced = Online(series, s.params)
			}
			s.nonFinite.Add(int64(replaced))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return mesh.Tensor{}, fmt.Errorf("smoothing %dx%d tensor: %w", t.Rows, t.Cols, err)
	}
	return out, nil
}

// Bank holds one online Session per vertex for streaming use.
type Bank struct {
	sessions  []*Session
	workers   int
	nonFinite atomic.Int64
}

func NewBank(vertices int, params Params, workers int) (*Bank, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	b := &Bank{sessions: make([]*Session, vertices), workers: workers}
	for i := range b.sessions {
		b.sessions[i] = NewSession(params)
	}
	return b, nil
}

func (b *Bank) NonFinite() int64 {
	return b.nonFinite.Load()
}

// Push feeds one time slice, one value per vertex in row-major order, and
// returns the smoothed slice together with the number of substitutions made.
// A bank whose Push failed has sessions at different steps and must not be
// reused.
func (b *Bank) Push(ctx context.Context, slice []float64) ([]float64, int, error) {
	if len(slice) != len(b.sessions) {
		return nil, 0, fmt.Errorf("slice of %d values for %d sessions: %w",
			len(slice), len(b.sessions), mesh.ErrShapeMismatch)
	}

	out := make([]float64, len(slice))
	var replaced atomic.Int64

	chunk := (len(slice) + b.workers - 1) / b.workers
	g, ctx := errgroup.WithContext(ctx)
	for lo := 0; lo < len(slice); lo += chunk {
		hi := min(lo+chunk, len(slice))
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			for i := lo; i < hi; i++ {
				v, err := b.sessions[i].Push(slice[i])
				if err != nil {
					if !errors.Is(err, ErrNonFinite) {
						return err
					}
					replaced.Add(1)
				}
				out[i] = v
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}

	n := replaced.Load()
	b.nonFinite.Add(n)
	return out, int(n), nil
}
