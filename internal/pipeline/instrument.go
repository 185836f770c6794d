package pipeline

import (
	"context"

	"meshstab/internal/debug/timing"
	"meshstab/internal/logger"
)

// Stage is one step of the stabilization flow.
type Stage[In, Out any] func(ctx context.Context, in In) (Out, error)

// Instrument wraps a stage so every call is timed under name and logged.
// Errors pass through untouched.
func Instrument[In, Out any](name string, tracker *timing.Tracker, log logger.Logger, stage Stage[In, Out]) Stage[In, Out] {
	log = logger.OrNoOp(log)
	return func(ctx context.Context, in In) (Out, error) {
		tctx := tracker.StartTiming(ctx, name)
		out, err := stage(tctx, in)
		elapsed := tracker.EndTiming(tctx)

		fields := map[string]interface{}{"duration_ms": float64(elapsed.Microseconds()) / 1000}
		if err != nil {
			fields["error"] = err.Error()
		}
		log.Debug(name, "stage finished", fields)
		return out, err
	}
}
