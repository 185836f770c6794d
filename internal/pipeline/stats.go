package pipeline

import (
	"meshstab/internal/debug/timing"
	"meshstab/internal/logger"
)

// Stats summarizes a run. Recoverable failures are counted, never fatal.
type Stats struct {
	RunID          string
	Frames         int
	Degenerate     int
	FrameFallbacks int
	CellFallbacks  int
	NonFinite      int64
	Timings        []timing.Summary
}

func (s Stats) log(log logger.Logger) {
	log.Info("Pipeline", "run complete", map[string]interface{}{
		"frames":          s.Frames,
		"degenerate":      s.Degenerate,
		"frame_fallbacks": s.FrameFallbacks,
		"cell_fallbacks":  s.CellFallbacks,
		"non_finite":      s.NonFinite,
	})
	for _, t := range s.Timings {
		log.Info("Pipeline", "stage timing", map[string]interface{}{
			"stage":      t.Operation,
			"calls":      t.Count,
			"total_ms":   t.Total.Milliseconds(),
			"average_ms": float64(t.Average.Microseconds()) / 1000,
			"max_ms":     float64(t.Max.Microseconds()) / 1000,
		})
	}
}
