package app

import (
	"context"
	"fmt"

	"meshstab/internal/config"
	"meshstab/internal/opencv/safe"
	"meshstab/internal/opencv/video"
	"meshstab/internal/pipeline"
	"meshstab/internal/shutdown"
)

// OpenSource opens a video file and registers it for shutdown.
func (a *Application) OpenSource(path string) (*video.Capture, error) {
	src, err := video.Open(path)
	if err != nil {
		return nil, err
	}
	a.Register("capture", src)

	w, h := src.Size()
	a.logger.Info("Application", "input opened", map[string]interface{}{
		"path":   path,
		"width":  w,
		"height": h,
		"fps":    src.FPS(),
		"frames": src.FrameCount(),
	})
	return src, nil
}

// OpenSink creates the configured output at path: a directory of PNG frames
// or a single encoded video. A zero configured fps falls back to sourceFPS.
func (a *Application) OpenSink(path string, sourceFPS float64, width, height int) (pipeline.FrameSink, error) {
	out := a.cfg.Output
	switch out.Format {
	case config.FormatVideo:
		fps := out.FPS
		if fps == 0 {
			fps = sourceFPS
		}
		f, err := video.NewFile(path, out.Codec, fps, width, height)
		if err != nil {
			return nil, err
		}
		a.Register("video writer", shutdown.Func(f.Close))
		return f, nil
	default:
		s, err := video.NewPNGSequence(path)
		if err != nil {
			return nil, err
		}
		a.Register("png writer", shutdown.Func(s.Close))
		return s, nil
	}
}

// Stabilize reads input, writes the stabilized frames to output and returns
// the run statistics. stream selects the single causal pass.
func (a *Application) Stabilize(ctx context.Context, input, output string, stream bool) (pipeline.Stats, error) {
	src, err := a.OpenSource(input)
	if err != nil {
		return pipeline.Stats{}, err
	}
	w, h := src.Size()
	sink, err := a.OpenSink(output, src.FPS(), w, h)
	if err != nil {
		return pipeline.Stats{}, err
	}

	var stats pipeline.Stats
	if stream {
		stats, err = a.stabilizer.Stream(ctx, src, sink)
	} else {
		stats, err = a.stabilizer.Run(ctx, src, sink)
	}
	if err != nil {
		return stats, fmt.Errorf("stabilize %s: %w", input, err)
	}
	return stats, nil
}

// Discard is a sink that drops every frame.
type Discard struct{}

func (Discard) WriteFrame(int, *safe.Mat) error {
	return nil
}
