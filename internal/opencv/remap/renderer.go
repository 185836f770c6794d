package remap

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"meshstab/internal/logger"
	"meshstab/internal/mesh"
	"meshstab/internal/opencv/memory"
	"meshstab/internal/opencv/safe"
	"meshstab/internal/warp"
)

// ErrFrameFallback marks a frame that could not be warped and was passed
// through unchanged.
var ErrFrameFallback = errors.New("frame passed through unwarped")

type Config struct {
	PatchSize int
	// Border is cropped from every side after warping before the frame is
	// scaled back to its original size.
	Border  int
	Workers int
}

// Renderer applies per-frame corrective fields with OpenCV remapping.
type Renderer struct {
	cfg     Config
	builder *warp.Builder
	pool    *memory.Manager
	logger  logger.Logger
}

func NewRenderer(cfg Config, pool *memory.Manager, log logger.Logger) *Renderer {
	if pool == nil {
		pool = memory.NewManager(log)
	}
	return &Renderer{
		cfg:     cfg,
		builder: warp.NewBuilder(cfg.PatchSize, cfg.Workers),
		pool:    pool,
		logger:  logger.OrNoOp(log),
	}
}

// Warp resamples frame through the mesh defined by correction and reports
// how many cells fell back to identity. Shape mismatches and cancellation are
// returned as is; any other failure is wrapped with ErrFrameFallback so the
// caller can substitute the input frame.
func (r *Renderer) Warp(ctx context.Context, frame *safe.Mat, correction mesh.Field) (*safe.Mat, int, error) {
	if err := safe.ValidateFrame(frame, "Warp"); err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrFrameFallback, err)
	}

	width, height := frame.Size()
	table, err := r.builder.Build(ctx, width, height, correction)
	if err != nil {
		if errors.Is(err, mesh.ErrShapeMismatch) || ctx.Err() != nil {
			return nil, 0, err
		}
		return nil, 0, fmt.Errorf("%w: %v", ErrFrameFallback, err)
	}

	mapX, err := r.loadMap(table.MapX, height, width)
	if err != nil {
		return nil, table.CellFallbacks, fmt.Errorf("%w: map x: %v", ErrFrameFallback, err)
	}
	defer r.pool.ReleaseMat(mapX)

	mapY, err := r.loadMap(table.MapY, height, width)
	if err != nil {
		return nil, table.CellFallbacks, fmt.Errorf("%w: map y: %v", ErrFrameFallback, err)
	}
	defer r.pool.ReleaseMat(mapY)

	src := frame.GetMat()
	mx := mapX.GetMat()
	my := mapY.GetMat()
	dst := gocv.NewMat()
	gocv.Remap(src, &dst, &mx, &my, gocv.InterpolationLinear, gocv.BorderConstant, color.RGBA{})

	out, err := safe.Adopt(dst, "warped")
	if err != nil {
		return nil, table.CellFallbacks, fmt.Errorf("%w: %v", ErrFrameFallback, err)
	}
	return out, table.CellFallbacks, nil
}

func (r *Renderer) loadMap(values []float32, rows, cols int) (*safe.Mat, error) {
	m, err := r.pool.GetMat(rows, cols, gocv.MatTypeCV32FC1)
	if err != nil {
		return nil, err
	}

	raw := m.GetMat()
	data, err := raw.DataPtrFloat32()
	if err != nil {
		r.pool.ReleaseMat(m)
		return nil, err
	}
	if len(data) != len(values) {
		r.pool.ReleaseMat(m)
		return nil, fmt.Errorf("map buffer holds %d values, need %d", len(data), len(values))
	}
	copy(data, values)
	return m, nil
}

// Finish crops Border pixels from each side and scales the result back to
// the frame size with bicubic interpolation.
func (r *Renderer) Finish(frame *safe.Mat) (*safe.Mat, error) {
	if err := safe.ValidateMatForOperation(frame, "Finish"); err != nil {
		return nil, err
	}

	width, height := frame.Size()
	if r.cfg.Border == 0 {
		return frame.Clone()
	}
	if 2*r.cfg.Border >= width || 2*r.cfg.Border >= height {
		return nil, fmt.Errorf("border %d too large for %dx%d frame", r.cfg.Border, width, height)
	}

	cropped, err := frame.Crop(image.Rect(r.cfg.Border, r.cfg.Border, width-r.cfg.Border, height-r.cfg.Border))
	if err != nil {
		return nil, err
	}
	defer cropped.Close()

	dst := gocv.NewMat()
	gocv.Resize(cropped.GetMat(), &dst, image.Pt(width, height), 0, 0, gocv.InterpolationCubic)
	return safe.Adopt(dst, "finished")
}

// Render warps and finishes one frame. When warping fails for any reason
// other than a shape mismatch, the input frame is finished unwarped and the
// returned error wraps ErrFrameFallback alongside a valid frame.
func (r *Renderer) Render(ctx context.Context, frame *safe.Mat, correction mesh.Field) (*safe.Mat, int, error) {
	warped, cells, err := r.Warp(ctx, frame, correction)
	if err != nil {
		if !errors.Is(err, ErrFrameFallback) {
			return nil, cells, err
		}
		if safe.ValidateMatForOperation(frame, "Render") != nil {
			return nil, cells, err
		}

		r.logger.Warning("Renderer", "warp failed, passing frame through", map[string]interface{}{
			"error": err.Error(),
		})
		out, ferr := r.Finish(frame)
		if ferr != nil {
			return nil, cells, ferr
		}
		return out, cells, err
	}
	defer warped.Close()

	out, err := r.Finish(warped)
	return out, cells, err
}
