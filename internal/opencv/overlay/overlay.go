package overlay

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"os"
	"path/filepath"

	"gocv.io/x/gocv"

	"meshstab/internal/mesh"
	"meshstab/internal/opencv/conversion"
	"meshstab/internal/opencv/safe"
)

// ArrowLength is the drawn length, in pixels, of every motion vector.
const ArrowLength = 5

var vectorColor = color.RGBA{R: 255, A: 255}

// DrawMotionField returns a BGR copy of frame with one unit-length line per
// vertex pointing along its motion. Vertices without motion are skipped.
func DrawMotionField(frame *safe.Mat, field mesh.Field, patchSize int) (*safe.Mat, error) {
	if err := safe.ValidateFrame(frame, "DrawMotionField"); err != nil {
		return nil, err
	}

	out, err := conversion.ToBGR(frame)
	if err != nil {
		return nil, err
	}
	canvas := out.GetMat()

	for r := 0; r < field.Rows; r++ {
		for c := 0; c < field.Cols; c++ {
			dx, dy := field.At(r, c)
			norm := math.Hypot(dx, dy)
			if norm == 0 || math.IsNaN(norm) || math.IsInf(norm, 0) {
				continue
			}
			from := image.Pt(c*patchSize, r*patchSize)
			to := image.Pt(
				from.X+int(math.Round(ArrowLength*dx/norm)),
				from.Y+int(math.Round(ArrowLength*dy/norm)),
			)
			gocv.Line(&canvas, from, to, vectorColor, 1)
		}
	}

	return out, nil
}

// Writer stores raw-motion overlays of the input frames and corrective
// overlays of the stabilized frames in two subdirectories of dir.
type Writer struct {
	patchSize int
	rawDir    string
	fixDir    string
}

func NewWriter(dir string, patchSize int) (*Writer, error) {
	w := &Writer{
		patchSize: patchSize,
		rawDir:    filepath.Join(dir, "motion"),
		fixDir:    filepath.Join(dir, "corrective"),
	}
	for _, d := range []string{w.rawDir, w.fixDir} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, fmt.Errorf("create overlay directory: %w", err)
		}
	}
	return w, nil
}

func (w *Writer) Write(index int, original, stabilized *safe.Mat, motion, correction mesh.Field) error {
	if err := w.write(filepath.Join(w.rawDir, name(index)), original, motion); err != nil {
		return err
	}
	return w.write(filepath.Join(w.fixDir, name(index)), stabilized, correction)
}

func (w *Writer) write(path string, frame *safe.Mat, field mesh.Field) error {
	img, err := DrawMotionField(frame, field, w.patchSize)
	if err != nil {
		return err
	}
	defer img.Close()

	if !gocv.IMWrite(path, img.GetMat()) {
		return fmt.Errorf("failed to write %s", path)
	}
	return nil
}

func name(index int) string {
	return fmt.Sprintf("%05d.png", index)
}
