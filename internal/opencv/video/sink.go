package video

import (
	"fmt"
	"os"
	"path/filepath"

	"gocv.io/x/gocv"

	"meshstab/internal/opencv/safe"
)

// PNGSequence writes frame i to <dir>/<i padded to five digits>.png.
type PNGSequence struct {
	dir string
}

func NewPNGSequence(dir string) (*PNGSequence, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	return &PNGSequence{dir: dir}, nil
}

func (s *PNGSequence) Path(index int) string {
	return filepath.Join(s.dir, fmt.Sprintf("%05d.png", index))
}

func (s *PNGSequence) WriteFrame(index int, frame *safe.Mat) error {
	if err := safe.ValidateMatForOperation(frame, "WriteFrame"); err != nil {
		return err
	}
	path := s.Path(index)
	if !gocv.IMWrite(path, frame.GetMat()) {
		return fmt.Errorf("failed to write %s", path)
	}
	return nil
}

func (s *PNGSequence) Close() error {
	return nil
}

// File encodes frames into a single video container.
type File struct {
	path   string
	writer *gocv.VideoWriter
	width  int
	height int
}

func NewFile(path, codec string, fps float64, width, height int) (*File, error) {
	if len(codec) != 4 {
		return nil, fmt.Errorf("codec must be a four character code, got %q", codec)
	}
	if fps <= 0 {
		return nil, fmt.Errorf("fps must be positive, got %v", fps)
	}
	if err := safe.ValidateDimensions(width, height, "NewFile"); err != nil {
		return nil, err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create output directory: %w", err)
		}
	}

	w, err := gocv.VideoWriterFile(path, codec, fps, width, height, true)
	if err != nil {
		return nil, fmt.Errorf("open writer %s: %w", path, err)
	}
	return &File{path: path, writer: w, width: width, height: height}, nil
}

func (f *File) WriteFrame(_ int, frame *safe.Mat) error {
	if err := safe.ValidateMatForOperation(frame, "WriteFrame"); err != nil {
		return err
	}
	w, h := frame.Size()
	if w != f.width || h != f.height {
		return fmt.Errorf("frame %dx%d does not match writer %dx%d", w, h, f.width, f.height)
	}

	m := frame.GetMat()
	if frame.Channels() == 1 {
		bgr := gocv.NewMat()
		defer bgr.Close()
		gocv.CvtColor(m, &bgr, gocv.ColorGrayToBGR)
		m = bgr
	}
	if err := f.writer.Write(m); err != nil {
		return fmt.Errorf("write %s: %w", f.path, err)
	}
	return nil
}

func (f *File) Close() error {
	return f.writer.Close()
}
