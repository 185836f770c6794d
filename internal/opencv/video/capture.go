package video

import (
	"fmt"
	"io"
	"sync"

	"gocv.io/x/gocv"

	"meshstab/internal/opencv/safe"
)

// Capture reads decoded frames from a video file and can restart from the
// first frame for a second pass.
type Capture struct {
	path  string
	vc    *gocv.VideoCapture
	mu    sync.Mutex
	index int
}

func Open(path string) (*Capture, error) {
	vc, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("open %s: capture not opened", path)
	}
	return &Capture{path: path, vc: vc}, nil
}

// Next returns the next frame, or io.EOF after the last one.
func (c *Capture) Next() (*safe.Mat, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	m := gocv.NewMat()
	if ok := c.vc.Read(&m); !ok || m.Empty() {
		m.Close()
		return nil, io.EOF
	}

	frame, err := safe.Adopt(m, fmt.Sprintf("frame_%05d", c.index))
	if err != nil {
		return nil, err
	}
	c.index++
	return frame, nil
}

// Rewind seeks back to the first frame. Some containers seek poorly, so the
// file is reopened when the position does not reset.
func (c *Capture) Rewind() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.vc.Set(gocv.VideoCapturePosFrames, 0)
	if c.vc.Get(gocv.VideoCapturePosFrames) == 0 {
		c.index = 0
		return nil
	}

	c.vc.Close()
	vc, err := gocv.VideoCaptureFile(c.path)
	if err != nil {
		return fmt.Errorf("reopen %s: %w", c.path, err)
	}
	c.vc = vc
	c.index = 0
	return nil
}

func (c *Capture) FPS() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.vc.Get(gocv.VideoCaptureFPS)
}

func (c *Capture) FrameCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return int(c.vc.Get(gocv.VideoCaptureFrameCount))
}

func (c *Capture) Size() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return int(c.vc.Get(gocv.VideoCaptureFrameWidth)), int(c.vc.Get(gocv.VideoCaptureFrameHeight))
}

func (c *Capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.vc.Close()
}

// Shutdown lets the capture be registered with the shutdown manager.
func (c *Capture) Shutdown() error {
	return c.Close()
}

// Frames is an in-memory source, used by tests and the preview's loop mode.
type Frames struct {
	frames []*safe.Mat
	next   int
}

// NewFrames takes ownership of frames.
func NewFrames(frames ...*safe.Mat) *Frames {
	return &Frames{frames: frames}
}

// Next returns a clone so the caller may close it independently.
func (f *Frames) Next() (*safe.Mat, error) {
	if f.next >= len(f.frames) {
		return nil, io.EOF
	}
	m, err := f.frames[f.next].Clone()
	if err != nil {
		return nil, err
	}
	f.next++
	return m, nil
}

func (f *Frames) Rewind() error {
	f.next = 0
	return nil
}

func (f *Frames) Close() error {
	safe.CloseAll(f.frames...)
	return nil
}
