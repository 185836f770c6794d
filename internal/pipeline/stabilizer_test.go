package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"meshstab/internal/debug/timing"
	"meshstab/internal/homography"
	"meshstab/internal/mesh"
	"meshstab/internal/opencv/remap"
	"meshstab/internal/opencv/safe"
	"meshstab/internal/opencv/video"
	"meshstab/internal/smoothing"
)

const (
	width  = 160
	height = 90
)

func pattern(x, y int) uint8 {
	return uint8((x*7 + y*13 + (x*y)%17) % 251)
}

func grayFrame(t *testing.T, shift int) *safe.Mat {
	t.Helper()
	m := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), height, width, gocv.MatTypeCV8UC1)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			m.SetUCharAt(y, x, pattern(x-shift, y))
		}
	}
	sm, err := safe.Adopt(m, "test")
	require.NoError(t, err)
	return sm
}

func frames(t *testing.T, shifts ...int) *video.Frames {
	t.Helper()
	mats := make([]*safe.Mat, len(shifts))
	for i, s := range shifts {
		mats[i] = grayFrame(t, s)
	}
	src := video.NewFrames(mats...)
	t.Cleanup(func() { src.Close() })
	return src
}

// scripted returns one translated point set per call, in order.
type scripted struct {
	shifts []mesh.Point
	calls  int
}

func (s *scripted) Correspondences(_, _ *safe.Mat) (mesh.Correspondences, error) {
	if s.calls >= len(s.shifts) {
		return mesh.Correspondences{}, fmt.Errorf("unexpected call %d", s.calls)
	}
	d := s.shifts[s.calls]
	s.calls++

	var c mesh.Correspondences
	for y := 5.0; y < height; y += 17 {
		for x := 3.0; x < width; x += 19 {
			c.Source = append(c.Source, mesh.Point{X: x, Y: y})
			c.Destination = append(c.Destination, mesh.Point{X: x + d.X, Y: y + d.Y})
		}
	}
	return c, nil
}

type empty struct{}

func (empty) Correspondences(_, _ *safe.Mat) (mesh.Correspondences, error) {
	return mesh.Correspondences{}, nil
}

// memSink keeps a byte copy of every written frame.
type memSink struct {
	frames [][]byte
	sizes  [][2]int
}

func (s *memSink) WriteFrame(index int, frame *safe.Mat) error {
	if index != len(s.frames) {
		return fmt.Errorf("frame %d written out of order", index)
	}
	w, h := frame.Size()
	s.frames = append(s.frames, frame.GetMat().ToBytes())
	s.sizes = append(s.sizes, [2]int{w, h})
	return nil
}

type trajectories struct {
	original, smoothed mesh.Trajectory
	calls              int
}

func (tr *trajectories) ObserveTrajectories(original, smoothed mesh.Trajectory) error {
	tr.original, tr.smoothed = original, smoothed
	tr.calls++
	return nil
}

func newStabilizer(t *testing.T, mode smoothing.Mode, provider CorrespondenceProvider, border int) *Stabilizer {
	t.Helper()
	est := mesh.NewEstimator(mesh.DefaultEstimatorConfig(), homography.NewRANSAC(homography.DefaultRANSACConfig()))
	renderer := remap.NewRenderer(remap.Config{PatchSize: 16, Border: border, Workers: 2}, nil, nil)
	s, err := New(Options{Mode: mode, Smoothing: smoothing.DefaultParams(mode), Workers: 2}, provider, est, renderer, nil)
	require.NoError(t, err)
	return s
}

func TestRunTranslationEndToEnd(t *testing.T) {
	s := newStabilizer(t, smoothing.ModeOnline, &scripted{shifts: []mesh.Point{{X: 5}}}, 20)

	var results []FrameResult
	s.AddFrameObserver(FrameObserverFunc(func(r FrameResult) error {
		results = append(results, r)
		return nil
	}))
	traj := &trajectories{}
	s.AddTrajectoryObserver(traj)

	sink := &memSink{}
	stats, err := s.Run(context.Background(), frames(t, 0, 5), sink)
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Frames)
	assert.Zero(t, stats.Degenerate)
	assert.Zero(t, stats.FrameFallbacks)
	assert.NotEmpty(t, stats.RunID)
	require.Len(t, sink.frames, 2)
	for _, size := range sink.sizes {
		assert.Equal(t, [2]int{width, height}, size)
	}

	require.Len(t, results, 2)
	motion := results[1].Motion
	require.Equal(t, 5, motion.Rows)
	require.Equal(t, 10, motion.Cols)
	for i := range motion.X {
		assert.InDelta(t, -5, motion.X[i], 1e-6)
		assert.InDelta(t, 0, motion.Y[i], 1e-6)
	}

	// Frame 0 is the reference; frame 1 is pulled back toward it.
	assert.True(t, results[0].Correction.IsZero())
	fix := results[1].Correction
	for i := range fix.X {
		assert.Greater(t, fix.X[i], 0.0)
		assert.LessOrEqual(t, fix.X[i], 5.0+1e-9)
		assert.InDelta(t, fix.X[0], fix.X[i], 1e-9)
		assert.InDelta(t, 0, fix.Y[i], 1e-9)
	}

	assert.Equal(t, 1, traj.calls)
	assert.Equal(t, 2, traj.original.Len())
	assert.Equal(t, 2, traj.smoothed.Len())

	var stages []string
	for _, sum := range stats.Timings {
		stages = append(stages, sum.Operation)
	}
	assert.Equal(t, []string{"estimate", "render", "smooth", "track"}, stages)
}

func TestRunDegenerateFramePassesThrough(t *testing.T) {
	s := newStabilizer(t, smoothing.ModeOnline, empty{}, 0)

	var flagged []bool
	s.AddFrameObserver(FrameObserverFunc(func(r FrameResult) error {
		flagged = append(flagged, r.Degenerate)
		assert.True(t, r.Motion.IsZero())
		assert.True(t, r.Correction.IsZero())
		return nil
	}))

	src := frames(t, 0, 5)
	sink := &memSink{}
	stats, err := s.Run(context.Background(), src, sink)
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Frames)
	assert.Equal(t, 1, stats.Degenerate)
	assert.Equal(t, []bool{true, true}, flagged)

	require.NoError(t, src.Rewind())
	for i := range sink.frames {
		in, err := src.Next()
		require.NoError(t, err)
		assert.Equal(t, in.GetMat().ToBytes(), sink.frames[i], "frame %d", i)
		in.Close()
	}
}

func TestStreamMatchesOnlineRun(t *testing.T) {
	shifts := []mesh.Point{{X: 3, Y: -1}, {X: -2, Y: 2}, {X: 4, Y: 0}, {X: -1, Y: -3}}

	offline := &memSink{}
	_, err := newStabilizer(t, smoothing.ModeOnline, &scripted{shifts: shifts}, 8).
		Run(context.Background(), frames(t, 0, 3, 1, 5, 4), offline)
	require.NoError(t, err)

	streamed := &memSink{}
	s := newStabilizer(t, smoothing.ModeOnline, &scripted{shifts: shifts}, 8)
	traj := &trajectories{}
	s.AddTrajectoryObserver(traj)
	stats, err := s.Stream(context.Background(), frames(t, 0, 3, 1, 5, 4), streamed)
	require.NoError(t, err)

	assert.Equal(t, 5, stats.Frames)
	require.Len(t, streamed.frames, 5)
	for i := range offline.frames {
		assert.Equal(t, offline.frames[i], streamed.frames[i], "frame %d", i)
	}
	assert.Equal(t, 5, traj.smoothed.Len())
}

func TestRunOfflineModeSmoothsWholeSequence(t *testing.T) {
	shifts := []mesh.Point{{X: 2}, {X: -2}, {X: 2}}
	s := newStabilizer(t, smoothing.ModeOffline, &scripted{shifts: shifts}, 0)
	traj := &trajectories{}
	s.AddTrajectoryObserver(traj)

	_, err := s.Run(context.Background(), frames(t, 0, 2, 0, 2), &memSink{})
	require.NoError(t, err)

	var rawVar, smoothVar float64
	raw, smooth := traj.original.X.Series[0], traj.smoothed.X.Series[0]
	for i := 1; i < len(raw); i++ {
		rawVar += (raw[i] - raw[i-1]) * (raw[i] - raw[i-1])
		smoothVar += (smooth[i] - smooth[i-1]) * (smooth[i] - smooth[i-1])
	}
	assert.Less(t, smoothVar, rawVar)
}

type fallbackRenderer struct{}

func (fallbackRenderer) Render(_ context.Context, frame *safe.Mat, _ mesh.Field) (*safe.Mat, int, error) {
	out, err := frame.Clone()
	if err != nil {
		return nil, 0, err
	}
	return out, 2, fmt.Errorf("%w: synthetic", remap.ErrFrameFallback)
}

func TestStreamCountsFallbacks(t *testing.T) {
	est := mesh.NewEstimator(mesh.DefaultEstimatorConfig(), homography.NewRANSAC(homography.DefaultRANSACConfig()))
	p := smoothing.DefaultParams(smoothing.ModeOnline)
	s, err := New(Options{Mode: smoothing.ModeOnline, Smoothing: p}, &scripted{shifts: []mesh.Point{{X: 1}, {X: 1}}}, est, fallbackRenderer{}, nil)
	require.NoError(t, err)

	var fallbacks int
	s.AddFrameObserver(FrameObserverFunc(func(r FrameResult) error {
		if r.Fallback {
			fallbacks++
		}
		return nil
	}))

	stats, err := s.Stream(context.Background(), frames(t, 0, 1, 2), &memSink{})
	require.NoError(t, err)
	assert.Equal(t, 3, stats.FrameFallbacks)
	assert.Equal(t, 6, stats.CellFallbacks)
	assert.Equal(t, 3, fallbacks)
}

func TestRunRejectsFrameSizeChange(t *testing.T) {
	small, err := safe.Adopt(gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), 48, 64, gocv.MatTypeCV8UC1), "small")
	require.NoError(t, err)
	src := video.NewFrames(grayFrame(t, 0), small)
	defer src.Close()

	s := newStabilizer(t, smoothing.ModeOnline, empty{}, 0)
	_, err = s.Run(context.Background(), src, &memSink{})
	assert.ErrorIs(t, err, mesh.ErrShapeMismatch)
}

func TestRunEmptySource(t *testing.T) {
	s := newStabilizer(t, smoothing.ModeOnline, empty{}, 0)
	_, err := s.Run(context.Background(), video.NewFrames(), &memSink{})
	assert.ErrorIs(t, err, ErrEmptySource)

	_, err = s.Stream(context.Background(), video.NewFrames(), &memSink{})
	assert.ErrorIs(t, err, ErrEmptySource)
}

func TestRunSingleFrame(t *testing.T) {
	s := newStabilizer(t, smoothing.ModeOffline, empty{}, 0)
	sink := &memSink{}
	stats, err := s.Run(context.Background(), frames(t, 0), sink)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Frames)
	assert.Len(t, sink.frames, 1)
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := newStabilizer(t, smoothing.ModeOnline, &scripted{shifts: []mesh.Point{{X: 1}}}, 0)
	_, err := s.Run(ctx, frames(t, 0, 1), &memSink{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewValidatesOptions(t *testing.T) {
	est := mesh.NewEstimator(mesh.DefaultEstimatorConfig(), homography.NewRANSAC(homography.DefaultRANSACConfig()))
	r := remap.NewRenderer(remap.Config{PatchSize: 16}, nil, nil)
	p := smoothing.DefaultParams(smoothing.ModeOnline)

	_, err := New(Options{Mode: "batch", Smoothing: p}, empty{}, est, r, nil)
	assert.Error(t, err)

	bad := p
	bad.WindowSize = 0
	_, err = New(Options{Mode: smoothing.ModeOnline, Smoothing: bad}, empty{}, est, r, nil)
	assert.Error(t, err)

	_, err = New(Options{Mode: smoothing.ModeOnline, Smoothing: p}, nil, est, r, nil)
	assert.Error(t, err)
}

func TestInstrumentRecordsTiming(t *testing.T) {
	tracker := timing.NewTracker()
	boom := errors.New("boom")

	stage := Instrument("double", tracker, nil, func(_ context.Context, n int) (int, error) {
		time.Sleep(time.Millisecond)
		if n < 0 {
			return 0, boom
		}
		return 2 * n, nil
	})

	out, err := stage(context.Background(), 4)
	require.NoError(t, err)
	assert.Equal(t, 8, out)

	_, err = stage(context.Background(), -1)
	assert.ErrorIs(t, err, boom)

	timings := tracker.GetTimings("double")
	require.Len(t, timings, 2)
	assert.GreaterOrEqual(t, timings[0], time.Millisecond)
}
