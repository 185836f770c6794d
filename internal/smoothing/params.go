package smoothing

import (
	"errors"
	"fmt"
	"math"
)

// ErrNonFinite reports that a solved value was NaN or infinite and has been
// replaced with the last finite value for that vertex.
var ErrNonFinite = errors.New("non-finite smoothed value")

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

const (
	DefaultOfflineWindow = 6
	DefaultOnlineWindow  = 32

	denominatorEpsilon = 1e-12
)

type Params struct {
	WindowSize int
	Lambda     float64
	Beta       float64
	BufferSize int
	Iterations int
}

func DefaultParams(mode Mode) Params {
	p := Params{
		WindowSize: DefaultOnlineWindow,
		Lambda:     1,
		Beta:       1,
		BufferSize: 100,
		Iterations: 50,
	}
	if mode == ModeOffline {
		p.WindowSize = DefaultOfflineWindow
	}
	return p
}

func (p Params) Validate() error {
	if p.WindowSize < 1 {
		return fmt.Errorf("window size must be at least 1, got %d", p.WindowSize)
	}
	if p.Lambda < 0 || math.IsNaN(p.Lambda) {
		return fmt.Errorf("lambda must be non-negative, got %v", p.Lambda)
	}
	if p.Beta < 0 || math.IsNaN(p.Beta) {
		return fmt.Errorf("beta must be non-negative, got %v", p.Beta)
	}
	if p.BufferSize < 1 {
		return fmt.Errorf("buffer size must be at least 1, got %d", p.BufferSize)
	}
	if p.Iterations < 0 {
		return fmt.Errorf("iterations must be non-negative, got %d", p.Iterations)
	}
	return nil
}

func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeOffline, ModeOnline:
		return Mode(s), nil
	}
	return "", fmt.Errorf("unknown smoothing mode %q", s)
}

func divide(num, den, fallback float64) float64 {
	if math.Abs(den) < denominatorEpsilon {
		return fallback
	}
	return num / den
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
