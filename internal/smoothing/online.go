package smoothing

import "fmt"

// Session is the causal smoother for a single vertex path. Each Push solves
// over the most recent BufferSize samples, couples the result to the previous
// window through β, and emits the newest smoothed value.
type Session struct {
	p      Params
	window Window

	raw    []float64
	prev   []float64
	last   float64
	pushed int
}

func NewSession(p Params) *Session {
	return &Session{
		p:      p,
		window: NewWindow(p.WindowSize),
		raw:    make([]float64, 0, p.BufferSize),
	}
}

// Push appends sample and returns the smoothed value for its time step. A
// non-finite sample is replaced with the previous one, and a non-finite
// solution with the last emitted value; both are reported with ErrNonFinite
// and the session stays usable.
func (s *Session) Push(sample float64) (float64, error) {
	var err error
	if !finite(sample) {
		err = fmt.Errorf("sample %d: %w", s.pushed, ErrNonFinite)
		sample = 0
		if len(s.raw) > 0 {
			sample = s.raw[len(s.raw)-1]
		}
	}

	slid := false
	if len(s.raw) == s.p.BufferSize {
		copy(s.raw, s.raw[1:])
		s.raw = s.raw[:len(s.raw)-1]
		slid = true
	}
	s.raw = append(s.raw, sample)
	s.pushed++

	var carry []float64
	if s.prev != nil {
		carry = s.prev
		if slid {
			carry = s.prev[1:]
		}
	}

	track := solve(s.raw, carry, s.p, s.window)
	value := track[len(track)-1]

	if !finite(value) {
		err = fmt.Errorf("step %d: %w", s.pushed-1, ErrNonFinite)
		value = s.last
	}
	for t, v := range track {
		if !finite(v) {
			track[t] = s.fallback(t)
		}
	}
	track[len(track)-1] = value

	s.prev = track
	s.last = value
	return value, err
}

// Window returns a copy of the most recently solved buffer window.
func (s *Session) Window() []float64 {
	return append([]float64(nil), s.prev...)
}

func (s *Session) fallback(t int) float64 {
	if finite(s.raw[t]) {
		return s.raw[t]
	}
	return s.last
}

// Online runs a fresh Session over the whole series.
func Online(c []float64, p Params) ([]float64, int) {
	s := NewSession(p)
	out := make([]float64, len(c))
	replaced := 0
	for t, v := range c {
		var err error
		out[t], err = s.Push(v)
		if err != nil {
			replaced++
		}
	}
	return out, replaced
}
