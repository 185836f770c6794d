package timing

import (
	"context"
	"sort"
	"sync"
	"time"
)

type timingKey struct{}

type mark struct {
	operation string
	start     time.Time
}

// Summary aggregates every recorded duration of one operation.
type Summary struct {
	Operation string
	Count     int
	Total     time.Duration
	Average   time.Duration
	Max       time.Duration
}

// Tracker collects durations per operation. Start marks travel in the
// context so nested or concurrent stages never share state.
type Tracker struct {
	mu      sync.RWMutex
	timings map[string][]time.Duration
}

func NewTracker() *Tracker {
	return &Tracker{timings: make(map[string][]time.Duration)}
}

// StartTiming derives a context carrying the start time of operation.
func (tt *Tracker) StartTiming(ctx context.Context, operation string) context.Context {
	return context.WithValue(ctx, timingKey{}, mark{operation: operation, start: time.Now()})
}

// EndTiming records the time elapsed since the matching StartTiming and
// returns it. Contexts without a start mark record nothing.
func (tt *Tracker) EndTiming(ctx context.Context) time.Duration {
	m, ok := ctx.Value(timingKey{}).(mark)
	if !ok {
		return 0
	}
	elapsed := time.Since(m.start)

	tt.mu.Lock()
	tt.timings[m.operation] = append(tt.timings[m.operation], elapsed)
	tt.mu.Unlock()

	return elapsed
}

// GetTimings returns a copy of the durations recorded for operation.
func (tt *Tracker) GetTimings(operation string) []time.Duration {
	tt.mu.RLock()
	defer tt.mu.RUnlock()

	if d := tt.timings[operation]; d != nil {
		return append([]time.Duration(nil), d...)
	}
	return nil
}

// Summaries returns one Summary per operation, ordered by name.
func (tt *Tracker) Summaries() []Summary {
	tt.mu.RLock()
	defer tt.mu.RUnlock()

	out := make([]Summary, 0, len(tt.timings))
	for op, durations := range tt.timings {
		s := Summary{Operation: op, Count: len(durations)}
		for _, d := range durations {
			s.Total += d
			s.Max = max(s.Max, d)
		}
		if s.Count > 0 {
			s.Average = s.Total / time.Duration(s.Count)
		}
		out = append(out, s)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Operation < out[j].Operation })
	return out
}
