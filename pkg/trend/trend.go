// Package trend keeps a per-driver rolling window of samples for long-horizon summaries.
package trend

import (
	"sort"
	"sync"
	"time"

	"github.com/teslashibe/go-drivemind/pkg/fatigue"
)

// UnknownSubject keys samples that have no resolved identity.
const UnknownSubject = "unknown"

// entry is one buffered sample.
type entry struct {
	at      time.Time
	metrics fatigue.Metrics
	stress  float64
}

// Summary holds arithmetic means over the current window.
type Summary struct {
	EARMean     float64 `json:"ear_mean"`
	PERCLOSMean float64 `json:"perclos_mean"`
	YawnMean    float64 `json:"yawn_mean"`
	StressMean  float64 `json:"stress_mean"`
	Samples     int     `json:"samples"`
}

// series is one subject's samples in time order. Entries before head have
// expired and are reclaimed once they make up more than half the slice.
type series struct {
	entries []entry
	head    int
}

func (s *series) live() []entry {
	return s.entries[s.head:]
}

// expire advances head past entries older than window relative to now.
func (s *series) expire(now time.Time, window time.Duration) {
	for s.head < len(s.entries) && now.Sub(s.entries[s.head].at) > window {
		s.entries[s.head] = entry{}
		s.head++
	}
	if s.head > len(s.entries)/2 {
		n := copy(s.entries, s.entries[s.head:])
		s.entries = s.entries[:n]
		s.head = 0
	}
}

// Recorder holds one time-bounded buffer per subject. It is safe for concurrent
// use; samples for one subject must be recorded in time order.
type Recorder struct {
	window time.Duration

	mu     sync.RWMutex
	series map[string]*series
}

// NewRecorder creates a recorder keeping samples for window.
func NewRecorder(window time.Duration) *Recorder {
	return &Recorder{
		window: window,
		series: make(map[string]*series),
	}
}

// Key maps an identity to its buffer key.
func Key(identity string) string {
	if identity == "" {
		return UnknownSubject
	}
	return identity
}

// Update appends a sample at now, then drops every entry older than the window
// from the front of the subject's buffer.
func (r *Recorder) Update(identity string, m fatigue.Metrics, stress float64, now time.Time) {
	key := Key(identity)

	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.series[key]
	if !ok {
		s = &series{}
		r.series[key] = s
	}
	s.entries = append(s.entries, entry{at: now, metrics: m, stress: stress})
	s.expire(now, r.window)
}

// Summary returns the means over the subject's current buffer, or a zero
// Summary when it is empty.
func (r *Recorder) Summary(identity string) Summary {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.series[Key(identity)]
	if !ok || len(s.live()) == 0 {
		return Summary{}
	}
	buf := s.live()

	var sum Summary
	for _, e := range buf {
		sum.EARMean += e.metrics.EARAvg
		sum.PERCLOSMean += e.metrics.PERCLOS
		sum.YawnMean += e.metrics.Yawn
		sum.StressMean += e.stress
	}
	n := float64(len(buf))
	sum.EARMean /= n
	sum.PERCLOSMean /= n
	sum.YawnMean /= n
	sum.StressMean /= n
	sum.Samples = len(buf)
	return sum
}

// Subjects returns the keys of all non-empty buffers, sorted.
func (r *Recorder) Subjects() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.series))
	for k, s := range r.series {
		if len(s.live()) > 0 {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}
