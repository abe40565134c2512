// Package fatigue aggregates per-frame eye readings into windowed drowsiness metrics.
package fatigue

import (
	"time"

	"github.com/teslashibe/go-drivemind/pkg/landmarks"
)

// Config holds the aggregator settings.
type Config struct {
	// EARThreshold is the EAR below which a sample counts as eyes closed.
	EARThreshold float64

	// Window is the PERCLOS time window.
	Window time.Duration

	// FrameRate is the assumed sample rate used to size the window.
	FrameRate int
}

// DefaultConfig returns a 60 second window at 30 fps with a 0.21 EAR threshold.
func DefaultConfig() Config {
	return Config{
		EARThreshold: 0.21,
		Window:       60 * time.Second,
		FrameRate:    30,
	}
}

// Capacity returns the window length in samples: window seconds times frame rate, at least 1.
func (c Config) Capacity() int {
	n := int(c.Window.Seconds() * float64(c.FrameRate))
	if n < 1 {
		return 1
	}
	return n
}

// Metrics are the windowed fatigue metrics for one sample.
type Metrics struct {
	EARAvg  float64 `json:"ear_avg"`
	PERCLOS float64 `json:"perclos"`
	Yawn    float64 `json:"yawn"`

	// NoData marks a sample without landmarks. Its zero values mean
	// "not observed", not "eyes open".
	NoData bool `json:"no_data,omitempty"`
}

// Aggregator maintains the EAR window and derives PERCLOS.
// It is not safe for concurrent use; samples must arrive in order.
type Aggregator struct {
	window *EarWindow
}

// NewAggregator creates an aggregator from cfg.
func NewAggregator(cfg Config) *Aggregator {
	return &Aggregator{
		window: NewEarWindow(cfg.Capacity(), cfg.EARThreshold),
	}
}

// Update folds one reading into the window. A nil reading means no landmarks
// were available and yields zero-valued metrics flagged NoData; the window is
// left untouched.
func (a *Aggregator) Update(r *landmarks.Reading) Metrics {
	if r == nil {
		return Metrics{NoData: true}
	}

	a.window.Push(r.EAR)

	return Metrics{
		EARAvg:  a.window.Mean(),
		PERCLOS: a.window.PERCLOS(),
		Yawn:    r.Yawn,
	}
}

// Window exposes the underlying EAR window for inspection.
func (a *Aggregator) Window() *EarWindow {
	return a.window
}
