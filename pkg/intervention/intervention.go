// Package intervention dispatches spoken advisories for alerts, at most once
// per cooldown interval.
package intervention

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-drivemind/pkg/wellness"
)

// Kind identifies which advisory was selected.
type Kind string

const (
	KindDrowsy   Kind = "drowsy"
	KindYawn     Kind = "yawn"
	KindStress   Kind = "stress"
	KindReassure Kind = "reassure"
)

// Advisory messages, one short sentence each.
const (
	MessageDrowsy   = "You seem drowsy. If safe, take a short break or drink water."
	MessageYawn     = "Yawning detected. Consider a quick pause when safe."
	MessageStress   = "Stress is elevated. Breathe steadily and loosen grip."
	MessageReassure = "Maintain safe driving. You're doing fine."
)

// Advisory is one dispatched message.
type Advisory struct {
	ID       string              `json:"id"`
	Kind     Kind                `json:"kind"`
	Message  string              `json:"message"`
	Subject  string              `json:"subject,omitempty"`
	Level    wellness.AlertLevel `json:"alert_level"`
	IssuedAt time.Time           `json:"issued_at"`
}

// Voice delivers an advisory to the driver.
type Voice interface {
	Speak(ctx context.Context, a Advisory) error
}

// Config holds scheduler settings.
type Config struct {
	// Cooldown is the minimum time between two dispatches.
	Cooldown time.Duration
}

// DefaultConfig returns a 90 second cooldown.
func DefaultConfig() Config {
	return Config{Cooldown: 90 * time.Second}
}

// SelectMessage picks the single advisory for a status by priority:
// drowsiness, then yawning, then stress, then a generic reassurance.
func SelectMessage(s wellness.Status) (Kind, string) {
	switch {
	case s.Has(wellness.ReasonHighPERCLOS) || s.Has(wellness.ReasonLowEAR):
		return KindDrowsy, MessageDrowsy
	case s.Has(wellness.ReasonYawn):
		return KindYawn, MessageYawn
	case s.Has(wellness.ReasonHighStress):
		return KindStress, MessageStress
	default:
		return KindReassure, MessageReassure
	}
}

// Scheduler owns the process-wide cooldown state. The cooldown is shared by
// all drivers. It is safe for concurrent use.
type Scheduler struct {
	cfg    Config
	voice  Voice
	logger *slog.Logger

	mu         sync.Mutex
	last       time.Time
	dispatched bool

	// OnSkip is called when an eligible status is suppressed by the cooldown, if set.
	OnSkip func(s wellness.Status)
}

// NewScheduler creates a scheduler that speaks through voice.
func NewScheduler(cfg Config, voice Voice, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cfg:    cfg,
		voice:  voice,
		logger: logger.With("component", "intervention.scheduler"),
	}
}

// MaybeDispatch speaks one advisory for s when it needs intervention and the
// cooldown has elapsed since the last dispatch. A skipped dispatch does not
// reset the timer. Voice failures are logged and otherwise ignored.
func (sc *Scheduler) MaybeDispatch(ctx context.Context, subject string, s wellness.Status, now time.Time) (Advisory, bool) {
	if !s.NeedsIntervention {
		return Advisory{}, false
	}

	sc.mu.Lock()
	if sc.dispatched && now.Sub(sc.last) <= sc.cfg.Cooldown {
		sc.mu.Unlock()
		if sc.OnSkip != nil {
			sc.OnSkip(s)
		}
		return Advisory{}, false
	}
	sc.last = now
	sc.dispatched = true
	sc.mu.Unlock()

	kind, msg := SelectMessage(s)
	a := Advisory{
		ID:       uuid.NewString(),
		Kind:     kind,
		Message:  msg,
		Subject:  subject,
		Level:    s.Level,
		IssuedAt: now,
	}

	if sc.voice != nil {
		if err := sc.voice.Speak(ctx, a); err != nil {
			sc.logger.Warn("advisory not spoken", "kind", kind, "error", err)
		}
	}

	sc.logger.Info("advisory dispatched", "kind", kind, "level", s.Level.String())
	return a, true
}

// lastDispatch returns the time of the last dispatch and whether one happened.
func (sc *Scheduler) lastDispatch() (time.Time, bool) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.last, sc.dispatched
}
