// Package speech delivers advisories to the driver as synthesized audio.
package speech

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/teslashibe/go-drivemind/pkg/intervention"
	"github.com/teslashibe/go-drivemind/pkg/tts"
)

// ErrVoiceUnavailable is returned while the synthesis breaker is open.
var ErrVoiceUnavailable = errors.New("speech: voice unavailable")

// Sink plays synthesized audio, e.g. by forwarding it to the dashboard.
type Sink interface {
	Play(ctx context.Context, a intervention.Advisory, audio *tts.AudioResult) error
}

// BreakerSettings controls when synthesis is short-circuited.
type BreakerSettings struct {
	// ConsecutiveFailures trips the breaker.
	ConsecutiveFailures uint32
	// OpenFor is how long the breaker stays open before a trial request.
	OpenFor time.Duration
}

// DefaultBreakerSettings trips after 3 failures and retries after a minute.
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{ConsecutiveFailures: 3, OpenFor: time.Minute}
}

// Speaker implements intervention.Voice over a TTS provider.
type Speaker struct {
	provider tts.Provider
	sink     Sink
	breaker  *gobreaker.CircuitBreaker[*tts.AudioResult]
	logger   *slog.Logger
}

// NewSpeaker wraps provider in a circuit breaker and plays results on sink.
func NewSpeaker(provider tts.Provider, sink Sink, bs BreakerSettings, logger *slog.Logger) *Speaker {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "speech.speaker")

	cb := gobreaker.NewCircuitBreaker[*tts.AudioResult](gobreaker.Settings{
		Name:        "tts",
		MaxRequests: 1,
		Timeout:     bs.OpenFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= bs.ConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("voice breaker state changed", "from", from.String(), "to", to.String())
		},
	})

	return &Speaker{provider: provider, sink: sink, breaker: cb, logger: logger}
}

// Speak synthesizes the advisory message and hands it to the sink.
func (s *Speaker) Speak(ctx context.Context, a intervention.Advisory) error {
	audio, err := s.breaker.Execute(func() (*tts.AudioResult, error) {
		return s.provider.Synthesize(ctx, a.Message)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return ErrVoiceUnavailable
		}
		return fmt.Errorf("synthesize: %w", err)
	}

	s.logger.Debug("advisory synthesized", "kind", a.Kind, "bytes", len(audio.Audio), "latency", audio.Latency)

	if s.sink == nil {
		return nil
	}
	if err := s.sink.Play(ctx, a, audio); err != nil {
		return fmt.Errorf("play: %w", err)
	}
	return nil
}

// State reports the breaker state ("closed", "open" or "half-open").
func (s *Speaker) State() string {
	return s.breaker.State().String()
}

// Silent implements intervention.Voice by logging the message. It stands in
// when voice output is disabled or no provider is configured.
type Silent struct {
	logger *slog.Logger
}

// NewSilent returns a log-only voice.
func NewSilent(logger *slog.Logger) *Silent {
	if logger == nil {
		logger = slog.Default()
	}
	return &Silent{logger: logger.With("component", "speech.silent")}
}

// Speak logs the advisory.
func (s *Silent) Speak(_ context.Context, a intervention.Advisory) error {
	s.logger.Info("advisory", "kind", a.Kind, "message", a.Message)
	return nil
}

var (
	_ intervention.Voice = (*Speaker)(nil)
	_ intervention.Voice = (*Silent)(nil)
)
