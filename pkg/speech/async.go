package speech

import (
	"context"
	"errors"
	"log/slog"

	"github.com/teslashibe/go-drivemind/pkg/intervention"
)

// ErrBusy is returned by Async.Speak while an advisory is still playing.
var ErrBusy = errors.New("speech: previous advisory still playing")

// Async speaks on a background goroutine so a slow provider never holds up
// frame processing. At most one advisory waits; extras are rejected.
type Async struct {
	voice  intervention.Voice
	queue  chan intervention.Advisory
	logger *slog.Logger
}

// NewAsync wraps voice. Call Run to start speaking.
func NewAsync(voice intervention.Voice, logger *slog.Logger) *Async {
	if logger == nil {
		logger = slog.Default()
	}
	return &Async{
		voice:  voice,
		queue:  make(chan intervention.Advisory, 1),
		logger: logger.With("component", "speech.async"),
	}
}

// Speak queues adv for playback.
func (a *Async) Speak(_ context.Context, adv intervention.Advisory) error {
	select {
	case a.queue <- adv:
		return nil
	default:
		return ErrBusy
	}
}

// Run speaks queued advisories until ctx is done.
func (a *Async) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case adv := <-a.queue:
			if err := a.voice.Speak(ctx, adv); err != nil {
				a.logger.Warn("advisory not spoken", "kind", adv.Kind, "error", err)
			}
		}
	}
}

var _ intervention.Voice = (*Async)(nil)
