// Package pipeline runs one observation at a time through metric extraction,
// windowed aggregation, the decision engine and the alert side effects.
package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-drivemind/pkg/eventlog"
	"github.com/teslashibe/go-drivemind/pkg/fatigue"
	"github.com/teslashibe/go-drivemind/pkg/intervention"
	"github.com/teslashibe/go-drivemind/pkg/landmarks"
	"github.com/teslashibe/go-drivemind/pkg/perception"
	"github.com/teslashibe/go-drivemind/pkg/profile"
	"github.com/teslashibe/go-drivemind/pkg/trend"
	"github.com/teslashibe/go-drivemind/pkg/wellness"
)

// EventSink records triggered alerts.
type EventSink interface {
	Append(r eventlog.Record)
}

// Observer is notified after every processed sample.
type Observer interface {
	Observe(ctx context.Context, r Result)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, r Result)

// Observe calls f.
func (f ObserverFunc) Observe(ctx context.Context, r Result) { f(ctx, r) }

// Config holds the pipeline settings.
type Config struct {
	Defaults wellness.Thresholds
	Fatigue  fatigue.Config
}

// Deps are the collaborators of a pipeline. Events, Scheduler and Observers
// are optional.
type Deps struct {
	Profiles  profile.Store
	Trends    *trend.Recorder
	Events    EventSink
	Scheduler *intervention.Scheduler
	Observers []Observer
}

// Result is the outcome of processing one observation.
type Result struct {
	Session    string                 `json:"session"`
	At         time.Time              `json:"at"`
	Identity   string                 `json:"identity"`
	Faces      int                    `json:"faces"`
	Metrics    fatigue.Metrics        `json:"metrics"`
	Affect     perception.Affect      `json:"affect"`
	Thresholds wellness.Thresholds    `json:"thresholds"`
	Status     wellness.Status        `json:"status"`
	Advisory   *intervention.Advisory `json:"advisory,omitempty"`
}

// Pipeline processes observations strictly one at a time, in arrival order.
type Pipeline struct {
	cfg     Config
	deps    Deps
	agg     *fatigue.Aggregator
	logger  *slog.Logger
	session string

	mu sync.Mutex

	latestMu sync.RWMutex
	latest   *Result
}

// New creates a pipeline.
func New(cfg Config, deps Deps, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	session := uuid.NewString()
	return &Pipeline{
		cfg:     cfg,
		deps:    deps,
		agg:     fatigue.NewAggregator(cfg.Fatigue),
		logger:  logger.With("component", "pipeline", "session", session),
		session: session,
	}
}

// Process runs one observation through the pipeline.
func (p *Pipeline) Process(ctx context.Context, obs perception.Observation) Result {
	p.mu.Lock()
	defer p.mu.Unlock()

	at := obs.At
	if at.IsZero() {
		at = time.Now()
	}
	identity := perception.NormalizeIdentity(obs.Identity)
	affect := obs.Affect
	affect.Stress = perception.Clamp01(affect.Stress)

	thresholds := wellness.Resolve(p.cfg.Defaults, p.deps.Profiles.Get(identity))

	metrics := p.agg.Update(p.reading(obs))
	p.deps.Trends.Update(identity, metrics, affect.Stress, at)

	status := wellness.Evaluate(metrics, affect.Stress, thresholds)

	res := Result{
		Session:    p.session,
		At:         at,
		Identity:   identity,
		Faces:      len(obs.Faces),
		Metrics:    metrics,
		Affect:     affect,
		Thresholds: thresholds,
		Status:     status,
	}

	if status.NeedsIntervention {
		if p.deps.Events != nil {
			p.deps.Events.Append(eventlog.Record{
				Time:    at,
				Subject: identity,
				Status:  status,
				EAR:     metrics.EARAvg,
				PERCLOS: metrics.PERCLOS,
				Yawn:    metrics.Yawn,
				Stress:  affect.Stress,
			})
		}
		p.deps.Profiles.Adapt(identity, metrics.EARAvg)

		if p.deps.Scheduler != nil {
			if a, ok := p.deps.Scheduler.MaybeDispatch(ctx, identity, status, at); ok {
				res.Advisory = &a
			}
		}

		p.logger.Debug("alert",
			"identity", identity,
			"level", status.Level.String(),
			"reasons", status.JoinedReasons(),
		)
	}

	p.latestMu.Lock()
	latest := res
	p.latest = &latest
	p.latestMu.Unlock()

	for _, o := range p.deps.Observers {
		o.Observe(ctx, res)
	}

	return res
}

// reading extracts metrics from the first face's landmarks, or returns nil
// when there are none or the shape is malformed.
func (p *Pipeline) reading(obs perception.Observation) *landmarks.Reading {
	if len(obs.Shapes) == 0 {
		return nil
	}
	r, err := landmarks.Extract(obs.Shapes[0])
	if err != nil {
		p.logger.Debug("discarding landmarks", "error", err)
		return nil
	}
	return &r
}

// Latest returns the most recent result, if any.
func (p *Pipeline) Latest() (Result, bool) {
	p.latestMu.RLock()
	defer p.latestMu.RUnlock()
	if p.latest == nil {
		return Result{}, false
	}
	return *p.latest, true
}

// Summary returns the trend summary for identity.
func (p *Pipeline) Summary(identity string) trend.Summary {
	return p.deps.Trends.Summary(perception.NormalizeIdentity(identity))
}

// Subjects returns every subject with samples in the trend window.
func (p *Pipeline) Subjects() []string {
	return p.deps.Trends.Subjects()
}

// Session returns the pipeline's session ID.
func (p *Pipeline) Session() string {
	return p.session
}
