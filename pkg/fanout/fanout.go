// Package fanout mirrors pipeline results to Redis so other services (fleet
// dashboards, dispatch) can follow driver status.
//
// Every result refreshes a short-lived status key per subject. Results that
// need intervention are also published as alerts on a channel. Observe only
// enqueues; Run performs the Redis writes on its own goroutine.
package fanout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/teslashibe/go-drivemind/pkg/intervention"
	"github.com/teslashibe/go-drivemind/pkg/pipeline"
	"github.com/teslashibe/go-drivemind/pkg/trend"
	"github.com/teslashibe/go-drivemind/pkg/wellness"
)

// Defaults.
const (
	DefaultChannel   = "drivemind:alerts"
	DefaultKeyPrefix = "drivemind:status:"
	DefaultTTL       = 30 * time.Second
	DefaultQueueSize = 64
)

// ErrQueueFull is reported when a result is dropped because Run is behind.
var ErrQueueFull = errors.New("fanout: queue full")

// Config holds the Redis names.
type Config struct {
	Channel   string
	KeyPrefix string
	TTL       time.Duration
	// Timeout bounds each Redis round trip.
	Timeout time.Duration
	// QueueSize is how many results may wait for Run.
	QueueSize int
}

func (c *Config) defaults() {
	if c.Channel == "" {
		c.Channel = DefaultChannel
	}
	if c.KeyPrefix == "" {
		c.KeyPrefix = DefaultKeyPrefix
	}
	if c.TTL <= 0 {
		c.TTL = DefaultTTL
	}
	if c.Timeout <= 0 {
		c.Timeout = time.Second
	}
	if c.QueueSize <= 0 {
		c.QueueSize = DefaultQueueSize
	}
}

// Snapshot is the value stored under the status key.
type Snapshot struct {
	Session string              `json:"session"`
	Subject string              `json:"subject"`
	At      time.Time           `json:"at"`
	Level   wellness.AlertLevel `json:"alert_level"`
	Reasons []wellness.Reason   `json:"reasons"`
	EAR     float64             `json:"ear"`
	PERCLOS float64             `json:"perclos"`
	Yawn    float64             `json:"yawn"`
	Stress  float64             `json:"stress"`
	Emotion string              `json:"dominant_emotion"`
	NoFace  bool                `json:"no_face"`
}

// Alert is the message published for samples that need intervention.
type Alert struct {
	ID       string                 `json:"id"`
	Snapshot Snapshot               `json:"snapshot"`
	Advisory *intervention.Advisory `json:"advisory,omitempty"`
}

// Publisher implements pipeline.Observer over a Redis client.
type Publisher struct {
	client redis.UniversalClient
	cfg    Config
	queue  chan pipeline.Result
	logger *slog.Logger

	// OnError is called from Run after a failed publish and from Observe
	// when a result is dropped, if set.
	OnError func(err error)
}

// New creates a publisher. The client is owned by the caller.
func New(client redis.UniversalClient, cfg Config, logger *slog.Logger) *Publisher {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		client: client,
		cfg:    cfg,
		queue:  make(chan pipeline.Result, cfg.QueueSize),
		logger: logger.With("component", "fanout"),
	}
}

// Ping checks connectivity.
func (p *Publisher) Ping(ctx context.Context) error {
	if err := p.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// Observe implements pipeline.Observer. It never blocks: when the queue is
// full the result is dropped.
func (p *Publisher) Observe(_ context.Context, r pipeline.Result) {
	select {
	case p.queue <- r:
	default:
		if r.Status.NeedsIntervention {
			p.logger.Warn("fanout queue full, alert dropped", "subject", trend.Key(r.Identity))
		}
		p.fail(ErrQueueFull)
	}
}

// Run publishes queued results until ctx is done. Failures are logged,
// never returned.
func (p *Publisher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case r := <-p.queue:
			if err := p.Publish(ctx, r); err != nil {
				p.logger.Warn("fanout failed", "error", err)
				p.fail(err)
			}
		}
	}
}

func (p *Publisher) fail(err error) {
	if p.OnError != nil {
		p.OnError(err)
	}
}

// Publish stores the status snapshot and, for alerts, publishes it.
func (p *Publisher) Publish(ctx context.Context, r pipeline.Result) error {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	snap := snapshotOf(r)
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := p.client.Set(ctx, p.Key(snap.Subject), data, p.cfg.TTL).Err(); err != nil {
		return fmt.Errorf("set status: %w", err)
	}

	if !r.Status.NeedsIntervention {
		return nil
	}

	msg, err := json.Marshal(Alert{ID: uuid.NewString(), Snapshot: snap, Advisory: r.Advisory})
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}
	if err := p.client.Publish(ctx, p.cfg.Channel, msg).Err(); err != nil {
		return fmt.Errorf("publish alert: %w", err)
	}
	return nil
}

// Status reads back the latest snapshot for subject. It returns redis.Nil
// when the key has expired.
func (p *Publisher) Status(ctx context.Context, subject string) (Snapshot, error) {
	var snap Snapshot
	data, err := p.client.Get(ctx, p.Key(subject)).Bytes()
	if err != nil {
		return snap, err
	}
	if err := json.Unmarshal(data, &snap); err != nil {
		return snap, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, nil
}

// Key returns the status key for subject.
func (p *Publisher) Key(subject string) string {
	return p.cfg.KeyPrefix + trend.Key(subject)
}

// Channel returns the alert channel.
func (p *Publisher) Channel() string {
	return p.cfg.Channel
}

func snapshotOf(r pipeline.Result) Snapshot {
	return Snapshot{
		Session: r.Session,
		Subject: trend.Key(r.Identity),
		At:      r.At,
		Level:   r.Status.Level,
		Reasons: r.Status.Reasons,
		EAR:     r.Metrics.EARAvg,
		PERCLOS: r.Metrics.PERCLOS,
		Yawn:    r.Metrics.Yawn,
		Stress:  r.Affect.Stress,
		Emotion: r.Affect.Emotion,
		NoFace:  r.Metrics.NoData,
	}
}

var _ pipeline.Observer = (*Publisher)(nil)
