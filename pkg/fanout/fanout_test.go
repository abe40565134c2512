package fanout

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-drivemind/pkg/fatigue"
	"github.com/teslashibe/go-drivemind/pkg/intervention"
	"github.com/teslashibe/go-drivemind/pkg/perception"
	"github.com/teslashibe/go-drivemind/pkg/pipeline"
	"github.com/teslashibe/go-drivemind/pkg/wellness"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client, *Publisher) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return mr, client, New(client, Config{TTL: 10 * time.Second}, nil)
}

func alertResult() pipeline.Result {
	return pipeline.Result{
		Session:  "s-1",
		At:       time.Unix(1700000000, 0).UTC(),
		Identity: "alice",
		Metrics:  fatigue.Metrics{EARAvg: 0.16, PERCLOS: 0.7, Yawn: 3},
		Affect:   perception.Affect{Emotion: "neutral", Stress: 0.3},
		Status: wellness.Status{
			Level:             wellness.LevelHigh,
			NeedsIntervention: true,
			Reasons:           []wellness.Reason{wellness.ReasonHighPERCLOS, wellness.ReasonLowEAR},
		},
		Advisory: &intervention.Advisory{ID: "a-1", Kind: intervention.KindDrowsy, Message: intervention.MessageDrowsy},
	}
}

func TestPublisher_StoresStatusWithTTL(t *testing.T) {
	mr, _, p := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, p.Publish(ctx, alertResult()))

	assert.True(t, mr.Exists("drivemind:status:alice"))
	assert.Equal(t, 10*time.Second, mr.TTL("drivemind:status:alice"))

	snap, err := p.Status(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, wellness.LevelHigh, snap.Level)
	assert.InDelta(t, 0.7, snap.PERCLOS, 1e-9)
	assert.Equal(t, "neutral", snap.Emotion)

	mr.FastForward(11 * time.Second)
	_, err = p.Status(ctx, "alice")
	assert.ErrorIs(t, err, redis.Nil)
}

func TestPublisher_UnknownSubject(t *testing.T) {
	mr, _, p := setupTestRedis(t)
	r := alertResult()
	r.Identity = ""

	require.NoError(t, p.Publish(context.Background(), r))
	assert.True(t, mr.Exists("drivemind:status:unknown"))
}

func TestPublisher_PublishesAlerts(t *testing.T) {
	_, client, p := setupTestRedis(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sub := client.Subscribe(ctx, DefaultChannel)
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	calm := alertResult()
	calm.Status = wellness.Status{}
	calm.Advisory = nil
	require.NoError(t, p.Publish(ctx, calm))
	require.NoError(t, p.Publish(ctx, alertResult()))

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)

	var alert Alert
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &alert))
	assert.NotEmpty(t, alert.ID)
	assert.Equal(t, "alice", alert.Snapshot.Subject)
	assert.Equal(t, wellness.LevelHigh, alert.Snapshot.Level)
	require.NotNil(t, alert.Advisory)
	assert.Equal(t, intervention.KindDrowsy, alert.Advisory.Kind)
}

func TestPublisher_RunPublishesQueuedResults(t *testing.T) {
	mr, _, p := setupTestRedis(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	p.Observe(ctx, alertResult())

	require.Eventually(t, func() bool {
		return mr.Exists("drivemind:status:alice")
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	<-done
}

func TestPublisher_ObserveNeverBlocks(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	var errs []error
	p := New(client, Config{QueueSize: 2}, nil)
	p.OnError = func(err error) { errs = append(errs, err) }

	start := time.Now()
	for i := 0; i < 5; i++ {
		p.Observe(context.Background(), alertResult())
	}

	assert.Less(t, time.Since(start), 100*time.Millisecond)
	require.Len(t, errs, 3)
	for _, err := range errs {
		assert.ErrorIs(t, err, ErrQueueFull)
	}
	assert.False(t, mr.Exists("drivemind:status:alice"), "nothing is written without Run")
}

func TestPublisher_RunSwallowsErrors(t *testing.T) {
	mr, _, p := setupTestRedis(t)
	mr.Close()

	failed := make(chan error, 1)
	p.OnError = func(err error) { failed <- err }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	p.Observe(ctx, alertResult())

	select {
	case err := <-failed:
		assert.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("publish failure was not reported")
	}
	assert.Error(t, p.Ping(context.Background()))
}
