package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-drivemind/pkg/eventlog"
	"github.com/teslashibe/go-drivemind/pkg/fatigue"
	"github.com/teslashibe/go-drivemind/pkg/intervention"
	"github.com/teslashibe/go-drivemind/pkg/landmarks"
	"github.com/teslashibe/go-drivemind/pkg/perception"
	"github.com/teslashibe/go-drivemind/pkg/profile"
	"github.com/teslashibe/go-drivemind/pkg/trend"
	"github.com/teslashibe/go-drivemind/pkg/wellness"
)

type countingVoice struct {
	mu    sync.Mutex
	count int
}

func (v *countingVoice) Speak(context.Context, intervention.Advisory) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.count++
	return nil
}

// shapeWith builds a 68-point shape whose eyes have the given EAR and whose
// inner-lip approximation points are yawn pixels apart.
func shapeWith(ear, yawn float64) landmarks.Shape {
	h := 1.5 * ear
	eye := []landmarks.Point{{X: 0, Y: 0}, {X: 1, Y: -h}, {X: 2, Y: -h}, {X: 3, Y: 0}, {X: 2, Y: h}, {X: 1, Y: h}}
	s := make(landmarks.Shape, landmarks.ShapeSize)
	for i, p := range eye {
		s[36+i] = p
		s[42+i] = landmarks.Point{X: p.X + 40, Y: p.Y}
	}
	s[48+2], s[48+3] = landmarks.Point{X: 10, Y: 50}, landmarks.Point{X: 12, Y: 50}
	s[48+8], s[48+9] = landmarks.Point{X: 10, Y: 50 + yawn}, landmarks.Point{X: 12, Y: 50 + yawn}
	return s
}

type fixture struct {
	pipe     *Pipeline
	voice    *countingVoice
	profiles *profile.JSONStore
	trends   *trend.Recorder
	logPath  string
	observed []Result
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()

	f := &fixture{
		voice:    &countingVoice{},
		profiles: profile.Open(filepath.Join(dir, "thresholds.json"), nil),
		trends:   trend.NewRecorder(30 * time.Minute),
		logPath:  filepath.Join(dir, "events.log"),
	}

	f.pipe = New(Config{
		Defaults: wellness.DefaultThresholds(),
		Fatigue:  fatigue.Config{EARThreshold: 0.21, Window: 5 * time.Second, FrameRate: 1},
	}, Deps{
		Profiles:  f.profiles,
		Trends:    f.trends,
		Events:    eventlog.New(eventlog.Config{Path: f.logPath}, nil),
		Scheduler: intervention.NewScheduler(intervention.Config{Cooldown: 90 * time.Second}, f.voice, nil),
		Observers: []Observer{ObserverFunc(func(_ context.Context, r Result) {
			f.observed = append(f.observed, r)
		})},
	}, nil)

	return f
}

func (f *fixture) events(t *testing.T) [][]string {
	t.Helper()
	rows, err := eventlog.Tail(f.logPath, 0)
	require.NoError(t, err)
	return rows
}

func TestProcess_DrowsyDriver(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	t0 := time.Now()

	first := f.pipe.Process(ctx, perception.Observation{
		At:       t0,
		Faces:    []perception.Box{{X: 10, Y: 10, W: 100, H: 100}},
		Shapes:   []landmarks.Shape{shapeWith(0.15, 5)},
		Identity: "alice",
		Affect:   perception.NeutralAffect(),
	})

	assert.Equal(t, wellness.LevelHigh, first.Status.Level)
	assert.Equal(t, []wellness.Reason{wellness.ReasonHighPERCLOS, wellness.ReasonLowEAR}, first.Status.Reasons)
	assert.InDelta(t, 0.15, first.Metrics.EARAvg, 1e-9)
	assert.Equal(t, 1.0, first.Metrics.PERCLOS)
	require.NotNil(t, first.Advisory)
	assert.Equal(t, intervention.KindDrowsy, first.Advisory.Kind)
	assert.Equal(t, 1, first.Faces)

	second := f.pipe.Process(ctx, perception.Observation{
		At:       t0.Add(30 * time.Second),
		Shapes:   []landmarks.Shape{shapeWith(0.15, 5)},
		Identity: "alice",
		Affect:   perception.NeutralAffect(),
	})
	assert.True(t, second.Status.NeedsIntervention)
	assert.Nil(t, second.Advisory, "cooldown suppresses the second advisory")
	assert.Equal(t, 1, f.voice.count)

	rows := f.events(t)
	require.Len(t, rows, 2, "every triggered alert is logged")
	assert.Equal(t, "alice", rows[0][1])
	assert.Equal(t, "high", rows[0][2])
	assert.Equal(t, "High PERCLOS,Low EAR", rows[0][3])

	p := f.profiles.Get("alice")
	require.NotNil(t, p.EARBaseline)
	assert.InDelta(t, 0.15, *p.EARBaseline, 1e-9)

	assert.Equal(t, 2, f.pipe.Summary("alice").Samples)
	assert.Equal(t, []string{"alice"}, f.pipe.Subjects())
	assert.Len(t, f.observed, 2)
}

func TestProcess_NoFaceIsNotAnAlert(t *testing.T) {
	f := newFixture(t)

	res := f.pipe.Process(context.Background(), perception.Observation{
		Affect: perception.NeutralAffect(),
	})

	assert.True(t, res.Metrics.NoData)
	assert.Equal(t, wellness.LevelNone, res.Status.Level)
	assert.False(t, res.At.IsZero())
	assert.Empty(t, f.events(t))
	assert.Equal(t, 1, f.pipe.Summary("").Samples, "no-data samples still feed the trend")
	assert.Equal(t, []string{"unknown"}, f.pipe.Subjects())
	assert.Equal(t, 0, f.voice.count)
}

func TestProcess_StressOnly(t *testing.T) {
	f := newFixture(t)

	res := f.pipe.Process(context.Background(), perception.Observation{
		Shapes:   []landmarks.Shape{shapeWith(0.30, 5)},
		Identity: "Unknown",
		Affect:   perception.Affect{Emotion: "angry", Stress: 0.75},
	})

	assert.Equal(t, "", res.Identity)
	assert.Equal(t, []wellness.Reason{wellness.ReasonHighStress}, res.Status.Reasons)
	assert.Equal(t, wellness.LevelMedium, res.Status.Level)
	require.NotNil(t, res.Advisory)
	assert.Equal(t, intervention.KindStress, res.Advisory.Kind)
	assert.Empty(t, f.profiles.All(), "unresolved identity is never adapted")
	assert.Len(t, f.events(t), 1)
}

func TestProcess_ProfileOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "thresholds.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"bob": {"ear_thresh": 0.1, "yawn_thresh": 50}}`), 0644))

	pipe := New(Config{
		Defaults: wellness.DefaultThresholds(),
		Fatigue:  fatigue.DefaultConfig(),
	}, Deps{
		Profiles: profile.Open(path, nil),
		Trends:   trend.NewRecorder(time.Minute),
	}, nil)

	res := pipe.Process(context.Background(), perception.Observation{
		Shapes:   []landmarks.Shape{shapeWith(0.15, 40)},
		Identity: "bob",
		Affect:   perception.NeutralAffect(),
	})

	assert.Equal(t, wellness.Thresholds{EAR: 0.1, PERCLOS: 0.4, Yawn: 50}, res.Thresholds)
	assert.False(t, res.Status.Has(wellness.ReasonLowEAR))
	assert.False(t, res.Status.Has(wellness.ReasonYawn))
	assert.True(t, res.Status.Has(wellness.ReasonHighPERCLOS), "PERCLOS closure uses the global EAR threshold")
}

func TestProcess_MalformedShapeIsNoData(t *testing.T) {
	f := newFixture(t)

	res := f.pipe.Process(context.Background(), perception.Observation{
		Shapes: []landmarks.Shape{make(landmarks.Shape, 5)},
		Affect: perception.NeutralAffect(),
	})

	assert.True(t, res.Metrics.NoData)
}

func TestLatest(t *testing.T) {
	f := newFixture(t)

	_, ok := f.pipe.Latest()
	assert.False(t, ok)

	f.pipe.Process(context.Background(), perception.Observation{Identity: "alice", Affect: perception.NeutralAffect()})

	latest, ok := f.pipe.Latest()
	require.True(t, ok)
	assert.Equal(t, "alice", latest.Identity)
	assert.Equal(t, f.pipe.Session(), latest.Session)
}
