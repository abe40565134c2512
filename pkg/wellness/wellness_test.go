package wellness

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-drivemind/pkg/fatigue"
	"github.com/teslashibe/go-drivemind/pkg/profile"
)

// nominal is a sample with every geometry signal inside the default thresholds.
var nominal = fatigue.Metrics{EARAvg: 0.30, PERCLOS: 0.05, Yawn: 10}

func TestEvaluate_Scenarios(t *testing.T) {
	th := DefaultThresholds()

	tests := []struct {
		name    string
		metrics fatigue.Metrics
		stress  float64
		level   AlertLevel
		reasons []Reason
	}{
		{
			name:    "all nominal",
			metrics: nominal,
			stress:  0.2,
			level:   LevelNone,
			reasons: []Reason{},
		},
		{
			name:    "stress only",
			metrics: nominal,
			stress:  0.75,
			level:   LevelMedium,
			reasons: []Reason{ReasonHighStress},
		},
		{
			name:    "stress at threshold is not high",
			metrics: nominal,
			stress:  0.7,
			level:   LevelNone,
			reasons: []Reason{},
		},
		{
			name:    "perclos well over threshold alone is high",
			metrics: fatigue.Metrics{EARAvg: 0.30, PERCLOS: 0.55, Yawn: 10},
			stress:  0.2,
			level:   LevelHigh,
			reasons: []Reason{ReasonHighPERCLOS},
		},
		{
			name:    "perclos slightly over threshold is medium",
			metrics: fatigue.Metrics{EARAvg: 0.30, PERCLOS: 0.45, Yawn: 10},
			stress:  0.2,
			level:   LevelMedium,
			reasons: []Reason{ReasonHighPERCLOS},
		},
		{
			name:    "two reasons are high",
			metrics: fatigue.Metrics{EARAvg: 0.30, PERCLOS: 0.05, Yawn: 40},
			stress:  0.9,
			level:   LevelHigh,
			reasons: []Reason{ReasonYawn, ReasonHighStress},
		},
		{
			name:    "all reasons in order",
			metrics: fatigue.Metrics{EARAvg: 0.15, PERCLOS: 0.6, Yawn: 40},
			stress:  0.9,
			level:   LevelHigh,
			reasons: []Reason{ReasonHighPERCLOS, ReasonLowEAR, ReasonYawn, ReasonHighStress},
		},
		{
			name:    "no data skips geometry",
			metrics: fatigue.Metrics{NoData: true},
			stress:  0.2,
			level:   LevelNone,
			reasons: []Reason{},
		},
		{
			name:    "no data still checks stress",
			metrics: fatigue.Metrics{NoData: true},
			stress:  0.8,
			level:   LevelMedium,
			reasons: []Reason{ReasonHighStress},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Evaluate(tt.metrics, tt.stress, th)
			assert.Equal(t, tt.level, s.Level)
			assert.Equal(t, tt.reasons, s.Reasons)
			assert.Equal(t, tt.level != LevelNone, s.NeedsIntervention)
		})
	}
}

func TestEvaluate_PERCLOSScenarioFromWindow(t *testing.T) {
	th := Thresholds{EAR: 0.21, PERCLOS: 0.4, Yawn: 28}
	s := Evaluate(fatigue.Metrics{EARAvg: 0.216, PERCLOS: 0.6, Yawn: 5}, 0.2, th)
	assert.True(t, s.Has(ReasonHighPERCLOS))
}

func TestEvaluate_MonotonicInReasons(t *testing.T) {
	th := DefaultThresholds()
	// Each step adds one more matched reason on top of the previous sample.
	steps := []struct {
		m      fatigue.Metrics
		stress float64
	}{
		{nominal, 0.1},
		{fatigue.Metrics{EARAvg: 0.30, PERCLOS: 0.05, Yawn: 40}, 0.1},
		{fatigue.Metrics{EARAvg: 0.30, PERCLOS: 0.05, Yawn: 40}, 0.9},
		{fatigue.Metrics{EARAvg: 0.15, PERCLOS: 0.05, Yawn: 40}, 0.9},
		{fatigue.Metrics{EARAvg: 0.15, PERCLOS: 0.45, Yawn: 40}, 0.9},
	}

	prev := LevelNone
	for i, st := range steps {
		s := Evaluate(st.m, st.stress, th)
		assert.Len(t, s.Reasons, i)
		assert.GreaterOrEqual(t, s.Level, prev, "step %d", i)
		prev = s.Level
	}
}

func TestEvaluate_Deterministic(t *testing.T) {
	m := fatigue.Metrics{EARAvg: 0.19, PERCLOS: 0.3, Yawn: 30}
	a := Evaluate(m, 0.5, DefaultThresholds())
	b := Evaluate(m, 0.5, DefaultThresholds())
	assert.Equal(t, a, b)
}

func TestResolve(t *testing.T) {
	ear, yawn := 0.18, 35.0
	got := Resolve(DefaultThresholds(), profile.Profile{EARThresh: &ear, YawnThresh: &yawn})

	assert.Equal(t, Thresholds{EAR: 0.18, PERCLOS: 0.4, Yawn: 35}, got)
	assert.Equal(t, DefaultThresholds(), Resolve(DefaultThresholds(), profile.Profile{}))
}

func TestStatus_JSON(t *testing.T) {
	s := Status{Level: LevelHigh, NeedsIntervention: true, Reasons: []Reason{ReasonLowEAR, ReasonYawn}}

	data, err := json.Marshal(s)
	require.NoError(t, err)
	assert.JSONEq(t, `{"alert_level":"high","needs_intervention":true,"reasons":["Low EAR","Yawn"]}`, string(data))
	assert.Equal(t, "Low EAR,Yawn", s.JoinedReasons())
}
