// Package wellness classifies fatigue and stress signals into an alert level.
//
// Evaluate is a pure function: it holds no state and has no side effects.
// Callers decide what to do with a Status that needs intervention.
package wellness

import (
	"encoding/json"
	"strings"

	"github.com/teslashibe/go-drivemind/pkg/fatigue"
	"github.com/teslashibe/go-drivemind/pkg/profile"
)

// StressThreshold is the fixed stress score above which HighStress is raised.
// It is global and never overridden per driver.
const StressThreshold = 0.7

// highPERCLOSMargin escalates to High on PERCLOS alone when exceeded.
const highPERCLOSMargin = 0.1

// AlertLevel orders alert severity: None < Medium < High.
type AlertLevel int

const (
	// LevelNone means no reason matched.
	LevelNone AlertLevel = iota

	// LevelMedium means a single reason matched.
	LevelMedium

	// LevelHigh means several reasons matched or PERCLOS is well over threshold.
	LevelHigh
)

// String returns the lowercase level name.
func (l AlertLevel) String() string {
	switch l {
	case LevelMedium:
		return "medium"
	case LevelHigh:
		return "high"
	default:
		return "none"
	}
}

// MarshalJSON encodes the level as its name.
func (l AlertLevel) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.String())
}

// UnmarshalJSON decodes a level name. Unknown names decode as LevelNone.
func (l *AlertLevel) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	switch name {
	case "medium":
		*l = LevelMedium
	case "high":
		*l = LevelHigh
	default:
		*l = LevelNone
	}
	return nil
}

// Reason is a matched alert condition.
type Reason string

// Reasons in evaluation order.
const (
	ReasonHighPERCLOS Reason = "High PERCLOS"
	ReasonLowEAR      Reason = "Low EAR"
	ReasonYawn        Reason = "Yawn"
	ReasonHighStress  Reason = "High stress"
)

// Thresholds are the effective limits for one evaluation.
type Thresholds struct {
	EAR     float64 `json:"ear"`
	PERCLOS float64 `json:"perclos"`
	Yawn    float64 `json:"yawn"`
}

// DefaultThresholds returns the global defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{
		EAR:     0.21,
		PERCLOS: 0.4,
		Yawn:    28.0,
	}
}

// Resolve applies the profile's overrides field by field over defaults.
func Resolve(defaults Thresholds, p profile.Profile) Thresholds {
	t := defaults
	if p.EARThresh != nil {
		t.EAR = *p.EARThresh
	}
	if p.PERCLOSThresh != nil {
		t.PERCLOS = *p.PERCLOSThresh
	}
	if p.YawnThresh != nil {
		t.Yawn = *p.YawnThresh
	}
	return t
}

// Status is the outcome of one evaluation.
type Status struct {
	Level             AlertLevel `json:"alert_level"`
	NeedsIntervention bool       `json:"needs_intervention"`
	Reasons           []Reason   `json:"reasons"`
}

// Has reports whether r is among the matched reasons.
func (s Status) Has(r Reason) bool {
	for _, got := range s.Reasons {
		if got == r {
			return true
		}
	}
	return false
}

// JoinedReasons returns the reasons joined by commas.
func (s Status) JoinedReasons() string {
	parts := make([]string, len(s.Reasons))
	for i, r := range s.Reasons {
		parts[i] = string(r)
	}
	return strings.Join(parts, ",")
}

// Evaluate checks every reason independently and derives the alert level.
// Samples flagged NoData never raise geometry reasons (LowEAR, HighPERCLOS,
// Yawn); only stress is checked for them.
func Evaluate(m fatigue.Metrics, stress float64, t Thresholds) Status {
	reasons := make([]Reason, 0, 4)

	if !m.NoData {
		if m.PERCLOS > t.PERCLOS {
			reasons = append(reasons, ReasonHighPERCLOS)
		}
		if m.EARAvg < t.EAR {
			reasons = append(reasons, ReasonLowEAR)
		}
		if m.Yawn > t.Yawn {
			reasons = append(reasons, ReasonYawn)
		}
	}
	if stress > StressThreshold {
		reasons = append(reasons, ReasonHighStress)
	}

	level := LevelNone
	switch {
	case len(reasons) >= 2 || (!m.NoData && m.PERCLOS > t.PERCLOS+highPERCLOSMargin):
		level = LevelHigh
	case len(reasons) >= 1:
		level = LevelMedium
	}

	return Status{
		Level:             level,
		NeedsIntervention: level == LevelMedium || level == LevelHigh,
		Reasons:           reasons,
	}
}
