// Package perception defines what the external vision models hand to the
// wellness pipeline for one frame, and the neutral values used when a model
// is missing or fails.
package perception

import (
	"strings"
	"time"

	"github.com/teslashibe/go-drivemind/pkg/landmarks"
)

// Neutral affect used when no emotion model is available or inference fails.
const (
	NeutralEmotion = "neutral"
	NeutralStress  = 0.2
)

// UnknownLabel is the label identity models use for an unresolved face.
const UnknownLabel = "Unknown"

// Box is a face bounding box in pixels with a top-left origin.
type Box struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// Empty reports whether the box has no area.
func (b Box) Empty() bool {
	return b.W <= 0 || b.H <= 0
}

// Affect is the output of the emotion model. Only Stress feeds the decision.
type Affect struct {
	Emotion string  `json:"dominant_emotion"`
	Stress  float64 `json:"stress_score"`
}

// NeutralAffect returns the fallback affect.
func NeutralAffect() Affect {
	return Affect{Emotion: NeutralEmotion, Stress: NeutralStress}
}

// Observation is everything known about one frame.
type Observation struct {
	At    time.Time
	Faces []Box

	// Shapes holds one landmark shape per face, or nothing when the landmark
	// model is unavailable.
	Shapes []landmarks.Shape

	// Identity is the resolved driver, or empty.
	Identity string

	Affect Affect
}

// NormalizeIdentity maps the "Unknown" label and blank names to empty.
func NormalizeIdentity(id string) string {
	id = strings.TrimSpace(id)
	if strings.EqualFold(id, UnknownLabel) {
		return ""
	}
	return id
}

// StressMap converts a dominant emotion to a stress score in [0,1].
var StressMap = map[string]float64{
	"angry":    0.8,
	"fear":     0.8,
	"sad":      0.6,
	"disgust":  0.7,
	"surprise": 0.5,
	"happy":    0.2,
	"neutral":  0.3,
}

// defaultStress is used for emotions missing from StressMap.
const defaultStress = 0.3

// StressFor returns the clipped stress score for emotion.
func StressFor(emotion string) float64 {
	s, ok := StressMap[emotion]
	if !ok {
		s = defaultStress
	}
	return Clamp01(s)
}

// Clamp01 limits v to [0,1].
func Clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
