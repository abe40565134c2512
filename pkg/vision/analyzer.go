package vision

import (
	"errors"
	"log/slog"
	"time"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-drivemind/pkg/landmarks"
	"github.com/teslashibe/go-drivemind/pkg/perception"
)

// Models lists the model files. Any that are missing fall back to neutral.
type Models struct {
	FaceDetector   string
	Landmarks      string
	Identity       string
	Emotion        string
	DriversDir     string
	MatchTolerance float64
}

// Analyzer runs the models over one frame. Only the first detected face feeds
// landmarks, identity and affect. Model errors never escape: they degrade to
// the neutral value for that signal.
type Analyzer struct {
	Detector  FaceDetector
	Landmarks LandmarkPredictor
	Identity  IdentityMatcher
	Affect    AffectClassifier

	logger *slog.Logger
}

// NewAnalyzer loads every model, falling back per model.
func NewAnalyzer(m Models, logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "vision.analyzer")

	return &Analyzer{
		Detector:  NewFaceDetector(DefaultDetectorConfig(m.FaceDetector), logger),
		Landmarks: NewLandmarkPredictor(m.Landmarks, logger),
		Identity: NewIdentityMatcher(IdentityConfig{
			ModelPath:  m.Identity,
			DriversDir: m.DriversDir,
			Tolerance:  m.MatchTolerance,
		}, logger),
		Affect: NewAffectClassifier(m.Emotion, logger),
		logger: logger,
	}
}

// Analyze builds the observation for img.
func (a *Analyzer) Analyze(img gocv.Mat, at time.Time) perception.Observation {
	obs := perception.Observation{At: at, Affect: perception.NeutralAffect()}

	faces, err := a.Detector.Detect(img)
	if err != nil {
		a.logger.Debug("face detection failed", "error", err)
		return obs
	}
	obs.Faces = faces
	if len(faces) == 0 {
		return obs
	}
	face := faces[0]

	if shape, err := a.Landmarks.Predict(img, face); err != nil {
		a.logger.Debug("landmark prediction failed", "error", err)
	} else if shape != nil {
		obs.Shapes = []landmarks.Shape{shape}
	}

	if id, err := a.Identity.Identify(img, face); err != nil {
		a.logger.Debug("identity match failed", "error", err)
	} else {
		obs.Identity = id
	}

	if affect, err := a.Affect.Classify(img, face); err != nil {
		a.logger.Debug("emotion classification failed", "error", err)
	} else {
		obs.Affect = affect
	}

	return obs
}

// Close releases every model.
func (a *Analyzer) Close() error {
	return errors.Join(
		a.Detector.Close(),
		a.Landmarks.Close(),
		a.Identity.Close(),
		a.Affect.Close(),
	)
}
