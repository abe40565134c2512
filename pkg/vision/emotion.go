package vision

import (
	"fmt"
	"image"
	"log/slog"
	"sync"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-drivemind/pkg/perception"
)

// emotionInput is the FER+ input side; the model takes a grayscale face.
const emotionInput = 64

// ferPlusLabels is the FER+ output order, named as perception.StressMap names
// emotions.
var ferPlusLabels = []string{"neutral", "happy", "surprise", "sad", "angry", "disgust", "fear", "contempt"}

// EmotionNet classifies facial expression with a FER+ model.
type EmotionNet struct {
	net gocv.Net
	mu  sync.Mutex
}

// NewEmotionNet loads the classifier.
func NewEmotionNet(modelPath string) (*EmotionNet, error) {
	net, err := loadNet(modelPath)
	if err != nil {
		return nil, err
	}
	return &EmotionNet{net: net}, nil
}

// Classify returns the dominant emotion and its stress score.
func (e *EmotionNet) Classify(img gocv.Mat, face perception.Box) (perception.Affect, error) {
	rect := faceRect(face, img.Cols(), img.Rows())
	if rect.Empty() {
		return perception.NeutralAffect(), ErrFaceOutOfFrame
	}
	crop := img.Region(rect)
	defer crop.Close()

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(crop, &gray, gocv.ColorBGRToGray)

	blob := gocv.BlobFromImage(gray, 1.0, image.Pt(emotionInput, emotionInput), gocv.NewScalar(0, 0, 0, 0), false, false)
	defer blob.Close()

	e.mu.Lock()
	defer e.mu.Unlock()

	e.net.SetInput(blob, "")
	out := e.net.Forward("")
	defer out.Close()

	scores, err := out.DataPtrFloat32()
	if err != nil {
		return perception.NeutralAffect(), fmt.Errorf("read emotion scores: %w", err)
	}
	return affectFromScores(scores), nil
}

// Close releases the network.
func (e *EmotionNet) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.net.Close()
}

// affectFromScores picks the top-scoring label. Short outputs are neutral.
func affectFromScores(scores []float32) perception.Affect {
	if len(scores) < len(ferPlusLabels) {
		return perception.NeutralAffect()
	}
	best := 0
	for i := 1; i < len(ferPlusLabels); i++ {
		if scores[i] > scores[best] {
			best = i
		}
	}
	label := ferPlusLabels[best]
	return perception.Affect{Emotion: label, Stress: perception.StressFor(label)}
}

// NewAffectClassifier returns an EmotionNet, or NeutralAffect if the model
// cannot be loaded.
func NewAffectClassifier(modelPath string, logger *slog.Logger) AffectClassifier {
	e, err := NewEmotionNet(modelPath)
	if err != nil {
		logger.Warn("emotion model unavailable, using neutral affect", "error", err)
		return NeutralAffect{}
	}
	return e
}
