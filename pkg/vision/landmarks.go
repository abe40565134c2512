package vision

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-drivemind/pkg/landmarks"
	"github.com/teslashibe/go-drivemind/pkg/perception"
)

// DefaultLandmarkInput is the square input side of the landmark regressor.
const DefaultLandmarkInput = 112

// ErrFaceOutOfFrame is returned when a face box does not overlap the frame.
var ErrFaceOutOfFrame = errors.New("vision: face outside frame")

// LandmarkNet regresses 68 points from a face crop. The model outputs 136
// values, x then y per point, normalized to the crop.
type LandmarkNet struct {
	net  gocv.Net
	size int
	mu   sync.Mutex
}

// NewLandmarkNet loads the regressor.
func NewLandmarkNet(modelPath string, inputSize int) (*LandmarkNet, error) {
	if inputSize <= 0 {
		inputSize = DefaultLandmarkInput
	}
	net, err := loadNet(modelPath)
	if err != nil {
		return nil, err
	}
	return &LandmarkNet{net: net, size: inputSize}, nil
}

// Predict fits a shape to face, in frame pixel coordinates.
func (l *LandmarkNet) Predict(img gocv.Mat, face perception.Box) (landmarks.Shape, error) {
	rect := faceRect(face, img.Cols(), img.Rows())
	if rect.Empty() {
		return nil, ErrFaceOutOfFrame
	}

	crop := img.Region(rect)
	defer crop.Close()

	blob := gocv.BlobFromImage(crop, 1.0/255.0, image.Pt(l.size, l.size), gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.net.SetInput(blob, "")
	out := l.net.Forward("")
	defer out.Close()

	data, err := out.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("read landmarks: %w", err)
	}
	return decodeShape(data, rect)
}

// Close releases the network.
func (l *LandmarkNet) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.net.Close()
}

// decodeShape maps crop-normalized outputs into frame pixels.
func decodeShape(data []float32, rect image.Rectangle) (landmarks.Shape, error) {
	if len(data) < 2*landmarks.ShapeSize {
		return nil, fmt.Errorf("%w: model returned %d values", landmarks.ErrShapeSize, len(data))
	}
	w, h := float64(rect.Dx()), float64(rect.Dy())
	shape := make(landmarks.Shape, landmarks.ShapeSize)
	for i := range shape {
		shape[i] = landmarks.Point{
			X: float64(rect.Min.X) + float64(data[2*i])*w,
			Y: float64(rect.Min.Y) + float64(data[2*i+1])*h,
		}
	}
	return shape, nil
}

// NewLandmarkPredictor returns a LandmarkNet, or NoLandmarks if the model
// cannot be loaded.
func NewLandmarkPredictor(modelPath string, logger *slog.Logger) LandmarkPredictor {
	p, err := NewLandmarkNet(modelPath, DefaultLandmarkInput)
	if err != nil {
		logger.Warn("landmark model unavailable, reporting face boxes only", "error", err)
		return NoLandmarks{}
	}
	return p
}
