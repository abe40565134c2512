package vision

import (
	"image"
	"log/slog"
	"sync"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-drivemind/pkg/perception"
)

// DetectorConfig configures the YuNet face detector.
type DetectorConfig struct {
	ModelPath        string
	ConfidenceThresh float64
	InputWidth       int
	InputHeight      int
}

// DefaultDetectorConfig sizes the detector for 640x480 frames.
func DefaultDetectorConfig(modelPath string) DetectorConfig {
	return DetectorConfig{
		ModelPath:        modelPath,
		ConfidenceThresh: 0.6,
		InputWidth:       FrameWidth,
		InputHeight:      FrameHeight,
	}
}

// YuNet wraps OpenCV's FaceDetectorYN.
type YuNet struct {
	detector gocv.FaceDetectorYN
	mu       sync.Mutex
}

// NewYuNet loads the detector model.
func NewYuNet(cfg DetectorConfig) (*YuNet, error) {
	if err := requireModel(cfg.ModelPath); err != nil {
		return nil, err
	}

	detector := gocv.NewFaceDetectorYNWithParams(
		cfg.ModelPath,
		"",
		image.Pt(cfg.InputWidth, cfg.InputHeight),
		float32(cfg.ConfidenceThresh),
		0.3,
		5000,
		int(gocv.NetBackendDefault),
		int(gocv.NetTargetCPU),
	)
	return &YuNet{detector: detector}, nil
}

// Detect returns face boxes in pixels, highest score first.
func (d *YuNet) Detect(img gocv.Mat) ([]perception.Box, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if img.Empty() {
		return nil, nil
	}
	d.detector.SetInputSize(image.Pt(img.Cols(), img.Rows()))

	faces := gocv.NewMat()
	defer faces.Close()
	d.detector.Detect(img, &faces)

	// Rows are x, y, w, h, five landmark pairs, then the score.
	boxes := make([]perception.Box, 0, faces.Rows())
	for r := 0; r < faces.Rows(); r++ {
		b := perception.Box{
			X: int(faces.GetFloatAt(r, 0)),
			Y: int(faces.GetFloatAt(r, 1)),
			W: int(faces.GetFloatAt(r, 2)),
			H: int(faces.GetFloatAt(r, 3)),
		}
		if !b.Empty() {
			boxes = append(boxes, b)
		}
	}
	return boxes, nil
}

// Close releases the detector.
func (d *YuNet) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.detector.Close()
	return nil
}

// NewFaceDetector returns YuNet, or NoFaces if the model cannot be loaded.
func NewFaceDetector(cfg DetectorConfig, logger *slog.Logger) FaceDetector {
	d, err := NewYuNet(cfg)
	if err != nil {
		logger.Warn("face detector unavailable, no faces will be reported", "error", err)
		return NoFaces{}
	}
	return d
}
