// Package vision turns camera frames into perception observations using
// OpenCV models.
//
// Every model sits behind a small interface with a real gocv implementation
// and a neutral fallback. The fallback is chosen once, at construction, when a
// model file is missing or fails to load, so the capture loop never branches
// on model availability.
package vision

import (
	"errors"
	"fmt"
	"image"
	"os"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-drivemind/pkg/landmarks"
	"github.com/teslashibe/go-drivemind/pkg/perception"
)

var (
	// ErrCameraUnavailable is returned when the capture device cannot be opened.
	ErrCameraUnavailable = errors.New("vision: camera unavailable")

	// ErrEndOfStream is returned by Camera.Read once no more frames arrive.
	ErrEndOfStream = errors.New("vision: end of stream")

	// ErrModelNotFound is returned when a model file does not exist.
	ErrModelNotFound = errors.New("vision: model file not found")
)

// FaceDetector finds faces in a BGR frame.
type FaceDetector interface {
	Detect(img gocv.Mat) ([]perception.Box, error)
	Close() error
}

// LandmarkPredictor fits a 68-point shape to one face.
type LandmarkPredictor interface {
	Predict(img gocv.Mat, face perception.Box) (landmarks.Shape, error)
	Close() error
}

// IdentityMatcher names the enrolled driver a face belongs to, or returns "".
type IdentityMatcher interface {
	Identify(img gocv.Mat, face perception.Box) (string, error)
	Close() error
}

// AffectClassifier estimates the dominant emotion of a face.
type AffectClassifier interface {
	Classify(img gocv.Mat, face perception.Box) (perception.Affect, error)
	Close() error
}

// NoFaces is the fallback detector.
type NoFaces struct{}

func (NoFaces) Detect(gocv.Mat) ([]perception.Box, error) { return nil, nil }
func (NoFaces) Close() error                              { return nil }

// NoLandmarks is the fallback predictor; the pipeline then sees face boxes only.
type NoLandmarks struct{}

func (NoLandmarks) Predict(gocv.Mat, perception.Box) (landmarks.Shape, error) { return nil, nil }
func (NoLandmarks) Close() error                                             { return nil }

// NoIdentity is the fallback matcher.
type NoIdentity struct{}

func (NoIdentity) Identify(gocv.Mat, perception.Box) (string, error) { return "", nil }
func (NoIdentity) Close() error                                     { return nil }

// NeutralAffect is the fallback classifier.
type NeutralAffect struct{}

func (NeutralAffect) Classify(gocv.Mat, perception.Box) (perception.Affect, error) {
	return perception.NeutralAffect(), nil
}
func (NeutralAffect) Close() error { return nil }

// requireModel reports ErrModelNotFound for a missing path.
func requireModel(path string) error {
	if path == "" {
		return fmt.Errorf("%w: no path configured", ErrModelNotFound)
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("%w: %s", ErrModelNotFound, path)
	}
	return nil
}

// loadNet reads an ONNX model onto the CPU backend.
func loadNet(path string) (gocv.Net, error) {
	if err := requireModel(path); err != nil {
		return gocv.Net{}, err
	}
	net := gocv.ReadNetFromONNX(path)
	if net.Empty() {
		return gocv.Net{}, fmt.Errorf("vision: failed to load model from %s", path)
	}
	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)
	return net, nil
}

// faceRect clips a box to the frame. The result may be empty.
func faceRect(b perception.Box, cols, rows int) image.Rectangle {
	r := image.Rect(b.X, b.Y, b.X+b.W, b.Y+b.H)
	return r.Intersect(image.Rect(0, 0, cols, rows))
}
