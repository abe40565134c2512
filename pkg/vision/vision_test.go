package vision

import (
	"errors"
	"image"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/teslashibe/go-drivemind/pkg/landmarks"
	"github.com/teslashibe/go-drivemind/pkg/perception"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestFaceRect(t *testing.T) {
	tests := []struct {
		name string
		box  perception.Box
		want image.Rectangle
	}{
		{"inside", perception.Box{X: 10, Y: 20, W: 30, H: 40}, image.Rect(10, 20, 40, 60)},
		{"clipped right", perception.Box{X: 620, Y: 0, W: 50, H: 50}, image.Rect(620, 0, 640, 50)},
		{"negative origin", perception.Box{X: -10, Y: -5, W: 30, H: 30}, image.Rect(0, 0, 20, 25)},
		{"outside", perception.Box{X: 700, Y: 0, W: 10, H: 10}, image.Rectangle{}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := faceRect(tc.box, 640, 480)
			if tc.want.Empty() {
				assert.True(t, got.Empty())
				return
			}
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestDecodeShape(t *testing.T) {
	data := make([]float32, 2*landmarks.ShapeSize)
	data[0], data[1] = 0.5, 0.25
	data[2*67], data[2*67+1] = 1, 1

	shape, err := decodeShape(data, image.Rect(100, 200, 200, 400))
	require.NoError(t, err)
	require.Len(t, shape, landmarks.ShapeSize)
	assert.Equal(t, landmarks.Point{X: 150, Y: 250}, shape[0])
	assert.Equal(t, landmarks.Point{X: 200, Y: 400}, shape[67])

	_, err = decodeShape(data[:10], image.Rect(0, 0, 1, 1))
	assert.ErrorIs(t, err, landmarks.ErrShapeSize)
}

func TestAffectFromScores(t *testing.T) {
	tests := []struct {
		name       string
		scores     []float32
		wantLabel  string
		wantStress float64
	}{
		{"anger", []float32{0.1, 0, 0, 0, 0.9, 0, 0, 0}, "angry", 0.8},
		{"happiness", []float32{0.2, 0.7, 0, 0, 0, 0, 0, 0.1}, "happy", 0.2},
		{"contempt uses default", []float32{0, 0, 0, 0, 0, 0, 0, 1}, "contempt", 0.3},
		{"short output", []float32{1, 2}, perception.NeutralEmotion, perception.NeutralStress},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := affectFromScores(tc.scores)
			assert.Equal(t, tc.wantLabel, got.Emotion)
			assert.InDelta(t, tc.wantStress, got.Stress, 1e-9)
		})
	}
}

func TestMatchDriver(t *testing.T) {
	drivers := []Driver{
		{Name: "alice", Embedding: []float32{1, 0, 0}},
		{Name: "bob", Embedding: []float32{0.9, 0.1, 0}},
		{Name: "carol", Embedding: []float32{0, 1, 0}},
	}

	assert.Equal(t, "alice", matchDriver([]float32{1, 0.05, 0}, drivers, 0.9), "first enrolled match wins")
	assert.Equal(t, "carol", matchDriver([]float32{0, 2, 0}, drivers, 0.9))
	assert.Equal(t, "", matchDriver([]float32{0, 0, 1}, drivers, 0.5))
	assert.Equal(t, "", matchDriver([]float32{1, 0}, drivers, 0.1), "dimension mismatch never matches")
}

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, cosine([]float32{1, 2}, []float32{2, 4}), 1e-9)
	assert.InDelta(t, 0.0, cosine([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.Equal(t, 0.0, cosine([]float32{0, 0}, []float32{1, 1}))
	assert.Equal(t, 0.0, cosine(nil, nil))
}

func TestListDrivers(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"zoe.png", "adam.JPG", "notes.txt", "mia.jpeg"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "old.jpg"), 0o755))

	got, err := listDrivers(dir)
	require.NoError(t, err)

	var names []string
	for _, p := range got {
		names = append(names, p.name)
	}
	assert.Equal(t, []string{"adam", "mia", "zoe"}, names)

	_, err = listDrivers(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestFallbacksWhenModelsMissing(t *testing.T) {
	dir := t.TempDir()

	assert.IsType(t, NoFaces{}, NewFaceDetector(DefaultDetectorConfig(filepath.Join(dir, "x.onnx")), quiet))
	assert.IsType(t, NoLandmarks{}, NewLandmarkPredictor(filepath.Join(dir, "x.onnx"), quiet))
	assert.IsType(t, NoIdentity{}, NewIdentityMatcher(IdentityConfig{DriversDir: dir}, quiet))
	assert.IsType(t, NeutralAffect{}, NewAffectClassifier("", quiet))

	_, err := NewYuNet(DefaultDetectorConfig(filepath.Join(dir, "x.onnx")))
	assert.ErrorIs(t, err, ErrModelNotFound)
}

func TestOpenCamera_Missing(t *testing.T) {
	_, err := OpenCamera(filepath.Join(t.TempDir(), "missing.mp4"))
	assert.ErrorIs(t, err, ErrCameraUnavailable)
}

type fakeDetector struct {
	faces []perception.Box
	err   error
}

func (f fakeDetector) Detect(gocv.Mat) ([]perception.Box, error) { return f.faces, f.err }
func (fakeDetector) Close() error                                { return nil }

type fakeLandmarks struct {
	faces []perception.Box
	err   error
}

func (f *fakeLandmarks) Predict(_ gocv.Mat, b perception.Box) (landmarks.Shape, error) {
	f.faces = append(f.faces, b)
	if f.err != nil {
		return nil, f.err
	}
	return make(landmarks.Shape, landmarks.ShapeSize), nil
}
func (*fakeLandmarks) Close() error { return nil }

type fakeIdentity struct{ name string }

func (f fakeIdentity) Identify(gocv.Mat, perception.Box) (string, error) { return f.name, nil }
func (fakeIdentity) Close() error                                       { return nil }

type failingAffect struct{}

func (failingAffect) Classify(gocv.Mat, perception.Box) (perception.Affect, error) {
	return perception.Affect{Emotion: "angry", Stress: 0.8}, errors.New("inference failed")
}
func (failingAffect) Close() error { return nil }

func TestAnalyzer(t *testing.T) {
	img := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), FrameHeight, FrameWidth, gocv.MatTypeCV8UC3)
	defer img.Close()
	at := time.Unix(1700000000, 0)

	t.Run("first face feeds every model", func(t *testing.T) {
		lm := &fakeLandmarks{}
		a := &Analyzer{
			Detector:  fakeDetector{faces: []perception.Box{{X: 1, Y: 1, W: 50, H: 50}, {X: 300, Y: 1, W: 50, H: 50}}},
			Landmarks: lm,
			Identity:  fakeIdentity{name: "alice"},
			Affect:    NeutralAffect{},
			logger:    quiet,
		}

		obs := a.Analyze(img, at)
		assert.Equal(t, at, obs.At)
		assert.Len(t, obs.Faces, 2)
		require.Len(t, obs.Shapes, 1)
		assert.Equal(t, []perception.Box{{X: 1, Y: 1, W: 50, H: 50}}, lm.faces)
		assert.Equal(t, "alice", obs.Identity)
		assert.Equal(t, perception.NeutralAffect(), obs.Affect)
	})

	t.Run("errors degrade to neutral", func(t *testing.T) {
		a := &Analyzer{
			Detector:  fakeDetector{faces: []perception.Box{{X: 1, Y: 1, W: 50, H: 50}}},
			Landmarks: &fakeLandmarks{err: errors.New("bad crop")},
			Identity:  NoIdentity{},
			Affect:    failingAffect{},
			logger:    quiet,
		}

		obs := a.Analyze(img, at)
		assert.Empty(t, obs.Shapes)
		assert.Empty(t, obs.Identity)
		assert.Equal(t, perception.NeutralAffect(), obs.Affect)
	})

	t.Run("no face", func(t *testing.T) {
		a := &Analyzer{Detector: NoFaces{}, Landmarks: NoLandmarks{}, Identity: NoIdentity{}, Affect: NeutralAffect{}, logger: quiet}

		obs := a.Analyze(img, at)
		assert.Empty(t, obs.Faces)
		assert.Empty(t, obs.Shapes)
		assert.Equal(t, perception.NeutralAffect(), obs.Affect)
		assert.NoError(t, a.Close())
	})
}

func TestBlurFaces(t *testing.T) {
	img := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), 100, 100, gocv.MatTypeCV8UC1)
	defer img.Close()
	img.SetUCharAt(50, 50, 255)
	img.SetUCharAt(5, 5, 255)

	BlurFaces(&img, []perception.Box{{X: 30, Y: 30, W: 40, H: 40}, {X: 500, Y: 500, W: 10, H: 10}})

	assert.Less(t, img.GetUCharAt(50, 50), uint8(255), "face pixel is blurred")
	assert.Equal(t, uint8(255), img.GetUCharAt(5, 5), "pixel outside faces is untouched")
}

func TestEncodeJPEG(t *testing.T) {
	img := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), FrameHeight, FrameWidth, gocv.MatTypeCV8UC3)
	defer img.Close()

	data, err := EncodeJPEG(img)
	require.NoError(t, err)
	require.Greater(t, len(data), 2)
	assert.Equal(t, []byte{0xFF, 0xD8}, data[:2])
}

func TestYuNet_Model(t *testing.T) {
	path := filepath.Join("..", "..", "assets", "models", "face_detection_yunet.onnx")
	if _, err := os.Stat(path); err != nil {
		t.Skip("YuNet model not present")
	}

	d, err := NewYuNet(DefaultDetectorConfig(path))
	require.NoError(t, err)
	defer d.Close()

	img := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), FrameHeight, FrameWidth, gocv.MatTypeCV8UC3)
	defer img.Close()

	faces, err := d.Detect(img)
	require.NoError(t, err)
	assert.Empty(t, faces, "blank frame has no faces")
}
