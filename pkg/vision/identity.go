package vision

import (
	"fmt"
	"image"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-drivemind/pkg/perception"
)

// DefaultEmbeddingInput is the square input side of the embedding model.
const DefaultEmbeddingInput = 112

// IdentityConfig configures driver recognition.
type IdentityConfig struct {
	ModelPath string
	// DriversDir holds one enrollment photo per driver, named <driver>.jpg,
	// .jpeg or .png. Photos should be tightly cropped faces.
	DriversDir string
	// Tolerance is the minimum cosine similarity for a match.
	Tolerance float64
}

// Driver is an enrolled face embedding.
type Driver struct {
	Name      string
	Embedding []float32
}

// FaceID matches faces against enrolled drivers by embedding similarity.
type FaceID struct {
	net       gocv.Net
	drivers   []Driver
	tolerance float64
	mu        sync.Mutex
}

// NewFaceID loads the embedding model and enrolls every photo in DriversDir.
// Unreadable photos are skipped with a warning.
func NewFaceID(cfg IdentityConfig, logger *slog.Logger) (*FaceID, error) {
	photos, err := listDrivers(cfg.DriversDir)
	if err != nil {
		return nil, err
	}
	if len(photos) == 0 {
		return nil, fmt.Errorf("vision: no drivers enrolled in %s", cfg.DriversDir)
	}

	net, err := loadNet(cfg.ModelPath)
	if err != nil {
		return nil, err
	}
	f := &FaceID{net: net, tolerance: cfg.Tolerance}

	for _, p := range photos {
		img := gocv.IMRead(p.path, gocv.IMReadColor)
		if img.Empty() {
			img.Close()
			logger.Warn("skipping unreadable driver photo", "path", p.path)
			continue
		}
		emb, err := f.embed(img)
		img.Close()
		if err != nil {
			logger.Warn("skipping driver photo", "path", p.path, "error", err)
			continue
		}
		f.drivers = append(f.drivers, Driver{Name: p.name, Embedding: emb})
	}

	if len(f.drivers) == 0 {
		net.Close()
		return nil, fmt.Errorf("vision: no usable driver photos in %s", cfg.DriversDir)
	}
	logger.Info("drivers enrolled", "count", len(f.drivers))
	return f, nil
}

// Identify returns the first enrolled driver within tolerance, or "".
func (f *FaceID) Identify(img gocv.Mat, face perception.Box) (string, error) {
	rect := faceRect(face, img.Cols(), img.Rows())
	if rect.Empty() {
		return "", ErrFaceOutOfFrame
	}
	crop := img.Region(rect)
	defer crop.Close()

	emb, err := f.embed(crop)
	if err != nil {
		return "", err
	}
	return matchDriver(emb, f.drivers, f.tolerance), nil
}

// Drivers returns the enrolled driver names.
func (f *FaceID) Drivers() []string {
	names := make([]string, len(f.drivers))
	for i, d := range f.drivers {
		names[i] = d.Name
	}
	return names
}

// Close releases the network.
func (f *FaceID) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.net.Close()
}

func (f *FaceID) embed(face gocv.Mat) ([]float32, error) {
	blob := gocv.BlobFromImage(face, 1.0, image.Pt(DefaultEmbeddingInput, DefaultEmbeddingInput), gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	f.mu.Lock()
	defer f.mu.Unlock()

	f.net.SetInput(blob, "")
	out := f.net.Forward("")
	defer out.Close()

	data, err := out.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("read embedding: %w", err)
	}
	// data aliases the Mat, which is closed on return.
	return append([]float32(nil), data...), nil
}

type driverPhoto struct {
	name string
	path string
}

// listDrivers returns enrollment photos sorted by driver name.
func listDrivers(dir string) ([]driverPhoto, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read drivers dir: %w", err)
	}
	var out []driverPhoto
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext != ".jpg" && ext != ".jpeg" && ext != ".png" {
			continue
		}
		out = append(out, driverPhoto{
			name: strings.TrimSuffix(e.Name(), filepath.Ext(e.Name())),
			path: filepath.Join(dir, e.Name()),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out, nil
}

// matchDriver returns the first driver whose similarity reaches tolerance.
func matchDriver(emb []float32, drivers []Driver, tolerance float64) string {
	for _, d := range drivers {
		if cosine(emb, d.Embedding) >= tolerance {
			return d.Name
		}
	}
	return ""
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// NewIdentityMatcher returns a FaceID, or NoIdentity when the model or the
// enrollment photos are missing.
func NewIdentityMatcher(cfg IdentityConfig, logger *slog.Logger) IdentityMatcher {
	f, err := NewFaceID(cfg, logger)
	if err != nil {
		logger.Warn("identity matching unavailable, drivers will be anonymous", "error", err)
		return NoIdentity{}
	}
	return f
}
