// Package config loads drivemind configuration.
//
// Values are resolved in priority order:
//
//	OS environment (highest) -> .env file -> struct defaults
//
// Every variable carries the DRIVEMIND_ prefix, e.g. DRIVEMIND_EAR_THRESHOLD.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/teslashibe/go-drivemind/pkg/fatigue"
	"github.com/teslashibe/go-drivemind/pkg/intervention"
	"github.com/teslashibe/go-drivemind/pkg/wellness"
)

// Config is the top-level configuration. It is loaded once at startup and
// never modified afterwards; components receive only the part they need.
type Config struct {
	LogLevel string `envconfig:"DRIVEMIND_LOG_LEVEL" default:"info" validate:"oneof=debug info warn warning error"`

	Camera    CameraConfig
	Models    ModelConfig
	Storage   StorageConfig
	Detection DetectionConfig
	Voice     VoiceConfig
	Privacy   PrivacyConfig
	Dashboard DashboardConfig
	Fanout    FanoutConfig
}

// CameraConfig selects the frame source.
type CameraConfig struct {
	// Source is a device index ("0") or a file/stream path.
	Source string `envconfig:"DRIVEMIND_CAMERA_SOURCE" default:"0" validate:"required"`
}

// ModelConfig points at the vision model files.
type ModelConfig struct {
	FaceDetector string `envconfig:"DRIVEMIND_FACE_MODEL_PATH" default:"assets/models/face_detection_yunet.onnx"`
	Landmarks    string `envconfig:"DRIVEMIND_LANDMARKS_MODEL_PATH" default:"assets/models/face_landmarks_68.onnx"`
	Identity     string `envconfig:"DRIVEMIND_IDENTITY_MODEL_PATH" default:"assets/models/face_recognition_sface.onnx"`
	Emotion      string `envconfig:"DRIVEMIND_EMOTION_MODEL_PATH" default:"assets/models/emotion_ferplus.onnx"`
	DriversDir   string `envconfig:"DRIVEMIND_DRIVERS_DIR" default:"assets/drivers"`

	// MatchTolerance is the minimum cosine similarity for an identity match.
	MatchTolerance float64 `envconfig:"DRIVEMIND_MATCH_TOLERANCE" default:"0.5" validate:"gt=0,lte=1"`
}

// StorageConfig locates the durable files.
type StorageConfig struct {
	ThresholdsPath string `envconfig:"DRIVEMIND_THRESHOLDS_PATH" default:"data/thresholds.json" validate:"required"`
	EventsLogPath  string `envconfig:"DRIVEMIND_EVENTS_LOG_PATH" default:"data/events.log" validate:"required"`
}

// DetectionConfig holds the fatigue thresholds and windows.
type DetectionConfig struct {
	EARThreshold     float64       `envconfig:"DRIVEMIND_EAR_THRESHOLD" default:"0.21" validate:"gt=0,lt=1"`
	PERCLOSThreshold float64       `envconfig:"DRIVEMIND_PERCLOS_THRESHOLD" default:"0.4" validate:"gt=0,lt=1"`
	YawnThreshold    float64       `envconfig:"DRIVEMIND_YAWN_THRESHOLD" default:"28.0" validate:"gt=0"`
	FatigueWindow    time.Duration `envconfig:"DRIVEMIND_FATIGUE_WINDOW" default:"60s" validate:"gt=0"`
	TrendWindow      time.Duration `envconfig:"DRIVEMIND_TREND_WINDOW" default:"30m" validate:"gt=0"`
	Cooldown         time.Duration `envconfig:"DRIVEMIND_INTERVENTION_COOLDOWN" default:"90s" validate:"gte=0"`
	FrameRate        int           `envconfig:"DRIVEMIND_FRAME_RATE" default:"30" validate:"gt=0"`
}

// VoiceConfig controls spoken advisories.
type VoiceConfig struct {
	Enabled          bool   `envconfig:"DRIVEMIND_ENABLE_VOICE" default:"true"`
	OpenAIAPIKey     string `envconfig:"DRIVEMIND_OPENAI_API_KEY"`
	OpenAIVoice      string `envconfig:"DRIVEMIND_OPENAI_VOICE" default:"shimmer"`
	ElevenLabsAPIKey string `envconfig:"DRIVEMIND_ELEVENLABS_API_KEY"`
	ElevenLabsVoice  string `envconfig:"DRIVEMIND_ELEVENLABS_VOICE_ID"`
}

// PrivacyConfig controls anonymization.
type PrivacyConfig struct {
	BlurFaces     bool `envconfig:"DRIVEMIND_ENABLE_PRIVACY_BLUR" default:"false"`
	AnonymizeLogs bool `envconfig:"DRIVEMIND_PRIVACY_ANONYMIZE_LOGS" default:"true"`
}

// DashboardConfig controls the HTTP dashboard.
type DashboardConfig struct {
	Port string `envconfig:"DRIVEMIND_DASHBOARD_PORT" default:"8501" validate:"required,numeric"`
}

// FanoutConfig enables Redis publication of alerts when Addr is set.
type FanoutConfig struct {
	RedisAddr     string        `envconfig:"DRIVEMIND_REDIS_ADDR"`
	RedisPassword string        `envconfig:"DRIVEMIND_REDIS_PASSWORD"`
	StatusTTL     time.Duration `envconfig:"DRIVEMIND_STATUS_TTL" default:"30s" validate:"gt=0"`
}

// Load reads an optional .env file, then the environment, then validates.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	// Tags carry full variable names; nested structs fall back to them.
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("process env: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field constraints.
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Thresholds returns the global alert thresholds.
func (c *Config) Thresholds() wellness.Thresholds {
	return wellness.Thresholds{
		EAR:     c.Detection.EARThreshold,
		PERCLOS: c.Detection.PERCLOSThreshold,
		Yawn:    c.Detection.YawnThreshold,
	}
}

// Fatigue returns the PERCLOS aggregator settings.
func (c *Config) Fatigue() fatigue.Config {
	return fatigue.Config{
		EARThreshold: c.Detection.EARThreshold,
		Window:       c.Detection.FatigueWindow,
		FrameRate:    c.Detection.FrameRate,
	}
}

// Intervention returns the scheduler settings.
func (c *Config) Intervention() intervention.Config {
	return intervention.Config{Cooldown: c.Detection.Cooldown}
}
