package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noEnvFile(t *testing.T) string {
	return filepath.Join(t.TempDir(), "missing.env")
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(noEnvFile(t))
	require.NoError(t, err)

	assert.Equal(t, "0", cfg.Camera.Source)
	assert.Equal(t, "data/thresholds.json", cfg.Storage.ThresholdsPath)
	assert.Equal(t, "data/events.log", cfg.Storage.EventsLogPath)
	assert.Equal(t, "assets/drivers", cfg.Models.DriversDir)
	assert.True(t, cfg.Voice.Enabled)
	assert.False(t, cfg.Privacy.BlurFaces)
	assert.True(t, cfg.Privacy.AnonymizeLogs)
	assert.Equal(t, "8501", cfg.Dashboard.Port)

	th := cfg.Thresholds()
	assert.InDelta(t, 0.21, th.EAR, 1e-9)
	assert.InDelta(t, 0.4, th.PERCLOS, 1e-9)
	assert.InDelta(t, 28.0, th.Yawn, 1e-9)

	f := cfg.Fatigue()
	assert.Equal(t, 60*time.Second, f.Window)
	assert.Equal(t, 30, f.FrameRate)
	assert.Equal(t, 90*time.Second, cfg.Intervention().Cooldown)
	assert.Equal(t, 30*time.Minute, cfg.Detection.TrendWindow)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("DRIVEMIND_EAR_THRESHOLD", "0.18")
	t.Setenv("DRIVEMIND_INTERVENTION_COOLDOWN", "2m")
	t.Setenv("DRIVEMIND_ENABLE_VOICE", "false")
	t.Setenv("DRIVEMIND_REDIS_ADDR", "localhost:6379")

	cfg, err := Load(noEnvFile(t))
	require.NoError(t, err)

	assert.InDelta(t, 0.18, cfg.Detection.EARThreshold, 1e-9)
	assert.Equal(t, 2*time.Minute, cfg.Detection.Cooldown)
	assert.False(t, cfg.Voice.Enabled)
	assert.Equal(t, "localhost:6379", cfg.Fanout.RedisAddr)
}

func TestLoad_EnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("DRIVEMIND_DASHBOARD_PORT=9000\nDRIVEMIND_YAWN_THRESHOLD=31.5\n"), 0o644))
	t.Cleanup(func() {
		os.Unsetenv("DRIVEMIND_DASHBOARD_PORT")
		os.Unsetenv("DRIVEMIND_YAWN_THRESHOLD")
	})

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Dashboard.Port)
	assert.InDelta(t, 31.5, cfg.Detection.YawnThreshold, 1e-9)
}

func TestLoad_Invalid(t *testing.T) {
	tests := map[string]string{
		"DRIVEMIND_EAR_THRESHOLD":     "1.5",
		"DRIVEMIND_PERCLOS_THRESHOLD": "0",
		"DRIVEMIND_FRAME_RATE":        "0",
		"DRIVEMIND_DASHBOARD_PORT":    "http",
		"DRIVEMIND_LOG_LEVEL":         "verbose",
	}
	for key, value := range tests {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			_, err := Load(noEnvFile(t))
			assert.ErrorContains(t, err, "invalid config")
		})
	}

	t.Run("unparsable", func(t *testing.T) {
		t.Setenv("DRIVEMIND_FATIGUE_WINDOW", "soon")
		_, err := Load(noEnvFile(t))
		assert.ErrorContains(t, err, "process env")
	})
}
