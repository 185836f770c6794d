package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meshstab/internal/smoothing"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "meshstab.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 16, cfg.PatchSize)
	assert.Equal(t, 300.0, cfg.PropagationRadius)
	assert.Equal(t, smoothing.ModeOnline, cfg.Mode())
	assert.Equal(t, smoothing.DefaultOnlineWindow, cfg.SmoothingParams().WindowSize)
}

func TestLoadWithoutFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	path := writeFile(t, `
patch_size: 32
smoothing:
  mode: offline
  lambda_t: 5
output:
  format: video
  codec: XVID
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 32, cfg.PatchSize)
	assert.Equal(t, smoothing.ModeOffline, cfg.Mode())
	assert.Equal(t, 5.0, cfg.Smoothing.Lambda)
	assert.Equal(t, smoothing.DefaultOfflineWindow, cfg.SmoothingParams().WindowSize)
	assert.Equal(t, "XVID", cfg.Output.Codec)
	// Untouched keys keep their defaults.
	assert.Equal(t, 300.0, cfg.PropagationRadius)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadEnvironmentWinsOverYAML(t *testing.T) {
	path := writeFile(t, "patch_size: 32\n")
	t.Setenv("MESHSTAB_PATCH_SIZE", "8")
	t.Setenv("MESHSTAB_SMOOTHING_WINDOW_SIZE", "12")
	t.Setenv("MESHSTAB_HOMOGRAPHY_BACKEND", "opencv")
	t.Setenv("MESHSTAB_LOG_JSON", "true")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.PatchSize)
	assert.Equal(t, 12, cfg.SmoothingParams().WindowSize)
	assert.Equal(t, BackendOpenCV, cfg.Homography.Backend)
	assert.True(t, cfg.Log.JSON)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "patch_size: [1, 2\n"))
	assert.Error(t, err)

	t.Setenv("MESHSTAB_BORDER", "wide")
	_, err = Load("")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"patch size", func(c *Config) { c.PatchSize = 1 }},
		{"radius", func(c *Config) { c.PropagationRadius = 0 }},
		{"border", func(c *Config) { c.Border = -1 }},
		{"workers", func(c *Config) { c.Workers = -2 }},
		{"mode", func(c *Config) { c.Smoothing.Mode = "batch" }},
		{"lambda", func(c *Config) { c.Smoothing.Lambda = -1 }},
		{"backend", func(c *Config) { c.Homography.Backend = "eigen" }},
		{"confidence", func(c *Config) { c.Homography.Confidence = 1.5 }},
		{"format", func(c *Config) { c.Output.Format = "gif" }},
		{"codec", func(c *Config) { c.Output.Format = FormatVideo; c.Output.Codec = "H264X" }},
		{"fps", func(c *Config) { c.Output.FPS = -1 }},
		{"stride", func(c *Config) { c.Output.PlotStride = 0 }},
		{"log level", func(c *Config) { c.Log.Level = "loud" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := Default()
	cfg.PatchSize = 0
	cfg.Output.Format = "gif"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "patch_size")
	assert.Contains(t, err.Error(), "gif")
}

func TestConversions(t *testing.T) {
	cfg := Default()
	cfg.Workers = 3
	cfg.Homography.Seed = 42

	assert.Equal(t, 3, cfg.Estimator().Workers)
	assert.Equal(t, uint64(42), cfg.RANSAC().Seed)
	assert.Equal(t, cfg.Smoothing.Lambda, cfg.SmoothingParams().Lambda)
}
