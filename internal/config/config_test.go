package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := `
storage:
  endpoint: minio.example.com:9000
  access_key: AKIA
  secret_key: shh
  source_bucket: traps
  source_prefix: 2026/
  dest_bucket: candidates
  dest_prefix: review/
tiler:
  tile_size: 512
detector:
  backend: ollama
  model: qwen2.5vl
  min_confidence: 0.4
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "minio.example.com:9000", cfg.Storage.Endpoint)
	assert.Equal(t, "traps", cfg.Storage.SourceBucket)
	assert.Equal(t, "review/", cfg.Storage.DestPrefix)
	assert.Equal(t, 512, cfg.Tiler.TileSize)
	assert.Equal(t, "ollama", cfg.Detector.Backend)
	assert.Equal(t, 0.4, cfg.Detector.MinConfidence)

	// Unset fields keep their defaults
	assert.Equal(t, Default().Tiler.Quality, cfg.Tiler.Quality)
	assert.Equal(t, Default().Tiler.IndexDigits, cfg.Tiler.IndexDigits)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("TILE_ANNOTATOR_STORAGE_ENDPOINT", "env.example.com:9000")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "env.example.com:9000", cfg.Storage.Endpoint)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing endpoint", func(c *Config) { c.Storage.Endpoint = "" }},
		{"missing source bucket", func(c *Config) { c.Storage.SourceBucket = "" }},
		{"source equals destination", func(c *Config) {
			c.Storage.DestBucket = c.Storage.SourceBucket
			c.Storage.DestPrefix = c.Storage.SourcePrefix
		}},
		{"zero tile size", func(c *Config) { c.Tiler.TileSize = 0 }},
		{"index digits too large", func(c *Config) { c.Tiler.IndexDigits = 9 }},
		{"quality out of range", func(c *Config) { c.Tiler.Quality = 101 }},
		{"unknown backend", func(c *Config) { c.Detector.Backend = "grpc" }},
		{"missing model", func(c *Config) { c.Detector.Model = "" }},
		{"confidence out of range", func(c *Config) { c.Detector.MinConfidence = 1.5 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
