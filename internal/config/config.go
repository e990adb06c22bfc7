package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds the application configuration. Storage credentials are
// carried here explicitly and injected into the pipeline; nothing reads
// a process-wide client profile.
type Config struct {
	Storage  StorageConfig  `mapstructure:"storage"`
	Tiler    TilerConfig    `mapstructure:"tiler"`
	Detector DetectorConfig `mapstructure:"detector"`
	WorkDir  string         `mapstructure:"work_dir"`
}

// StorageConfig holds configuration for the remote object collections
type StorageConfig struct {
	Endpoint     string `mapstructure:"endpoint"`
	AccessKey    string `mapstructure:"access_key"`
	SecretKey    string `mapstructure:"secret_key"`
	UseSSL       bool   `mapstructure:"use_ssl"`
	SourceBucket string `mapstructure:"source_bucket"`
	SourcePrefix string `mapstructure:"source_prefix"`
	DestBucket   string `mapstructure:"dest_bucket"`
	DestPrefix   string `mapstructure:"dest_prefix"`
}

// TilerConfig holds configuration for tile cropping and validation
type TilerConfig struct {
	TileSize    int `mapstructure:"tile_size"`
	IndexDigits int `mapstructure:"index_digits"`
	Quality     int `mapstructure:"quality"`
}

// DetectorConfig holds configuration for the external detector backend
type DetectorConfig struct {
	Backend       string  `mapstructure:"backend"` // infer or ollama
	URL           string  `mapstructure:"url"`
	Model         string  `mapstructure:"model"`
	MinConfidence float64 `mapstructure:"min_confidence"`
}

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Storage: StorageConfig{
			Endpoint:     "localhost:9000",
			UseSSL:       false,
			SourceBucket: "raw-images",
			SourcePrefix: "incoming/",
			DestBucket:   "annotation-candidates",
			DestPrefix:   "pending/",
		},
		Tiler: TilerConfig{
			TileSize:    1024,
			IndexDigits: 2,
			Quality:     95,
		},
		Detector: DetectorConfig{
			Backend:       "infer",
			URL:           "",
			Model:         "sticky-trap-universal",
			MinConfidence: 0.25,
		},
		WorkDir: "",
	}
}

// Load reads configuration from a yaml file and the environment.
// Environment variables use the TILE_ANNOTATOR prefix, e.g.
// TILE_ANNOTATOR_STORAGE_ACCESS_KEY.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}
	v.SetEnvPrefix("TILE_ANNOTATOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := Default()
	setDefaults(v, cfg)

	if err := v.ReadInConfig(); err != nil {
		// A missing file is fine when no explicit path was given;
		// defaults plus environment take over.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("storage.endpoint", cfg.Storage.Endpoint)
	v.SetDefault("storage.use_ssl", cfg.Storage.UseSSL)
	v.SetDefault("storage.source_bucket", cfg.Storage.SourceBucket)
	v.SetDefault("storage.source_prefix", cfg.Storage.SourcePrefix)
	v.SetDefault("storage.dest_bucket", cfg.Storage.DestBucket)
	v.SetDefault("storage.dest_prefix", cfg.Storage.DestPrefix)
	v.SetDefault("tiler.tile_size", cfg.Tiler.TileSize)
	v.SetDefault("tiler.index_digits", cfg.Tiler.IndexDigits)
	v.SetDefault("tiler.quality", cfg.Tiler.Quality)
	v.SetDefault("detector.backend", cfg.Detector.Backend)
	v.SetDefault("detector.model", cfg.Detector.Model)
	v.SetDefault("detector.min_confidence", cfg.Detector.MinConfidence)
	v.SetDefault("work_dir", cfg.WorkDir)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Storage.Endpoint == "" {
		return fmt.Errorf("storage.endpoint must be set")
	}

	if c.Storage.SourceBucket == "" || c.Storage.DestBucket == "" {
		return fmt.Errorf("storage.source_bucket and storage.dest_bucket must be set")
	}

	if c.Storage.SourceBucket == c.Storage.DestBucket && c.Storage.SourcePrefix == c.Storage.DestPrefix {
		return fmt.Errorf("source and destination collections must differ")
	}

	if c.Tiler.TileSize < 1 {
		return fmt.Errorf("tiler.tile_size must be positive")
	}

	if c.Tiler.IndexDigits < 1 || c.Tiler.IndexDigits > 6 {
		return fmt.Errorf("tiler.index_digits must be between 1 and 6")
	}

	if c.Tiler.Quality < 1 || c.Tiler.Quality > 100 {
		return fmt.Errorf("tiler.quality must be between 1 and 100")
	}

	if c.Detector.Backend != "infer" && c.Detector.Backend != "ollama" {
		return fmt.Errorf("detector.backend must be 'infer' or 'ollama'")
	}

	if c.Detector.Model == "" {
		return fmt.Errorf("detector.model must be set")
	}

	if c.Detector.MinConfidence < 0 || c.Detector.MinConfidence > 1 {
		return fmt.Errorf("detector.min_confidence must be between 0 and 1")
	}

	return nil
}
