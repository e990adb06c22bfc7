// Package tileannotator prepares large trap-camera images for manual
// annotation. It fetches source images from a remote object collection,
// splits each one into fixed-size square tiles, discards malformed
// border tiles, strips embedded metadata from the survivors, runs an
// external detector over them, and uploads the resulting vector
// annotation candidates to a destination collection.
//
// Basic usage:
//
//	cfg := config.Default()
//	cfg.Storage.Endpoint = "minio.example.com:9000"
//	cfg.Storage.AccessKey = "..."
//	cfg.Storage.SecretKey = "..."
//
//	p, err := tileannotator.New(cfg, nil)
//	if err != nil {
//		log.Fatal(err)
//	}
//	reports, err := p.Run(context.Background())
//
// The package consists of five main components:
//
// 1. Cropper (pkg/tiler): deterministic row-major tiling of a source image
// 2. Validator (pkg/tiler): rejects undersized border tiles
// 3. Scrubber (pkg/scrub): removes JPEG metadata segments in place
// 4. Producer (pkg/detection): one detection batch per workspace, SVG output
// 5. Orchestrator (internal/pipeline): per-key state machine with
// unconditional workspace cleanup
//
// Detection backends live behind the client.DetectorClient interface;
// a plain HTTP inference service (pkg/infer) and an Ollama vision model
// (pkg/ollama) are provided.
package tileannotator

import (
	"context"
	"fmt"

	"github.com/mlund-lab/tile-annotator/internal/config"
	"github.com/mlund-lab/tile-annotator/internal/logging"
	"github.com/mlund-lab/tile-annotator/internal/pipeline"
	"github.com/mlund-lab/tile-annotator/internal/storage"
	"github.com/mlund-lab/tile-annotator/pkg/client"
	"github.com/mlund-lab/tile-annotator/pkg/detection"
	"github.com/mlund-lab/tile-annotator/pkg/infer"
	"github.com/mlund-lab/tile-annotator/pkg/ollama"
	"github.com/mlund-lab/tile-annotator/pkg/tiler"
	"github.com/mlund-lab/tile-annotator/pkg/types"
)

// Version of the tile annotator library
const Version = "1.0.0"

// Pipeline is the high-level entry point wiring storage, tiling,
// scrubbing, and detection together from one configuration object.
type Pipeline struct {
	orchestrator *pipeline.Orchestrator
}

// New builds a ready-to-run pipeline from cfg. A nil logger gets the
// default console logger.
func New(cfg *config.Config, log *logging.Logger) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if log == nil {
		log = logging.NewLogger()
	}

	store, err := storage.NewMinioStore(storage.MinioConfig{
		Endpoint:  cfg.Storage.Endpoint,
		AccessKey: cfg.Storage.AccessKey,
		SecretKey: cfg.Storage.SecretKey,
		UseSSL:    cfg.Storage.UseSSL,
	})
	if err != nil {
		return nil, err
	}

	detector, err := NewDetectorClient(cfg.Detector.Backend, cfg.Detector.URL)
	if err != nil {
		return nil, err
	}

	producer := detection.NewProducer(detector, detection.Config{
		Model:         cfg.Detector.Model,
		MinConfidence: cfg.Detector.MinConfidence,
	})

	cropper := tiler.NewWithConfig(tiler.CropConfig{
		TileSize:    cfg.Tiler.TileSize,
		IndexDigits: cfg.Tiler.IndexDigits,
		Quality:     cfg.Tiler.Quality,
	})

	orchestrator := pipeline.New(store, producer, cropper, pipeline.Options{
		SourceBucket: cfg.Storage.SourceBucket,
		SourcePrefix: cfg.Storage.SourcePrefix,
		DestBucket:   cfg.Storage.DestBucket,
		DestPrefix:   cfg.Storage.DestPrefix,
		WorkDir:      cfg.WorkDir,
	}, log)

	return &Pipeline{orchestrator: orchestrator}, nil
}

// NewDetectorClient creates a detector backend by name
func NewDetectorClient(backend, url string) (client.DetectorClient, error) {
	switch backend {
	case "infer":
		return infer.NewClient(url)
	case "ollama":
		if url == "" {
			url = "http://localhost:11434"
		}
		return ollama.NewClient(url)
	default:
		return nil, fmt.Errorf("unknown detector backend: %s (use 'infer' or 'ollama')", backend)
	}
}

// Run processes every matching object in the source collection once
func (p *Pipeline) Run(ctx context.Context) ([]types.KeyReport, error) {
	return p.orchestrator.Run(ctx)
}

// GetVersion returns the library version
func GetVersion() string {
	return Version
}
