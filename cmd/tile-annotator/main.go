package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	tileannotator "github.com/mlund-lab/tile-annotator"
	"github.com/mlund-lab/tile-annotator/internal/config"
	"github.com/mlund-lab/tile-annotator/internal/logging"
)

func main() {
	var cfgPath string
	var endpoint, accessKey, secretKey string
	var srcBucket, srcPrefix, dstBucket, dstPrefix string
	var backend, detectorURL, model string
	var tileSize int
	var verbose bool

	flag.StringVar(&cfgPath, "config", "", "path to yaml config file (optional)")
	flag.StringVar(&endpoint, "endpoint", "", "storage endpoint override")
	flag.StringVar(&accessKey, "access-key", "", "storage access key override")
	flag.StringVar(&secretKey, "secret-key", "", "storage secret key override")
	flag.StringVar(&srcBucket, "source-bucket", "", "source bucket override")
	flag.StringVar(&srcPrefix, "source-prefix", "", "source prefix override")
	flag.StringVar(&dstBucket, "dest-bucket", "", "destination bucket override")
	flag.StringVar(&dstPrefix, "dest-prefix", "", "destination prefix override")
	flag.StringVar(&backend, "backend", "", "detector backend: infer or ollama")
	flag.StringVar(&detectorURL, "url", "", "detector server URL")
	flag.StringVar(&model, "model", "", "detector model name override")
	flag.IntVar(&tileSize, "tile-size", 0, "tile edge length override (px)")
	flag.BoolVar(&verbose, "v", false, "verbose per-state logging")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatal(err)
	}

	// Flags beat file and environment
	if endpoint != "" {
		cfg.Storage.Endpoint = endpoint
	}
	if accessKey != "" {
		cfg.Storage.AccessKey = accessKey
	}
	if secretKey != "" {
		cfg.Storage.SecretKey = secretKey
	}
	if srcBucket != "" {
		cfg.Storage.SourceBucket = srcBucket
	}
	if srcPrefix != "" {
		cfg.Storage.SourcePrefix = srcPrefix
	}
	if dstBucket != "" {
		cfg.Storage.DestBucket = dstBucket
	}
	if dstPrefix != "" {
		cfg.Storage.DestPrefix = dstPrefix
	}
	if backend != "" {
		cfg.Detector.Backend = backend
	}
	if detectorURL != "" {
		cfg.Detector.URL = detectorURL
	}
	if model != "" {
		cfg.Detector.Model = model
	}
	if tileSize > 0 {
		cfg.Tiler.TileSize = tileSize
	}

	logger := logging.NewLogger()
	logger.SetDebug(verbose)

	p, err := tileannotator.New(cfg, logger)
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reports, err := p.Run(ctx)
	if err != nil {
		log.Fatal(err)
	}

	failed := 0
	for _, rep := range reports {
		if rep.Err != nil {
			failed++
		}
	}
	logger.Info("done: %d keys processed, %d failed", len(reports), failed)
	if failed > 0 {
		os.Exit(1)
	}
}
