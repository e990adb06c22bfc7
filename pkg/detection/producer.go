package detection

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/jpeg"
	"os"
	"path/filepath"
	"strings"

	"github.com/mlund-lab/tile-annotator/internal/utils"
	"github.com/mlund-lab/tile-annotator/pkg/client"
	"github.com/mlund-lab/tile-annotator/pkg/svg"
	"github.com/mlund-lab/tile-annotator/pkg/types"
)

// DefaultPrompt is the detection prompt used with vision-LLM backends
const DefaultPrompt = `You are an object detector for trap-camera image tiles.

Return JSON only:
{
  "detections": [
    {"label": "string", "confidence": 0.0, "box": {"x": 0.0, "y": 0.0, "w": 0.0, "h": 0.0}}
  ]
}

HARD RULES
- All coordinates are normalized to [0,1] (NOT pixels).
- One entry per distinct object; boxes must tightly enclose the object.
- Labels: lowercase, concise, no punctuation.
- If nothing is detected, return {"detections": []}.
- JSON only. No markdown, no code fences, no comments, no trailing commas.`

// Producer runs a detection pass over a workspace of accepted, scrubbed
// tiles and writes one candidate annotation document per tile that
// yielded at least one detection.
type Producer struct {
	client client.DetectorClient
	config Config
}

// Config holds configuration for candidate production
type Config struct {
	Model         string
	Prompt        string
	MinConfidence float64
}

// NewProducer creates a producer with a detector backend
func NewProducer(detector client.DetectorClient, config Config) *Producer {
	if config.Prompt == "" {
		config.Prompt = DefaultPrompt
	}
	return &Producer{client: detector, config: config}
}

// Produce runs one batch over the tile files in dir. Tiles with zero
// detections produce no candidate and no error. Every written candidate
// shares its tile's base name with a .svg extension and is re-parsed
// before being reported; a candidate that fails that check aborts the
// batch.
func (p *Producer) Produce(ctx context.Context, dir string) ([]types.Candidate, error) {
	tilePaths, err := utils.ListFilesWithExt(dir, ".jpg")
	if err != nil {
		return nil, fmt.Errorf("failed to read workspace: %w", err)
	}

	var candidates []types.Candidate
	for _, tilePath := range tilePaths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		cand, err := p.produceOne(ctx, tilePath)
		if err != nil {
			return nil, err
		}
		if cand != nil {
			candidates = append(candidates, *cand)
		}
	}
	return candidates, nil
}

func (p *Producer) produceOne(ctx context.Context, tilePath string) (*types.Candidate, error) {
	data, err := os.ReadFile(tilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read tile: %w", err)
	}

	cfg, err := decodeConfig(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode tile %s: %w", filepath.Base(tilePath), err)
	}

	imgB64 := base64.StdEncoding.EncodeToString(data)
	result, err := p.client.DetectRegions(ctx, p.config.Model, p.config.Prompt, imgB64)
	if err != nil {
		return nil, fmt.Errorf("detector failed on %s: %w", filepath.Base(tilePath), err)
	}

	detections := filterByConfidence(result.Detections, p.config.MinConfidence)
	if len(detections) == 0 {
		return nil, nil
	}

	var buf bytes.Buffer
	if err := svg.Build(&buf, data, cfg.Width, cfg.Height, detections); err != nil {
		return nil, fmt.Errorf("failed to build candidate for %s: %w", filepath.Base(tilePath), err)
	}

	// Re-parse before anything downstream can see a broken document
	if _, err := svg.ParseBytes(buf.Bytes()); err != nil {
		return nil, fmt.Errorf("malformed candidate for %s: %w", filepath.Base(tilePath), err)
	}

	candPath := strings.TrimSuffix(tilePath, filepath.Ext(tilePath)) + ".svg"
	if err := os.WriteFile(candPath, buf.Bytes(), 0o644); err != nil {
		return nil, fmt.Errorf("failed to write candidate: %w", err)
	}

	return &types.Candidate{
		TilePath:   tilePath,
		Path:       candPath,
		Detections: len(detections),
	}, nil
}

func decodeConfig(data []byte) (image.Config, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	return cfg, err
}

func filterByConfidence(detections []types.Detection, min float64) []types.Detection {
	if min <= 0 {
		return detections
	}
	out := make([]types.Detection, 0, len(detections))
	for _, d := range detections {
		if d.Confidence >= min {
			out = append(out, d)
		}
	}
	return out
}
