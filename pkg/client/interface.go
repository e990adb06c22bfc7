package client

import (
	"context"

	"github.com/mlund-lab/tile-annotator/pkg/types"
)

// DetectorClient abstracts the external detection capability. Backends
// receive one base64-encoded tile at a time and return the regions they
// found in it.
type DetectorClient interface {
	DetectRegions(ctx context.Context, model, prompt, imgB64 string) (*types.DetectionResult, error)
}
