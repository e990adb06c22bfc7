// Package infer talks to a standalone HTTP inference service that wraps
// the instance-segmentation model. The service takes one tile per request
// and responds with normalized detections; model hyperparameters live in
// the service's own configuration file and are opaque to this pipeline.
package infer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mlund-lab/tile-annotator/pkg/types"
)

type Client struct {
	baseURL    string
	httpClient *http.Client
}

// DetectRequest is the payload sent to the inference service
type DetectRequest struct {
	Model         string  `json:"model"`
	Image         string  `json:"image"` // base64 JPEG
	MinConfidence float64 `json:"min_confidence,omitempty"`
}

// DetectResponse is the inference service response
type DetectResponse struct {
	Model      string            `json:"model"`
	Detections []types.Detection `json:"detections"`
}

func NewClient(serverURL string) (*Client, error) {
	if serverURL == "" {
		serverURL = "http://localhost:8093"
	}

	return &Client{
		baseURL: strings.TrimSuffix(serverURL, "/"),
		httpClient: &http.Client{
			Timeout: 5 * time.Minute,
		},
	}, nil
}

// DetectRegions sends one tile to the inference service. The prompt
// argument is ignored by this backend; the service is prompt-free.
func (c *Client) DetectRegions(ctx context.Context, model, _ string, imgB64 string) (*types.DetectionResult, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 300*time.Second)
		defer cancel()
	}

	req := DetectRequest{
		Model: model,
		Image: imgB64,
	}

	respBody, err := c.sendRequest(ctx, "/v1/detect", req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %v", err)
	}

	var resp DetectResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %v", err)
	}

	return &types.DetectionResult{Detections: resp.Detections}, nil
}

func (c *Client) sendRequest(ctx context.Context, endpoint string, payload interface{}) ([]byte, error) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %v", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %v", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(body))
	}

	return body, nil
}
