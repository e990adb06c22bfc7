package infer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mlund-lab/tile-annotator/pkg/types"
)

func TestDetectRegions(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/detect" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req DetectRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		if req.Model != "test-model" {
			t.Errorf("model = %q, want test-model", req.Model)
		}
		if req.Image == "" {
			t.Error("request carries no image")
		}

		json.NewEncoder(w).Encode(DetectResponse{
			Model: req.Model,
			Detections: []types.Detection{
				{Label: "moth", Confidence: 0.87, Box: types.Box{X: 0.1, Y: 0.2, W: 0.3, H: 0.3}},
			},
		})
	}))
	defer server.Close()

	client, err := NewClient(server.URL)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	result, err := client.DetectRegions(context.Background(), "test-model", "", "aGVsbG8=")
	if err != nil {
		t.Fatalf("DetectRegions failed: %v", err)
	}
	if len(result.Detections) != 1 {
		t.Fatalf("expected 1 detection, got %d", len(result.Detections))
	}
	if result.Detections[0].Label != "moth" {
		t.Errorf("label = %q, want moth", result.Detections[0].Label)
	}
}

func TestDetectRegionsEmptyResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(DetectResponse{})
	}))
	defer server.Close()

	client, _ := NewClient(server.URL)
	result, err := client.DetectRegions(context.Background(), "test-model", "", "aGVsbG8=")
	if err != nil {
		t.Fatalf("DetectRegions failed: %v", err)
	}
	if len(result.Detections) != 0 {
		t.Errorf("expected no detections, got %d", len(result.Detections))
	}
}

func TestDetectRegionsServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer server.Close()

	client, _ := NewClient(server.URL)
	if _, err := client.DetectRegions(context.Background(), "test-model", "", "aGVsbG8="); err == nil {
		t.Error("expected error for server failure")
	}
}

func TestDetectRegionsBadJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer server.Close()

	client, _ := NewClient(server.URL)
	if _, err := client.DetectRegions(context.Background(), "test-model", "", "aGVsbG8="); err == nil {
		t.Error("expected error for malformed response")
	}
}
