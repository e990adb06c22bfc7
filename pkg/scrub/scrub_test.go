package scrub

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"
)

// encodeTestJPEG encodes a small gradient image as a plain JPEG stream
func encodeTestJPEG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			img.Set(x, y, color.RGBA{uint8(x * 8), uint8(y * 8), 64, 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("failed to encode test JPEG: %v", err)
	}
	return buf.Bytes()
}

// withMetadata splices synthetic APP1 (EXIF) and COM segments into a
// JPEG stream right after the SOI marker, the position real cameras use.
func withMetadata(t *testing.T, data []byte) []byte {
	t.Helper()
	if len(data) < 2 || data[0] != 0xFF || data[1] != 0xD8 {
		t.Fatal("test input is not a JPEG")
	}

	exifPayload := append([]byte("Exif\x00\x00"), []byte("II*\x00fake-camera-metadata-gps-and-timestamps")...)
	app1 := []byte{0xFF, 0xE1, byte((len(exifPayload) + 2) >> 8), byte(len(exifPayload) + 2)}
	app1 = append(app1, exifPayload...)

	comPayload := []byte("shot on test device")
	com := []byte{0xFF, 0xFE, byte((len(comPayload) + 2) >> 8), byte(len(comPayload) + 2)}
	com = append(com, comPayload...)

	out := make([]byte, 0, len(data)+len(app1)+len(com))
	out = append(out, data[:2]...)
	out = append(out, app1...)
	out = append(out, com...)
	out = append(out, data[2:]...)
	return out
}

func TestScrubRemovesMetadata(t *testing.T) {
	plain := encodeTestJPEG(t)
	tagged := withMetadata(t, plain)

	if bytes.Equal(plain, tagged) {
		t.Fatal("metadata splice had no effect")
	}

	scrubbed, err := Scrub(tagged)
	if err != nil {
		t.Fatalf("Scrub failed: %v", err)
	}

	if !bytes.Equal(scrubbed, plain) {
		t.Error("scrubbed stream differs from the metadata-free original")
	}
	if bytes.Contains(scrubbed, []byte("fake-camera-metadata")) {
		t.Error("EXIF payload survived scrubbing")
	}
	if bytes.Contains(scrubbed, []byte("shot on test device")) {
		t.Error("COM payload survived scrubbing")
	}
}

func TestScrubIdempotent(t *testing.T) {
	tagged := withMetadata(t, encodeTestJPEG(t))

	once, err := Scrub(tagged)
	if err != nil {
		t.Fatalf("first Scrub failed: %v", err)
	}
	twice, err := Scrub(once)
	if err != nil {
		t.Fatalf("second Scrub failed: %v", err)
	}

	if !bytes.Equal(once, twice) {
		t.Error("scrubbing an already-scrubbed stream changed it")
	}
}

func TestScrubPreservesPixels(t *testing.T) {
	plain := encodeTestJPEG(t)
	tagged := withMetadata(t, plain)

	scrubbed, err := Scrub(tagged)
	if err != nil {
		t.Fatalf("Scrub failed: %v", err)
	}

	before, err := jpeg.Decode(bytes.NewReader(tagged))
	if err != nil {
		t.Fatalf("failed to decode tagged stream: %v", err)
	}
	after, err := jpeg.Decode(bytes.NewReader(scrubbed))
	if err != nil {
		t.Fatalf("failed to decode scrubbed stream: %v", err)
	}

	if before.Bounds() != after.Bounds() {
		t.Fatalf("bounds changed: %v -> %v", before.Bounds(), after.Bounds())
	}
	for y := before.Bounds().Min.Y; y < before.Bounds().Max.Y; y++ {
		for x := before.Bounds().Min.X; x < before.Bounds().Max.X; x++ {
			if before.At(x, y) != after.At(x, y) {
				t.Fatalf("pixel (%d,%d) changed by scrubbing", x, y)
			}
		}
	}
}

func TestScrubRejectsNonJPEG(t *testing.T) {
	inputs := [][]byte{
		nil,
		{},
		[]byte("not an image at all"),
		{0x89, 0x50, 0x4E, 0x47}, // PNG signature
	}
	for _, in := range inputs {
		if _, err := Scrub(in); err == nil {
			t.Errorf("expected error for input %q", in)
		}
	}
}

func TestScrubRejectsTruncated(t *testing.T) {
	tagged := withMetadata(t, encodeTestJPEG(t))
	// Cut inside the APP1 segment header
	if _, err := Scrub(tagged[:4]); err == nil {
		t.Error("expected error for truncated stream")
	}
}

func TestScrubFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tile-00.jpg")

	plain := encodeTestJPEG(t)
	tagged := withMetadata(t, plain)
	if err := os.WriteFile(path, tagged, 0o644); err != nil {
		t.Fatalf("failed to write test file: %v", err)
	}

	if err := ScrubFile(path); err != nil {
		t.Fatalf("ScrubFile failed: %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read scrubbed file: %v", err)
	}
	if !bytes.Equal(got, plain) {
		t.Error("in-place scrub result differs from the metadata-free original")
	}

	// No stray temp files left behind
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("expected 1 file in dir after scrub, found %d", len(entries))
	}
}

func TestScrubFileMissing(t *testing.T) {
	if err := ScrubFile(filepath.Join(t.TempDir(), "nope.jpg")); err == nil {
		t.Error("expected error for missing file")
	}
}
