// Package scrub strips embedded metadata from JPEG files without touching
// pixel data. Scrubbing works at the segment level of the JPEG byte
// stream: APP1 through APP15 and COM segments (EXIF, XMP, ICC profiles,
// GPS, camera data, comments) are dropped, everything else, including the
// entropy-coded scan, is copied byte-for-byte. Scrubbing an already
// scrubbed file is a no-op.
package scrub

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
)

const (
	markerPrefix = 0xFF
	markerSOI    = 0xD8
	markerEOI    = 0xD9
	markerSOS    = 0xDA
	markerTEM    = 0x01
	markerAPP0   = 0xE0
	markerAPP1   = 0xE1
	markerAPP15  = 0xEF
	markerCOM    = 0xFE
)

// Scrub returns a copy of data with all metadata segments removed.
// APP0 (the JFIF header) is kept: it carries encoding parameters, not
// provenance.
func Scrub(data []byte) ([]byte, error) {
	if len(data) < 4 || data[0] != markerPrefix || data[1] != markerSOI {
		return nil, fmt.Errorf("not a JPEG stream")
	}

	out := bytes.NewBuffer(make([]byte, 0, len(data)))
	out.Write(data[:2])

	i := 2
	for i < len(data) {
		if data[i] != markerPrefix {
			return nil, fmt.Errorf("malformed JPEG: expected marker at offset %d", i)
		}
		// Skip fill bytes before the marker code
		j := i + 1
		for j < len(data) && data[j] == markerPrefix {
			j++
		}
		if j >= len(data) {
			return nil, fmt.Errorf("malformed JPEG: truncated marker at offset %d", i)
		}
		code := data[j]

		switch {
		case code == markerEOI:
			out.WriteByte(markerPrefix)
			out.WriteByte(code)
			return out.Bytes(), nil
		case code == markerSOS:
			// Entropy-coded data follows; copy the remainder verbatim
			out.Write(data[i:])
			return out.Bytes(), nil
		case code == markerTEM || (code >= 0xD0 && code <= 0xD7):
			// Standalone marker, no payload
			out.WriteByte(markerPrefix)
			out.WriteByte(code)
			i = j + 1
		default:
			if j+2 >= len(data) {
				return nil, fmt.Errorf("malformed JPEG: truncated segment at offset %d", i)
			}
			length := int(data[j+1])<<8 | int(data[j+2])
			if length < 2 || j+1+length > len(data) {
				return nil, fmt.Errorf("malformed JPEG: bad segment length at offset %d", i)
			}
			end := j + 1 + length
			if (code >= markerAPP1 && code <= markerAPP15) || code == markerCOM {
				// Metadata segment, drop it
			} else {
				out.WriteByte(markerPrefix)
				out.Write(data[j:end])
			}
			i = end
		}
	}
	return nil, fmt.Errorf("malformed JPEG: missing end of image")
}

// ScrubFile scrubs path in place. The scrubbed stream is written to a
// temporary file in the same directory and moved over the original, so a
// failure never leaves a half-written tile behind.
func ScrubFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read tile: %w", err)
	}

	scrubbed, err := Scrub(data)
	if err != nil {
		return fmt.Errorf("failed to scrub %s: %w", filepath.Base(path), err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".scrub-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := tmp.Write(scrubbed); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write scrubbed tile: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace tile: %w", err)
	}
	return nil
}
