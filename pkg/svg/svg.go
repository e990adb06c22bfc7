// Package svg builds and parses annotation candidate documents. A
// candidate embeds the scrubbed tile JPEG as a base64 image element and
// carries one path element per detected region, stroke color keyed by
// class label, so the document is self-contained for human review.
package svg

import (
	"bytes"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"hash/fnv"
	"io"
	"strings"

	"github.com/mlund-lab/tile-annotator/pkg/types"
)

// Stroke palette for class labels. Color assignment is stable per label.
var palette = []string{
	"#ff0000", "#00a650", "#0055ff", "#ff8800",
	"#aa00cc", "#00bbbb", "#cc0066", "#888800",
}

// StrokeColor returns the palette color for a class label
func StrokeColor(label string) string {
	h := fnv.New32a()
	h.Write([]byte(strings.ToLower(strings.TrimSpace(label))))
	return palette[h.Sum32()%uint32(len(palette))]
}

// Build writes a candidate document for one tile. Detections use
// normalized [0,1] coordinates and are rendered as rectangular paths in
// tile pixel space.
func Build(w io.Writer, tileJPEG []byte, width, height int, detections []types.Detection) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("invalid tile dimensions %dx%d", width, height)
	}

	encoded := base64.StdEncoding.EncodeToString(tileJPEG)

	if _, err := fmt.Fprintf(w,
		`<svg width="%d" height="%d" xmlns:xlink="http://www.w3.org/1999/xlink" xmlns="http://www.w3.org/2000/svg">`,
		width, height); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w,
		`<image width="%d" height="%d" x="0" y="0" xlink:href="data:image/jpeg;base64,%s"/>`,
		width, height, encoded); err != nil {
		return err
	}

	for _, d := range detections {
		x0 := clamp(d.Box.X, 0, 1) * float64(width)
		y0 := clamp(d.Box.Y, 0, 1) * float64(height)
		x1 := clamp(d.Box.X+d.Box.W, 0, 1) * float64(width)
		y1 := clamp(d.Box.Y+d.Box.H, 0, 1) * float64(height)
		if _, err := fmt.Fprintf(w,
			`<path d="M %.1f,%.1f L %.1f,%.1f L %.1f,%.1f L %.1f,%.1f Z" style="stroke:%s;fill:none;stroke-width:2" data-label="%s" data-confidence="%.3f"/>`,
			x0, y0, x1, y0, x1, y1, x0, y1,
			StrokeColor(d.Label), xmlEscape(d.Label), d.Confidence); err != nil {
			return err
		}
	}

	_, err := io.WriteString(w, `</svg>`)
	return err
}

// Document is the parsed form of a candidate annotation file
type Document struct {
	Width  int
	Height int
	Image  []byte
	Paths  []Path
}

// Path is one annotated region in a candidate document
type Path struct {
	D          string
	Label      string
	Confidence float64
}

type xmlSVG struct {
	XMLName xml.Name   `xml:"svg"`
	Width   int        `xml:"width,attr"`
	Height  int        `xml:"height,attr"`
	Images  []xmlImage `xml:"image"`
	Paths   []xmlPath  `xml:"path"`
}

type xmlImage struct {
	Width  int    `xml:"width,attr"`
	Height int    `xml:"height,attr"`
	Href   string `xml:"href,attr"`
}

type xmlPath struct {
	D          string  `xml:"d,attr"`
	Label      string  `xml:"data-label,attr"`
	Confidence float64 `xml:"data-confidence,attr"`
}

// Parse reads a candidate document and validates its structure: exactly
// one embedded JPEG image and well-formed path data. A candidate that
// fails here is treated as a detector fault by the caller.
func Parse(r io.Reader) (*Document, error) {
	var raw xmlSVG
	dec := xml.NewDecoder(r)
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to parse candidate: %w", err)
	}

	if raw.Width <= 0 || raw.Height <= 0 {
		return nil, fmt.Errorf("candidate has invalid dimensions %dx%d", raw.Width, raw.Height)
	}
	if len(raw.Images) != 1 {
		return nil, fmt.Errorf("candidate must embed exactly one image, found %d", len(raw.Images))
	}

	href := raw.Images[0].Href
	const prefix = "data:image/jpeg;base64,"
	if !strings.HasPrefix(href, prefix) {
		return nil, fmt.Errorf("embedded image is not base64 JPEG data")
	}
	img, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(href, prefix))
	if err != nil {
		return nil, fmt.Errorf("failed to decode embedded image: %w", err)
	}

	doc := &Document{
		Width:  raw.Width,
		Height: raw.Height,
		Image:  img,
	}
	for _, p := range raw.Paths {
		if strings.TrimSpace(p.D) == "" {
			return nil, fmt.Errorf("candidate contains an empty path")
		}
		doc.Paths = append(doc.Paths, Path{D: p.D, Label: p.Label, Confidence: p.Confidence})
	}
	return doc, nil
}

// ParseBytes is a convenience wrapper around Parse
func ParseBytes(data []byte) (*Document, error) {
	return Parse(bytes.NewReader(data))
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func xmlEscape(s string) string {
	var buf bytes.Buffer
	xml.EscapeText(&buf, []byte(s))
	return buf.String()
}
