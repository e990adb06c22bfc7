package tiler

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/mlund-lab/tile-annotator/pkg/types"
)

// Cropper splits a source image into a grid of fixed-size square tiles
type Cropper struct {
	config CropConfig
}

// CropConfig holds configuration for tile cropping
type CropConfig struct {
	TileSize    int
	IndexDigits int
	Quality     int
}

// DefaultConfig returns the cropping configuration used by the pipeline
func DefaultConfig() CropConfig {
	return CropConfig{
		TileSize:    1024,
		IndexDigits: 2,
		Quality:     95,
	}
}

// New creates a new Cropper with default configuration
func New() *Cropper {
	return NewWithConfig(DefaultConfig())
}

// NewWithConfig creates a new Cropper with custom configuration
func NewWithConfig(config CropConfig) *Cropper {
	if config.TileSize <= 0 {
		config.TileSize = DefaultConfig().TileSize
	}
	if config.IndexDigits <= 0 {
		config.IndexDigits = DefaultConfig().IndexDigits
	}
	if config.Quality <= 0 {
		config.Quality = DefaultConfig().Quality
	}
	return &Cropper{config: config}
}

// TileSize returns the configured tile edge length
func (c *Cropper) TileSize() int {
	return c.config.TileSize
}

// Grid returns the tile rectangles for a W x H image in row-major raster
// order starting at (0,0), advancing by the tile size in x then y. Border
// rectangles are clipped to the image bounds, never padded.
func (c *Cropper) Grid(width, height int) []image.Rectangle {
	t := c.config.TileSize
	var rects []image.Rectangle
	for y := 0; y < height; y += t {
		for x := 0; x < width; x += t {
			x1 := x + t
			if x1 > width {
				x1 = width
			}
			y1 := y + t
			if y1 > height {
				y1 = height
			}
			rects = append(rects, image.Rect(x, y, x1, y1))
		}
	}
	return rects
}

// Split crops the source image at srcPath into numbered tile files inside
// outDir and deletes the source file once cropping completes. Tiles are
// named <base>-<NN>.jpg where NN is the zero-padded row-major index.
func (c *Cropper) Split(srcPath, outDir string) ([]types.Tile, error) {
	img, err := LoadImage(srcPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load source image: %w", err)
	}

	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width == 0 || height == 0 {
		return nil, fmt.Errorf("invalid source dimensions %dx%d", width, height)
	}

	base := strings.TrimSuffix(filepath.Base(srcPath), filepath.Ext(srcPath))
	pattern := fmt.Sprintf("%%s-%%0%dd.jpg", c.config.IndexDigits)

	var tiles []types.Tile
	for i, rect := range c.Grid(width, height) {
		cropped := imaging.Crop(img, rect)
		name := fmt.Sprintf(pattern, base, i)
		path := filepath.Join(outDir, name)
		if err := imaging.Save(cropped, path, imaging.JPEGQuality(c.config.Quality)); err != nil {
			return nil, fmt.Errorf("failed to save tile %s: %w", name, err)
		}
		tiles = append(tiles, types.Tile{
			Index:  i,
			X:      rect.Min.X,
			Y:      rect.Min.Y,
			Width:  rect.Dx(),
			Height: rect.Dy(),
			Path:   path,
		})
	}

	// The source must not leak into detection or upload
	if err := os.Remove(srcPath); err != nil {
		return nil, fmt.Errorf("failed to remove source image: %w", err)
	}

	return tiles, nil
}

// Validator rejects tiles whose dimensions deviate from the expected size
type Validator struct {
	size int
}

// NewValidator creates a validator for the given tile size
func NewValidator(size int) *Validator {
	return &Validator{size: size}
}

// Filter deletes rejected tiles from disk and returns the accepted ones.
// Only undersized border tiles are expected; any oversized tile means the
// cropper misbehaved and is reported as an error.
func (v *Validator) Filter(tiles []types.Tile) ([]types.Tile, error) {
	accepted := make([]types.Tile, 0, len(tiles))
	for _, tile := range tiles {
		if tile.Width > v.size || tile.Height > v.size {
			return nil, fmt.Errorf("tile %s is %dx%d, larger than expected %dx%d",
				filepath.Base(tile.Path), tile.Width, tile.Height, v.size, v.size)
		}
		if !tile.Accepted(v.size) {
			if err := os.Remove(tile.Path); err != nil {
				return nil, fmt.Errorf("failed to remove rejected tile: %w", err)
			}
			continue
		}
		accepted = append(accepted, tile)
	}
	return accepted, nil
}
