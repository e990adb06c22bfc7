package types

// Box represents a normalized bounding box with coordinates in [0,1] range
type Box struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Detection is one region the detector found within a tile
type Detection struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Box        Box     `json:"box"`
}

// DetectionResult contains the complete detection output for one tile
type DetectionResult struct {
	Detections []Detection `json:"detections"`
}

// Tile is one fixed-size square crop taken from a source image.
// Index follows row-major generation order and is part of the file
// naming contract: consumers rely on stable, monotonic tile indices.
type Tile struct {
	Index  int
	X      int
	Y      int
	Width  int
	Height int
	Path   string
}

// Accepted reports whether the tile matches the required size exactly.
// Undersized border tiles from non-divisible sources are the only
// expected misses.
func (t Tile) Accepted(size int) bool {
	return t.Width == size && t.Height == size
}

// Candidate is a vector annotation document produced for one tile
type Candidate struct {
	TilePath   string
	Path       string
	Detections int
}

// KeyReport summarizes the processing of one source key
type KeyReport struct {
	Key                string
	TilesGenerated     int
	TilesAccepted      int
	TilesScrubbed      int
	CandidatesProduced int
	CandidatesUploaded int
	Err                error
}
