// Package pipeline sequences the tile preparation workflow over every
// object in a remote source collection. Each source key runs through an
// explicit per-key state machine inside a fresh workspace; failures are
// contained to their key and cleanup always executes.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/mlund-lab/tile-annotator/internal/logging"
	"github.com/mlund-lab/tile-annotator/internal/storage"
	"github.com/mlund-lab/tile-annotator/internal/utils"
	"github.com/mlund-lab/tile-annotator/pkg/scrub"
	"github.com/mlund-lab/tile-annotator/pkg/tiler"
	"github.com/mlund-lab/tile-annotator/pkg/types"
)

// State names one step of the per-key sequence
type State string

const (
	StateFetching   State = "FETCHING"
	StateCropping   State = "CROPPING"
	StateValidating State = "VALIDATING"
	StateScrubbing  State = "SCRUBBING"
	StateDetecting  State = "DETECTING"
	StateUploading  State = "UPLOADING"
	StateCleanup    State = "CLEANUP"
)

// SourceSuffix is the fixed filter applied to the source listing
const SourceSuffix = ".jpg"

// Per-key failure classes. Each is fatal only for its own key; the run
// always continues to the next key.
var (
	ErrFetch         = errors.New("fetch failed")
	ErrCrop          = errors.New("crop failed")
	ErrScrub         = errors.New("scrub failed")
	ErrDetector      = errors.New("detector failed")
	ErrUpload        = errors.New("upload failed")
	ErrDuplicateBase = errors.New("duplicate base name")
)

// CandidateProducer runs one detection batch over a workspace directory
type CandidateProducer interface {
	Produce(ctx context.Context, dir string) ([]types.Candidate, error)
}

// Options holds the collection addressing for one run
type Options struct {
	SourceBucket string
	SourcePrefix string
	DestBucket   string
	DestPrefix   string
	WorkDir      string
}

// Orchestrator drives the per-key state machine
type Orchestrator struct {
	store    storage.ObjectStore
	producer CandidateProducer
	cropper  *tiler.Cropper
	opts     Options
	log      *logging.Logger
}

// New creates an orchestrator. The storage client arrives fully
// configured; the orchestrator never touches credentials itself.
func New(store storage.ObjectStore, producer CandidateProducer, cropper *tiler.Cropper, opts Options, log *logging.Logger) *Orchestrator {
	if log == nil {
		log = logging.NewLogger()
	}
	return &Orchestrator{
		store:    store,
		producer: producer,
		cropper:  cropper,
		opts:     opts,
		log:      log,
	}
}

// Run enumerates the source collection and processes every matching key
// strictly one at a time in discovery order. A per-key failure is
// recorded in that key's report and the run moves on; only a listing
// failure aborts the run itself.
func (o *Orchestrator) Run(ctx context.Context) ([]types.KeyReport, error) {
	keys, err := o.store.List(ctx, o.opts.SourceBucket, o.opts.SourcePrefix, SourceSuffix)
	if err != nil {
		return nil, fmt.Errorf("failed to list source collection: %w", err)
	}

	runID := uuid.NewString()
	o.log.Info("run %s: %d source objects under %s/%s", runID, len(keys), o.opts.SourceBucket, o.opts.SourcePrefix)

	seen := make(map[string]string, len(keys))
	reports := make([]types.KeyReport, 0, len(keys))
	for _, key := range keys {
		base := storage.BaseName(key)
		if prev, ok := seen[base]; ok {
			// Two keys collapsing to one destination base name would
			// silently overwrite each other's candidates.
			rep := types.KeyReport{
				Key: key,
				Err: fmt.Errorf("%w: %q collides with %q", ErrDuplicateBase, key, prev),
			}
			o.log.Error("key %s: %v", key, rep.Err)
			reports = append(reports, rep)
			continue
		}
		seen[base] = key

		rep := o.processKey(ctx, key)
		o.logReport(rep)
		reports = append(reports, rep)
	}
	return reports, nil
}

// processKey runs the full state sequence for one source key. The
// deferred workspace close is the CLEANUP state: it runs no matter
// which earlier state failed.
func (o *Orchestrator) processKey(ctx context.Context, key string) (rep types.KeyReport) {
	rep.Key = key

	ws, err := NewWorkspace(o.opts.WorkDir)
	if err != nil {
		rep.Err = err
		return rep
	}
	defer func() {
		o.log.Debug("key %s: %s workspace %s", key, StateCleanup, ws.ID)
		if err := ws.Close(); err != nil {
			o.log.Error("key %s: workspace cleanup: %v", key, err)
		}
	}()

	o.log.Debug("key %s: %s", key, StateFetching)
	srcPath := ws.SourcePath(key)
	if err := o.store.Fetch(ctx, o.opts.SourceBucket, key, srcPath); err != nil {
		rep.Err = fmt.Errorf("%w: %v", ErrFetch, err)
		return rep
	}
	if info, err := os.Stat(srcPath); err == nil {
		o.log.Debug("key %s: fetched %s", key, utils.FormatFileSize(info.Size()))
	}

	o.log.Debug("key %s: %s", key, StateCropping)
	tiles, err := o.cropper.Split(srcPath, ws.Dir)
	if err != nil {
		rep.Err = fmt.Errorf("%w: %v", ErrCrop, err)
		return rep
	}
	rep.TilesGenerated = len(tiles)

	o.log.Debug("key %s: %s", key, StateValidating)
	validator := tiler.NewValidator(o.cropper.TileSize())
	accepted, err := validator.Filter(tiles)
	if err != nil {
		rep.Err = fmt.Errorf("%w: %v", ErrCrop, err)
		return rep
	}
	rep.TilesAccepted = len(accepted)

	o.log.Debug("key %s: %s", key, StateScrubbing)
	rep.TilesScrubbed, err = o.scrubAccepted(key, accepted)
	if err != nil {
		rep.Err = err
		return rep
	}

	o.log.Debug("key %s: %s", key, StateDetecting)
	candidates, err := o.producer.Produce(ctx, ws.Dir)
	if err != nil {
		rep.Err = fmt.Errorf("%w: %v", ErrDetector, err)
		return rep
	}
	rep.CandidatesProduced = len(candidates)

	o.log.Debug("key %s: %s", key, StateUploading)
	failed := 0
	for _, cand := range candidates {
		destKey := o.destKey(filepath.Base(cand.Path))
		if err := o.store.Store(ctx, o.opts.DestBucket, destKey, cand.Path); err != nil {
			o.log.Error("key %s: upload %s: %v", key, destKey, err)
			failed++
			continue
		}
		rep.CandidatesUploaded++
	}
	if failed > 0 {
		rep.Err = fmt.Errorf("%w: %d of %d objects", ErrUpload, failed, len(candidates))
	}

	return rep
}

// scrubAccepted scrubs every accepted tile in place. A tile that cannot
// be scrubbed is discarded and the key continues; a tile that cannot be
// scrubbed *or* removed would leak metadata into detection and upload,
// so that makes the whole key fatal.
func (o *Orchestrator) scrubAccepted(key string, accepted []types.Tile) (int, error) {
	scrubbed := 0
	for _, tile := range accepted {
		if err := scrub.ScrubFile(tile.Path); err != nil {
			o.log.Error("key %s: discarding tile %s: %v", key, filepath.Base(tile.Path), err)
			if rmErr := os.Remove(tile.Path); rmErr != nil {
				return scrubbed, fmt.Errorf("%w: cannot discard unscrubbed tile %s: %v",
					ErrScrub, filepath.Base(tile.Path), rmErr)
			}
			continue
		}
		scrubbed++
	}
	return scrubbed, nil
}

func (o *Orchestrator) destKey(name string) string {
	prefix := strings.TrimSuffix(o.opts.DestPrefix, "/")
	if prefix == "" {
		return name
	}
	return path.Join(prefix, name)
}

func (o *Orchestrator) logReport(rep types.KeyReport) {
	if rep.Err != nil {
		o.log.Error("key %s: generated=%d accepted=%d scrubbed=%d candidates=%d uploaded=%d error=%v",
			rep.Key, rep.TilesGenerated, rep.TilesAccepted, rep.TilesScrubbed,
			rep.CandidatesProduced, rep.CandidatesUploaded, rep.Err)
		return
	}
	o.log.Info("key %s: generated=%d accepted=%d scrubbed=%d candidates=%d uploaded=%d",
		rep.Key, rep.TilesGenerated, rep.TilesAccepted, rep.TilesScrubbed,
		rep.CandidatesProduced, rep.CandidatesUploaded)
}
