package pipeline

import (
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/mlund-lab/tile-annotator/internal/utils"
)

// Workspace is the exclusively-owned temporary directory holding one
// source image and everything derived from it. It exists for the
// duration of one key and is removed unconditionally afterwards.
type Workspace struct {
	ID  string
	Dir string
}

// NewWorkspace creates a fresh workspace under root. An empty root uses
// the system temp directory.
func NewWorkspace(root string) (*Workspace, error) {
	if root != "" {
		if err := utils.EnsureDir(root); err != nil {
			return nil, fmt.Errorf("failed to create work root: %w", err)
		}
	}
	dir, err := os.MkdirTemp(root, "tile-annotator-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}
	return &Workspace{
		ID:  uuid.NewString(),
		Dir: dir,
	}, nil
}

// SourcePath returns the local path the source object for key is fetched to
func (w *Workspace) SourcePath(key string) string {
	return filepath.Join(w.Dir, utils.SanitizeFilename(path.Base(key)))
}

// Close removes the workspace and all derived files
func (w *Workspace) Close() error {
	return os.RemoveAll(w.Dir)
}
