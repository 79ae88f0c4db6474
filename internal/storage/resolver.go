package storage

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrOutsideDataDir is returned when a restricted resolver sees a path outside its root.
var ErrOutsideDataDir = errors.New("path outside data directory")

// Resolver turns the file_path of a request into a location on disk.
// An upload id wins over a path of the same name.
type Resolver struct {
	store    Store
	root     string
	restrict bool
}

// NewResolver creates a resolver. Relative paths are taken relative to root;
// with restrict set, every resolved path must stay under root.
func NewResolver(store Store, root string, restrict bool) *Resolver {
	return &Resolver{store: store, root: root, restrict: restrict}
}

// Resolve returns the on-disk path for filePath.
func (r *Resolver) Resolve(filePath string) (string, error) {
	if r.store != nil {
		if path, err := r.store.GetFilePath(filePath); err == nil {
			return path, nil
		}
	}

	path := filepath.Clean(filePath)
	if !filepath.IsAbs(path) && r.root != "" {
		path = filepath.Join(r.root, path)
	}

	if r.restrict {
		root, err := filepath.Abs(r.root)
		if err != nil {
			return "", fmt.Errorf("resolving data directory: %w", err)
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("resolving %s: %w", filePath, err)
		}
		rel, err := filepath.Rel(root, abs)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return "", fmt.Errorf("%w: %s", ErrOutsideDataDir, filePath)
		}
	}

	return path, nil
}
