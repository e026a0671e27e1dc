package service

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/maheshrc27/autopost/internal/models"
)

var ErrUnknownSource = errors.New("unknown media source kind")

// SourceStore reads the original bytes of a media asset.
type SourceStore interface {
	Fetch(ctx context.Context, asset *models.MediaAsset) ([]byte, error)
}

// SourceRouter dispatches to the store registered for the asset's source
// kind.
type SourceRouter map[string]SourceStore

func (r SourceRouter) Fetch(ctx context.Context, asset *models.MediaAsset) ([]byte, error) {
	store, ok := r[asset.SourceKind]
	if !ok {
		return nil, MediaRejected("fetch source", fmt.Errorf("%w: %q", ErrUnknownSource, asset.SourceKind))
	}
	return store.Fetch(ctx, asset)
}

// LocalStore serves assets from a directory on disk.
type LocalStore struct {
	root string
}

func NewLocalStore(root string) *LocalStore {
	return &LocalStore{root: root}
}

func (s *LocalStore) Fetch(ctx context.Context, asset *models.MediaAsset) ([]byte, error) {
	rel := filepath.Clean("/" + asset.SourceRef)
	path := filepath.Join(s.root, rel)
	if !strings.HasPrefix(path, filepath.Clean(s.root)+string(filepath.Separator)) {
		return nil, MediaRejected("fetch local", fmt.Errorf("path %q escapes media root", asset.SourceRef))
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, MediaRejected("fetch local", err)
	}
	if err != nil {
		return nil, fmt.Errorf("fetch local: %w", err)
	}
	return data, nil
}
