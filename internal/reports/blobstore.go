package reports

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// BlobStore persists uploaded media and hands back an opaque reference.
type BlobStore interface {
	Save(kind, ext string, data []byte) (string, error)
	Read(ref string) ([]byte, error)
}

// DirStore is a BlobStore backed by a local media directory, with one
// subdirectory per kind ("waste_reports", "voice_notes").
type DirStore struct {
	root string
}

// NewDirStore creates a DirStore rooted at dir.
func NewDirStore(dir string) *DirStore {
	return &DirStore{root: dir}
}

// Save writes data under root/kind/<uuid><ext> and returns the path
// relative to the media root.
func (s *DirStore) Save(kind, ext string, data []byte) (string, error) {
	dir := filepath.Join(s.root, kind)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create media dir: %w", err)
	}
	name := uuid.New().String() + ext
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write media file: %w", err)
	}
	return filepath.Join(kind, name), nil
}

// Read loads a previously saved blob by its reference.
func (s *DirStore) Read(ref string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(s.root, ref))
	if err != nil {
		return nil, fmt.Errorf("read media file: %w", err)
	}
	return data, nil
}
