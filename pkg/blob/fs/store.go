// Package fs provides a filesystem implementation of the blob store.
//
// Blobs are content-addressed: the reference is the SHA-256 hex digest of the
// bytes, and the file lives under a two-level fan-out directory derived from
// the digest prefix. Re-storing the same bytes is a no-op that yields the
// same reference.
package fs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/muika-lab/memekeeper/pkg/blob"
)

// Store implements blob.Store on the local filesystem.
type Store struct {
	// dir is the root directory holding blob files.
	dir string
}

// NewStore creates a filesystem blob store rooted at dir.
//
// The directory is created if it does not exist.
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("NewStore: empty blob directory")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("NewStore: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Put stores the image bytes under their SHA-256 digest and returns the
// digest as the reference.
func (s *Store) Put(ctx context.Context, data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("Put: empty blob")
	}

	ref := blob.Digest(data)
	path, err := s.path(ref)
	if err != nil {
		return "", fmt.Errorf("Put: %w", err)
	}

	// Content-addressed: an existing file already holds these exact bytes.
	if _, err := os.Stat(path); err == nil {
		return ref, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("Put: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return "", fmt.Errorf("Put: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("Put: %w", err)
	}

	return ref, nil
}

// Get retrieves the image bytes for a reference.
func (s *Store) Get(ctx context.Context, ref string) ([]byte, error) {
	path, err := s.path(ref)
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	return data, nil
}

// Exists reports whether the reference resolves to a stored file.
func (s *Store) Exists(ctx context.Context, ref string) (bool, error) {
	path, err := s.path(ref)
	if err != nil {
		return false, fmt.Errorf("Exists: %w", err)
	}

	_, err = os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("Exists: %w", err)
}

// Remove deletes the stored file for a reference.
func (s *Store) Remove(ctx context.Context, ref string) error {
	path, err := s.path(ref)
	if err != nil {
		return fmt.Errorf("Remove: %w", err)
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("Remove: %w", err)
	}
	return nil
}

// path maps a reference to its file location under the fan-out layout.
func (s *Store) path(ref string) (string, error) {
	if len(ref) < 4 || strings.ContainsAny(ref, "/\\.") {
		return "", fmt.Errorf("invalid blob ref %q", ref)
	}
	return filepath.Join(s.dir, ref[:2], ref), nil
}
