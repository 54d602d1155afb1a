// Package blob provides interfaces for image blob storage backends.
//
// Meme records hold only a blob reference; the bytes themselves live behind
// the Store interface defined here.
package blob

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
)

// Store defines the interface for image blob storage backends.
type Store interface {
	// Put stores the image bytes and returns an opaque reference.
	// Storing the same bytes twice returns the same reference.
	Put(ctx context.Context, data []byte) (string, error)

	// Get retrieves the image bytes for a reference.
	Get(ctx context.Context, ref string) ([]byte, error)

	// Exists reports whether the reference still resolves to stored bytes.
	Exists(ctx context.Context, ref string) (bool, error)

	// Remove deletes the stored bytes for a reference. Removing a missing
	// reference is not an error.
	Remove(ctx context.Context, ref string) error
}

// Digest returns the SHA-256 hex digest of the given bytes.
//
// The digest doubles as the meme's dedup hash, so admission can detect a
// re-sent image before storing anything.
func Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
