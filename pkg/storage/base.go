// Package storage provides interfaces and types for meme metadata storage backends.
//
// It defines the Store interface that all storage implementations must satisfy,
// along with the persisted meme record type.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound indicates that no matching meme record exists.
var ErrNotFound = errors.New("meme not found")

// Meme represents a meme record persisted in the store.
//
// This type is defined in the storage package to avoid circular dependencies
// with the core package. It mirrors the core.Meme structure.
type Meme struct {
	// ID is the unique identifier of the meme, assigned at admission.
	ID int64

	// BlobRef references the stored image bytes in the blob store.
	// The record never holds the bytes themselves.
	BlobRef string

	// Hash is the SHA-256 hex digest of the image bytes, used to suppress
	// duplicate admissions.
	Hash string

	// Description is the caption written at admission.
	Description string

	// Tags is the semantic/emotion label set assigned at admission.
	// A meme is never re-tagged.
	Tags []string

	// Embedding is the description embedding used by the cosine strategy.
	// Nil when no embedder was configured at admission time.
	Embedding []float64

	// Valid reports whether the record is live. Delete and eviction mark
	// records invalid instead of destroying the row.
	Valid bool

	// UseCount is the number of successful retrievals. Diagnostics only;
	// eviction never consults it.
	UseCount int

	// CreatedAt is when the meme was admitted. Eviction order is oldest
	// CreatedAt first.
	CreatedAt time.Time

	// LastUsedAt is when the meme was last attached to a reply
	// (nil if never used).
	LastUsedAt *time.Time
}

// Store defines the interface for meme metadata storage backends.
//
// All storage implementations (SQLite, PostgreSQL, MySQL) must implement this
// interface. Only valid records participate in counts, listings, and lookups.
type Store interface {
	// Insert inserts a meme record into the store.
	Insert(ctx context.Context, meme *Meme) error

	// Get retrieves a valid meme by ID.
	Get(ctx context.Context, id int64) (*Meme, error)

	// GetAll retrieves valid memes ordered most-recent-first.
	// A limit <= 0 means no limit.
	GetAll(ctx context.Context, limit int) ([]*Meme, error)

	// Count returns the number of valid memes.
	Count(ctx context.Context) (int, error)

	// Delete marks a meme invalid. The row is kept for diagnostics.
	Delete(ctx context.Context, id int64) error

	// EvictOldest marks the valid meme with the smallest CreatedAt invalid,
	// breaking ties by smallest ID, and returns its ID. Returns ErrNotFound
	// when the store holds no valid memes.
	EvictOldest(ctx context.Context) (int64, error)

	// FindByHash returns the valid meme with the given content hash,
	// or ErrNotFound.
	FindByHash(ctx context.Context, hash string) (*Meme, error)

	// Touch increments UseCount and sets LastUsedAt for a meme.
	Touch(ctx context.Context, id int64) error

	// Close closes the store and releases resources.
	Close() error
}
