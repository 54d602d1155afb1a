// Package core provides the main memekeeper client and meme curation functionality.
package core

import "time"

// Meme represents a stored image snippet eligible for re-use in replies.
//
// A meme holds a reference to the image bytes (owned by the blob store), the
// tag set and caption assigned at admission, and usage counters maintained
// for diagnostics.
//
// Example:
//
//	meme := &core.Meme{
//	    ID:          1234567890,
//	    BlobRef:     "9f86d081884c7d65...",
//	    Description: "a very smug cat",
//	    Tags:        []string{"smug", "cat"},
//	}
type Meme struct {
	// ID is the unique identifier of the meme, assigned at admission, immutable.
	ID int64 `json:"id"`

	// BlobRef references the image bytes in the blob store. The meme holds
	// only the reference, never the bytes.
	BlobRef string `json:"blob_ref"`

	// Hash is the SHA-256 hex digest of the image bytes. Admission uses it
	// to suppress duplicates.
	Hash string `json:"hash"`

	// Description is the caption written at admission.
	Description string `json:"description"`

	// Tags is the semantic/emotion label set assigned once at admission.
	// It is a point-in-time snapshot: a meme is never re-tagged. May be empty.
	Tags []string `json:"tags"`

	// Embedding is the description embedding used by the cosine strategy.
	// Omitted from JSON to reduce payload size.
	Embedding []float64 `json:"-"`

	// UseCount is the number of times the meme has been attached to a reply.
	// Diagnostics only; eviction ordering never consults it.
	UseCount int `json:"use_count"`

	// CreatedAt is when the meme was admitted, immutable. Eviction removes
	// the oldest CreatedAt first.
	CreatedAt time.Time `json:"created_at"`

	// LastUsedAt is when the meme was last attached to a reply (nil if never).
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
}

// SimilarityMethod selects the match strategy used to pick a meme for a reply.
type SimilarityMethod string

const (
	// MethodLevenshtein scores candidates by normalized edit distance
	// between reply tags and meme tags. Cheap and deterministic; frequently
	// returns no result, which is a documented characteristic rather than
	// a bug.
	MethodLevenshtein SimilarityMethod = "levenshtein"

	// MethodLLM adjudicates the candidate pool with a single LLM call.
	// Expensive and high-precision.
	MethodLLM SimilarityMethod = "llm"

	// MethodCosine scores candidates by cosine similarity between the
	// embedded reply text and the memes' description embeddings.
	MethodCosine SimilarityMethod = "cosine"
)
