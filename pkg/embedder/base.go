// Package embedder provides interfaces for text embedding providers.
//
// Embeddings back the cosine similarity strategy: meme descriptions are
// embedded once at admission and compared against the embedded reply text at
// query time.
package embedder

import "context"

// Provider defines the interface for embedding providers.
type Provider interface {
	// Embed converts a text string into a vector embedding.
	Embed(ctx context.Context, text string) ([]float64, error)

	// EmbedBatch converts multiple text strings into vector embeddings.
	// More efficient than calling Embed repeatedly.
	EmbedBatch(ctx context.Context, texts []string) ([][]float64, error)

	// Dimensions returns the dimension of embedding vectors produced by this provider.
	Dimensions() int

	// Close closes the provider and releases resources.
	Close() error
}
