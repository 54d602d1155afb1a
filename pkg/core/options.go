// Package core provides the main memekeeper client and meme curation functionality.
package core

import (
	"log/slog"
	"math/rand"

	"github.com/muika-lab/memekeeper/pkg/blob"
	"github.com/muika-lab/memekeeper/pkg/embedder"
	"github.com/muika-lab/memekeeper/pkg/llm"
	"github.com/muika-lab/memekeeper/pkg/match"
	"github.com/muika-lab/memekeeper/pkg/storage"
)

// ClientOption is a function type for configuring a Client at construction.
//
// Options are applied using the functional options pattern. They exist mainly
// to inject collaborators: tests substitute fake providers and stores, hosts
// hand in their own logger and a seeded random source.
type ClientOption func(*clientOptions)

// clientOptions collects construction-time overrides.
type clientOptions struct {
	logger     *slog.Logger
	randSource rand.Source
	store      storage.Store
	blobs      blob.Store
	llm        llm.Provider
	embedder   embedder.Provider
	strategy   match.Strategy
}

// WithLogger sets the logger used by the client and every component it wires.
//
// Example:
//
//	client, _ := core.NewClient(cfg, core.WithLogger(slog.Default()))
func WithLogger(logger *slog.Logger) ClientOption {
	return func(opts *clientOptions) {
		opts.logger = logger
	}
}

// WithRandSource sets the random source behind the probabilistic gates.
//
// Passing a seeded source makes ShouldSave/ShouldSend draws reproducible:
//
//	client, _ := core.NewClient(cfg, core.WithRandSource(rand.NewSource(42)))
func WithRandSource(source rand.Source) ClientOption {
	return func(opts *clientOptions) {
		opts.randSource = source
	}
}

// WithStore overrides the metadata store built from Config.Storage.
func WithStore(store storage.Store) ClientOption {
	return func(opts *clientOptions) {
		opts.store = store
	}
}

// WithBlobStore overrides the blob store built from Config.Blob.
func WithBlobStore(store blob.Store) ClientOption {
	return func(opts *clientOptions) {
		opts.blobs = store
	}
}

// WithLLMProvider overrides the LLM provider built from Config.LLM.
func WithLLMProvider(provider llm.Provider) ClientOption {
	return func(opts *clientOptions) {
		opts.llm = provider
	}
}

// WithEmbedder overrides the embedding provider built from Config.Embedder.
func WithEmbedder(provider embedder.Provider) ClientOption {
	return func(opts *clientOptions) {
		opts.embedder = provider
	}
}

// WithMatchStrategy overrides the strategy selected by Config.SimilarityMethod.
func WithMatchStrategy(strategy match.Strategy) ClientOption {
	return func(opts *clientOptions) {
		opts.strategy = strategy
	}
}

// applyClientOptions applies a slice of ClientOption functions.
func applyClientOptions(opts []ClientOption) *clientOptions {
	options := &clientOptions{}
	for _, opt := range opts {
		opt(options)
	}
	return options
}
