package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// CachingProvider wraps a Provider with an in-memory embedding cache.
//
// Meme descriptions are embedded once at admission but reply text is embedded
// on every cosine-strategy query; caching keeps repeated phrasings from
// costing a round-trip each time. Entries are keyed by the SHA-256 of the
// input text and expire after the configured TTL.
type CachingProvider struct {
	inner Provider
	cache *gocache.Cache
}

// NewCachingProvider wraps inner with a cache holding entries for ttl.
// A ttl of 0 means entries never expire.
func NewCachingProvider(inner Provider, ttl time.Duration) *CachingProvider {
	expiration := ttl
	if expiration == 0 {
		expiration = gocache.NoExpiration
	}
	return &CachingProvider{
		inner: inner,
		cache: gocache.New(expiration, 10*time.Minute),
	}
}

// Embed returns the cached embedding for text or delegates to the inner provider.
func (p *CachingProvider) Embed(ctx context.Context, text string) ([]float64, error) {
	key := cacheKey(text)
	if cached, ok := p.cache.Get(key); ok {
		return cached.([]float64), nil
	}

	embedding, err := p.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	p.cache.SetDefault(key, embedding)
	return embedding, nil
}

// EmbedBatch embeds texts, serving cached entries and batching only the misses.
func (p *CachingProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	var missIdx []int
	var missTexts []string

	for i, text := range texts {
		if cached, ok := p.cache.Get(cacheKey(text)); ok {
			out[i] = cached.([]float64)
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}

	if len(missTexts) == 0 {
		return out, nil
	}

	embeddings, err := p.inner.EmbedBatch(ctx, missTexts)
	if err != nil {
		return nil, err
	}

	for j, i := range missIdx {
		out[i] = embeddings[j]
		p.cache.SetDefault(cacheKey(texts[i]), embeddings[j])
	}

	return out, nil
}

// Dimensions returns the inner provider's embedding dimension.
func (p *CachingProvider) Dimensions() int {
	return p.inner.Dimensions()
}

// Close closes the inner provider.
func (p *CachingProvider) Close() error {
	return p.inner.Close()
}

func cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
