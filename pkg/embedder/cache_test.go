package embedder_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muika-lab/memekeeper/pkg/embedder"
)

// countingEmbedder records how many times each entry point is hit.
type countingEmbedder struct {
	embedCalls int
	batchCalls int
	err        error
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	c.embedCalls++
	if c.err != nil {
		return nil, c.err
	}
	return []float64{float64(len(text)), 1}, nil
}

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	c.batchCalls++
	if c.err != nil {
		return nil, c.err
	}
	out := make([][]float64, len(texts))
	for i, text := range texts {
		out[i] = []float64{float64(len(text)), 1}
	}
	return out, nil
}

func (c *countingEmbedder) Dimensions() int { return 2 }
func (c *countingEmbedder) Close() error    { return nil }

func TestEmbedCachesRepeatedText(t *testing.T) {
	inner := &countingEmbedder{}
	provider := embedder.NewCachingProvider(inner, time.Minute)
	ctx := context.Background()

	first, err := provider.Embed(ctx, "hello")
	require.NoError(t, err)
	second, err := provider.Embed(ctx, "hello")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, inner.embedCalls, "the second call must be served from cache")

	_, err = provider.Embed(ctx, "different")
	require.NoError(t, err)
	assert.Equal(t, 2, inner.embedCalls)
}

func TestEmbedErrorNotCached(t *testing.T) {
	inner := &countingEmbedder{err: errors.New("rate limited")}
	provider := embedder.NewCachingProvider(inner, time.Minute)
	ctx := context.Background()

	_, err := provider.Embed(ctx, "hello")
	require.Error(t, err)

	inner.err = nil
	_, err = provider.Embed(ctx, "hello")
	require.NoError(t, err, "a failed call must not poison the cache")
	assert.Equal(t, 2, inner.embedCalls)
}

func TestEmbedBatchOnlyMissesHitProvider(t *testing.T) {
	inner := &countingEmbedder{}
	provider := embedder.NewCachingProvider(inner, time.Minute)
	ctx := context.Background()

	_, err := provider.Embed(ctx, "cached")
	require.NoError(t, err)

	out, err := provider.EmbedBatch(ctx, []string{"cached", "fresh"})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, []float64{6, 1}, out[0])
	assert.Equal(t, []float64{5, 1}, out[1])
	assert.Equal(t, 1, inner.batchCalls)

	// Everything cached now: no provider call at all.
	_, err = provider.EmbedBatch(ctx, []string{"cached", "fresh"})
	require.NoError(t, err)
	assert.Equal(t, 1, inner.batchCalls)
}

func TestZeroTTLNeverExpires(t *testing.T) {
	inner := &countingEmbedder{}
	provider := embedder.NewCachingProvider(inner, 0)
	ctx := context.Background()

	_, err := provider.Embed(ctx, "hello")
	require.NoError(t, err)
	_, err = provider.Embed(ctx, "hello")
	require.NoError(t, err)
	assert.Equal(t, 1, inner.embedCalls)
}

func TestDimensionsDelegates(t *testing.T) {
	provider := embedder.NewCachingProvider(&countingEmbedder{}, time.Minute)
	assert.Equal(t, 2, provider.Dimensions())
}
