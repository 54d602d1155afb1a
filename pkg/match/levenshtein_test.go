package match_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/muika-lab/memekeeper/pkg/match"
	"github.com/muika-lab/memekeeper/pkg/storage"
)

func meme(id int64, createdAt time.Time, tags ...string) *storage.Meme {
	return &storage.Meme{ID: id, Tags: tags, Valid: true, CreatedAt: createdAt}
}

func TestLevenshteinExactTagMatch(t *testing.T) {
	strategy := match.NewLevenshteinStrategy(0.5, nil)
	now := time.Now()

	candidates := []*storage.Meme{
		meme(1, now, "happy"),
		meme(2, now, "sad"),
	}

	id, ok := strategy.Match(context.Background(), match.Query{Tags: []string{"happy"}}, candidates)
	assert.True(t, ok)
	assert.Equal(t, int64(1), id)
}

func TestLevenshteinEmptyInputs(t *testing.T) {
	strategy := match.NewLevenshteinStrategy(0.5, nil)
	now := time.Now()

	id, ok := strategy.Match(context.Background(), match.Query{Tags: []string{"happy"}}, nil)
	assert.False(t, ok)
	assert.Zero(t, id)

	id, ok = strategy.Match(context.Background(), match.Query{}, []*storage.Meme{meme(1, now, "happy")})
	assert.False(t, ok, "no query tags means no match")
	assert.Zero(t, id)
}

func TestLevenshteinAcceptanceFloor(t *testing.T) {
	strategy := match.NewLevenshteinStrategy(0.5, nil)
	now := time.Now()

	// "happy" vs "gloomy": similarity well below 0.5.
	candidates := []*storage.Meme{meme(1, now, "gloomy")}
	_, ok := strategy.Match(context.Background(), match.Query{Tags: []string{"happy"}}, candidates)
	assert.False(t, ok)

	// "happy" vs "happy!" is 5/6 over runes, above the floor.
	candidates = []*storage.Meme{meme(2, now, "happy!")}
	id, ok := strategy.Match(context.Background(), match.Query{Tags: []string{"happy"}}, candidates)
	assert.True(t, ok)
	assert.Equal(t, int64(2), id)
}

func TestLevenshteinBestPairWins(t *testing.T) {
	strategy := match.NewLevenshteinStrategy(0.5, nil)
	now := time.Now()

	// One perfect tag beats several near misses.
	candidates := []*storage.Meme{
		meme(1, now, "happ", "hapy", "appy"),
		meme(2, now, "grumpy", "happy"),
	}

	id, ok := strategy.Match(context.Background(), match.Query{Tags: []string{"happy"}}, candidates)
	assert.True(t, ok)
	assert.Equal(t, int64(2), id)
}

func TestLevenshteinTieBreaksByRecency(t *testing.T) {
	strategy := match.NewLevenshteinStrategy(0.5, nil)
	older := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	newer := older.Add(time.Hour)

	candidates := []*storage.Meme{
		meme(1, older, "happy"),
		meme(2, newer, "happy"),
	}

	id, ok := strategy.Match(context.Background(), match.Query{Tags: []string{"happy"}}, candidates)
	assert.True(t, ok)
	assert.Equal(t, int64(2), id, "equal scores resolve to the newer meme")

	// Same timestamp: the larger ID wins.
	candidates = []*storage.Meme{
		meme(7, older, "happy"),
		meme(3, older, "happy"),
	}
	id, ok = strategy.Match(context.Background(), match.Query{Tags: []string{"happy"}}, candidates)
	assert.True(t, ok)
	assert.Equal(t, int64(7), id)
}

func TestLevenshteinCJKTags(t *testing.T) {
	strategy := match.NewLevenshteinStrategy(0.5, nil)
	now := time.Now()

	// Distance is computed over runes, not bytes.
	candidates := []*storage.Meme{meme(1, now, "开心")}
	id, ok := strategy.Match(context.Background(), match.Query{Tags: []string{"开心"}}, candidates)
	assert.True(t, ok)
	assert.Equal(t, int64(1), id)
}
