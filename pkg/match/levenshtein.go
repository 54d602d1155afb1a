package match

import (
	"context"
	"log/slog"

	"github.com/muika-lab/memekeeper/pkg/storage"
)

// LevenshteinStrategy scores candidates by normalized edit distance between
// query tags and candidate tags.
//
// The similarity of a tag pair is 1 - dist/max(len), computed over runes. A
// candidate's score is its best single pair, not an average: one strong tag
// match outranks many weak ones. Candidates below the acceptance floor are
// discarded, so an empty result is common and expected with this strategy.
type LevenshteinStrategy struct {
	// floor is the minimum score a candidate must reach to be returned.
	floor float64

	logger *slog.Logger
}

// NewLevenshteinStrategy creates the edit-distance strategy with the given
// acceptance floor. If logger is nil, the default slog logger is used.
func NewLevenshteinStrategy(floor float64, logger *slog.Logger) *LevenshteinStrategy {
	if logger == nil {
		logger = slog.Default()
	}
	return &LevenshteinStrategy{
		floor:  floor,
		logger: logger,
	}
}

// Match returns the candidate with the highest tag similarity, ties broken by
// most-recent CreatedAt and then larger ID, or none when the best score falls
// below the floor.
func (s *LevenshteinStrategy) Match(ctx context.Context, query Query, candidates []*storage.Meme) (int64, bool) {
	if len(query.Tags) == 0 || len(candidates) == 0 {
		return 0, false
	}

	var best *storage.Meme
	bestScore := -1.0

	for _, candidate := range candidates {
		score := 0.0
		for _, tag := range candidate.Tags {
			for _, keyword := range query.Tags {
				if sim := tagSimilarity(tag, keyword); sim > score {
					score = sim
				}
			}
		}

		switch {
		case score > bestScore:
			best, bestScore = candidate, score
		case score == bestScore && best != nil && moreRecent(candidate, best):
			best = candidate
		}
	}

	if best == nil || bestScore < s.floor {
		s.logger.Debug("no candidate cleared the acceptance floor",
			"best_score", bestScore, "floor", s.floor, "candidates", len(candidates))
		return 0, false
	}

	s.logger.Debug("levenshtein match",
		"meme_id", best.ID, "score", bestScore, "tags", best.Tags)
	return best.ID, true
}

// tagSimilarity returns the normalized similarity of two tags in [0,1].
func tagSimilarity(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	maxLen := len(ra)
	if len(rb) > maxLen {
		maxLen = len(rb)
	}
	if maxLen == 0 {
		return 0
	}
	return 1.0 - float64(levenshteinDistance(ra, rb))/float64(maxLen)
}

// levenshteinDistance computes the edit distance between two rune slices
// using the two-row dynamic programming form.
func levenshteinDistance(s1, s2 []rune) int {
	if len(s1) < len(s2) {
		s1, s2 = s2, s1
	}
	if len(s2) == 0 {
		return len(s1)
	}

	previousRow := make([]int, len(s2)+1)
	currentRow := make([]int, len(s2)+1)
	for j := range previousRow {
		previousRow[j] = j
	}

	for i, c1 := range s1 {
		currentRow[0] = i + 1
		for j, c2 := range s2 {
			insertions := previousRow[j+1] + 1
			deletions := currentRow[j] + 1
			substitutions := previousRow[j]
			if c1 != c2 {
				substitutions++
			}
			currentRow[j+1] = min3(insertions, deletions, substitutions)
		}
		previousRow, currentRow = currentRow, previousRow
	}

	return previousRow[len(s2)]
}

// moreRecent reports whether a should win a tie against b.
func moreRecent(a, b *storage.Meme) bool {
	if a.CreatedAt.After(b.CreatedAt) {
		return true
	}
	if a.CreatedAt.Equal(b.CreatedAt) {
		return a.ID > b.ID
	}
	return false
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
