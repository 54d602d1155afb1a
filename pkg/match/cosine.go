package match

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/muika-lab/memekeeper/pkg/embedder"
	"github.com/muika-lab/memekeeper/pkg/storage"
)

// CosineStrategy scores candidates by cosine similarity between the embedded
// reply text and each candidate's stored description embedding.
//
// Descriptions are embedded once at admission; candidates that predate an
// embedder configuration carry no vector and are skipped. Embedder failures
// degrade to no match.
type CosineStrategy struct {
	embedder embedder.Provider

	// floor is the minimum similarity a candidate must reach.
	floor float64

	timeout time.Duration
	logger  *slog.Logger
}

// NewCosineStrategy creates the embedding-based strategy.
// If logger is nil, the default slog logger is used.
func NewCosineStrategy(provider embedder.Provider, floor float64, timeout time.Duration, logger *slog.Logger) *CosineStrategy {
	if logger == nil {
		logger = slog.Default()
	}
	return &CosineStrategy{
		embedder: provider,
		floor:    floor,
		timeout:  timeout,
		logger:   logger,
	}
}

// Match embeds the reply text and returns the most similar candidate.
func (s *CosineStrategy) Match(ctx context.Context, query Query, candidates []*storage.Meme) (int64, bool) {
	if len(candidates) == 0 || s.embedder == nil || query.ReplyText == "" {
		return 0, false
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	queryVec, err := s.embedder.Embed(ctx, query.ReplyText)
	if err != nil {
		s.logger.Warn("query embedding failed, attaching no meme", "err", err)
		return 0, false
	}

	var best *storage.Meme
	bestScore := 0.0

	for _, candidate := range candidates {
		if len(candidate.Embedding) == 0 {
			continue
		}
		score := cosineSimilarity(queryVec, candidate.Embedding)
		if score > bestScore || (score == bestScore && best != nil && moreRecent(candidate, best)) {
			best, bestScore = candidate, score
		}
	}

	if best == nil || bestScore < s.floor {
		s.logger.Debug("no candidate cleared the similarity floor",
			"best_score", bestScore, "floor", s.floor)
		return 0, false
	}

	s.logger.Debug("cosine match", "meme_id", best.ID, "score", bestScore)
	return best.ID, true
}

// cosineSimilarity calculates the cosine similarity between two vectors.
func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}
