// Package match ranks stored memes against a live query and returns the best
// candidate, under one of several interchangeable strategies.
//
// The strategies span very different cost/accuracy tradeoffs: a cheap
// deterministic edit-distance method, an embedding-based cosine method, and
// an expensive LLM-adjudicated method. All implement the same contract so the
// orchestrator stays strategy-agnostic.
package match

import (
	"context"

	"github.com/muika-lab/memekeeper/pkg/storage"
)

// Query carries the context a strategy may use to pick a meme.
type Query struct {
	// Tags is the emotion tag set derived from the outgoing reply.
	// Used by the levenshtein strategy.
	Tags []string

	// ReplyText is the full outgoing reply. Used by the cosine and llm
	// strategies.
	ReplyText string

	// UserMessage is the inbound message the reply answers. Gives the llm
	// strategy conversational context; optional.
	UserMessage string
}

// Strategy selects the best-matching meme from a candidate pool.
//
// Match returns (0, false) when the pool is empty or no candidate clears the
// strategy's acceptance threshold. Capability failures and timeouts also
// yield (0, false): a missing meme attachment must never break the
// surrounding conversational turn.
//
// Candidates arrive most-recent-first, already capped by the caller; a
// strategy never touches storage itself.
type Strategy interface {
	Match(ctx context.Context, query Query, candidates []*storage.Meme) (int64, bool)
}
