package match

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/muika-lab/memekeeper/pkg/llm"
	"github.com/muika-lab/memekeeper/pkg/storage"
)

// adjudicationPrompt frames the single-call adjudication. The model answers
// with a bare candidate id, or -1 when nothing fits the conversation.
const adjudicationPrompt = `You are choosing a reaction image ("meme") to attach to a chat reply.
The user wrote:
%s
---
The assistant is replying:
%s
---
Below is the candidate matrix, one per line as "id / tags / description".
Pick the id of the single best-fitting candidate for the reply's mood.
Answer with that id as a bare integer and nothing else.
If no candidate fits, or attaching a meme would be inappropriate here, answer -1.`

var idPattern = regexp.MustCompile(`-?\d+`)

// LLMStrategy adjudicates the candidate pool with a single LLM call.
//
// It is the expensive, high-precision strategy: the whole (capped) candidate
// matrix goes to the model at once, and the model either names a candidate or
// declines. Capability failures and timeouts degrade to no match.
type LLMStrategy struct {
	llm llm.Provider

	// maxQuery caps how many candidates are forwarded to the model,
	// bounding the per-call cost. Candidates beyond the cap are dropped
	// from the front of the (most-recent-first) pool deterministically.
	maxQuery int

	timeout time.Duration
	logger  *slog.Logger
}

// NewLLMStrategy creates the LLM adjudication strategy.
//
// maxQuery bounds the candidates per call; timeout bounds the call itself.
// If logger is nil, the default slog logger is used.
func NewLLMStrategy(provider llm.Provider, maxQuery int, timeout time.Duration, logger *slog.Logger) *LLMStrategy {
	if logger == nil {
		logger = slog.Default()
	}
	return &LLMStrategy{
		llm:      provider,
		maxQuery: maxQuery,
		timeout:  timeout,
		logger:   logger,
	}
}

// Match presents the candidate matrix to the model and returns its pick.
func (s *LLMStrategy) Match(ctx context.Context, query Query, candidates []*storage.Meme) (int64, bool) {
	if len(candidates) == 0 || s.llm == nil {
		return 0, false
	}

	if s.maxQuery > 0 && len(candidates) > s.maxQuery {
		candidates = candidates[:s.maxQuery]
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	system := fmt.Sprintf(adjudicationPrompt, query.UserMessage, query.ReplyText)
	messages := []llm.Message{
		{Role: "system", Content: system},
		{Role: "user", Content: candidateMatrix(candidates)},
	}

	response, err := s.llm.GenerateWithMessages(ctx, messages)
	if err != nil {
		s.logger.Warn("llm adjudication failed, attaching no meme", "err", err)
		return 0, false
	}

	id, ok := parseAdjudication(response)
	if !ok {
		s.logger.Warn("llm adjudication returned no usable id", "response", response)
		return 0, false
	}
	if id < 0 {
		s.logger.Debug("llm adjudication declined all candidates")
		return 0, false
	}

	// The model may hallucinate an id outside the matrix; treat it as none.
	for _, candidate := range candidates {
		if candidate.ID == id {
			s.logger.Debug("llm adjudication match", "meme_id", id, "tags", candidate.Tags)
			return id, true
		}
	}

	s.logger.Warn("llm adjudication named an unknown candidate", "meme_id", id)
	return 0, false
}

// candidateMatrix renders the candidate pool one line per meme.
func candidateMatrix(candidates []*storage.Meme) string {
	lines := make([]string, len(candidates))
	for i, meme := range candidates {
		lines[i] = fmt.Sprintf("id: %d, tags: %v, desc: %s;", meme.ID, meme.Tags, meme.Description)
	}
	return strings.Join(lines, "\n")
}

// parseAdjudication extracts the chosen id, tolerating surrounding prose.
func parseAdjudication(response string) (int64, bool) {
	response = strings.TrimSpace(response)
	if id, err := strconv.ParseInt(response, 10, 64); err == nil {
		return id, true
	}

	match := idPattern.FindString(response)
	if match == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(match, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}
