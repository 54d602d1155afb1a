// Package safety gates candidate images through an LLM-backed content check
// before admission.
package safety

import (
	"context"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/muika-lab/memekeeper/pkg/llm"
)

// checkPrompt asks the model for a bare 0/1 verdict.
const checkPrompt = `You are a content-safety reviewer for an image store attached to a chat assistant.
Look at the image and decide whether it is safe to keep and re-send in casual conversation.
Reject anything sexual, violent, hateful, or containing personal information.
Reply with the single digit 1 to approve or 0 to reject. No other text.`

var digitPattern = regexp.MustCompile(`\d+`)

// Filter approves or rejects candidate images before admission.
//
// The filter fails closed: a capability error, timeout, or unparseable reply
// counts as a rejection, because admitting unreviewed content is the worse
// failure mode. When disabled it approves everything.
type Filter struct {
	llm     llm.Provider
	enabled bool
	timeout time.Duration
	logger  *slog.Logger
}

// NewFilter creates a security filter backed by the given LLM provider.
//
// When enabled is false the filter approves unconditionally and never calls
// the provider. If logger is nil, the default slog logger is used.
func NewFilter(provider llm.Provider, enabled bool, timeout time.Duration, logger *slog.Logger) *Filter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Filter{
		llm:     provider,
		enabled: enabled,
		timeout: timeout,
		logger:  logger,
	}
}

// Approve reports whether the image may be admitted.
func (f *Filter) Approve(ctx context.Context, image []byte) bool {
	if !f.enabled {
		return true
	}
	if f.llm == nil {
		f.logger.Warn("security check enabled but no llm provider configured, rejecting")
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	messages := []llm.Message{
		{Role: "system", Content: checkPrompt},
		{Role: "user", Content: "Reply with 0 or 1.", Images: [][]byte{image}},
	}

	response, err := f.llm.GenerateWithMessages(ctx, messages)
	if err != nil {
		f.logger.Warn("security check failed, rejecting candidate", "err", err)
		return false
	}

	verdict, ok := parseVerdict(response)
	if !ok {
		f.logger.Warn("security check returned unparseable verdict, rejecting", "response", response)
		return false
	}

	return verdict
}

// parseVerdict extracts the 0/1 verdict, tolerating surrounding prose.
func parseVerdict(response string) (bool, bool) {
	response = strings.TrimSpace(response)
	if n, err := strconv.Atoi(response); err == nil {
		return n != 0, true
	}

	match := digitPattern.FindString(response)
	if match == "" {
		return false, false
	}
	n, err := strconv.Atoi(match)
	if err != nil {
		return false, false
	}
	return n != 0, true
}
