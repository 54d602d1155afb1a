// Package tagging derives semantic/emotion tags for candidate images and for
// outgoing reply text.
//
// Image tagging is backed by a multimodal LLM call; reply-text tagging is a
// cheap lexical extraction of parenthesized emotion keywords, which is the
// convention the conversational host uses to surface the reply's mood.
package tagging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/muika-lab/memekeeper/pkg/llm"
)

// Extractor derives tags and a caption for a candidate image, and query tags
// for an outgoing reply. It has no internal state beyond its collaborators.
//
// Tag extraction never fails hard: any capability error or timeout yields an
// empty result, since a missing tag set is a tolerable outcome while a failed
// conversational turn is not.
type Extractor struct {
	llm     llm.Provider
	timeout time.Duration
	logger  *slog.Logger
}

// describePrompt asks for caption and tags in one adjudication call.
const describePrompt = `You are labelling an image snippet ("meme") for an emotion-aware reply store.
Look at the image and respond with strict JSON in the form:
{"desc": "<one-sentence caption>", "tags": ["<emotion or theme>", ...]}
Tags are short lowercase words (e.g. "happy", "sad", "smug", "cat").
Return 2-6 tags. Return JSON only, no surrounding prose.`

// keywordPattern matches parenthesized emotion keywords in reply text.
// Both ASCII and fullwidth parentheses are honoured since replies may be CJK.
var keywordPattern = regexp.MustCompile(`[(（]([^()（）]+)[)）]`)

// NewExtractor creates a tag extractor backed by the given LLM provider.
//
// Every capability call runs under the given timeout. If logger is nil, the
// default slog logger is used.
func NewExtractor(provider llm.Provider, timeout time.Duration, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{
		llm:     provider,
		timeout: timeout,
		logger:  logger,
	}
}

// DescribeImage asks the LLM for a caption and tag set for the image.
//
// Failures degrade to an empty caption and tag set, never an error: the
// caller may still admit an untagged meme.
func (e *Extractor) DescribeImage(ctx context.Context, image []byte) (string, []string) {
	if e.llm == nil {
		return "", nil
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	messages := []llm.Message{
		{Role: "system", Content: describePrompt},
		{Role: "user", Content: "Label this image.", Images: [][]byte{image}},
	}

	response, err := e.llm.GenerateWithMessages(ctx, messages)
	if err != nil {
		e.logger.Warn("image tagging failed, continuing with empty tags", "err", err)
		return "", nil
	}

	desc, tags, err := parseDescribeResponse(response)
	if err != nil {
		e.logger.Warn("image tagging returned unparseable response", "err", err)
		return "", nil
	}

	return desc, tags
}

// TagsFromText extracts parenthesized emotion keywords from reply text.
//
// The conversational host annotates replies with keywords like "(happy)";
// an un-annotated reply yields an empty tag set, which the levenshtein
// strategy documents as a frequent no-result case.
func TagsFromText(text string) []string {
	matches := keywordPattern.FindAllStringSubmatch(text, -1)
	var tags []string
	for _, match := range matches {
		keyword := strings.TrimSpace(match[1])
		if keyword != "" {
			tags = append(tags, keyword)
		}
	}
	return tags
}

// parseDescribeResponse parses the {"desc": ..., "tags": [...]} reply.
func parseDescribeResponse(response string) (string, []string, error) {
	response = removeCodeBlocks(response)

	var result struct {
		Desc string   `json:"desc"`
		Tags []string `json:"tags"`
	}
	if err := json.Unmarshal([]byte(response), &result); err != nil {
		return "", nil, fmt.Errorf("invalid JSON response: %w", err)
	}

	tags := make([]string, 0, len(result.Tags))
	for _, tag := range result.Tags {
		tag = strings.TrimSpace(tag)
		if tag != "" {
			tags = append(tags, tag)
		}
	}

	return strings.TrimSpace(result.Desc), tags, nil
}

// removeCodeBlocks removes code fences (```json ... ```) from a response.
func removeCodeBlocks(response string) string {
	response = strings.ReplaceAll(response, "```json", "")
	response = strings.ReplaceAll(response, "```", "")
	return strings.TrimSpace(response)
}
