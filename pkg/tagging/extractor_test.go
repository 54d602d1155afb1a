package tagging_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/muika-lab/memekeeper/pkg/llm"
	"github.com/muika-lab/memekeeper/pkg/tagging"
)

type scriptedLLM struct {
	response string
	err      error
}

func (s *scriptedLLM) Generate(ctx context.Context, prompt string, opts ...llm.GenerateOption) (string, error) {
	return s.response, s.err
}

func (s *scriptedLLM) GenerateWithMessages(ctx context.Context, messages []llm.Message, opts ...llm.GenerateOption) (string, error) {
	return s.response, s.err
}

func (s *scriptedLLM) Close() error { return nil }

func TestTagsFromText(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "single keyword",
			text: "(happy) Congratulations!",
			want: []string{"happy"},
		},
		{
			name: "multiple keywords",
			text: "(happy) Great! (proud) You earned it.",
			want: []string{"happy", "proud"},
		},
		{
			name: "fullwidth parentheses",
			text: "（开心）太好了！",
			want: []string{"开心"},
		},
		{
			name: "mixed parentheses",
			text: "(happy) and （得意） together",
			want: []string{"happy", "得意"},
		},
		{
			name: "no keywords",
			text: "A plain reply with no annotation.",
			want: nil,
		},
		{
			name: "empty parentheses ignored",
			text: "() ( ) (ok)",
			want: []string{"ok"},
		},
		{
			name: "whitespace trimmed",
			text: "(  happy  ) done",
			want: []string{"happy"},
		},
		{
			name: "empty text",
			text: "",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tagging.TagsFromText(tt.text))
		})
	}
}

func TestDescribeImage(t *testing.T) {
	ctx := context.Background()
	image := []byte("fake-image")

	t.Run("strict JSON", func(t *testing.T) {
		extractor := tagging.NewExtractor(&scriptedLLM{
			response: `{"desc": "a grinning cat", "tags": ["happy", "cat"]}`,
		}, time.Second, nil)

		desc, tags := extractor.DescribeImage(ctx, image)
		assert.Equal(t, "a grinning cat", desc)
		assert.Equal(t, []string{"happy", "cat"}, tags)
	})

	t.Run("fenced JSON", func(t *testing.T) {
		extractor := tagging.NewExtractor(&scriptedLLM{
			response: "```json\n{\"desc\": \"a crying dog\", \"tags\": [\"sad\"]}\n```",
		}, time.Second, nil)

		desc, tags := extractor.DescribeImage(ctx, image)
		assert.Equal(t, "a crying dog", desc)
		assert.Equal(t, []string{"sad"}, tags)
	})

	t.Run("blank tags dropped", func(t *testing.T) {
		extractor := tagging.NewExtractor(&scriptedLLM{
			response: `{"desc": "x", "tags": ["happy", "  ", ""]}`,
		}, time.Second, nil)

		_, tags := extractor.DescribeImage(ctx, image)
		assert.Equal(t, []string{"happy"}, tags)
	})

	t.Run("unparseable response degrades to empty", func(t *testing.T) {
		extractor := tagging.NewExtractor(&scriptedLLM{
			response: "I see a cat.",
		}, time.Second, nil)

		desc, tags := extractor.DescribeImage(ctx, image)
		assert.Empty(t, desc)
		assert.Empty(t, tags)
	})

	t.Run("provider error degrades to empty", func(t *testing.T) {
		extractor := tagging.NewExtractor(&scriptedLLM{
			err: errors.New("model unavailable"),
		}, time.Second, nil)

		desc, tags := extractor.DescribeImage(ctx, image)
		assert.Empty(t, desc)
		assert.Empty(t, tags)
	})

	t.Run("nil provider degrades to empty", func(t *testing.T) {
		extractor := tagging.NewExtractor(nil, time.Second, nil)

		desc, tags := extractor.DescribeImage(ctx, image)
		assert.Empty(t, desc)
		assert.Empty(t, tags)
	})
}
