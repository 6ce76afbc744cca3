package chunker

import (
	"context"
	"strings"
	"unicode/utf8"
)

// Counter measures text in engine tokens.
type Counter interface {
	CountTokens(ctx context.Context, text string) (int, error)
}

// EstimateTokens gives a rough token count without a tokenizer: the larger of
// ~1.33 tokens per word and ~4 characters per token.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	byWords := int(float64(len(strings.Fields(text))) * 1.33)
	byChars := (utf8.RuneCountInString(text) + 3) / 4
	tokens := max(byWords, byChars)
	if tokens < 1 {
		tokens = 1
	}
	return tokens
}

// EstimateCounter is a Counter backed by EstimateTokens.
type EstimateCounter struct{}

func (EstimateCounter) CountTokens(_ context.Context, text string) (int, error) {
	return EstimateTokens(text), nil
}
