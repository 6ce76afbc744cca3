// Package engine talks to the text-generation backend.
package engine

import (
	"context"
	"encoding/json"
)

// Request is one generation call.
type Request struct {
	System      string
	User        string
	MaxTokens   int
	Temperature float64
	// Schema optionally constrains the output to a JSON schema.
	Schema json.RawMessage
}

// Completion is the engine's answer to a Request.
type Completion struct {
	Text string
	// Truncated is set when generation stopped because MaxTokens ran out.
	Truncated bool
}

// Engine generates text. Implementations are not safe for concurrent use;
// the pipeline calls them from one goroutine.
type Engine interface {
	Generate(ctx context.Context, req Request) (Completion, error)
}

// Tokenizer counts tokens the way the engine does.
type Tokenizer interface {
	CountTokens(ctx context.Context, text string) (int, error)
}
