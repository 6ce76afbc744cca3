package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/dgallion1/genqa/internal/chunker"
	"github.com/dgallion1/genqa/internal/convert"
	"github.com/dgallion1/genqa/internal/engine"
)

const validJSON = `[{"question":"What is it?","answer":"A thing.","supporting_quotes":["a thing"]}]`

// step is one scripted engine response.
type step struct {
	text      string
	truncated bool
	err       error
}

func valid() step { return step{text: validJSON} }
func invalid() step { return step{text: "not json at all"} }
func truncated() step { return step{text: `[{"question":"Q`, truncated: true} }
func engineErr() step { return step{err: &engine.Error{Kind: engine.Crashed, Err: errors.New("boom")}} }
func output(json string) step { return step{text: json} }

// scriptedEngine replays steps in order and repeats the last one when the
// script runs out.
type scriptedEngine struct {
	mu     sync.Mutex
	steps  []step
	calls  []engine.Request
	ctxErr []error
	// onCall runs after each call is recorded.
	onCall func(n int)
}

func (s *scriptedEngine) Generate(ctx context.Context, req engine.Request) (engine.Completion, error) {
	s.mu.Lock()
	s.calls = append(s.calls, req)
	s.ctxErr = append(s.ctxErr, ctx.Err())
	n := len(s.calls)
	st := step{text: "[]"}
	if len(s.steps) > 0 {
		st = s.steps[min(n, len(s.steps))-1]
	}
	onCall := s.onCall
	s.mu.Unlock()

	if onCall != nil {
		onCall(n)
	}
	if st.err != nil {
		return engine.Completion{}, st.err
	}
	return engine.Completion{Text: st.text, Truncated: st.truncated}, nil
}

func (s *scriptedEngine) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

// mapConverter serves Markdown from memory.
type mapConverter struct {
	docs  map[string]string
	calls []string
}

func (m *mapConverter) Convert(path string) (string, error) {
	m.calls = append(m.calls, path)
	md, ok := m.docs[path]
	if !ok {
		return "", &convert.ConversionError{Kind: convert.CorruptInput, Path: path, Err: errors.New("unreadable")}
	}
	return md, nil
}

// wordCounter counts one token per word, so a budget of 2 puts each
// two-word paragraph in its own chunk.
type wordCounter struct{}

func (wordCounter) CountTokens(_ context.Context, text string) (int, error) {
	return len(strings.Fields(text)), nil
}

const threeParagraphs = "First paragraph.\n\nSecond paragraph.\n\nThird paragraph."

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testOptions() Options {
	return Options{
		MaxQuestions:    3,
		Temperature:     0,
		MaxOutputTokens: 256,
		Budget:          2,
	}
}

func newTestOrchestrator(conv *mapConverter, eng *scriptedEngine) *Orchestrator {
	return NewOrchestrator(conv, chunker.New(wordCounter{}), eng, discardLogger(), nil)
}
