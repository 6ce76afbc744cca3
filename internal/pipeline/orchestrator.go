package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dgallion1/genqa/internal/chunker"
	"github.com/dgallion1/genqa/internal/convert"
	"github.com/dgallion1/genqa/internal/engine"
	"github.com/dgallion1/genqa/internal/metrics"
	"github.com/dgallion1/genqa/internal/record"
)

// Options are the per-document extraction settings.
type Options struct {
	MaxQuestions    int
	Temperature     float64
	MaxOutputTokens int
	// Budget is the chunk token budget.
	Budget int

	// Resume is a checkpoint from an interrupted run. Its chunks are reused
	// when they match the start of the new chunking.
	Resume *record.Document
	// OnChunk is called after each chunk is appended to doc.
	OnChunk func(doc *record.Document, res ChunkResult, total int)
}

// Orchestrator turns one source document into a record: convert, chunk, then
// generate chunk by chunk.
type Orchestrator struct {
	converter convert.Converter
	chunker   *chunker.Chunker
	engine    engine.Engine
	log       *slog.Logger
	metrics   *metrics.Metrics
}

func NewOrchestrator(conv convert.Converter, ch *chunker.Chunker, eng engine.Engine, log *slog.Logger, m *metrics.Metrics) *Orchestrator {
	return &Orchestrator{
		converter: conv,
		chunker:   ch,
		engine:    eng,
		log:       log,
		metrics:   m,
	}
}

// ExtractDocument builds the record for path. Chunk failures never fail the
// document; conversion and chunking failures do. If ctx is cancelled between
// chunks, the partial record is returned together with ctx.Err().
func (o *Orchestrator) ExtractDocument(ctx context.Context, path string, opts Options) (*record.Document, error) {
	log := o.log.With("source", path)

	markdown, err := o.converter.Convert(path)
	if err != nil {
		return nil, err
	}

	chunks, err := o.chunker.Chunk(ctx, markdown, opts.Budget)
	if err != nil {
		return nil, fmt.Errorf("chunk %s: %w", path, err)
	}
	log.Info("chunked document", "chunks", len(chunks), "budget", opts.Budget)

	doc := &record.Document{
		SourceFilepath: path,
		MarkdownText:   markdown,
		Chunks:         make([]record.Chunk, 0, len(chunks)),
	}

	start := resumePoint(opts.Resume, markdown, chunks)
	if start > 0 {
		doc.Chunks = append(doc.Chunks, opts.Resume.Chunks[:start]...)
		log.Info("resuming from checkpoint", "chunks_done", start)
	} else if opts.Resume != nil && len(opts.Resume.Chunks) > 0 {
		log.Warn("checkpoint does not match document, starting over")
	}

	rc := NewRetryController(o.engine, RetryConfig{
		MaxQuestions:    opts.MaxQuestions,
		Temperature:     opts.Temperature,
		MaxOutputTokens: opts.MaxOutputTokens,
	}, log, o.metrics)

	for i := start; i < len(chunks); i++ {
		if err := ctx.Err(); err != nil {
			return doc, err
		}

		res := rc.Run(ctx, chunks[i])
		doc.Chunks = append(doc.Chunks, record.Chunk{ChunkText: chunks[i], QAPairs: res.Pairs})
		o.metrics.Chunk(string(res.State), string(res.Reason), len(res.Pairs))

		if res.State == StateSkipped {
			last := res.Attempts[len(res.Attempts)-1]
			log.Warn("chunk skipped",
				"chunk", i+1,
				"of", len(chunks),
				"reason", res.Reason,
				"attempts", len(res.Attempts),
				"error", last.Err,
			)
		} else {
			log.Info("chunk accepted",
				"chunk", i+1,
				"of", len(chunks),
				"qa_pairs", len(res.Pairs),
				"attempts", len(res.Attempts),
			)
		}

		if opts.OnChunk != nil {
			opts.OnChunk(doc, res, len(chunks))
		}
	}
	return doc, nil
}

// resumePoint returns how many leading chunks of a checkpoint can be reused.
func resumePoint(partial *record.Document, markdown string, chunks []string) int {
	if partial == nil || partial.MarkdownText != markdown || len(partial.Chunks) > len(chunks) {
		return 0
	}
	for i, c := range partial.Chunks {
		if c.ChunkText != chunks[i] {
			return 0
		}
	}
	return len(partial.Chunks)
}
