package pipeline

import (
	"context"
	"log/slog"

	"github.com/dgallion1/genqa/internal/metrics"
	"github.com/dgallion1/genqa/internal/record"
)

// Document outcomes as counted in metrics.
const (
	DocWritten   = "written"
	DocSkipped   = "skipped"
	DocFailed    = "failed"
	DocCancelled = "cancelled"
)

// Runner processes a batch of documents one at a time, in input order.
type Runner struct {
	orch     *Orchestrator
	writer   *record.Writer
	progress *Progress
	log      *slog.Logger
	metrics  *metrics.Metrics

	opts      Options
	overwrite bool
}

func NewRunner(orch *Orchestrator, writer *record.Writer, progress *Progress, opts Options, overwrite bool, log *slog.Logger, m *metrics.Metrics) *Runner {
	return &Runner{
		orch:      orch,
		writer:    writer,
		progress:  progress,
		log:       log,
		metrics:   m,
		opts:      opts,
		overwrite: overwrite,
	}
}

// Run processes every path and returns the batch summary. One bad document
// never stops the batch; cancellation stops it before the next chunk.
func (r *Runner) Run(ctx context.Context, paths []string) Summary {
	for _, path := range paths {
		if ctx.Err() != nil {
			break
		}
		if !r.process(ctx, path) {
			break
		}
	}
	summary := r.progress.Finish(ctx.Err() != nil)
	r.log.Info("run finished",
		"documents_processed", summary.DocumentsProcessed,
		"documents_skipped", summary.DocumentsSkipped,
		"documents_failed", summary.DocumentsFailed,
		"chunks_accepted", summary.ChunksAccepted,
		"chunks_skipped", summary.ChunksSkipped,
		"qa_pairs", summary.QAPairs,
		"duration", summary.Duration,
		"cancelled", summary.Cancelled,
	)
	return summary
}

// process handles one document and reports whether the batch should go on.
func (r *Runner) process(ctx context.Context, path string) bool {
	log := r.log.With("source", path)

	if !r.overwrite && r.writer.Exists(path) {
		log.Info("output exists, skipping", "output", r.writer.PathFor(path))
		r.progress.DocumentSkipped()
		r.metrics.Document(DocSkipped)
		return true
	}

	r.progress.StartDocument(path)
	opts := r.opts
	opts.Resume = nil
	if !r.overwrite {
		partial, err := r.writer.LoadPartial(path)
		if err != nil {
			log.Warn("ignoring unreadable checkpoint", "error", err)
		} else if partial != nil {
			opts.Resume = partial
			r.progress.ResumedChunks(len(partial.Chunks))
		}
	}
	opts.OnChunk = func(doc *record.Document, res ChunkResult, total int) {
		r.progress.ChunkDone(res, total)
		if err := r.writer.Checkpoint(doc); err != nil {
			log.Warn("checkpoint failed", "error", err)
		}
	}

	doc, err := r.orch.ExtractDocument(ctx, path, opts)
	if err != nil {
		if ctx.Err() != nil {
			done := 0
			if doc != nil {
				done = len(doc.Chunks)
			}
			log.Warn("cancelled, checkpoint kept", "chunks_done", done)
			r.metrics.Document(DocCancelled)
			return false
		}
		log.Error("document failed", "error", err)
		r.progress.DocumentFailed(path, err)
		r.metrics.Document(DocFailed)
		return true
	}

	r.progress.SetStatus(StatusWriting)
	outcome, err := r.writer.Write(doc, r.overwrite)
	if err != nil {
		log.Error("write failed", "error", err)
		r.progress.DocumentFailed(path, err)
		r.metrics.Document(DocFailed)
		return true
	}
	if err := r.writer.RemovePartial(path); err != nil {
		log.Warn("remove checkpoint failed", "error", err)
	}

	if outcome == record.Skipped {
		log.Info("output appeared during run, kept existing", "output", r.writer.PathFor(path))
		r.progress.DocumentSkipped()
		r.metrics.Document(DocSkipped)
		return true
	}
	log.Info("document written",
		"output", r.writer.PathFor(path),
		"chunks", len(doc.Chunks),
		"qa_pairs", doc.QACount(),
	)
	r.progress.DocumentProcessed()
	r.metrics.Document(DocWritten)
	return true
}
