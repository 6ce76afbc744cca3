package pipeline

import (
	"fmt"
	"io"
	"sort"
	"sync"
	"time"
)

// DocStatus is the state of the document currently being processed.
type DocStatus string

const (
	StatusIdle       DocStatus = "idle"
	StatusConverting DocStatus = "converting"
	StatusExtracting DocStatus = "extracting"
	StatusWriting    DocStatus = "writing"
	StatusDone       DocStatus = "done"
	StatusCancelled  DocStatus = "cancelled"
)

// DocFailure names a document that could not be processed.
type DocFailure struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

// Progress tracks a batch run. It is written by the runner and read by the
// status server, so every method locks.
type Progress struct {
	mu sync.Mutex
	s  Summary

	now func() time.Time
}

// Summary is a JSON-safe copy of the run state. At the end of a run it is the
// batch summary.
type Summary struct {
	RunID     string    `json:"run_id"`
	Status    DocStatus `json:"status"`
	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Duration  string    `json:"duration"`

	DocumentsTotal     int `json:"documents_total"`
	DocumentsProcessed int `json:"documents_processed"`
	DocumentsSkipped   int `json:"documents_skipped"`
	DocumentsFailed    int `json:"documents_failed"`

	CurrentDocument string `json:"current_document,omitempty"`
	CurrentChunk    int    `json:"current_chunk,omitempty"`
	CurrentChunks   int    `json:"current_chunks,omitempty"`

	ChunksAccepted int                `json:"chunks_accepted"`
	ChunksSkipped  map[SkipReason]int `json:"chunks_skipped"`
	QAPairs        int                `json:"qa_pairs"`

	Failures  []DocFailure `json:"failures"`
	Cancelled bool         `json:"cancelled"`
}

func NewProgress(runID string, totalDocs int) *Progress {
	p := &Progress{now: time.Now}
	now := p.now()
	p.s = Summary{
		RunID:          runID,
		Status:         StatusIdle,
		StartedAt:      now,
		UpdatedAt:      now,
		DocumentsTotal: totalDocs,
		ChunksSkipped:  make(map[SkipReason]int),
	}
	return p
}

func (p *Progress) touchLocked() {
	p.s.UpdatedAt = p.now()
}

// StartDocument marks path as the document in progress.
func (p *Progress) StartDocument(path string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.s.CurrentDocument = path
	p.s.CurrentChunk = 0
	p.s.CurrentChunks = 0
	p.s.Status = StatusConverting
	p.touchLocked()
}

func (p *Progress) SetStatus(status DocStatus) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.s.Status = status
	p.touchLocked()
}

// ChunkDone records a finished chunk of the current document.
func (p *Progress) ChunkDone(res ChunkResult, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.s.Status = StatusExtracting
	p.s.CurrentChunk++
	p.s.CurrentChunks = total
	if res.State == StateAccepted {
		p.s.ChunksAccepted++
		p.s.QAPairs += len(res.Pairs)
	} else {
		p.s.ChunksSkipped[res.Reason]++
	}
	p.touchLocked()
}

// ResumedChunks sets the chunk position after a checkpoint was reused.
func (p *Progress) ResumedChunks(done int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.s.CurrentChunk = done
	p.touchLocked()
}

func (p *Progress) DocumentProcessed() {
	p.finishDocument(func(s *Summary) { s.DocumentsProcessed++ })
}

func (p *Progress) DocumentSkipped() {
	p.finishDocument(func(s *Summary) { s.DocumentsSkipped++ })
}

func (p *Progress) DocumentFailed(path string, err error) {
	p.finishDocument(func(s *Summary) {
		s.DocumentsFailed++
		s.Failures = append(s.Failures, DocFailure{Path: path, Error: err.Error()})
	})
}

func (p *Progress) finishDocument(update func(*Summary)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	update(&p.s)
	p.s.CurrentDocument = ""
	p.s.CurrentChunk = 0
	p.s.CurrentChunks = 0
	p.s.Status = StatusIdle
	p.touchLocked()
}

// Finish closes the run.
func (p *Progress) Finish(cancelled bool) Summary {
	p.mu.Lock()
	p.s.Cancelled = cancelled
	if cancelled {
		p.s.Status = StatusCancelled
	} else {
		p.s.Status = StatusDone
	}
	p.touchLocked()
	p.mu.Unlock()
	return p.Snapshot()
}

// Snapshot returns a copy of the current state.
func (p *Progress) Snapshot() Summary {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.s
	s.Duration = p.s.UpdatedAt.Sub(p.s.StartedAt).Round(time.Millisecond).String()
	s.ChunksSkipped = make(map[SkipReason]int, len(p.s.ChunksSkipped))
	for k, v := range p.s.ChunksSkipped {
		s.ChunksSkipped[k] = v
	}
	s.Failures = append([]DocFailure{}, p.s.Failures...)
	return s
}

// ChunksSkippedTotal sums skipped chunks over all reasons.
func (s Summary) ChunksSkippedTotal() int {
	n := 0
	for _, v := range s.ChunksSkipped {
		n += v
	}
	return n
}

// WriteText prints the summary for humans.
func (s Summary) WriteText(w io.Writer) error {
	status := "completed"
	if s.Cancelled {
		status = "cancelled"
	}
	_, err := fmt.Fprintf(w, "Run %s %s in %s\n", s.RunID, status, s.Duration)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Documents: %d total, %d processed, %d skipped, %d failed\n",
		s.DocumentsTotal, s.DocumentsProcessed, s.DocumentsSkipped, s.DocumentsFailed)
	fmt.Fprintf(w, "Chunks: %d accepted, %d skipped\n", s.ChunksAccepted, s.ChunksSkippedTotal())

	reasons := make([]string, 0, len(s.ChunksSkipped))
	for r := range s.ChunksSkipped {
		reasons = append(reasons, string(r))
	}
	sort.Strings(reasons)
	for _, r := range reasons {
		fmt.Fprintf(w, "  %s: %d\n", r, s.ChunksSkipped[SkipReason(r)])
	}
	fmt.Fprintf(w, "QA pairs: %d\n", s.QAPairs)
	for _, f := range s.Failures {
		fmt.Fprintf(w, "Failed: %s: %s\n", f.Path, f.Error)
	}
	return nil
}
