package pipeline

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/dgallion1/genqa/internal/engine"
	"github.com/dgallion1/genqa/internal/extract"
	"github.com/dgallion1/genqa/internal/metrics"
	"github.com/dgallion1/genqa/internal/record"
)

const (
	// MaxAttempts bounds generation calls per chunk. Overflow and invalid
	// output draw from the same budget.
	MaxAttempts = 3
	// TemperatureStep is added to the temperature before each retry.
	TemperatureStep = 0.2
	// MaxTemperature caps retry escalation.
	MaxTemperature = 1.0
)

// State is a position in the per-chunk generation state machine.
type State string

const (
	StatePending    State = "pending"
	StateGenerating State = "generating"
	StateValidating State = "validating"
	StateRetrying   State = "retrying"
	StateAccepted   State = "accepted"
	StateSkipped    State = "skipped"
)

// SkipReason says why a chunk ended with no QA pairs. It is reported in logs,
// metrics and the run summary, never in the persisted record.
type SkipReason string

const (
	ReasonContextOverflow    SkipReason = "context_overflow"
	ReasonMalformedStructure SkipReason = "malformed_structure"
	ReasonEngineFailure      SkipReason = "engine_failure"
)

// Outcome is what a single generation attempt produced.
type Outcome string

const (
	OutcomeValid       Outcome = "valid"
	OutcomeInvalid     Outcome = "invalid"
	OutcomeTruncated   Outcome = "truncated"
	OutcomeEngineError Outcome = "engine_error"
)

// GenerationAttempt records one engine call. It is never mutated after the
// call returns.
type GenerationAttempt struct {
	Number       int
	Temperature  float64
	BudgetTokens int
	RawOutput    string
	Outcome      Outcome
	Err          error
	Duration     time.Duration
}

// ChunkResult is the terminal state of one chunk. Pairs is empty, not nil,
// when the chunk was skipped or the model had no questions.
type ChunkResult struct {
	State    State
	Reason   SkipReason
	Pairs    []record.QAPair
	Attempts []GenerationAttempt
}

// RetryConfig holds the per-document generation settings.
type RetryConfig struct {
	MaxQuestions    int
	Temperature     float64
	MaxOutputTokens int
	MaxAttempts     int
}

// RetryController drives a chunk through generation, validation and bounded
// retries.
type RetryController struct {
	engine  engine.Engine
	cfg     RetryConfig
	log     *slog.Logger
	metrics *metrics.Metrics
}

func NewRetryController(eng engine.Engine, cfg RetryConfig, log *slog.Logger, m *metrics.Metrics) *RetryController {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = MaxAttempts
	}
	if cfg.MaxQuestions <= 0 {
		cfg.MaxQuestions = 1
	}
	return &RetryController{engine: eng, cfg: cfg, log: log, metrics: m}
}

// Run generates QA pairs for one chunk. Engine calls are not interrupted by
// ctx cancellation; callers check ctx between chunks.
func (rc *RetryController) Run(ctx context.Context, chunkText string) ChunkResult {
	prompt := extract.BuildPrompt(chunkText, rc.cfg.MaxQuestions)
	genCtx := context.WithoutCancel(ctx)
	temperature := rc.cfg.Temperature

	var attempts []GenerationAttempt
	for n := 1; ; n++ {
		start := time.Now()
		comp, err := rc.engine.Generate(genCtx, engine.Request{
			System:      prompt.System,
			User:        prompt.User,
			MaxTokens:   rc.cfg.MaxOutputTokens,
			Temperature: temperature,
			Schema:      extract.QASchema,
		})
		attempt := GenerationAttempt{
			Number:       n,
			Temperature:  temperature,
			BudgetTokens: rc.cfg.MaxOutputTokens,
			RawOutput:    comp.Text,
			Duration:     time.Since(start),
		}

		var next State
		var reason SkipReason
		var pairs []record.QAPair
		switch {
		case err != nil:
			attempt.Outcome, attempt.Err = OutcomeEngineError, err
			next, reason = StateSkipped, ReasonEngineFailure
		case comp.Truncated:
			attempt.Outcome = OutcomeTruncated
			next, reason = rc.retryOrSkip(n, ReasonContextOverflow)
		default:
			valid, verr := extract.Validate(comp.Text)
			if verr != nil {
				attempt.Outcome, attempt.Err = OutcomeInvalid, verr
				next, reason = rc.retryOrSkip(n, ReasonMalformedStructure)
			} else {
				attempt.Outcome = OutcomeValid
				next, pairs = StateAccepted, valid
			}
		}

		attempts = append(attempts, attempt)
		rc.metrics.Attempt(string(attempt.Outcome), attempt.Duration)
		rc.log.Debug("generation attempt",
			"attempt", n,
			"temperature", temperature,
			"outcome", attempt.Outcome,
			"duration_ms", attempt.Duration.Milliseconds(),
			"error", attempt.Err,
		)

		switch next {
		case StateAccepted:
			if len(pairs) > rc.cfg.MaxQuestions {
				rc.log.Debug("dropping extra pairs", "returned", len(pairs), "max_questions", rc.cfg.MaxQuestions)
				pairs = pairs[:rc.cfg.MaxQuestions]
			}
			return ChunkResult{State: StateAccepted, Pairs: pairs, Attempts: attempts}
		case StateSkipped:
			return ChunkResult{State: StateSkipped, Reason: reason, Pairs: []record.QAPair{}, Attempts: attempts}
		}
		temperature = nextTemperature(temperature)
	}
}

func (rc *RetryController) retryOrSkip(attempt int, reason SkipReason) (State, SkipReason) {
	if attempt < rc.cfg.MaxAttempts {
		return StateRetrying, ""
	}
	return StateSkipped, reason
}

// nextTemperature raises t by TemperatureStep, capped at MaxTemperature. A
// starting temperature already above the cap is left alone.
func nextTemperature(t float64) float64 {
	if t >= MaxTemperature {
		return t
	}
	next := math.Round((t+TemperatureStep)*100) / 100
	return math.Min(next, MaxTemperature)
}
