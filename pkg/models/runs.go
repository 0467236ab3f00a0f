package models

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// OutcomeKind classifies the result of one item within a batch run
type OutcomeKind string

const (
	OutcomeSuccess OutcomeKind = "success"
	// OutcomeSkip means the item had nothing to do (already current) or not
	// enough history yet; it will be retried naturally on a later run.
	OutcomeSkip  OutcomeKind = "skip"
	OutcomeError OutcomeKind = "error"
)

// RunSummary aggregates per-item outcomes of one batch run. Per-item failures
// never abort a run; they are counted here and surfaced at the end.
type RunSummary struct {
	RunID     string
	Stage     string
	StartedAt time.Time

	Succeeded int
	Skipped   int
	Failed    int

	// Inserted counts new rows written across all items, used by
	// idempotence checks (a clean re-run inserts zero).
	Inserted int

	errors []string
}

const maxRecordedErrors = 20

// NewRunSummary starts a summary for one run of a pipeline stage
func NewRunSummary(stage string) *RunSummary {
	return &RunSummary{
		RunID:     uuid.New().String(),
		Stage:     stage,
		StartedAt: time.Now().UTC(),
	}
}

// Success records a successful item and the rows it inserted
func (s *RunSummary) Success(inserted int) {
	s.Succeeded++
	s.Inserted += inserted
}

// Skip records an item with nothing to do
func (s *RunSummary) Skip() {
	s.Skipped++
}

// Error records a failed item; the first few messages are kept for the log
func (s *RunSummary) Error(key string, err error) {
	s.Failed++
	if len(s.errors) < maxRecordedErrors {
		s.errors = append(s.errors, key+": "+err.Error())
	}
}

// Duration returns elapsed time since the run started
func (s *RunSummary) Duration() time.Duration {
	return time.Since(s.StartedAt)
}

// Fields returns structured log fields describing the whole run
func (s *RunSummary) Fields() []zap.Field {
	fields := []zap.Field{
		zap.String("run_id", s.RunID),
		zap.String("stage", s.Stage),
		zap.Int("succeeded", s.Succeeded),
		zap.Int("skipped", s.Skipped),
		zap.Int("failed", s.Failed),
		zap.Int("inserted", s.Inserted),
		zap.Duration("duration", s.Duration()),
	}
	if len(s.errors) > 0 {
		fields = append(fields, zap.Strings("errors", s.errors))
	}
	return fields
}
