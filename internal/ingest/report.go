package ingest

import (
	"time"

	"github.com/google/uuid"
)

// Outcome is the result of one source within a run.
type Outcome string

// Source outcomes.
const (
	OutcomeSuccess Outcome = "SUCCESS"
	OutcomeFailed  Outcome = "FAILED"
	// OutcomeSkipped means another run held the source lock.
	OutcomeSkipped Outcome = "SKIPPED"
)

// SourceReport summarizes one source.
type SourceReport struct {
	Code    string
	Outcome Outcome
	// Rows is how many valid records were extracted.
	Rows int
	// Skipped counts rows dropped by the extractor or while persisting.
	Skipped         int
	NewInstitutions int
	Created         int
	Updated         int
	Error           string
	Duration        time.Duration
}

// Report is the per-source summary of a run.
type Report struct {
	RunID   uuid.UUID
	Sources []SourceReport
}

// Count returns how many sources ended with outcome.
func (r Report) Count(outcome Outcome) int {
	n := 0
	for _, s := range r.Sources {
		if s.Outcome == outcome {
			n++
		}
	}
	return n
}
