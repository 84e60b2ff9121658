package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage names the run milestone an Event reports.
type Stage string

// Supported stages.
const (
	StageRunStart      Stage = "RUN_START"
	StageRunDone       Stage = "RUN_DONE"
	StageSourceStart   Stage = "SOURCE_START"
	StageSourceDone    Stage = "SOURCE_DONE"
	StageSourceFailed  Stage = "SOURCE_FAILED"
	StageSourceSkipped Stage = "SOURCE_SKIPPED"
)

// Terminal reports whether s closes out a single source.
func (s Stage) Terminal() bool {
	switch s {
	case StageSourceDone, StageSourceFailed, StageSourceSkipped:
		return true
	}
	return false
}

// Event is one milestone of an ingest run.
type Event struct {
	RunID uuid.UUID `json:"run_id"`
	// TS is the UTC time the emitter recorded.
	TS     time.Time `json:"ts"`
	Stage  Stage     `json:"stage"`
	Source string    `json:"source,omitempty"`

	// Counters are set on SOURCE_DONE.
	Rows            int `json:"rows,omitempty"`
	Skipped         int `json:"skipped,omitempty"`
	NewInstitutions int `json:"new_institutions,omitempty"`
	Created         int `json:"created,omitempty"`
	Updated         int `json:"updated,omitempty"`

	Dur time.Duration `json:"dur_ns,omitempty"`
	// Note holds the failure message on SOURCE_FAILED.
	Note string `json:"note,omitempty"`
}

// Validate performs coarse checks before an event is queued.
func (e Event) Validate() error {
	if e.RunID == uuid.Nil {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunDone:
	case StageSourceStart, StageSourceDone, StageSourceFailed, StageSourceSkipped:
		if e.Source == "" {
			return fmt.Errorf("%s requires source", e.Stage)
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}
