package ingest

import (
	"errors"
	"fmt"
	"strings"

	"github.com/JakeFAU/university-rankings/internal/ranking"
)

// ErrEmptyResult marks a source whose pages produced no usable rows.
var ErrEmptyResult = errors.New("no data returned")

// UnknownSourceError reports a code with no registered source or extractor.
type UnknownSourceError struct {
	Code string
	// Available lists the codes that can be fetched.
	Available []string
	// Reason is set when the source exists but cannot be fetched.
	Reason string
}

func (e *UnknownSourceError) Error() string {
	msg := fmt.Sprintf("unknown source %q", e.Code)
	if e.Reason != "" {
		msg = fmt.Sprintf("source %q: %s", e.Code, e.Reason)
	}
	if len(e.Available) > 0 {
		msg += "; available: " + strings.Join(e.Available, ", ")
	}
	return msg
}

func (e *UnknownSourceError) Unwrap() error { return ranking.ErrSourceNotFound }
