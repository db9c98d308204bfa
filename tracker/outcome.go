package tracker

import (
	"errors"
	"fmt"
	"reflect"
)

// Phase is the execution phase of a single test a report belongs to.
type Phase string

const (
	PhaseSetup    Phase = "setup"
	PhaseCall     Phase = "call"
	PhaseTeardown Phase = "teardown"
)

// Outcome is the classification of one test phase.
type Outcome string

const (
	OutcomePassed  Outcome = "passed"
	OutcomeFailed  Outcome = "failed"
	OutcomeSkipped Outcome = "skipped"
)

// Report is what the host engine knows about one phase of one test once the
// phase has finished.
type Report struct {
	Phase Phase
	// Outcome is the outcome the host itself assigned to the phase.
	Outcome Outcome
	// Err is the error captured while running the phase, nil if none.
	Err error
}

// SkipError is the skip signal a host attaches to a phase that was skipped on purpose.
type SkipError struct {
	Reason string
}

func (e *SkipError) Error() string {
	if e.Reason == "" {
		return "skipped"
	}
	return fmt.Sprintf("skipped: %s", e.Reason)
}

// NewSkipError creates a new SkipError
func NewSkipError(reason string) *SkipError {
	return &SkipError{Reason: reason}
}

// IsSkip reports whether err carries a skip signal: either a *SkipError or any
// error in the chain whose type is named "Skipped".
func IsSkip(err error) bool {
	if err == nil {
		return false
	}
	var skipErr *SkipError
	if errors.As(err, &skipErr) {
		return true
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		if typeName(e) == "Skipped" {
			return true
		}
	}
	return false
}

func typeName(v any) string {
	t := reflect.TypeOf(v)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil {
		return ""
	}
	return t.Name()
}

// Classify derives the outcome of a phase from the host report. A phase the host
// already marked as failed stays failed. Unrecognized errors count as failures.
func Classify(r Report) Outcome {
	switch {
	case r.Outcome == OutcomeFailed:
		return OutcomeFailed
	case r.Err == nil:
		return OutcomePassed
	case IsSkip(r.Err):
		return OutcomeSkipped
	default:
		return OutcomeFailed
	}
}
