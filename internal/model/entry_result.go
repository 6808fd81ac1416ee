package model

import (
	"time"
)

// Outcome is the tagged classification of a finished matrix entry. A failure
// of an allow-failure entry is recorded as OutcomeExempted so aggregation can
// distinguish "failed but exempted" from "passed".
type Outcome string

const (
	// OutcomePassed marks an entry whose pipeline completed successfully.
	OutcomePassed Outcome = "passed"
	// OutcomeFailed marks an entry whose failure counts against the run.
	OutcomeFailed Outcome = "failed"
	// OutcomeExempted marks a failed entry flagged allow-failure.
	OutcomeExempted Outcome = "exempted-failure"
)

// Fatal reports whether the outcome should fail the aggregate run.
func (o Outcome) Fatal() bool {
	return o == OutcomeFailed
}

// EntryResult captures the outcome of one matrix entry's pipeline.
type EntryResult struct {
	RunID        string
	Version      string
	AllowFailure bool
	Outcome      Outcome
	Steps        []StepResult
	Error        error
	Duration     time.Duration
	StartedAt    time.Time
}

// Classify derives the tagged outcome for an entry from its failure state
// and allow-failure flag.
func Classify(failed, allowFailure bool) Outcome {
	switch {
	case !failed:
		return OutcomePassed
	case allowFailure:
		return OutcomeExempted
	default:
		return OutcomeFailed
	}
}
