package pipeline

import "time"

// Status is the lifecycle state of one unit of work.
//
// Transitions are linear: Pending → Staging → Phase1Running →
// Phase2Running → Succeeded, with Failed reachable from any running
// state. Failed and Succeeded are absorbing.
type Status string

const (
	StatusPending       Status = "pending"
	StatusStaging       Status = "staging"
	StatusPhase1Running Status = "phase1_running"
	StatusPhase2Running Status = "phase2_running"
	StatusSucceeded     Status = "succeeded"
	StatusFailed        Status = "failed"
)

// Terminal reports whether no further transitions may leave the status.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// TaskResult is the immutable outcome of one unit of work, produced by
// the executor and consumed by the aggregator.
type TaskResult struct {
	// Index is the unit's position in the input pair list. Results are
	// presented in index order regardless of completion order.
	Index int `json:"index"`

	// PairID identifies the pair, matching the sandbox directory name.
	PairID string `json:"pair_id"`

	// Status is Succeeded or Failed.
	Status Status `json:"status"`

	// Elapsed is the unit's total wall-clock processing time.
	Elapsed time.Duration `json:"elapsed_ns"`

	// Message carries the causing error for failures.
	Message string `json:"message,omitempty"`
}

// Succeeded reports whether the unit completed all phases.
func (r TaskResult) Succeeded() bool { return r.Status == StatusSucceeded }
