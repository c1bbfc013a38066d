// Package report provides machine-readable JSONL output and the
// human-readable end-of-run summary for batch runs.
//
// JSONL output is structured as typed record envelopes containing task
// outcomes, warnings, and the run summary. Each line is a
// self-contained JSON object that can be parsed independently.
package report

import (
	"encoding/json"
	"errors"
	"time"
)

// Record type constants define the envelope types for JSONL output.
// These follow the pattern: insar.<type>.v<version>
const (
	// TypeTask identifies per-pair task outcome records.
	TypeTask = "insar.task.v1"

	// TypeWarning identifies non-fatal degradation records.
	TypeWarning = "insar.warning.v1"

	// TypeSummary identifies final summary records.
	TypeSummary = "insar.summary.v1"
)

// Record is the envelope for all JSONL output.
//
// Each line of JSONL output contains a Record with a type-specific
// payload in the Data field. The type field determines how to
// interpret the Data payload.
type Record struct {
	// Type identifies the record type (e.g., "insar.task.v1").
	Type string `json:"type"`

	// TS is the timestamp when the record was created (RFC3339Nano).
	TS time.Time `json:"ts"`

	// RunID is the correlation ID for this batch run.
	RunID string `json:"run_id"`

	// Data contains the type-specific payload as raw JSON.
	Data json.RawMessage `json:"data"`
}

// TaskRecord is the data payload for one pair's outcome.
type TaskRecord struct {
	// Index is the pair's position in the input list.
	Index int `json:"index"`

	// PairID identifies the pair, matching its run directory name.
	PairID string `json:"pair_id"`

	// Status is "succeeded" or "failed".
	Status string `json:"status"`

	// Elapsed is the pair's wall-clock processing time.
	Elapsed time.Duration `json:"elapsed_ns"`

	// ElapsedHuman is a human-readable duration string.
	ElapsedHuman string `json:"elapsed"`

	// Message carries the causing error for failures.
	Message string `json:"message,omitempty"`
}

// WarningRecord is the data payload for non-fatal degradations, such as
// skipped resource acquisition or thin ephemeris coverage.
type WarningRecord struct {
	// Code is a machine-readable warning code.
	Code string `json:"code"`

	// Message is a human-readable description.
	Message string `json:"message"`
}

// Warning codes for WarningRecord.
const (
	// WarnResourceSkipped indicates shared-resource acquisition was
	// skipped, for example because no credential was configured.
	WarnResourceSkipped = "RESOURCE_SKIPPED"

	// WarnThinEphemeris indicates fewer ephemeris files than expected.
	WarnThinEphemeris = "THIN_EPHEMERIS"

	// WarnPairRejected indicates a malformed pair-list entry was
	// dropped during parsing.
	WarnPairRejected = "PAIR_REJECTED"
)

// SummaryRecord is the data payload for the final run summary.
type SummaryRecord struct {
	// Total is the number of pairs processed.
	Total int `json:"total"`

	// Succeeded is the number of pairs that completed all phases.
	Succeeded int `json:"succeeded"`

	// Failed is the number of pairs that did not.
	Failed int `json:"failed"`

	// Duration is the total batch duration.
	Duration time.Duration `json:"duration_ns"`

	// DurationHuman is a human-readable duration string.
	DurationHuman string `json:"duration"`

	// Workers is the worker-pool size used.
	Workers int `json:"workers"`
}

// Writer errors.
var (
	// ErrWriterClosed is returned when writing to a closed writer.
	ErrWriterClosed = errors.New("writer is closed")
)

// WriteError wraps errors that occur during write operations.
type WriteError struct {
	Op  string // Operation that failed (e.g., "marshal_data", "write")
	Err error  // Underlying error
}

func (e *WriteError) Error() string {
	return "report: " + e.Op + ": " + e.Err.Error()
}

func (e *WriteError) Unwrap() error {
	return e.Err
}
