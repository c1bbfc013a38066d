package report

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/LuckyLaurence/InSAR-Pipeline/pkg/pipeline"
)

// Writer emits JSONL records for batch runs.
//
// Implementations must be safe for concurrent use from multiple
// goroutines. Each Write* method emits a complete record as a single
// line of JSON followed by a newline.
type Writer interface {
	// WriteTask emits a per-pair outcome record.
	WriteTask(ctx context.Context, task *TaskRecord) error

	// WriteWarning emits a non-fatal degradation record.
	WriteWarning(ctx context.Context, warn *WarningRecord) error

	// WriteSummary emits the final summary record.
	WriteSummary(ctx context.Context, sum *SummaryRecord) error

	// Close flushes any buffered output and releases resources.
	Close() error
}

// JSONLWriter writes records as newline-delimited JSON to an io.Writer.
//
// JSONLWriter is safe for concurrent use. Writes are serialized using
// a mutex to ensure atomic line writes (no interleaved output).
type JSONLWriter struct {
	w     io.Writer
	runID string
	mu    sync.Mutex

	// closed indicates the writer has been closed.
	closed bool
}

// NewJSONLWriter creates a new JSONL writer.
//
// Parameters:
//   - w: The underlying writer (stdout, file, etc.)
//   - runID: Correlation ID for this batch run
func NewJSONLWriter(w io.Writer, runID string) *JSONLWriter {
	return &JSONLWriter{w: w, runID: runID}
}

// WriteTask emits a per-pair outcome record.
func (jw *JSONLWriter) WriteTask(ctx context.Context, task *TaskRecord) error {
	return jw.writeRecord(ctx, TypeTask, task)
}

// WriteWarning emits a non-fatal degradation record.
func (jw *JSONLWriter) WriteWarning(ctx context.Context, warn *WarningRecord) error {
	return jw.writeRecord(ctx, TypeWarning, warn)
}

// WriteSummary emits the final summary record.
func (jw *JSONLWriter) WriteSummary(ctx context.Context, sum *SummaryRecord) error {
	return jw.writeRecord(ctx, TypeSummary, sum)
}

// Close marks the writer as closed.
//
// If the underlying writer implements io.Closer, it is NOT closed.
// The caller is responsible for closing the underlying writer.
func (jw *JSONLWriter) Close() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	jw.closed = true
	return nil
}

// writeRecord marshals data and writes a complete record line.
//
// This method holds the mutex for the entire write to ensure atomic
// line output. The record is written as a single line of JSON followed
// by a newline character.
func (jw *JSONLWriter) writeRecord(ctx context.Context, recordType string, data any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	// Marshal the payload outside the lock.
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return &WriteError{Op: "marshal_data", Err: err}
	}

	jw.mu.Lock()
	defer jw.mu.Unlock()

	if jw.closed {
		return ErrWriterClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	record := Record{
		Type:  recordType,
		TS:    time.Now().UTC(),
		RunID: jw.runID,
		Data:  dataBytes,
	}

	recordBytes, err := json.Marshal(record)
	if err != nil {
		return &WriteError{Op: "marshal_record", Err: err}
	}

	// io.Writer may return n < len(p) with nil error; a short write
	// would silently truncate a JSONL line and corrupt the stream.
	recordBytes = append(recordBytes, '\n')
	if err := writeAll(jw.w, recordBytes); err != nil {
		return &WriteError{Op: "write", Err: err}
	}

	return nil
}

// writeAll writes all bytes to w, handling short writes.
func writeAll(w io.Writer, p []byte) error {
	for len(p) > 0 {
		n, err := w.Write(p)
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
		p = p[n:]
	}
	return nil
}

// Compile-time check that JSONLWriter implements Writer.
var _ Writer = (*JSONLWriter)(nil)

// TaskFromResult converts a pool result into its record payload.
func TaskFromResult(r pipeline.TaskResult) *TaskRecord {
	return &TaskRecord{
		Index:        r.Index,
		PairID:       r.PairID,
		Status:       string(r.Status),
		Elapsed:      r.Elapsed,
		ElapsedHuman: r.Elapsed.Round(time.Millisecond).String(),
		Message:      r.Message,
	}
}

// FormatResult renders one pair's outcome as a human-readable line for
// the end-of-run report.
func FormatResult(r pipeline.TaskResult) string {
	elapsed := r.Elapsed.Round(time.Second)
	if r.Succeeded() {
		return fmt.Sprintf("[%d] %s  OK      %s", r.Index+1, r.PairID, elapsed)
	}
	return fmt.Sprintf("[%d] %s  FAILED  %s  %s", r.Index+1, r.PairID, elapsed, r.Message)
}

// FormatSummary renders the aggregate line closing the run report.
func FormatSummary(s pipeline.Summary, elapsed time.Duration) string {
	return fmt.Sprintf("%d processed, %d succeeded, %d failed in %s",
		s.Total, s.Succeeded, s.Failed, elapsed.Round(time.Second))
}
