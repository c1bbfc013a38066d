package report

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LuckyLaurence/InSAR-Pipeline/pkg/pipeline"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []Record {
	t.Helper()
	var records []Record
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var r Record
		require.NoError(t, json.Unmarshal([]byte(line), &r), "line: %s", line)
		records = append(records, r)
	}
	return records
}

func TestJSONLWriterEnvelope(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "run-42")
	ctx := context.Background()

	require.NoError(t, w.WriteTask(ctx, &TaskRecord{Index: 0, PairID: "run_20230203_20230215", Status: "succeeded"}))
	require.NoError(t, w.WriteWarning(ctx, &WarningRecord{Code: WarnThinEphemeris, Message: "found 1 ephemeris file"}))
	require.NoError(t, w.WriteSummary(ctx, &SummaryRecord{Total: 1, Succeeded: 1}))

	records := decodeLines(t, &buf)
	require.Len(t, records, 3)
	assert.Equal(t, TypeTask, records[0].Type)
	assert.Equal(t, TypeWarning, records[1].Type)
	assert.Equal(t, TypeSummary, records[2].Type)
	for _, r := range records {
		assert.Equal(t, "run-42", r.RunID)
		assert.False(t, r.TS.IsZero())
	}

	var task TaskRecord
	require.NoError(t, json.Unmarshal(records[0].Data, &task))
	assert.Equal(t, "run_20230203_20230215", task.PairID)
}

func TestJSONLWriterClosed(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "run-42")
	require.NoError(t, w.Close())

	err := w.WriteSummary(context.Background(), &SummaryRecord{})
	assert.ErrorIs(t, err, ErrWriterClosed)
	assert.Zero(t, buf.Len())
}

func TestJSONLWriterCancelledContext(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "run-42")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := w.WriteTask(ctx, &TaskRecord{PairID: "x"})
	assert.ErrorIs(t, err, context.Canceled)
}

// shortWriter writes at most one byte per call.
type shortWriter struct {
	buf bytes.Buffer
}

func (s *shortWriter) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	return s.buf.Write(p[:1])
}

func TestJSONLWriterHandlesShortWrites(t *testing.T) {
	var sw shortWriter
	w := NewJSONLWriter(&sw, "run-42")

	require.NoError(t, w.WriteWarning(context.Background(), &WarningRecord{Code: WarnResourceSkipped, Message: "no credential"}))

	var r Record
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(sw.buf.Bytes()), &r))
	assert.Equal(t, TypeWarning, r.Type)
}

func TestJSONLWriterConcurrentLinesStayWhole(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "run-42")
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = w.WriteTask(ctx, &TaskRecord{Index: i, PairID: "p", Status: "succeeded"})
		}(i)
	}
	wg.Wait()

	records := decodeLines(t, &buf)
	assert.Len(t, records, 20)
}

func TestTaskFromResult(t *testing.T) {
	rec := TaskFromResult(pipeline.TaskResult{
		Index:   3,
		PairID:  "run_20230203_20230215",
		Status:  pipeline.StatusFailed,
		Elapsed: 90 * time.Second,
		Message: "step topo: exit status 1",
	})
	assert.Equal(t, 3, rec.Index)
	assert.Equal(t, "failed", rec.Status)
	assert.Equal(t, "1m30s", rec.ElapsedHuman)
	assert.Equal(t, "step topo: exit status 1", rec.Message)
}

func TestFormatResult(t *testing.T) {
	ok := FormatResult(pipeline.TaskResult{Index: 0, PairID: "run_a_b", Status: pipeline.StatusSucceeded, Elapsed: 3 * time.Second})
	assert.Equal(t, "[1] run_a_b  OK      3s", ok)

	failed := FormatResult(pipeline.TaskResult{Index: 1, PairID: "run_c_d", Status: pipeline.StatusFailed, Elapsed: time.Second, Message: "step esd: exit status 1"})
	assert.Contains(t, failed, "FAILED")
	assert.Contains(t, failed, "step esd")
}

func TestFormatSummary(t *testing.T) {
	line := FormatSummary(pipeline.Summary{Total: 4, Succeeded: 3, Failed: 1}, 125*time.Second)
	assert.Equal(t, "4 processed, 3 succeeded, 1 failed in 2m5s", line)
}
