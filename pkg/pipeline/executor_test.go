package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LuckyLaurence/InSAR-Pipeline/pkg/pairs"
	"github.com/LuckyLaurence/InSAR-Pipeline/pkg/resources"
	"github.com/LuckyLaurence/InSAR-Pipeline/pkg/retry"
	"github.com/LuckyLaurence/InSAR-Pipeline/pkg/sandbox"
)

const (
	refScene = "S1A_IW_SLC__1SDV_20230203T034221_20230203T034248_047106_05A6A1_5C9D.SAFE"
	secScene = "S1A_IW_SLC__1SDV_20230215T034220_20230215T034247_047281_05AC91_1A2B.SAFE"
)

// invocation records one RunSteps call.
type invocation struct {
	start, end string
}

// fakeRunner scripts per-step failures. failures maps a step start name
// to how many times it fails before succeeding; -1 means always fail.
type fakeRunner struct {
	mu       sync.Mutex
	failures map[string]int
	seen     map[string]int
	calls    []invocation
}

func newFakeRunner(failures map[string]int) *fakeRunner {
	return &fakeRunner{failures: failures, seen: make(map[string]int)}
}

func (f *fakeRunner) RunSteps(_ context.Context, _, _, startStep, endStep string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, invocation{start: startStep, end: endStep})
	f.seen[startStep]++
	budget, ok := f.failures[startStep]
	if !ok {
		return nil
	}
	if budget < 0 || f.seen[startStep] <= budget {
		return errors.New("processor exited 1")
	}
	return nil
}

func (f *fakeRunner) count(step string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.seen[step]
}

func stagedData(t *testing.T, scenes ...string) (sandbox.Config, *resources.Shared) {
	t.Helper()
	root := t.TempDir()
	rawDir := filepath.Join(root, "raw")
	runsDir := filepath.Join(root, "runs")
	orbitDir := filepath.Join(root, "orbit_data")
	for _, d := range []string{rawDir, runsDir, orbitDir} {
		require.NoError(t, os.MkdirAll(d, 0o755))
	}
	for _, s := range scenes {
		require.NoError(t, os.WriteFile(filepath.Join(rawDir, s), []byte("x"), 0o644))
	}
	for _, name := range []string{"a.EOF", "b.EOF"} {
		require.NoError(t, os.WriteFile(filepath.Join(orbitDir, name), []byte("x"), 0o644))
	}
	return sandbox.Config{RunsDir: runsDir, RawDir: rawDir}, &resources.Shared{EphemerisDir: orbitDir}
}

// fastPolicies keep test wall-clock near zero.
func fastPolicies(stepAttempts, phase2Attempts int) Config {
	return Config{
		StepPolicy:   retry.Fixed(stepAttempts, time.Millisecond),
		Phase2Policy: retry.Fixed(phase2Attempts, time.Millisecond),
	}
}

func testPair() pairs.Pair {
	return pairs.Pair{Reference: refScene, Secondary: secScene}
}

func TestExecuteAllPhasesSucceed(t *testing.T) {
	sbCfg, shared := stagedData(t, refScene, secScene)
	runner := newFakeRunner(nil)
	e := NewExecutor(sandbox.NewBuilder(sbCfg, nil), runner, fastPolicies(2, 1), nil)

	res := e.Execute(context.Background(), testPair(), shared)

	require.True(t, res.Succeeded(), "message: %s", res.Message)
	assert.Equal(t, "run_20230203_20230215", res.PairID)
	assert.Positive(t, res.Elapsed)

	plan := DefaultPlan()
	require.Len(t, runner.calls, len(plan.Phase1)+1)
	for i, step := range plan.Phase1 {
		assert.Equal(t, invocation{start: step, end: step}, runner.calls[i])
	}
	last := runner.calls[len(runner.calls)-1]
	assert.Equal(t, invocation{start: "fineresamp", end: "geocode"}, last)
}

func TestExecuteStepRetriesThenSucceeds(t *testing.T) {
	sbCfg, shared := stagedData(t, refScene, secScene)
	runner := newFakeRunner(map[string]int{"topo": 2})
	e := NewExecutor(sandbox.NewBuilder(sbCfg, nil), runner, fastPolicies(3, 1), nil)

	res := e.Execute(context.Background(), testPair(), shared)

	require.True(t, res.Succeeded(), "message: %s", res.Message)
	assert.Equal(t, 3, runner.count("topo"), "failing step consumes exactly its budget")
	assert.Equal(t, 1, runner.count("esd"), "healthy steps run once")
}

func TestExecuteStepExhaustionFailsUnit(t *testing.T) {
	sbCfg, shared := stagedData(t, refScene, secScene)
	runner := newFakeRunner(map[string]int{"computeBaselines": -1})
	e := NewExecutor(sandbox.NewBuilder(sbCfg, nil), runner, fastPolicies(2, 1), nil)

	res := e.Execute(context.Background(), testPair(), shared)

	require.Equal(t, StatusFailed, res.Status)
	assert.Contains(t, res.Message, "computeBaselines", "failure names the step")
	assert.Equal(t, 2, runner.count("computeBaselines"))
	assert.Zero(t, runner.count("verifyDEM"), "no step runs past the failure")
	assert.Zero(t, runner.count("fineresamp"))
}

func TestExecutePhase2SingleInvocation(t *testing.T) {
	sbCfg, shared := stagedData(t, refScene, secScene)
	runner := newFakeRunner(map[string]int{"fineresamp": -1})
	e := NewExecutor(sandbox.NewBuilder(sbCfg, nil), runner, fastPolicies(2, 1), nil)

	res := e.Execute(context.Background(), testPair(), shared)

	require.Equal(t, StatusFailed, res.Status)
	assert.Contains(t, res.Message, "fineresamp..geocode")
	assert.Equal(t, 1, runner.count("fineresamp"), "phase 2 gets no second attempt by default")
}

func TestExecuteStagingFailureSkipsProcessor(t *testing.T) {
	sbCfg, shared := stagedData(t, secScene) // reference scene never staged
	runner := newFakeRunner(nil)
	e := NewExecutor(sandbox.NewBuilder(sbCfg, nil), runner, fastPolicies(2, 1), nil)

	res := e.Execute(context.Background(), testPair(), shared)

	require.Equal(t, StatusFailed, res.Status)
	assert.Contains(t, res.Message, refScene)
	assert.Empty(t, runner.calls, "processor must not run without a staged sandbox")
	assert.Zero(t, res.Elapsed, "the processing clock starts after staging")
}

func TestStepErrorUnwraps(t *testing.T) {
	cause := errors.New("exit status 1")
	err := &StepError{Step: "topo", Err: cause}
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "step topo: exit status 1", err.Error())
}
