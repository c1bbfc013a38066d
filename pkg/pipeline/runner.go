package pipeline

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

// StepRunner invokes the external processor for an inclusive step range
// inside a sandbox directory. The invocation is blocking; a non-nil
// error means the processor exited non-zero and the calling policy
// decides whether to retry.
type StepRunner interface {
	RunSteps(ctx context.Context, dir, configFile, startStep, endStep string) error
}

// StepError is the failure of one step range after retry exhaustion.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// ExecRunner runs the processor as a child process with an explicit
// argument vector:
//
//	<processor> <config> --steps --start=<s> --end=<e>
//
// The child's working directory is the sandbox, so it resolves every
// staged input relative to it. Output is appended to per-sandbox log
// files rather than inherited, keeping worker output untangled.
type ExecRunner struct {
	// Processor is the external executable.
	Processor string

	// Timeout bounds one invocation; zero disables the bound. A hung
	// step otherwise blocks its worker indefinitely.
	Timeout time.Duration
}

const (
	stdoutLogName = "processor.stdout.log"
	stderrLogName = "processor.stderr.log"
)

func (r *ExecRunner) RunSteps(ctx context.Context, dir, configFile, startStep, endStep string) error {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	stdout, err := os.OpenFile(filepath.Join(dir, stdoutLogName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("open stdout log: %w", err)
	}
	defer func() { _ = stdout.Close() }()
	stderr, err := os.OpenFile(filepath.Join(dir, stderrLogName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("open stderr log: %w", err)
	}
	defer func() { _ = stderr.Close() }()

	cmd := exec.CommandContext(ctx, r.Processor,
		filepath.Base(configFile),
		"--steps",
		"--start="+startStep,
		"--end="+endStep,
	)
	cmd.Dir = dir
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.Env = os.Environ()

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%s: %w", r.Processor, ctxErr)
		}
		return fmt.Errorf("%s: %w", r.Processor, err)
	}
	return nil
}
