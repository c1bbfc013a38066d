package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/LuckyLaurence/InSAR-Pipeline/pkg/pairs"
	"github.com/LuckyLaurence/InSAR-Pipeline/pkg/resources"
	"github.com/LuckyLaurence/InSAR-Pipeline/pkg/retry"
	"github.com/LuckyLaurence/InSAR-Pipeline/pkg/sandbox"
)

// Config configures the per-unit executor.
type Config struct {
	// Plan is the step plan. The zero value uses DefaultPlan.
	Plan StepPlan

	// StepPolicy governs each individual Phase 1 step.
	// Default: 2 attempts, fixed 3s delay.
	StepPolicy retry.Policy

	// Phase2Policy governs the single contiguous Phase 2 invocation.
	// Default: 1 attempt (no retry), 5s delay when attempts are raised.
	Phase2Policy retry.Policy
}

// Executor stages a sandbox and drives the external processor through
// the phased step plan for one pair. Safe for concurrent use; all
// per-unit state lives in locals.
type Executor struct {
	builder *sandbox.Builder
	runner  StepRunner
	cfg     Config
	log     *zap.Logger
}

// NewExecutor creates an executor.
func NewExecutor(builder *sandbox.Builder, runner StepRunner, cfg Config, log *zap.Logger) *Executor {
	if len(cfg.Plan.Phase1) == 0 && cfg.Plan.Phase2Start == "" {
		cfg.Plan = DefaultPlan()
	}
	if cfg.StepPolicy.Attempts == 0 {
		cfg.StepPolicy = retry.Fixed(2, 3*time.Second)
	}
	if cfg.Phase2Policy.Attempts == 0 {
		cfg.Phase2Policy = retry.Fixed(1, 5*time.Second)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Executor{builder: builder, runner: runner, cfg: cfg, log: log}
}

// Execute runs one unit end-to-end: sandbox staging, Phase 1 step by
// step, then Phase 2 as one contiguous call. Every error is absorbed
// into a Failure TaskResult at this boundary; nothing propagates to
// sibling units.
func (e *Executor) Execute(ctx context.Context, p pairs.Pair, shared *resources.Shared) TaskResult {
	pairID := sandbox.DirName(p)
	log := e.log.With(zap.String("pair", pairID))

	status := StatusPending

	fail := func(err error, elapsed time.Duration) TaskResult {
		log.Error("unit failed", zap.String("from_status", string(status)), zap.Error(err))
		return TaskResult{
			PairID:  pairID,
			Status:  StatusFailed,
			Elapsed: elapsed,
			Message: err.Error(),
		}
	}

	status = StatusStaging
	log.Info("staging sandbox")
	sb, err := e.builder.Build(p, shared)
	if err != nil {
		return fail(err, 0)
	}

	// Elapsed covers processing only; staging is bookkeeping, not work.
	start := time.Now()

	status = StatusPhase1Running
	if err := e.runPhase1(ctx, sb, log); err != nil {
		return fail(err, time.Since(start))
	}

	status = StatusPhase2Running
	if err := e.runPhase2(ctx, sb, log); err != nil {
		return fail(err, time.Since(start))
	}

	status = StatusSucceeded
	elapsed := time.Since(start)
	log.Info("unit succeeded", zap.Duration("elapsed", elapsed))
	return TaskResult{PairID: pairID, Status: status, Elapsed: elapsed}
}

// runPhase1 invokes each step individually, recording per-step
// wall-clock durations. The first step to exhaust its retries stops the
// unit; later steps cannot succeed without it.
func (e *Executor) runPhase1(ctx context.Context, sb *sandbox.RunSandbox, log *zap.Logger) error {
	for _, step := range e.cfg.Plan.Phase1 {
		stepStart := time.Now()
		log.Info("running step", zap.String("step", step))

		err := retry.Do(ctx, e.cfg.StepPolicy, func(ctx context.Context) error {
			return e.runner.RunSteps(ctx, sb.Dir, sb.ConfigFile, step, step)
		}, func(attempt int, err error) {
			log.Warn("step failed, retrying",
				zap.String("step", step),
				zap.Int("attempt", attempt),
				zap.Error(err))
		})
		if err != nil {
			return &StepError{Step: step, Err: err}
		}

		log.Info("step finished",
			zap.String("step", step),
			zap.Duration("elapsed", time.Since(stepStart).Round(100*time.Millisecond)))
	}
	return nil
}

// runPhase2 runs the contiguous tail of the plan as one invocation.
func (e *Executor) runPhase2(ctx context.Context, sb *sandbox.RunSandbox, log *zap.Logger) error {
	plan := e.cfg.Plan
	label := plan.Phase2Label()
	phaseStart := time.Now()
	log.Info("entering phase 2", zap.String("range", label))

	err := retry.Do(ctx, e.cfg.Phase2Policy, func(ctx context.Context) error {
		return e.runner.RunSteps(ctx, sb.Dir, sb.ConfigFile, plan.Phase2Start, plan.Phase2End)
	}, func(attempt int, err error) {
		log.Warn("phase 2 failed, retrying",
			zap.String("range", label),
			zap.Int("attempt", attempt),
			zap.Error(err))
	})
	if err != nil {
		return &StepError{Step: label, Err: err}
	}

	log.Info("phase 2 finished",
		zap.String("range", label),
		zap.Duration("elapsed", time.Since(phaseStart).Round(time.Second)))
	return nil
}
