package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/LuckyLaurence/InSAR-Pipeline/internal/config"
	"github.com/LuckyLaurence/InSAR-Pipeline/internal/observability"
	"github.com/LuckyLaurence/InSAR-Pipeline/pkg/pairs"
	"github.com/LuckyLaurence/InSAR-Pipeline/pkg/pipeline"
	"github.com/LuckyLaurence/InSAR-Pipeline/pkg/report"
	"github.com/LuckyLaurence/InSAR-Pipeline/pkg/resources"
	"github.com/LuckyLaurence/InSAR-Pipeline/pkg/retry"
	"github.com/LuckyLaurence/InSAR-Pipeline/pkg/runlog"
	"github.com/LuckyLaurence/InSAR-Pipeline/pkg/sandbox"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the batch over the configured pair list",
	Long: `Run the full batch: parse the pair list, provision shared resources
(terrain model, orbit ephemerides), then process every pair through the
two-phase step sequence under the worker pool.

Per-pair failures are isolated and reported at the end; the command
exits zero as long as the batch itself ran to completion.

Example:
  insar run
  insar run --pairs data/pairs.txt --workers 4
  insar run --job batch.yaml --output results.jsonl`,
	RunE: runRun,
}

var (
	runPairsFile string
	runWorkers   int
	runJobPath   string
	runOutput    string
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runPairsFile, "pairs", "p", "", "Override pair list path")
	runCmd.Flags().IntVarP(&runWorkers, "workers", "w", 0, "Override worker pool size")
	runCmd.Flags().StringVarP(&runJobPath, "job", "j", "", "Path to YAML job manifest")
	runCmd.Flags().StringVarP(&runOutput, "output", "o", "", "JSONL record destination (stdout or file path)")
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := config.Load()
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid configuration", err)
	}
	if runJobPath != "" {
		m, err := loadManifest(runJobPath)
		if err != nil {
			return exitError(foundry.ExitInvalidArgument, "Invalid job manifest", err)
		}
		if err := m.apply(cfg); err != nil {
			return exitError(foundry.ExitInvalidArgument, "Invalid job manifest", err)
		}
		if runOutput == "" {
			runOutput = m.Output
		}
	}
	if runPairsFile != "" {
		cfg.PairsFile = runPairsFile
	}
	if runWorkers > 0 {
		cfg.Workers = runWorkers
	}
	if rootLogLevel == "" {
		observability.Configure(cfg.LogLevel)
	}
	log := observability.CLILogger

	if err := cfg.Validate(); err != nil {
		// A run without the terrain credential can only fail late and
		// expensively, so it is refused up front.
		return exitError(foundry.ExitInvalidArgument, "Configuration rejected", err)
	}

	resolver := pairs.NewResolver(log)
	list, err := resolver.ParseFile(cfg.PairsFile)
	if err != nil {
		return exitError(foundry.ExitFileReadError, "Cannot read pair list", err)
	}
	if len(list) == 0 {
		// An empty list is no work, not a failure: the batch still runs
		// to completion with an empty summary.
		log.Warn("pair list yielded no entries", zap.String("path", cfg.PairsFile))
	}

	announceTasks(log, list)

	runID := uuid.New().String()
	writer, cleanup, err := createWriter(runOutput, runID)
	if err != nil {
		return exitError(foundry.ExitFileWriteError, "Failed to create output", err)
	}
	defer cleanup()

	shared, err := provision(ctx, cfg, list, log)
	if err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Shared resource provisioning failed", err)
	}
	emitWarnings(ctx, log, writer, cfg, resolver.Rejected())

	pool := buildPool(cfg, log)

	log.Info("starting batch",
		zap.String("run_id", runID),
		zap.Int("pairs", len(list)),
		zap.Int("workers", cfg.Workers))

	started := time.Now()
	results := pool.RunAll(ctx, list, shared)
	elapsed := time.Since(started)

	// The final report must land even after an interrupt.
	reportCtx := context.WithoutCancel(ctx)
	emitResults(reportCtx, log, writer, results, elapsed, cfg.Workers)

	if cfg.RunLogPath != "" {
		recordHistory(reportCtx, log, cfg.RunLogPath, runlog.Run{
			RunID:     runID,
			StartedAt: started,
			EndedAt:   started.Add(elapsed),
			Workers:   cfg.Workers,
		}, results)
	}

	if ctx.Err() != nil {
		return exitError(foundry.ExitSignalInt, "Batch interrupted", ctx.Err())
	}
	return nil
}

// announceTasks prints the numbered task preamble before any work
// starts, so the operator can map worker logs back to input lines.
func announceTasks(log *zap.Logger, list []pairs.Pair) {
	log.Info(fmt.Sprintf("Loaded %d pair(s)", len(list)))
	for i, p := range list {
		refDate, ok := pairs.ExtractDate(p.Reference)
		if !ok {
			refDate = pairs.UnknownDate
		}
		secDate, ok := pairs.ExtractDate(p.Secondary)
		if !ok {
			secDate = pairs.UnknownDate
		}
		log.Info(fmt.Sprintf("[Task %d]: %s vs %s", i+1, refDate, secDate))
	}
}

// provision builds the shared-resource provisioner from configuration
// and runs it. Both fetchers are external executables.
func provision(ctx context.Context, cfg *config.Config, list []pairs.Pair, log *zap.Logger) (*resources.Shared, error) {
	var roi *resources.BoundingBox
	if cfg.ROI != nil {
		roi = &resources.BoundingBox{
			South: cfg.ROI.South,
			North: cfg.ROI.North,
			West:  cfg.ROI.West,
			East:  cfg.ROI.East,
		}
	}

	p := resources.New(resources.Config{
		DEMDir:      cfg.DEMDir(),
		DEMBaseName: cfg.DEMBaseName,
		OrbitDir:    cfg.OrbitDir(),
		ROI:         roi,
		APIKey:      cfg.APIKey,
	},
		&resources.ExecTerrainFetcher{Command: cfg.TerrainFetcher, APIKey: cfg.APIKey, Log: log},
		&resources.ExecEphemerisFetcher{Path: cfg.OrbitFetcher, Log: log},
		log,
	)
	return p.Provision(ctx, list)
}

func buildPool(cfg *config.Config, log *zap.Logger) *pipeline.Pool {
	builder := sandbox.NewBuilder(sandbox.Config{
		RunsDir: cfg.RunsDir(),
		RawDir:  cfg.RawDir(),
	}, log)
	runner := &pipeline.ExecRunner{Processor: cfg.Processor, Timeout: cfg.StepTimeout}
	exec := pipeline.NewExecutor(builder, runner, pipeline.Config{
		StepPolicy:   retry.Fixed(cfg.StepAttempts, cfg.StepDelay),
		Phase2Policy: retry.Fixed(cfg.Phase2Attempts, cfg.Phase2Delay),
	}, log)
	return pipeline.NewPool(exec, cfg.Workers, cfg.LaunchRate, log)
}

// emitWarnings records the provisioning-time degradations a consumer of
// the JSONL stream would otherwise only find in the console log.
func emitWarnings(ctx context.Context, log *zap.Logger, writer report.Writer, cfg *config.Config, rejected int) {
	if writer == nil {
		return
	}

	var warnings []*report.WarningRecord
	if rejected > 0 {
		warnings = append(warnings, &report.WarningRecord{
			Code:    report.WarnPairRejected,
			Message: fmt.Sprintf("%d malformed pair line(s) dropped", rejected),
		})
	}
	if cfg.ROI == nil {
		warnings = append(warnings, &report.WarningRecord{
			Code:    report.WarnResourceSkipped,
			Message: "no bounding box configured; terrain acquisition skipped",
		})
	}
	if n := resources.CountEphemeris(cfg.OrbitDir()); n < 2 {
		warnings = append(warnings, &report.WarningRecord{
			Code:    report.WarnThinEphemeris,
			Message: fmt.Sprintf("only %d ephemeris file(s) in %s; units may fail geometric modeling", n, cfg.OrbitDir()),
		})
	}
	for _, w := range warnings {
		if err := writer.WriteWarning(ctx, w); err != nil {
			log.Warn("failed to write warning record", zap.Error(err))
		}
	}
}

// emitResults writes the per-pair report lines, the JSONL records when
// an output is configured, and the closing summary.
func emitResults(ctx context.Context, log *zap.Logger, writer report.Writer, results []pipeline.TaskResult, elapsed time.Duration, workers int) {
	log.Info("=== Batch Report ===")
	for _, r := range results {
		log.Info(report.FormatResult(r))
		if writer == nil {
			continue
		}
		if err := writer.WriteTask(ctx, report.TaskFromResult(r)); err != nil && !errors.Is(err, context.Canceled) {
			log.Warn("failed to write task record", zap.Error(err))
		}
	}

	summary := pipeline.Summarize(results)
	log.Info(report.FormatSummary(summary, elapsed))
	if writer != nil {
		rec := &report.SummaryRecord{
			Total:         summary.Total,
			Succeeded:     summary.Succeeded,
			Failed:        summary.Failed,
			Duration:      elapsed,
			DurationHuman: elapsed.Round(time.Second).String(),
			Workers:       workers,
		}
		if err := writer.WriteSummary(ctx, rec); err != nil && !errors.Is(err, context.Canceled) {
			log.Warn("failed to write summary record", zap.Error(err))
		}
	}
}

// recordHistory persists the run. History is advisory; failures are
// logged, never fatal.
func recordHistory(ctx context.Context, log *zap.Logger, path string, run runlog.Run, results []pipeline.TaskResult) {
	summary := pipeline.Summarize(results)
	run.Total = summary.Total
	run.Succeeded = summary.Succeeded
	run.Failed = summary.Failed

	store, err := runlog.Open(ctx, path)
	if err != nil {
		log.Warn("run history unavailable", zap.String("path", path), zap.Error(err))
		return
	}
	defer func() { _ = store.Close() }()

	if err := store.RecordRun(ctx, run, results); err != nil {
		log.Warn("failed to record run history", zap.Error(err))
	}
}

// createWriter creates the JSONL record writer. Returns a nil writer
// when no destination is configured.
func createWriter(dest, runID string) (report.Writer, func(), error) {
	if dest == "" {
		return nil, func() {}, nil
	}
	if dest == "stdout" {
		w := report.NewJSONLWriter(os.Stdout, runID)
		return w, func() { _ = w.Close() }, nil
	}

	f, err := os.Create(dest)
	if err != nil {
		return nil, nil, fmt.Errorf("create output file %s: %w", dest, err)
	}
	w := report.NewJSONLWriter(f, runID)
	cleanup := func() {
		_ = w.Close()
		_ = f.Close()
	}
	return w, cleanup, nil
}
