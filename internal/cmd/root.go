// Package cmd wires the CLI surface: the batch run itself plus the
// inspection commands around it (pairs, history, doctor).
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/LuckyLaurence/InSAR-Pipeline/internal/observability"
)

var rootLogLevel string

var rootCmd = &cobra.Command{
	Use:   "insar",
	Short: "Batch orchestrator for Sentinel-1 interferometric processing",
	Long: `insar runs the external multi-step interferometric processor over a
list of scene pairs: shared resources (terrain model, orbit ephemerides)
are provisioned once, then each pair is processed in its own sandbox by
a bounded worker pool.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if rootLogLevel != "" {
			observability.Configure(rootLogLevel)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rootLogLevel, "log-level", "", "Log level (debug|info|warn|error)")
}

// codedError carries a process exit code alongside the cause.
type codedError struct {
	code int
	msg  string
	err  error
}

func (e *codedError) Error() string {
	if e.err == nil {
		return e.msg
	}
	return e.msg + ": " + e.err.Error()
}

func (e *codedError) Unwrap() error { return e.err }

// exitError creates an error that causes the CLI to exit with the
// given code.
func exitError(code int, message string, err error) error {
	return &codedError{code: code, msg: message, err: err}
}

// ExitWithCode logs the failure and terminates the process.
func ExitWithCode(log *zap.Logger, code int, message string, err error) {
	log.Error(message, zap.Int("exit_code", code), zap.Error(err))
	os.Exit(code)
}

// Execute runs the CLI. It installs signal handling so a first
// interrupt cancels the command context and lets in-flight work unwind.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		var coded *codedError
		if errors.As(err, &coded) {
			ExitWithCode(observability.CLILogger, coded.code, coded.msg, coded.err)
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
