// Package observability provides the shared CLI logger.
//
// The pipeline is an operator-facing batch tool, so the default logger
// writes human-readable console output to stderr. Structured fields are
// still attached to every message so runs can be post-processed when
// the output is captured.
package observability

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// CLILogger is the process-wide logger used by commands and pipeline
// components. It is replaced once at startup via Configure; components
// must not cache the value across Configure calls.
var CLILogger = newConsoleLogger(zapcore.InfoLevel)

// Configure rebuilds CLILogger at the given level name. Unknown level
// names fall back to info.
func Configure(level string) {
	CLILogger = newConsoleLogger(parseLevel(level))
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func newConsoleLogger(level zapcore.Level) *zap.Logger {
	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encCfg),
		zapcore.Lock(os.Stderr),
		level,
	)
	return zap.New(core)
}
