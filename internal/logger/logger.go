// Package logger holds the engine's zap logger.
package logger

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Standard field names so log lines stay greppable across components.
const (
	FieldRunID     = "run_id"
	FieldSource    = "source"
	FieldLink      = "link"
	FieldJobID     = "job_id"
	FieldDryRun    = "dry_run"
	FieldError     = "error"
	FieldCount     = "count"
	FieldReason    = "reason"
	FieldStatus    = "status"
	FieldComponent = "component"
)

// Logger is the process-wide logger. It is a no-op until Initialize runs so
// packages and tests can log without setup.
var Logger *zap.SugaredLogger = zap.NewNop().Sugar()

// Initialize replaces Logger. format is "json" or anything else for console
// output; level is debug|info|warn|error.
func Initialize(format, level string) error {
	lvl := parseLevel(level)

	if strings.EqualFold(format, "json") {
		cfg := zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(lvl)
		cfg.OutputPaths = []string{"stderr"}
		cfg.ErrorOutputPaths = []string{"stderr"}
		zl, err := cfg.Build()
		if err != nil {
			return err
		}
		Logger = zl.Sugar()
		return nil
	}

	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encCfg),
		// stdout carries the JSON summary, so logs go to stderr
		zapcore.AddSync(os.Stderr),
		lvl,
	)
	Logger = zap.New(core).Sugar()
	return nil
}

// ComponentLogger returns a named child of Logger.
//
//	type Reconciler struct{ log *zap.SugaredLogger }
//	r.log = logger.ComponentLogger("reconcile")
func ComponentLogger(name string) *zap.SugaredLogger {
	return Logger.Named(name)
}

// Sync flushes buffered entries. Errors from syncing stderr are ignored.
func Sync() {
	_ = Logger.Sync()
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
