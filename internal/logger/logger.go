// internal/logger/logger.go
//
// Structured logger for the confres binary (Zap + Lumberjack).
//
// Context
// -------
// The CLI always logs to stderr so stdout stays clean for resolved output.
// When a log file is configured the same events are also written as JSON
// and rotated by Lumberjack; no external log-rotate job is required.
//
// Usage
// -----
//
//	log, err := logger.New(logger.Options{Level: "debug", File: "confres.log"})
//	if err != nil { … }
//	log.Infow("watching", "files", files)
//
// Notes
// -----
// • Zap core uses ISO-8601 timestamps and lowercase levels.
// • Library packages never call New; they use zap.S() or an injected
//   logger, so embedding applications keep control of logging.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/natefinch/lumberjack"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options selects sinks and level.
type Options struct {
	// Level is a zap level name; empty means info.
	Level string
	// File enables the rotated JSON sink when non-empty.
	File string
	// Color colorises console levels.
	Color bool
	// Console overrides the console sink (stderr when nil).
	Console io.Writer
}

// New returns a *zap.SugaredLogger and installs it as the process-wide
// default via zap.ReplaceGlobals.
func New(opts Options) (*zap.SugaredLogger, error) {
	level := zap.InfoLevel
	if opts.Level != "" {
		if err := level.Set(opts.Level); err != nil {
			return nil, fmt.Errorf("logger: %w", err)
		}
	}

	encCfg := zapcore.EncoderConfig{
		TimeKey:      "ts",
		LevelKey:     "level",
		MessageKey:   "msg",
		CallerKey:    "caller",
		EncodeTime:   zapcore.ISO8601TimeEncoder,
		EncodeLevel:  zapcore.LowercaseLevelEncoder,
		EncodeCaller: zapcore.ShortCallerEncoder,
	}

	console := opts.Console
	if console == nil {
		console = os.Stderr
	}
	consoleEnc := encCfg
	if opts.Color {
		consoleEnc.EncodeLevel = zapcore.LowercaseColorLevelEncoder
	}
	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(consoleEnc), zapcore.AddSync(console), level),
	}
	errOut := zapcore.AddSync(console)

	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
			return nil, fmt.Errorf("logger: %w", err)
		}
		fileSink := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    50, // MB
			MaxBackups: 7,  // keep last seven files
			MaxAge:     14, // days
			Compress:   true,
		}
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(encCfg),
			zapcore.AddSync(fileSink),
			level,
		))
		errOut = zapcore.AddSync(fileSink)
	}

	z := zap.New(
		zapcore.NewTee(cores...),
		zap.ErrorOutput(errOut),
	).Sugar()

	zap.ReplaceGlobals(z.Desugar())

	z.Debugw("logger online", "level", level.String(), "file", opts.File)
	return z, nil
}
