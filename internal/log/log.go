// Package log builds the host's diagnostic logger.
//
// The browser owns stdout, so log output goes to a file in the user's config
// directory, or to stderr when that file cannot be opened.
package log

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type loggerKeyT struct{}

var loggerKey loggerKeyT

// ContextFields returns a context whose logger carries the given fields in
// addition to those already present.
func ContextFields(ctx context.Context, fields ...zap.Field) context.Context {
	return context.WithValue(ctx, loggerKey, From(ctx).With(fields...))
}

// WithLogger returns a context carrying l.
func WithLogger(ctx context.Context, l *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// From returns the logger carried by ctx, or a no-op logger.
func From(ctx context.Context) *zap.Logger {
	if l, ok := ctx.Value(loggerKey).(*zap.Logger); ok && l != nil {
		return l
	}
	return zap.NewNop()
}

func encoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "time"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg
}

func level(verbose bool) zap.AtomicLevel {
	if verbose {
		return zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	return zap.NewAtomicLevelAt(zapcore.InfoLevel)
}

// NewFile returns a logger appending JSON lines to path, creating the parent
// directory if needed.  The returned function flushes and closes the file.
func NewFile(path string, verbose bool) (*zap.Logger, func(), error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, nil, fmt.Errorf("creating log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}

	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig()), zapcore.Lock(f), level(verbose))
	logger := zap.New(core, zap.ErrorOutput(zapcore.Lock(os.Stderr)))
	closer := func() {
		_ = logger.Sync()
		_ = f.Close()
	}
	return logger, closer, nil
}

// NewStderr returns a logger writing JSON lines to stderr.
func NewStderr(verbose bool) *zap.Logger {
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig()), zapcore.Lock(os.Stderr), level(verbose))
	return zap.New(core)
}

// Open returns a file logger, falling back to stderr.  Logging problems never
// stop the host; the file error is logged through the fallback instead.
func Open(path string, verbose bool) (*zap.Logger, func()) {
	logger, closer, err := NewFile(path, verbose)
	if err == nil {
		return logger, closer
	}

	logger = NewStderr(verbose)
	logger.Warn("logging to stderr", zap.String("path", path), zap.Error(err))
	return logger, func() {
		_ = logger.Sync()
	}
}
