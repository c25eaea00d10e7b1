// Package logging adapts zap to the es.Logger interface used across streamcoord.
package logging

import (
	"context"
	"fmt"

	"github.com/getpup/pupsourcing/es"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger implements es.Logger on top of a zap.SugaredLogger.
// Arguments are alternating key/value pairs.
type Logger struct {
	sugar *zap.SugaredLogger
}

var _ es.Logger = (*Logger)(nil)

// New returns a JSON production logger writing to stderr at the given level
// ("debug", "info", "warn", "error").
func New(level string) (*Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.Sampling = nil

	z, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return FromZap(z), nil
}

// FromZap wraps an existing zap logger.
func FromZap(z *zap.Logger) *Logger {
	return &Logger{sugar: z.Sugar()}
}

func (l *Logger) Debug(_ context.Context, msg string, args ...interface{}) {
	l.sugar.Debugw(msg, args...)
}

func (l *Logger) Info(_ context.Context, msg string, args ...interface{}) {
	l.sugar.Infow(msg, args...)
}

func (l *Logger) Error(_ context.Context, msg string, args ...interface{}) {
	l.sugar.Errorw(msg, args...)
}

// Named returns a logger whose entries carry the given name.
func (l *Logger) Named(name string) *Logger {
	return &Logger{sugar: l.sugar.Named(name)}
}

// Sync flushes buffered entries.
func (l *Logger) Sync() error {
	return l.sugar.Sync()
}
