// Package logging builds the zap logger used in production and adapts it
// to the key/value Logger interface the service layers accept.
package logging

import (
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config selects level and encoding.
type Config struct {
	Level    string
	Encoding string
	// Output overrides the default stderr sink.
	Output io.Writer
}

// Logger wraps a sugared zap logger. It satisfies core.Logger,
// session.Logger and loader.Logger.
type Logger struct {
	sugar *zap.SugaredLogger
}

// New builds a logger. Encoding is json (default) or console.
func New(cfg Config) (*Logger, error) {
	level := zap.NewAtomicLevel()
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(strings.ToLower(cfg.Level))); err != nil {
			return nil, fmt.Errorf("log level %q: %w", cfg.Level, err)
		}
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = level
	zcfg.EncoderConfig.TimeKey = "ts"
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	switch strings.ToLower(cfg.Encoding) {
	case "", "json":
		zcfg.Encoding = "json"
	case "console":
		zcfg.Encoding = "console"
		zcfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	default:
		return nil, fmt.Errorf("log encoding %q: must be json or console", cfg.Encoding)
	}
	if cfg.Output != nil {
		var enc zapcore.Encoder
		if zcfg.Encoding == "console" {
			enc = zapcore.NewConsoleEncoder(zcfg.EncoderConfig)
		} else {
			enc = zapcore.NewJSONEncoder(zcfg.EncoderConfig)
		}
		return Wrap(zap.New(zapcore.NewCore(enc, zapcore.AddSync(cfg.Output), level))), nil
	}
	base, err := zcfg.Build()
	if err != nil {
		return nil, err
	}
	return Wrap(base), nil
}

// Wrap adapts an existing zap logger.
func Wrap(base *zap.Logger) *Logger {
	return &Logger{sugar: base.Sugar()}
}

// Nop returns a logger that discards everything.
func Nop() *Logger { return Wrap(zap.NewNop()) }

// Named returns a child logger with a name segment.
func (l *Logger) Named(name string) *Logger { return &Logger{sugar: l.sugar.Named(name)} }

// With returns a child logger carrying the key/value pairs.
func (l *Logger) With(args ...any) *Logger { return &Logger{sugar: l.sugar.With(args...)} }

func (l *Logger) Debug(msg string, args ...any) { l.sugar.Debugw(msg, args...) }
func (l *Logger) Info(msg string, args ...any)  { l.sugar.Infow(msg, args...) }
func (l *Logger) Warn(msg string, args ...any)  { l.sugar.Warnw(msg, args...) }
func (l *Logger) Error(msg string, args ...any) { l.sugar.Errorw(msg, args...) }

// Sync flushes buffered entries.
func (l *Logger) Sync() error { return l.sugar.Sync() }

// Zap exposes the underlying logger for libraries that want one.
func (l *Logger) Zap() *zap.Logger { return l.sugar.Desugar() }
