// Package logging builds the shared zap logger and carries request
// correlation data through context.
//
// Every request entering the HTTP API is assigned a trace id; components
// attach it to their log lines via Fields so a support engineer can follow
// one query across the orchestrator, cache, fallback, and export layers.
package logging

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New creates a zap logger for the given level and format.
//
// Format is "json" (production default) or "console". Level is any of
// zap's named levels (debug, info, warn, error).
func New(level, format string) (*zap.Logger, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	cfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(lvl),
		Encoding:         format,
		EncoderConfig:    encoderCfg,
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
		Sampling: &zap.SamplingConfig{
			Initial:    100,
			Thereafter: 100,
		},
	}
	if format == "console" {
		cfg.Sampling = nil
	}

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger, nil
}

type traceCtxKey struct{}

// WithTraceID returns a context carrying the request trace id.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceCtxKey{}, traceID)
}

// TraceID extracts the trace id from ctx, or "".
func TraceID(ctx context.Context) string {
	if v, ok := ctx.Value(traceCtxKey{}).(string); ok {
		return v
	}
	return ""
}

// Fields extracts correlation fields from ctx for structured logging.
func Fields(ctx context.Context) []zap.Field {
	if id := TraceID(ctx); id != "" {
		return []zap.Field{zap.String("trace_id", id)}
	}
	return nil
}
