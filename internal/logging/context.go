package logging

import (
	"context"

	"go.uber.org/zap"
)

type contextKey string

const runIDKey contextKey = "run_id"

// WithRunID annotates ctx with the pipeline run identifier.
func WithRunID(ctx context.Context, runID string) context.Context {
	if runID == "" {
		return ctx
	}
	return context.WithValue(ctx, runIDKey, runID)
}

// RunIDFromContext extracts the run identifier if present.
func RunIDFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(runIDKey).(string)
	return v, ok && v != ""
}

// ForRun returns logger decorated with the run_id carried by ctx, if any.
func ForRun(ctx context.Context, logger *zap.Logger) *zap.Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	if runID, ok := RunIDFromContext(ctx); ok {
		return logger.With(zap.String("run_id", runID))
	}
	return logger
}
