package types

import "context"

type contextKey string

const (
	// RunIDKey is the context key for the pipeline run id.
	RunIDKey contextKey = "runID"
)

// WithRunID returns a new context carrying the run id.
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RunIDKey, id)
}

// RunIDFromContext returns the run id from the context.
func RunIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(RunIDKey).(string)
	return id, ok
}
