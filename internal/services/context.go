package services

import "context"

type contextKey string

const (
	runIDKey      contextKey = "run_id"
	tomogramIDKey contextKey = "tomogram_id"
	stepKey       contextKey = "step"
)

// WithRunID annotates context with the batch run identifier.
func WithRunID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, runIDKey, id)
}

// RunIDFromContext extracts the batch run identifier if present.
func RunIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(runIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithTomogramID annotates context with the tomogram being processed.
func WithTomogramID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, tomogramIDKey, id)
}

// TomogramIDFromContext returns the tomogram identifier if present.
func TomogramIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(tomogramIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithStep annotates context with the pipeline step name.
func WithStep(ctx context.Context, step string) context.Context {
	if step == "" {
		return ctx
	}
	return context.WithValue(ctx, stepKey, step)
}

// StepFromContext returns the step name if present.
func StepFromContext(ctx context.Context) (string, bool) {
	v := ctx.Value(stepKey)
	if str, ok := v.(string); ok && str != "" {
		return str, true
	}
	return "", false
}
