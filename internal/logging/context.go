package logging

import (
	"context"
	"log/slog"

	"tmbatch/internal/services"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldRunID identifies one batch invocation.
	FieldRunID = "run_id"
	// FieldTomogramID is the key for the tomogram identifier being processed.
	FieldTomogramID = "tomogram_id"
	// FieldStep is the key for the pipeline step (resolve, metadata, script, submit).
	FieldStep = "step"
	// FieldEventType classifies warnings and errors for filtering.
	FieldEventType = "event_type"
	// FieldErrorHint suggests the operator's next step.
	FieldErrorHint = "error_hint"
	// FieldImpact is the user-facing consequence of a warning.
	FieldImpact = "impact"
)

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 3)
	if id, ok := services.RunIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldRunID, id))
	}
	if id, ok := services.TomogramIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldTomogramID, id))
	}
	if step, ok := services.StepFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldStep, step))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(Args(fields...)...)
}
