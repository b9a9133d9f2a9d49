package logging

import (
	"context"
	"log/slog"

	"roost/internal/services"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldEntity is the standardized structured logging key for schedulable entity kinds.
	FieldEntity = "entity"
	// FieldEntityID is the standardized structured logging key for entity identifiers.
	FieldEntityID = "entity_id"
	// FieldState is the standardized structured logging key for entity state names.
	FieldState = "state"
	// FieldCorrelationID is the standardized structured logging key for dispatch correlation identifiers.
	FieldCorrelationID = "correlation_id"
	// FieldEventType tags log lines with a machine-readable event classification.
	FieldEventType = "event_type"
	// FieldErrorHint carries an operator-facing next step for warnings and errors.
	FieldErrorHint = "error_hint"
)

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 4)
	if kind, ok := services.EntityKindFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldEntity, kind))
	}
	if id, ok := services.EntityIDFromContext(ctx); ok {
		fields = append(fields, slog.Int64(FieldEntityID, id))
	}
	if state, ok := services.StateFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldState, state))
	}
	if rid, ok := services.RequestIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldCorrelationID, rid))
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
	return logger.With(attrsToArgs(fields)...)
}
