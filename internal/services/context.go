package services

import "context"

type contextKey string

const (
	entityKindKey contextKey = "entity_kind"
	entityIDKey   contextKey = "entity_id"
	stateKey      contextKey = "state"
	requestIDKey  contextKey = "request_id"
)

// WithEntity annotates context with the schedulable entity kind and identifier.
func WithEntity(ctx context.Context, kind string, id int64) context.Context {
	if kind != "" {
		ctx = context.WithValue(ctx, entityKindKey, kind)
	}
	return context.WithValue(ctx, entityIDKey, id)
}

// EntityKindFromContext extracts the entity kind if present.
func EntityKindFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(entityKindKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// EntityIDFromContext extracts the entity identifier if present.
func EntityIDFromContext(ctx context.Context) (int64, bool) {
	switch v := ctx.Value(entityIDKey).(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	default:
		return 0, false
	}
}

// WithState annotates context with the entity's state at dispatch time.
func WithState(ctx context.Context, state string) context.Context {
	if state == "" {
		return ctx
	}
	return context.WithValue(ctx, stateKey, state)
}

// StateFromContext returns the state name if present.
func StateFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(stateKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(requestIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
