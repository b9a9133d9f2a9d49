package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrValidation marks rejected input, such as an activity whose actor
	// does not match its object's author. Never retried.
	ErrValidation = errors.New("validation error")
	// ErrNotFound marks a referenced entity that is absent locally.
	ErrNotFound = errors.New("not found")
	// ErrConfiguration marks unusable configuration discovered at runtime.
	ErrConfiguration = errors.New("configuration error")
	// ErrTransient marks a failure worth retrying, such as a non-2xx
	// response from a remote server.
	ErrTransient = errors.New("transient failure")
	// ErrTimeout marks an operation that exceeded its wall-clock budget.
	ErrTimeout = errors.New("timeout")
)

// Wrap builds an error message that includes component context while tagging
// it with the provided marker for later classification. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsRetryable reports whether an error should be retried via the scheduler's
// lock-expiry mechanism. Validation and configuration failures are permanent.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, ErrValidation) && !errors.Is(err, ErrConfiguration)
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
