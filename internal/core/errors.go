package core

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidConfig marks a structurally unusable recurrence config.
	ErrInvalidConfig = errors.New("invalid recurrence config")

	// ErrInvalidPattern marks an unrecognized pattern value.
	ErrInvalidPattern = errors.New("invalid recurrence pattern")

	// ErrNotFound marks a reference to an unknown task or instance.
	ErrNotFound = errors.New("not found")
)

// ValidationError carries the full error and warning lists produced by the
// validation gate. It blocks the mutating operation that triggered it.
type ValidationError struct {
	Errors   []string
	Warnings []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s", strings.Join(e.Errors, "; "))
}
