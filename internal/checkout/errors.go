package checkout

import (
	"errors"
	"fmt"
)

var (
	ErrSessionFailed = errors.New("could not start checkout, please try again")
	ErrPersistence   = errors.New("order could not be persisted")
)

// ValidationError names the first request field that failed validation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}
