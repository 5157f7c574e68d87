package common

import (
	"errors"
	"fmt"
)

// Error kinds. Recovery policy hangs off the kind: configuration and
// persistence errors abort the whole job, external-service errors are retried
// at the batch level, parse errors are absorbed per item.
var (
	ErrConfiguration   = errors.New("configuration error")
	ErrExternalService = errors.New("external service error")
	ErrParse           = errors.New("parse error")
	ErrPersistence     = errors.New("persistence error")
)

// AppError carries a kind plus a human-readable message for the job record.
type AppError struct {
	Kind    error
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Cause }

// Is matches both the kind sentinel and the wrapped cause chain.
func (e *AppError) Is(target error) bool { return target == e.Kind }

func ConfigurationError(message string, cause error) *AppError {
	return &AppError{Kind: ErrConfiguration, Message: message, Cause: cause}
}

func ExternalServiceError(message string, cause error) *AppError {
	return &AppError{Kind: ErrExternalService, Message: message, Cause: cause}
}

func ParseError(message string, cause error) *AppError {
	return &AppError{Kind: ErrParse, Message: message, Cause: cause}
}

func PersistenceError(message string, cause error) *AppError {
	return &AppError{Kind: ErrPersistence, Message: message, Cause: cause}
}
