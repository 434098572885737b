package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeAlreadyExists represents a uniqueness violation on create
	ErrorTypeAlreadyExists ErrorType = "already_exists"
	// ErrorTypeNotFound represents a missing fractal, knowledge fact or edge endpoint
	ErrorTypeNotFound ErrorType = "not_found"
	// ErrorTypeInvalidArgument represents malformed input or an unknown relation kind
	ErrorTypeInvalidArgument ErrorType = "invalid_argument"
	// ErrorTypeStoreFailure represents any error raised by the underlying graph store
	ErrorTypeStoreFailure ErrorType = "store_failure"
	// ErrorTypeConfig represents configuration errors
	ErrorTypeConfig ErrorType = "config"
)

// BaseError is the base error type with common fields
type BaseError struct {
	Type      ErrorType
	Message   string
	Timestamp time.Time
	Err       error // Wrapped error
}

// Error implements the error interface
func (e *BaseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the wrapped error for error unwrapping
func (e *BaseError) Unwrap() error {
	return e.Err
}

// ErrorType returns the category of the error. Typed errors embedding
// *BaseError inherit it, which is what IsErrorType matches on.
func (e *BaseError) ErrorType() ErrorType {
	return e.Type
}

// NewBaseError creates a new base error
func NewBaseError(errType ErrorType, message string, err error) *BaseError {
	return &BaseError{
		Type:      errType,
		Message:   message,
		Timestamp: time.Now(),
		Err:       err,
	}
}

// Graph Errors

// ErrAlreadyExists is returned when an entity with the same unique key exists
type ErrAlreadyExists struct {
	*BaseError
	Entity string
	Key    string
}

func NewAlreadyExists(entity, key string, err error) *ErrAlreadyExists {
	return &ErrAlreadyExists{
		BaseError: NewBaseError(ErrorTypeAlreadyExists, fmt.Sprintf("%s with name '%s' already exists", entity, key), err),
		Entity:    entity,
		Key:       key,
	}
}

// ErrNotFound is returned when an entity or an edge endpoint is missing
type ErrNotFound struct {
	*BaseError
	Entity string
	Key    string
}

func NewNotFound(entity, key string) *ErrNotFound {
	return &ErrNotFound{
		BaseError: NewBaseError(ErrorTypeNotFound, fmt.Sprintf("%s not found: %s", entity, key), nil),
		Entity:    entity,
		Key:       key,
	}
}

// NewNotFoundCause is NewNotFound with the store error that revealed the miss
func NewNotFoundCause(entity, key string, err error) *ErrNotFound {
	e := NewNotFound(entity, key)
	e.Err = err
	return e
}

// ErrInvalidArgument is returned for malformed input
type ErrInvalidArgument struct {
	*BaseError
	Field  string
	Reason string
}

func NewInvalidArgument(field, reason string) *ErrInvalidArgument {
	return &ErrInvalidArgument{
		BaseError: NewBaseError(ErrorTypeInvalidArgument, fmt.Sprintf("invalid %s: %s", field, reason), nil),
		Field:     field,
		Reason:    reason,
	}
}

// ErrStoreFailure wraps any error coming back from the graph store
type ErrStoreFailure struct {
	*BaseError
	Operation string
}

func NewStoreFailure(operation string, err error) *ErrStoreFailure {
	return &ErrStoreFailure{
		BaseError: NewBaseError(ErrorTypeStoreFailure, fmt.Sprintf("store operation failed: %s", operation), err),
		Operation: operation,
	}
}

// Config Errors

// ErrConfigValidationFailed is returned when configuration validation fails
type ErrConfigValidationFailed struct {
	*BaseError
	Field  string
	Reason string
}

func NewConfigValidationFailed(field, reason string) *ErrConfigValidationFailed {
	return &ErrConfigValidationFailed{
		BaseError: NewBaseError(ErrorTypeConfig, fmt.Sprintf("config validation failed: %s - %s", field, reason), nil),
		Field:     field,
		Reason:    reason,
	}
}

// ErrConfigMissingRequired is returned when a required config value is missing
type ErrConfigMissingRequired struct {
	*BaseError
	Field string
}

func NewConfigMissingRequired(field string) *ErrConfigMissingRequired {
	return &ErrConfigMissingRequired{
		BaseError: NewBaseError(ErrorTypeConfig, fmt.Sprintf("missing required config: %s", field), nil),
		Field:     field,
	}
}

// Helper functions

type typedError interface {
	error
	ErrorType() ErrorType
}

// IsErrorType checks if an error, or any error it wraps, is of a specific type
func IsErrorType(err error, errType ErrorType) bool {
	for err != nil {
		var typed typedError
		if !stderrors.As(err, &typed) {
			return false
		}
		if typed.ErrorType() == errType {
			return true
		}
		// Keep walking below the first typed error in the chain
		next, ok := typed.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = next.Unwrap()
	}
	return false
}

// IsAlreadyExists reports whether err is a uniqueness violation
func IsAlreadyExists(err error) bool {
	return IsErrorType(err, ErrorTypeAlreadyExists)
}

// IsNotFound reports whether err is a missing entity
func IsNotFound(err error) bool {
	return IsErrorType(err, ErrorTypeNotFound)
}

// IsInvalidArgument reports whether err is caused by bad input
func IsInvalidArgument(err error) bool {
	return IsErrorType(err, ErrorTypeInvalidArgument)
}

// IsStoreFailure reports whether err came from the graph store
func IsStoreFailure(err error) bool {
	return IsErrorType(err, ErrorTypeStoreFailure)
}

// IsRetryable checks if an error is retryable. Only store failures are; the
// repositories never retry on their own.
func IsRetryable(err error) bool {
	if IsErrorType(err, ErrorTypeAlreadyExists) || IsErrorType(err, ErrorTypeNotFound) ||
		IsErrorType(err, ErrorTypeInvalidArgument) {
		return false
	}
	return IsErrorType(err, ErrorTypeStoreFailure)
}
