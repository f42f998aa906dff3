// Package errors provides structured error types for the Mosaico system.
// All errors include a category, code, message, and retryable flag for
// consistent error handling across components.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors by failure class.
type ErrorCategory string

const (
	ErrCategoryValidation   ErrorCategory = "VALIDATION"
	ErrCategoryNotFound     ErrorCategory = "NOT_FOUND"
	ErrCategoryImmutability ErrorCategory = "IMMUTABILITY"
	ErrCategoryConflict     ErrorCategory = "CONFLICT"
	ErrCategoryTransport    ErrorCategory = "TRANSPORT"
	ErrCategoryStorage      ErrorCategory = "STORAGE"
	ErrCategoryConsistency  ErrorCategory = "CONSISTENCY"
	ErrCategoryInternal     ErrorCategory = "INTERNAL"
)

// Error codes for each category.
const (
	// Validation codes
	CodeInvalidQuery       = "INVALID_QUERY"
	CodeDuplicateFieldPath = "DUPLICATE_FIELD_PATH"
	CodeMixedOntology      = "MIXED_ONTOLOGY"
	CodeUnknownFieldPath   = "UNKNOWN_FIELD_PATH"
	CodeTypeMismatch       = "TYPE_MISMATCH"
	CodeInvalidFormat      = "INVALID_FORMAT"
	CodeInvalidArgument    = "INVALID_ARGUMENT"

	// Not-found codes
	CodeSequenceNotFound = "SEQUENCE_NOT_FOUND"
	CodeTopicNotFound    = "TOPIC_NOT_FOUND"
	CodeChunkNotFound    = "CHUNK_NOT_FOUND"
	CodeUnknownOntology  = "UNKNOWN_ONTOLOGY"
	CodeObjectNotFound   = "OBJECT_NOT_FOUND"

	// Immutability codes
	CodeSequenceLocked = "SEQUENCE_LOCKED"
	CodeTopicLocked    = "TOPIC_LOCKED"

	// Conflict codes
	CodeAlreadyExists = "ALREADY_EXISTS"
	CodeActiveWriter  = "ACTIVE_WRITER"

	// Transport codes
	CodeConnectionFailed = "CONNECTION_FAILED"
	CodeStreamBroken     = "STREAM_BROKEN"
	CodeRetriesExhausted = "RETRIES_EXHAUSTED"

	// Storage codes
	CodeUploadFailed   = "UPLOAD_FAILED"
	CodeDownloadFailed = "DOWNLOAD_FAILED"
	CodePartialWrite   = "PARTIAL_WRITE"
	CodeCorruptChunk   = "CORRUPT_CHUNK"

	// Consistency codes
	CodeUnlockedTopics = "UNLOCKED_TOPICS"
	CodeOrphanedTopics = "ORPHANED_TOPICS"

	// Internal codes
	CodeUnexpected = "UNEXPECTED"
)

// MosaicoError is the structured error type used throughout the system.
type MosaicoError struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Details   map[string]interface{}
	Cause     error
	Retryable bool
}

// Error returns a formatted error string.
func (e *MosaicoError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *MosaicoError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error's category and code.
func (e *MosaicoError) Is(target error) bool {
	var t *MosaicoError
	if errors.As(target, &t) {
		return e.Category == t.Category && e.Code == t.Code
	}
	return false
}

// New creates a new MosaicoError.
func New(category ErrorCategory, code, message string) *MosaicoError {
	return &MosaicoError{
		Category:  category,
		Code:      code,
		Message:   message,
		Retryable: isRetryable(category, code),
	}
}

// Wrap creates a new MosaicoError wrapping an existing error.
func Wrap(category ErrorCategory, code, message string, cause error) *MosaicoError {
	return &MosaicoError{
		Category:  category,
		Code:      code,
		Message:   message,
		Cause:     cause,
		Retryable: isRetryable(category, code),
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *MosaicoError) WithDetails(details map[string]interface{}) *MosaicoError {
	cp := *e
	cp.Details = details
	return &cp
}

// IsRetryable checks whether an error (or its chain) is retryable.
func IsRetryable(err error) bool {
	var me *MosaicoError
	if errors.As(err, &me) {
		return me.Retryable
	}
	return false
}

// GetCategory extracts the error category from an error chain.
// Returns empty string if the error is not a MosaicoError.
func GetCategory(err error) ErrorCategory {
	var me *MosaicoError
	if errors.As(err, &me) {
		return me.Category
	}
	return ""
}

// GetCode extracts the error code from an error chain.
// Returns empty string if the error is not a MosaicoError.
func GetCode(err error) string {
	var me *MosaicoError
	if errors.As(err, &me) {
		return me.Code
	}
	return ""
}

// isRetryable determines if an error code is retryable. Only transport
// failures and transient storage I/O qualify; catalog constraint
// violations are usage errors and must surface immediately.
func isRetryable(category ErrorCategory, code string) bool {
	switch {
	case category == ErrCategoryTransport && code != CodeRetriesExhausted:
		return true
	case category == ErrCategoryStorage && code == CodeUploadFailed:
		return true
	case category == ErrCategoryStorage && code == CodeDownloadFailed:
		return true
	default:
		return false
	}
}

// Convenience constructors for common errors.

func NewValidationError(code, message string) *MosaicoError {
	return New(ErrCategoryValidation, code, message)
}

func NewNotFoundError(code, message string) *MosaicoError {
	return New(ErrCategoryNotFound, code, message)
}

func NewImmutabilityViolation(code, message string) *MosaicoError {
	return New(ErrCategoryImmutability, code, message)
}

func NewAlreadyExistsError(message string) *MosaicoError {
	return New(ErrCategoryConflict, CodeAlreadyExists, message)
}

func NewTransportError(code, message string, cause error) *MosaicoError {
	return Wrap(ErrCategoryTransport, code, message, cause)
}

func NewStorageError(code, message string, cause error) *MosaicoError {
	return Wrap(ErrCategoryStorage, code, message, cause)
}

func NewPartialWriteError(message string, cause error) *MosaicoError {
	return Wrap(ErrCategoryStorage, CodePartialWrite, message, cause)
}

func NewConsistencyError(code, message string) *MosaicoError {
	return New(ErrCategoryConsistency, code, message)
}

func NewInternalError(message string, cause error) *MosaicoError {
	return Wrap(ErrCategoryInternal, CodeUnexpected, message, cause)
}

// Category predicates used at decision points in the write/read paths.

func IsValidation(err error) bool   { return GetCategory(err) == ErrCategoryValidation }
func IsNotFound(err error) bool     { return GetCategory(err) == ErrCategoryNotFound }
func IsImmutability(err error) bool { return GetCategory(err) == ErrCategoryImmutability }
func IsConflict(err error) bool     { return GetCategory(err) == ErrCategoryConflict }
func IsTransport(err error) bool    { return GetCategory(err) == ErrCategoryTransport }
func IsConsistency(err error) bool  { return GetCategory(err) == ErrCategoryConsistency }
