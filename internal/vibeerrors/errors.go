// Package vibeerrors provides sentinel and typed error values shared by the vibe pipeline.
// Each type implements Is so callers can match with errors.Is(err, vibeerrors.ErrX)
// regardless of the message or wrapped cause.
package vibeerrors

import "fmt"

// ErrNotFound is the sentinel for missing vibes.
var ErrNotFound = &NotFoundError{}

// NotFoundError is returned when a requested vibe does not exist.
type NotFoundError struct {
	Resource string
	Message  string
}

// NewNotFoundError creates a NotFoundError with a custom message.
func NewNotFoundError(resource, message string) *NotFoundError {
	return &NotFoundError{Resource: resource, Message: message}
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	if e.Message != "" {
		return e.Message
	}

	if e.Resource != "" {
		return e.Resource + " not found"
	}

	return "resource not found"
}

// Is implements the error interface for error comparison.
func (e *NotFoundError) Is(target error) bool {
	_, ok := target.(*NotFoundError)

	return ok
}

// ErrValidation is the sentinel for rejected caller input (uid, top_k, limit).
var ErrValidation = &ValidationError{}

// ValidationError is returned when client input fails validation.
type ValidationError struct {
	Field   string
	Message string
}

// NewValidationError creates a ValidationError with a custom message.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Message != "" {
		return e.Message
	}

	if e.Field != "" {
		return "validation failed for field: " + e.Field
	}

	return "validation error"
}

// Is implements the error interface for error comparison.
func (e *ValidationError) Is(target error) bool {
	_, ok := target.(*ValidationError)

	return ok
}

// ErrNormalization is the sentinel for text that cannot be normalized.
var ErrNormalization = &NormalizationError{}

// NormalizationError is returned when input text is empty or normalizes to nothing.
type NormalizationError struct {
	Message string
}

// NewNormalizationError creates a NormalizationError.
func NewNormalizationError(message string) *NormalizationError {
	return &NormalizationError{Message: message}
}

// Error implements the error interface.
func (e *NormalizationError) Error() string {
	if e.Message != "" {
		return e.Message
	}

	return "text normalization failed"
}

// Is implements the error interface for error comparison.
func (e *NormalizationError) Is(target error) bool {
	_, ok := target.(*NormalizationError)

	return ok
}

// ErrEmbedding is the sentinel for embedding generation failures.
var ErrEmbedding = &EmbeddingError{}

// EmbeddingError is returned when a vector could not be produced for a text: provider failure,
// missing or wrongly sized vector, zero norm, or text that failed normalization.
type EmbeddingError struct {
	// Text is the input that was being embedded (raw query or normalized vibe).
	Text    string
	Message string
	Err     error
}

// NewEmbeddingError creates an EmbeddingError wrapping cause (which may be nil).
func NewEmbeddingError(text, message string, cause error) *EmbeddingError {
	return &EmbeddingError{Text: text, Message: message, Err: cause}
}

// Error implements the error interface.
func (e *EmbeddingError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "embedding generation failed"
	}

	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}

	return msg
}

// Unwrap returns the underlying cause.
func (e *EmbeddingError) Unwrap() error {
	return e.Err
}

// Is implements the error interface for error comparison.
func (e *EmbeddingError) Is(target error) bool {
	_, ok := target.(*EmbeddingError)

	return ok
}

// ErrStore is the sentinel for vector store failures.
var ErrStore = &StoreError{}

// StoreError is returned when the vibe store rejects or fails an operation.
type StoreError struct {
	Op  string
	UID string
	Err error
}

// NewStoreError creates a StoreError for op (e.g. "upsert", "nearest") and optional uid.
func NewStoreError(op, uid string, cause error) *StoreError {
	return &StoreError{Op: op, UID: uid, Err: cause}
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	op := e.Op
	if op == "" {
		op = "operation"
	}

	msg := "vibe store " + op + " failed"
	if e.UID != "" {
		msg = fmt.Sprintf("%s for uid %q", msg, e.UID)
	}

	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}

	return msg
}

// Unwrap returns the underlying cause.
func (e *StoreError) Unwrap() error {
	return e.Err
}

// Is implements the error interface for error comparison.
func (e *StoreError) Is(target error) bool {
	_, ok := target.(*StoreError)

	return ok
}
