// Package apperrors provides the structured error type used across the
// scrape orchestrator's public and internal APIs.
package apperrors

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Code is the closed classification of application-level errors, distinct
// from model.ErrorType (which classifies tier-execution outcomes).
type Code string

const (
	CodeValidation  Code = "VALIDATION"
	CodeNotFound    Code = "NOT_FOUND"
	CodeConflict    Code = "CONFLICT"
	CodeTimeout     Code = "TIMEOUT"
	CodeUpstream    Code = "UPSTREAM"
	CodeInternal    Code = "INTERNAL"
)

// Severity ranks how loudly an error should surface in logs/alerts.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// ScrapeError is the structured error returned across package boundaries
// and serialized at the HTTP API edge.
type ScrapeError struct {
	ID        string                 `json:"id"`
	Code      Code                   `json:"code"`
	Message   string                 `json:"message"`
	Severity  Severity               `json:"severity"`
	Timestamp time.Time              `json:"timestamp"`
	Context   map[string]interface{} `json:"context,omitempty"`
	Cause     error                  `json:"-"`
	Retryable bool                   `json:"retryable"`
}

func (e *ScrapeError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause to errors.Is/errors.As.
func (e *ScrapeError) Unwrap() error {
	return e.Cause
}

// WithContext adds a context key, allocating the map on first use.
func (e *ScrapeError) WithContext(key string, value interface{}) *ScrapeError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// ToJSON serializes the error for API responses.
func (e *ScrapeError) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// HTTPStatus maps Code to the status code the HTTP API edge should return.
func (e *ScrapeError) HTTPStatus() int {
	switch e.Code {
	case CodeValidation:
		return 400
	case CodeNotFound:
		return 404
	case CodeConflict:
		return 409
	case CodeTimeout:
		return 504
	case CodeUpstream:
		return 502
	default:
		return 500
	}
}

// ErrorBuilder builds a ScrapeError fluently, mirroring the orchestrator's
// convention of constructing errors at the point of failure with enough
// context to diagnose it later.
type ErrorBuilder struct {
	err *ScrapeError
}

// NewErrorBuilder starts a builder for the given code and message.
func NewErrorBuilder(code Code, message string) *ErrorBuilder {
	return &ErrorBuilder{
		err: &ScrapeError{
			ID:        uuid.New().String(),
			Code:      code,
			Message:   message,
			Timestamp: time.Now(),
			Context:   make(map[string]interface{}),
		},
	}
}

func (b *ErrorBuilder) Severity(s Severity) *ErrorBuilder {
	b.err.Severity = s
	return b
}

func (b *ErrorBuilder) Cause(cause error) *ErrorBuilder {
	b.err.Cause = cause
	return b
}

func (b *ErrorBuilder) Context(key string, value interface{}) *ErrorBuilder {
	b.err.Context[key] = value
	return b
}

func (b *ErrorBuilder) Retryable(retryable bool) *ErrorBuilder {
	b.err.Retryable = retryable
	return b
}

func (b *ErrorBuilder) Build() *ScrapeError {
	if b.err.Severity == "" {
		b.err.Severity = SeverityMedium
	}
	return b.err
}

// NewValidationError is a shorthand for a low-severity validation failure.
func NewValidationError(message string) *ScrapeError {
	return NewErrorBuilder(CodeValidation, message).Severity(SeverityLow).Build()
}

// NewNotFoundError is a shorthand for a resource lookup miss.
func NewNotFoundError(resourceType, resourceID string) *ScrapeError {
	return NewErrorBuilder(CodeNotFound, fmt.Sprintf("%s not found", resourceType)).
		Severity(SeverityLow).
		Context("resource_type", resourceType).
		Context("resource_id", resourceID).
		Build()
}

// NewConflictError is a shorthand for a state-machine violation such as a
// double assignment or a cancel of an in-progress job.
func NewConflictError(message string) *ScrapeError {
	return NewErrorBuilder(CodeConflict, message).Severity(SeverityMedium).Build()
}

// NewInternalError wraps an unexpected error with full severity.
func NewInternalError(message string, cause error) *ScrapeError {
	return NewErrorBuilder(CodeInternal, message).
		Severity(SeverityCritical).
		Cause(cause).
		Build()
}
