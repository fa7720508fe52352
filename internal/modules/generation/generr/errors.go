// Package generr holds the error vocabulary shared by the generation pipeline.
package generr

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dipteshhh/learnease-backend/internal/domain/documents"
)

// Contract-validation codes. The model can plausibly fix these when told what was wrong.
const (
	CodeSchemaValidationFailed     = "SCHEMA_VALIDATION_FAILED"
	CodeQuoteNotFound              = "QUOTE_NOT_FOUND"
	CodeCitationExcerptNotFound    = "CITATION_EXCERPT_NOT_FOUND"
	CodeCitationOutOfRange         = "CITATION_OUT_OF_RANGE"
	CodeAcademicIntegrityViolation = "ACADEMIC_INTEGRITY_VIOLATION"
)

// Business-rule codes.
const (
	CodeDocumentUnsupported = "DOCUMENT_UNSUPPORTED"
	CodeQuizNotAvailable    = "QUIZ_NOT_AVAILABLE"
	CodeDocumentNotFound    = "DOCUMENT_NOT_FOUND"
)

// State-machine codes.
const (
	CodeAlreadyProcessing = "ALREADY_PROCESSING"
	CodeIllegalRetryState = "ILLEGAL_RETRY_STATE"
)

// Terminal run codes.
const (
	CodeGenerationFailed      = "GENERATION_FAILED"
	CodeGenerationInterrupted = "GENERATION_INTERRUPTED"
)

// ValidationError is raised when generated output breaks the output contract.
type ValidationError struct {
	Code    string
	Message string
	Details []string
}

func (e *ValidationError) Error() string {
	if e == nil {
		return ""
	}
	if len(e.Details) == 0 {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, strings.Join(e.Details, "; "))
}

func NewValidation(code, message string, details ...string) *ValidationError {
	return &ValidationError{Code: code, Message: message, Details: details}
}

// BusinessError is a request the input can never satisfy.
type BusinessError struct {
	Code    string
	Message string
}

func (e *BusinessError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func NewBusiness(code, message string) *BusinessError {
	return &BusinessError{Code: code, Message: message}
}

// StateError is a flow transition the current status does not allow.
type StateError struct {
	Code   string
	Flow   documents.Flow
	Status documents.FlowStatus
}

func (e *StateError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s is %s", e.Code, e.Flow, e.Status)
}

// UnavailableError wraps "the provider cannot be used right now", including an open breaker.
type UnavailableError struct {
	Code       string
	Message    string
	RetryAfter time.Duration
	Err        error
}

func (e *UnavailableError) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Message
	if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s: %s (retry_after_ms=%d)", e.Code, msg, e.RetryAfterMs())
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

func (e *UnavailableError) RetryAfterMs() int64 {
	if e == nil {
		return 0
	}
	return e.RetryAfter.Milliseconds()
}

// Code returns the pipeline code carried by err, or "".
func Code(err error) string {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Code
	}
	var be *BusinessError
	if errors.As(err, &be) {
		return be.Code
	}
	var se *StateError
	if errors.As(err, &se) {
		return se.Code
	}
	var ue *UnavailableError
	if errors.As(err, &ue) {
		return ue.Code
	}
	return ""
}

var userMessages = map[string]string{
	CodeSchemaValidationFailed:     "The generated content was malformed. Retry generation.",
	CodeQuoteNotFound:              "The generated content could not be matched to your document. Retry generation.",
	CodeCitationExcerptNotFound:    "The generated citations could not be matched to your document. Retry generation.",
	CodeCitationOutOfRange:         "The generated citations pointed outside your document. Retry generation.",
	CodeAcademicIntegrityViolation: "The generated content would have answered graded work. Retry generation.",
	CodeGenerationFailed:           "Generation is temporarily unavailable. Retry generation.",
	CodeGenerationInterrupted:      "Generation was interrupted. Retry generation.",
	CodeDocumentUnsupported:        "This document type is not supported.",
	CodeQuizNotAvailable:           "Quizzes are only available for lecture documents.",
}

// UserMessage returns the generic, code-driven message shown to end users.
func UserMessage(code string) string {
	if msg, ok := userMessages[code]; ok {
		return msg
	}
	return "Generation failed. Retry generation."
}
