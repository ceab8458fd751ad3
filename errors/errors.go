// Package errors provides the error handling system for the parley chat server.
// It includes structured error types, JSON response formatting, request ID tracking,
// and integrated logging with Uber's zap logger.
//
// Two audiences are served. HTTP boundary failures (bad multipart bodies,
// oversized uploads, panics) are written as structured JSON via WriteError.
// Chat pipeline failures (extraction, provider, validation) are flattened into
// the plain answer string the client sees, via Answer.
//
// Basic usage:
//
//	// Structured JSON at the HTTP boundary
//	errors.WriteError(w, errors.NewValidationError(requestID, "Invalid input", nil))
//
//	// Pipeline failure flattened for the chat response
//	answer := errors.Answer(errors.NewExtractionError(requestID, err))
package errors

import (
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"
)

// DefaultLogger is the default zap logger instance used throughout the package.
// It is initialized to a production configuration but can be overridden using SetLogger.
var DefaultLogger *zap.Logger

func init() {
	var err error
	DefaultLogger, err = zap.NewProduction()
	if err != nil {
		DefaultLogger = zap.NewNop()
	}
}

// SetLogger allows setting a custom zap logger instance.
// A nil logger is ignored.
func SetLogger(logger *zap.Logger) {
	if logger != nil {
		DefaultLogger = logger
	}
}

// ErrorType represents different categories of errors that can occur
// in parley. Each type maps to an HTTP status code and a flattening rule.
type ErrorType string

const (
	// ValidationError represents input validation failures
	ValidationError ErrorType = "validation_error"
	// ExtractionError represents a document or image that could not be read
	ExtractionError ErrorType = "extraction_error"
	// ProviderError represents any failure of the remote completion model
	ProviderError ErrorType = "provider_error"
	// InternalError represents unexpected internal server errors
	InternalError ErrorType = "internal_error"
	// ConfigError represents configuration-related errors
	ConfigError ErrorType = "config_error"
	// RateLimitError represents inbound rate limiting errors
	RateLimitError ErrorType = "rate_limit_error"
	// BadRequestError represents invalid request format or parameters
	BadRequestError ErrorType = "bad_request"
	// NotFoundError represents resource not found errors
	NotFoundError ErrorType = "not_found"
)

// ParleyError is our custom error type that implements the error interface
// and provides additional context about the error. It is serialized to JSON
// for API responses while keeping the underlying cause for logging.
type ParleyError struct {
	// Type categorizes the error for client handling
	Type ErrorType `json:"type"`
	// Message is a human-readable error description
	Message string `json:"message"`
	// Code is the HTTP status code (not exposed in JSON)
	Code int `json:"-"`
	// RequestID links the error to a specific request
	RequestID string `json:"request_id"`
	// Details contains additional error context
	Details map[string]interface{} `json:"details,omitempty"`
	// err is the underlying error (not exposed in JSON)
	err error
}

// Error implements the error interface. It returns a string that
// combines the error type, message, and underlying error (if any).
func (e *ParleyError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error.
func (e *ParleyError) Unwrap() error {
	return e.err
}

// Is matches on error type only, so errors.Is(err, &ParleyError{Type: ProviderError})
// works regardless of message or cause.
func (e *ParleyError) Is(target error) bool {
	t, ok := target.(*ParleyError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// Cause returns the text of the underlying error, or the message when there is none.
func (e *ParleyError) Cause() string {
	if e.err != nil {
		return e.err.Error()
	}
	return e.Message
}

// WriteError formats and writes a ParleyError to an http.ResponseWriter.
func WriteError(w http.ResponseWriter, err *ParleyError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.Code)
	json.NewEncoder(w).Encode(err)
}
