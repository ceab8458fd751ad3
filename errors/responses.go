// Package errors provides error response utilities.
package errors

import (
	"errors"
)

const (
	// AnswerPrefix starts every flattened pipeline failure.
	AnswerPrefix = "Error: "
	// ExtractionAnswerPrefix starts a flattened extraction failure.
	ExtractionAnswerPrefix = "Error extracting text from PDF: "
)

// ErrorResponse represents a standardized error response format
// that is returned to clients when an error occurs.
type ErrorResponse struct {
	Type      ErrorType              `json:"type"`
	Message   string                 `json:"message"`
	RequestID string                 `json:"request_id"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// As is a wrapper around errors.As for better error type assertion
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Answer flattens a chat pipeline error into the plain string returned to the
// client in place of a model answer. Extraction failures keep their own prefix;
// everything else becomes "Error: <cause>". A nil error yields "".
func Answer(err error) string {
	if err == nil {
		return ""
	}

	var pe *ParleyError
	if !errors.As(err, &pe) {
		return AnswerPrefix + err.Error()
	}

	if pe.Type == ExtractionError {
		return ExtractionAnswerPrefix + pe.Cause()
	}
	return AnswerPrefix + pe.Cause()
}
