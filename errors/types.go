package errors

import (
	"net/http"
)

// NewError creates a new ParleyError with the given parameters.
// It is a general-purpose constructor that allows full control over
// the error's fields. For most cases, use one of the specialized
// constructors below.
//
// Example:
//
//	err := NewError(InternalError, "encode failed", 500, "req_123", nil, encErr)
func NewError(errType ErrorType, message string, code int, requestID string, details map[string]interface{}, err error) *ParleyError {
	return &ParleyError{
		Type:      errType,
		Message:   message,
		Code:      code,
		RequestID: requestID,
		Details:   details,
		err:       err,
	}
}

// NewValidationError creates a validation error with appropriate defaults.
// Use this for request validation failures, such as:
//   - No input, image, or PDF provided
//   - Malformed multipart bodies
//   - Invalid session identifiers
//
// Example:
//
//	err := NewValidationError("req_123", "Invalid session id", map[string]interface{}{
//	    "field": "session_id",
//	})
func NewValidationError(requestID, message string, validationDetails map[string]interface{}) *ParleyError {
	return &ParleyError{
		Type:      ValidationError,
		Message:   message,
		Code:      http.StatusBadRequest,
		RequestID: requestID,
		Details:   validationDetails,
	}
}

// NewExtractionError creates an error for an attachment that could not be
// turned into model input: corrupt PDF streams, unsupported encodings,
// documents without any text.
//
// Example:
//
//	err := NewExtractionError("req_123", pdfErr)
func NewExtractionError(requestID string, err error) *ParleyError {
	return &ParleyError{
		Type:      ExtractionError,
		Message:   "Error extracting text from PDF",
		Code:      http.StatusUnprocessableEntity,
		RequestID: requestID,
		err:       err,
	}
}

// NewRateLimitError creates a rate limit error with appropriate defaults.
//
// Example:
//
//	err := NewRateLimitError("req_123", 30)
func NewRateLimitError(requestID string, retryAfter int) *ParleyError {
	return &ParleyError{
		Type:      RateLimitError,
		Message:   "Rate limit exceeded",
		Code:      http.StatusTooManyRequests,
		RequestID: requestID,
		Details: map[string]interface{}{
			"retry_after": retryAfter,
		},
	}
}

// NewProviderError creates a provider error with appropriate defaults.
// Use this when the completion model fails in any way:
//   - network or authentication failures
//   - quota exhaustion
//   - malformed or empty responses
//
// Example:
//
//	err := NewProviderError("req_123", "Completion failed", providerErr)
func NewProviderError(requestID string, message string, err error) *ParleyError {
	return &ParleyError{
		Type:      ProviderError,
		Message:   message,
		Code:      http.StatusBadGateway,
		RequestID: requestID,
		err:       err,
	}
}

// NewInternalError creates an internal server error with appropriate defaults.
//
// Example:
//
//	err := NewInternalError("req_123", encErr)
func NewInternalError(requestID string, err error) *ParleyError {
	return &ParleyError{
		Type:      InternalError,
		Message:   "An internal error occurred",
		Code:      http.StatusInternalServerError,
		RequestID: requestID,
		err:       err,
	}
}
