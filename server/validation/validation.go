// Package validation checks the form fields of chat requests.
package validation

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// MaxInputLength bounds the text field in characters.
const MaxInputLength = 32768

var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9._:-]+$`)

// Request holds the text fields of a chat, reset or history request.
type Request struct {
	SessionID string `form:"session_id" validate:"omitempty,max=128,session_id"`
	Input     string `form:"input" validate:"max=32768"`
}

// FieldError describes one invalid field.
type FieldError struct {
	Field   string `json:"field"`           // The field that failed validation
	Message string `json:"message"`         // Human-readable error message
	Code    string `json:"code"`            // Machine-readable error code
	Value   string `json:"value,omitempty"` // The invalid value, truncated
}

// Validator validates requests. It is safe for concurrent use.
type Validator struct {
	validate *validator.Validate
}

// New creates a Validator with the session_id rule registered.
func New() *Validator {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("form"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	// Registration only fails for an empty tag or nil func.
	_ = v.RegisterValidation("session_id", func(fl validator.FieldLevel) bool {
		return sessionIDPattern.MatchString(fl.Field().String())
	})
	return &Validator{validate: v}
}

// Check returns the problems with req, or nil when it is valid.
func (v *Validator) Check(req Request) []FieldError {
	err := v.validate.Struct(req)
	if err == nil {
		return nil
	}

	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return []FieldError{{Field: "request", Message: err.Error(), Code: "invalid_request"}}
	}

	details := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		details = append(details, FieldError{
			Field:   fe.Field(),
			Message: message(fe),
			Code:    fe.Tag() + "_validation_failed",
			Value:   truncate(fmt.Sprint(fe.Value()), 64),
		})
	}
	return details
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "max":
		return fmt.Sprintf("field '%s' must be at most %s characters", fe.Field(), fe.Param())
	case "session_id":
		return "session_id may only contain letters, digits, '.', '_', ':' and '-'"
	default:
		return fmt.Sprintf("field '%s' failed '%s' validation", fe.Field(), fe.Tag())
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// Details converts field errors into the details map of a validation error.
func Details(fields []FieldError) map[string]interface{} {
	return map[string]interface{}{"fields": fields}
}
