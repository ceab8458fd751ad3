// Package handlers provides the HTTP handlers of the chat server.
//
// Chat failures inside the pipeline are answered with 200 and the flattened
// error text as the response, so the page shows them in the conversation.
// Only boundary problems (bad forms, oversized uploads, no input at all)
// produce non-200 statuses.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/teilomillet/parley/errors"
	"github.com/teilomillet/parley/server/middleware"
	"github.com/teilomillet/parley/server/validation"
)

// SessionHeader lets API clients select a session without a form field.
const SessionHeader = "X-Session-ID"

// ChatResponse is the body of a successful chat call.
type ChatResponse struct {
	Response string `json:"response"`
}

// MessageResponse is the body of a successful reset.
type MessageResponse struct {
	Message string `json:"message"`
}

// InputErrorResponse is the body returned when a chat carries no input.
type InputErrorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// sessionID reads the session from the session_id form or query field, then
// the X-Session-ID header. The form must already be parsed.
func sessionID(r *http.Request) string {
	if id := r.FormValue("session_id"); id != "" {
		return id
	}
	return r.Header.Get(SessionHeader)
}

// checkSession validates the session id of r, writing a 400 when invalid.
func checkSession(w http.ResponseWriter, r *http.Request, v *validation.Validator) (string, bool) {
	id := sessionID(r)
	if fields := v.Check(validation.Request{SessionID: id}); fields != nil {
		errors.WriteError(w, errors.NewValidationError(
			middleware.GetRequestID(r.Context()),
			"Invalid session id",
			validation.Details(fields),
		))
		return "", false
	}
	return id, true
}
