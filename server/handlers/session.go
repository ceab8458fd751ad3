package handlers

import (
	"net/http"

	"github.com/teilomillet/parley/errors"
	"github.com/teilomillet/parley/server/conversation"
	"github.com/teilomillet/parley/server/middleware"
	"github.com/teilomillet/parley/server/processing"
	"github.com/teilomillet/parley/server/validation"
)

// ResetMessage is returned after a session's memory is cleared.
const ResetMessage = "Memory reset successfully."

// ResetHandler serves POST /reset.
func ResetHandler(p *processing.Processor, v *validation.Validator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		// Malformed bodies fall back to the query and header.
		_ = parseForm(r)
		id, ok := checkSession(w, r, v)
		if !ok {
			return
		}
		if err := p.Reset(r.Context(), id); err != nil {
			errors.WriteError(w, errors.NewInternalError(middleware.GetRequestID(r.Context()), err))
			return
		}
		writeJSON(w, http.StatusOK, MessageResponse{Message: ResetMessage})
	}
}

// HistoryResponse lists the stored turns of a session.
type HistoryResponse struct {
	SessionID string              `json:"session_id"`
	Turns     []conversation.Turn `json:"turns"`
}

// HistoryHandler serves GET /history.
func HistoryHandler(p *processing.Processor, v *validation.Validator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := checkSession(w, r, v)
		if !ok {
			return
		}
		if id == "" {
			id = conversation.DefaultSessionID
		}

		turns := p.History(id)
		if turns == nil {
			turns = []conversation.Turn{}
		}
		writeJSON(w, http.StatusOK, HistoryResponse{SessionID: id, Turns: turns})
	}
}
