package validation

import (
	"mime"
	"net/http"

	"github.com/teilomillet/parley/errors"
	"github.com/teilomillet/parley/server/middleware"
)

// RequireForm rejects bodies that are not multipart or URL-encoded forms.
func RequireForm(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ct := r.Header.Get("Content-Type")
		mediaType, _, err := mime.ParseMediaType(ct)
		if err != nil || (mediaType != "multipart/form-data" && mediaType != "application/x-www-form-urlencoded") {
			errors.WriteError(w, errors.NewValidationError(
				middleware.GetRequestID(r.Context()),
				"Invalid or missing Content-Type header",
				Details([]FieldError{{
					Field:   "header:Content-Type",
					Message: "Content-Type must be multipart/form-data or application/x-www-form-urlencoded",
					Code:    "invalid_content_type",
					Value:   ct,
				}}),
			))
			return
		}
		next.ServeHTTP(w, r)
	})
}
