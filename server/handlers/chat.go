package handlers

import (
	stderrors "errors"
	"fmt"
	"io"
	"net/http"

	"github.com/teilomillet/parley/errors"
	"github.com/teilomillet/parley/server/attachment"
	"github.com/teilomillet/parley/server/middleware"
	"github.com/teilomillet/parley/server/processing"
	"github.com/teilomillet/parley/server/validation"
	"go.uber.org/zap"
)

// multipartMemory is how much of a multipart body is kept in memory before
// spilling files to disk.
const multipartMemory = 8 << 20

// ChatHandler serves POST /chat. Form fields: input, image, pdf, session_id.
type ChatHandler struct {
	processor *processing.Processor
	validator *validation.Validator
	logger    *zap.Logger
	maxBytes  int64
}

// NewChatHandler creates a chat handler accepting bodies up to maxBytes.
func NewChatHandler(p *processing.Processor, v *validation.Validator, maxBytes int64, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{
		processor: p,
		validator: v,
		logger:    logger,
		maxBytes:  maxBytes,
	}
}

func (h *ChatHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	logger := h.logger.With(zap.String("request_id", requestID))

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	if err := parseForm(r); err != nil {
		var tooLarge *http.MaxBytesError
		if stderrors.As(err, &tooLarge) {
			errors.WriteError(w, errors.NewValidationError(requestID, "Upload too large", map[string]interface{}{
				"max_upload_bytes": h.maxBytes,
			}))
			return
		}
		errors.WriteError(w, errors.NewValidationError(requestID, "Invalid form body", map[string]interface{}{
			"cause": err.Error(),
		}))
		return
	}
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	req := validation.Request{SessionID: sessionID(r), Input: r.FormValue("input")}
	if fields := h.validator.Check(req); fields != nil {
		errors.WriteError(w, errors.NewValidationError(requestID, "Invalid chat request", validation.Details(fields)))
		return
	}

	in := processing.Input{
		RequestID: requestID,
		SessionID: req.SessionID,
		Text:      req.Input,
	}

	name, data, err := readFile(r, "pdf")
	if err != nil {
		errors.WriteError(w, errors.NewValidationError(requestID, "Unreadable pdf upload", map[string]interface{}{"cause": err.Error()}))
		return
	}
	if data != nil {
		in.Document = &attachment.Document{Name: name, Data: data}
	}

	name, data, err = readFile(r, "image")
	if err != nil {
		errors.WriteError(w, errors.NewValidationError(requestID, "Unreadable image upload", map[string]interface{}{"cause": err.Error()}))
		return
	}
	if data != nil {
		in.Image = &attachment.Image{Name: name, Data: data}
	}

	if in.IsEmpty() {
		writeJSON(w, http.StatusBadRequest, InputErrorResponse{Error: processing.NoInputMessage})
		return
	}

	logger.Debug("Chat request",
		zap.String("session_id", in.SessionID),
		zap.Int("input_len", len(in.Text)),
		zap.Bool("pdf", in.Document != nil),
		zap.Bool("image", in.Image != nil),
	)

	writeJSON(w, http.StatusOK, ChatResponse{Response: h.processor.Chat(r.Context(), in)})
}

func parseForm(r *http.Request) error {
	err := r.ParseMultipartForm(multipartMemory)
	if stderrors.Is(err, http.ErrNotMultipart) {
		return r.ParseForm()
	}
	return err
}

// readFile returns the uploaded file in field. A missing or zero-length
// upload yields nil data.
func readFile(r *http.Request, field string) (string, []byte, error) {
	if r.MultipartForm == nil {
		return "", nil, nil
	}
	f, header, err := r.FormFile(field)
	if stderrors.Is(err, http.ErrMissingFile) {
		return "", nil, nil
	}
	if err != nil {
		return "", nil, fmt.Errorf("open %s: %w", field, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return "", nil, fmt.Errorf("read %s: %w", field, err)
	}
	if len(data) == 0 {
		return "", nil, nil
	}
	return header.Filename, data, nil
}
