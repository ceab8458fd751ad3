// Package processing runs one chat exchange: it extracts the attachment,
// assembles the conversation, calls the completion model, moderates the
// answer and records the exchange in session memory.
package processing

import "github.com/teilomillet/parley/server/attachment"

// FileSentDescription is stored as the user turn when only a file was sent.
const FileSentDescription = "[File Sent]"

// NoInputMessage is the validation message for a request with nothing in it.
const NoInputMessage = "No input, image, or PDF provided!"

// Input is one chat request as the pipeline sees it.
type Input struct {
	// RequestID ties logs and errors to the inbound request
	RequestID string
	// SessionID selects the conversation; empty means the default session
	SessionID string
	// Text is the user's message, possibly empty
	Text string
	// Document is an uploaded PDF, if any
	Document *attachment.Document
	// Image is an uploaded image, if any
	Image *attachment.Image
}

// Attachment returns the attachment to process. A document wins over an
// image when both were uploaded.
func (in Input) Attachment() attachment.Attachment {
	switch {
	case in.Document != nil:
		return *in.Document
	case in.Image != nil:
		return *in.Image
	default:
		return nil
	}
}

// IsEmpty reports whether the request carries neither text nor a file.
func (in Input) IsEmpty() bool {
	return in.Text == "" && in.Document == nil && in.Image == nil
}

// Description is what memory keeps of the user's side of the exchange.
func (in Input) Description() string {
	if in.Text != "" {
		return in.Text
	}
	return FileSentDescription
}
