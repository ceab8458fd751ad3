package provider

import "errors"

var (
	// ErrEmptyResponse indicates the model answered with no content
	ErrEmptyResponse = errors.New("model returned an empty response")

	// ErrImagesUnsupported indicates the backend cannot take image parts
	ErrImagesUnsupported = errors.New("provider does not accept image input")

	// ErrNoTurns indicates an empty conversation was submitted
	ErrNoTurns = errors.New("no messages to send")
)
