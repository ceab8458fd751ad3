package config

// MemoryConfig controls how much conversation history each session keeps
// and how many sessions are kept. Zero turn and token limits mean a
// session's history grows without bound, which matches the behaviour of a
// single long-running chat page.
type MemoryConfig struct {
	// MaxTurns caps stored turns; the oldest are evicted first.
	// Must be 0 (unlimited) or at least 2 so a full exchange fits.
	MaxTurns int `yaml:"max_turns" validate:"omitempty,min=2"`

	// MaxTokens caps the estimated token size of stored turns.
	MaxTokens int `yaml:"max_tokens" validate:"gte=0"`

	// Tokenizer selects the token counter: "estimate" or "tiktoken"
	Tokenizer string `yaml:"tokenizer" validate:"oneof=estimate tiktoken"`

	// MaxSessions caps live sessions; past it the least recently used idle
	// session is dropped (default: 10000, 0 = unlimited)
	MaxSessions int `yaml:"max_sessions" validate:"gte=0"`
}

// ModerationConfig defines the blocked-term filter applied to model answers.
type ModerationConfig struct {
	// BlockedTerms are matched case-insensitively as substrings
	BlockedTerms []string `yaml:"blocked_terms" validate:"dive,required"`

	// Refusal replaces any answer that contains a blocked term
	Refusal string `yaml:"refusal" validate:"required"`
}

// UploadConfig limits the files accepted on the chat endpoint.
type UploadConfig struct {
	// MaxUploadBytes bounds the whole multipart body
	MaxUploadBytes int64 `yaml:"max_upload_bytes" validate:"gt=0"`

	// MaxDocumentPages stops extraction after this many pages (0 = all)
	MaxDocumentPages int `yaml:"max_document_pages" validate:"gte=0"`

	// DefaultCaption accompanies an image sent without text
	DefaultCaption string `yaml:"default_caption" validate:"required"`
}
