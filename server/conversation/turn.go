// Package conversation holds per-session chat memory: immutable turns, a
// bounded transcript, and the store that hands sessions to requests.
package conversation

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Role tags the author of a turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ErrEmptyContent is returned when a turn would carry no content.
var ErrEmptyContent = errors.New("turn content is empty")

// Content is the body of a turn: either Text or Parts.
type Content interface {
	isContent()
	// IsEmpty reports whether the content carries nothing to send.
	IsEmpty() bool
	// String renders the content as plain text. Images render as a marker.
	String() string
}

// Text is plain string content.
type Text string

func (Text) isContent() {}

func (t Text) IsEmpty() bool { return t == "" }

func (t Text) String() string { return string(t) }

// Part is one element of multi-part content.
type Part interface {
	isPart()
}

// TextPart is a text element of multi-part content.
type TextPart struct {
	Text string
}

func (TextPart) isPart() {}

// ImagePart carries an image as standard base64 with its MIME type.
type ImagePart struct {
	MIMEType string
	Data     string
}

func (ImagePart) isPart() {}

// DataURL returns the image as a data: URL.
func (p ImagePart) DataURL() string {
	return "data:" + p.MIMEType + ";base64," + p.Data
}

// Parts is ordered multi-part content.
type Parts []Part

func (Parts) isContent() {}

func (p Parts) IsEmpty() bool {
	for _, part := range p {
		switch v := part.(type) {
		case TextPart:
			if v.Text != "" {
				return false
			}
		case ImagePart:
			if v.Data != "" {
				return false
			}
		}
	}
	return true
}

func (p Parts) String() string {
	var b strings.Builder
	for i, part := range p {
		if i > 0 {
			b.WriteByte('\n')
		}
		switch v := part.(type) {
		case TextPart:
			b.WriteString(v.Text)
		case ImagePart:
			b.WriteString("[image]")
		}
	}
	return b.String()
}

// Turn is one role-tagged unit of conversation. The zero value is invalid;
// build turns with NewTurn or the role helpers.
type Turn struct {
	role    Role
	content Content
}

// NewTurn validates and builds a turn. Parts are copied so the caller's
// slice can be reused.
func NewTurn(role Role, content Content) (Turn, error) {
	switch role {
	case RoleSystem, RoleUser, RoleAssistant:
	default:
		return Turn{}, fmt.Errorf("unknown role %q", role)
	}
	if content == nil || content.IsEmpty() {
		return Turn{}, ErrEmptyContent
	}
	if parts, ok := content.(Parts); ok {
		content = append(Parts(nil), parts...)
	}
	return Turn{role: role, content: content}, nil
}

// UserText builds a plain-text user turn.
func UserText(text string) (Turn, error) {
	return NewTurn(RoleUser, Text(text))
}

// AssistantText builds a plain-text assistant turn.
func AssistantText(text string) (Turn, error) {
	return NewTurn(RoleAssistant, Text(text))
}

// SystemText builds a plain-text system turn.
func SystemText(text string) (Turn, error) {
	return NewTurn(RoleSystem, Text(text))
}

func (t Turn) Role() Role { return t.role }

// Content returns the turn body. Parts are returned as a copy.
func (t Turn) Content() Content {
	if parts, ok := t.content.(Parts); ok {
		return append(Parts(nil), parts...)
	}
	return t.content
}

// Text renders the content as plain text.
func (t Turn) Text() string {
	if t.content == nil {
		return ""
	}
	return t.content.String()
}

type jsonPart struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
}

// MarshalJSON renders {"role", "content"} where content is a string for Text
// and a list of typed parts for Parts.
func (t Turn) MarshalJSON() ([]byte, error) {
	var content interface{}
	switch c := t.content.(type) {
	case Parts:
		parts := make([]jsonPart, 0, len(c))
		for _, p := range c {
			switch v := p.(type) {
			case TextPart:
				parts = append(parts, jsonPart{Type: "text", Text: v.Text})
			case ImagePart:
				parts = append(parts, jsonPart{Type: "image_url", ImageURL: v.DataURL()})
			}
		}
		content = parts
	default:
		content = t.Text()
	}
	return json.Marshal(struct {
		Role    Role        `json:"role"`
		Content interface{} `json:"content"`
	}{t.role, content})
}
