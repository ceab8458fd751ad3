package processing

import (
	"fmt"

	"github.com/teilomillet/parley/server/attachment"
	"github.com/teilomillet/parley/server/conversation"
)

// Assembler builds the message sequence sent to the completion model.
type Assembler struct {
	// SystemPrompt opens every request. It is never stored in memory.
	SystemPrompt string
	// DefaultCaption accompanies an image sent without text.
	DefaultCaption string
}

// Assemble returns the system turn, then history, then the turns for the
// current request. Text comes first as its own turn unless an image
// consumes it as the caption. A nil payload means no attachment.
func (a Assembler) Assemble(history []conversation.Turn, text string, payload attachment.Payload) ([]conversation.Turn, error) {
	system, err := conversation.SystemText(a.SystemPrompt)
	if err != nil {
		return nil, fmt.Errorf("system turn: %w", err)
	}

	turns := make([]conversation.Turn, 0, len(history)+3)
	turns = append(turns, system)
	turns = append(turns, history...)

	_, isImage := payload.(attachment.EncodedImage)
	if text != "" && !isImage {
		user, err := conversation.UserText(text)
		if err != nil {
			return nil, err
		}
		turns = append(turns, user)
	}

	switch p := payload.(type) {
	case nil:
	case attachment.DocumentText:
		user, err := conversation.UserText(p.Text)
		if err != nil {
			return nil, fmt.Errorf("document turn: %w", err)
		}
		turns = append(turns, user)
	case attachment.EncodedImage:
		caption := text
		if caption == "" {
			caption = a.DefaultCaption
		}
		user, err := conversation.NewTurn(conversation.RoleUser, conversation.Parts{
			conversation.TextPart{Text: caption},
			p.Part(),
		})
		if err != nil {
			return nil, fmt.Errorf("image turn: %w", err)
		}
		turns = append(turns, user)
	default:
		return nil, fmt.Errorf("unsupported payload %T", payload)
	}

	if len(turns) == 1+len(history) {
		return nil, fmt.Errorf("nothing to send: %w", conversation.ErrEmptyContent)
	}
	return turns, nil
}
