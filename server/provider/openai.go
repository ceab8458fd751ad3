package provider

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"github.com/teilomillet/parley/config"
	"github.com/teilomillet/parley/server/conversation"
)

// OpenAI completes through the OpenAI chat completions API, either against
// api.openai.com (or a compatible base URL) or an Azure OpenAI deployment.
type OpenAI struct {
	client *openai.Client
	model  string
}

// NewOpenAI creates the backend for provider "azure" or "openai". A nil
// httpClient uses the library default.
func NewOpenAI(cfg config.LLMConfig, httpClient *http.Client) (*OpenAI, error) {
	var (
		clientCfg openai.ClientConfig
		model     = cfg.Model
	)

	switch cfg.Provider {
	case "azure":
		if cfg.Endpoint == "" || cfg.Deployment == "" {
			return nil, fmt.Errorf("azure requires endpoint and deployment")
		}
		clientCfg = openai.DefaultAzureConfig(cfg.APIKey, cfg.Endpoint)
		if cfg.APIVersion != "" {
			clientCfg.APIVersion = cfg.APIVersion
		}
		deployment := cfg.Deployment
		clientCfg.AzureModelMapperFunc = func(string) string { return deployment }
		if model == "" {
			model = deployment
		}
	case "openai":
		clientCfg = openai.DefaultConfig(cfg.APIKey)
		if cfg.Endpoint != "" {
			clientCfg.BaseURL = strings.TrimRight(cfg.Endpoint, "/")
		}
	default:
		return nil, fmt.Errorf("unsupported openai provider %q", cfg.Provider)
	}

	if httpClient != nil {
		clientCfg.HTTPClient = httpClient
	}

	return &OpenAI{
		client: openai.NewClientWithConfig(clientCfg),
		model:  model,
	}, nil
}

// Complete sends the turns as chat messages and returns the first choice.
func (o *OpenAI) Complete(ctx context.Context, turns []conversation.Turn, opts Options) (string, error) {
	if len(turns) == 0 {
		return "", ErrNoTurns
	}

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       o.model,
		Messages:    toOpenAIMessages(turns),
		MaxTokens:   opts.MaxOutputTokens,
		Temperature: opts.Temperature,
	})
	if err != nil {
		return "", err
	}

	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", ErrEmptyResponse
	}
	return content, nil
}

func toOpenAIMessages(turns []conversation.Turn) []openai.ChatCompletionMessage {
	msgs := make([]openai.ChatCompletionMessage, 0, len(turns))
	for _, t := range turns {
		msg := openai.ChatCompletionMessage{Role: string(t.Role())}

		switch c := t.Content().(type) {
		case conversation.Parts:
			for _, p := range c {
				switch part := p.(type) {
				case conversation.TextPart:
					msg.MultiContent = append(msg.MultiContent, openai.ChatMessagePart{
						Type: openai.ChatMessagePartTypeText,
						Text: part.Text,
					})
				case conversation.ImagePart:
					msg.MultiContent = append(msg.MultiContent, openai.ChatMessagePart{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    part.DataURL(),
							Detail: openai.ImageURLDetailAuto,
						},
					})
				}
			}
		default:
			msg.Content = t.Text()
		}

		msgs = append(msgs, msg)
	}
	return msgs
}
