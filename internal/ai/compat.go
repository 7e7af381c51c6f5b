package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	goopenai "github.com/sashabaranov/go-openai"
)

// CompatProvider talks to any OpenAI-compatible endpoint, such as Gemini or
// DeepSeek, through go-openai.
type CompatProvider struct {
	*assistant
}

// NewCompatProvider creates a provider for an OpenAI-compatible base URL.
func NewCompatProvider(cfg ProviderConfig) (*CompatProvider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("compat: api key is required")
	}
	if cfg.BaseURL == "" {
		return nil, errors.New("compat: base url is required")
	}
	if cfg.Model == "" {
		return nil, errors.New("compat: model is required")
	}

	clientCfg := goopenai.DefaultConfig(cfg.APIKey)
	clientCfg.BaseURL = cfg.BaseURL
	if cfg.Timeout > 0 {
		clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &CompatProvider{
		assistant: &assistant{c: &compatCompleter{
			client: goopenai.NewClientWithConfig(clientCfg),
			cfg:    cfg,
		}},
	}, nil
}

// Name returns "compat".
func (p *CompatProvider) Name() string { return "compat" }

type compatCompleter struct {
	client *goopenai.Client
	cfg    ProviderConfig
}

func (c *compatCompleter) complete(ctx context.Context, req completion) (string, error) {
	user := goopenai.ChatCompletionMessage{Role: goopenai.ChatMessageRoleUser}
	if len(req.Image) > 0 {
		user.MultiContent = []goopenai.ChatMessagePart{
			{Type: goopenai.ChatMessagePartTypeText, Text: req.User},
			{
				Type: goopenai.ChatMessagePartTypeImageURL,
				ImageURL: &goopenai.ChatMessageImageURL{
					URL:    dataURL(req.MIMEType, req.Image),
					Detail: goopenai.ImageURLDetailAuto,
				},
			},
		}
	} else {
		user.Content = req.User
	}

	resp, err := c.client.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model: c.cfg.model(req.Vision),
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleSystem, Content: req.System},
			user,
		},
	})
	if err != nil {
		return "", fmt.Errorf("compat chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("compat chat completion: no choices returned")
	}
	return resp.Choices[0].Message.Content, nil
}
