package ai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// ProviderConfig holds the connection settings of one AI provider.
type ProviderConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	VisionModel string
	// Timeout bounds one completion request. Zero leaves the client default.
	Timeout time.Duration
}

func (c ProviderConfig) model(vision bool) string {
	if vision && c.VisionModel != "" {
		return c.VisionModel
	}
	return c.Model
}

// OpenAIProvider talks to the OpenAI chat completions API.
type OpenAIProvider struct {
	*assistant
}

// NewOpenAIProvider creates a provider backed by the official OpenAI client.
func NewOpenAIProvider(cfg ProviderConfig) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai: api key is required")
	}
	if cfg.Model == "" {
		return nil, errors.New("openai: model is required")
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}

	return &OpenAIProvider{
		assistant: &assistant{c: &openAICompleter{
			client: openai.NewClient(opts...),
			cfg:    cfg,
		}},
	}, nil
}

// Name returns "openai".
func (p *OpenAIProvider) Name() string { return "openai" }

type openAICompleter struct {
	client openai.Client
	cfg    ProviderConfig
}

func (o *openAICompleter) complete(ctx context.Context, req completion) (string, error) {
	var user openai.ChatCompletionMessageParamUnion
	if len(req.Image) > 0 {
		user = openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
			openai.TextContentPart(req.User),
			openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
				URL: dataURL(req.MIMEType, req.Image),
			}),
		})
	} else {
		user = openai.UserMessage(req.User)
	}

	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(o.cfg.model(req.Vision)),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(req.System),
			user,
		},
		Temperature: openai.Float(0),
	})
	if err != nil {
		return "", fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai chat completion: no choices returned")
	}
	return resp.Choices[0].Message.Content, nil
}

func dataURL(mimeType string, data []byte) string {
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}
