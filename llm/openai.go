// ABOUTME: OpenAI provider adapter built on the official openai-go SDK.
// ABOUTME: Supports custom base URLs for OpenAI-compatible hosted services.
package llm

import (
	"context"
	"errors"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIAdapter implements Provider using the OpenAI Chat Completions API
// via the official SDK. A custom base URL points it at any compatible host.
type OpenAIAdapter struct {
	BaseAdapter
	client       openai.Client
	defaultModel string
}

// NewOpenAIAdapter creates an adapter for the OpenAI Chat Completions API.
// An empty baseURL uses the official endpoint.
func NewOpenAIAdapter(apiKey, defaultModel, baseURL string) (*OpenAIAdapter, error) {
	if apiKey == "" {
		return nil, &ConfigurationError{
			SDKError: SDKError{Message: "openai: API key is required"},
		}
	}
	if defaultModel == "" {
		defaultModel = "gpt-4o-mini"
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	return &OpenAIAdapter{
		BaseAdapter:  NewBaseAdapter("openai", apiKey, baseURL, DefaultAdapterTimeout()),
		client:       openai.NewClient(opts...),
		defaultModel: defaultModel,
	}, nil
}

// Complete performs a chat completion against the OpenAI API.
func (a *OpenAIAdapter) Complete(ctx context.Context, req Request) (*Response, error) {
	model := req.Model
	if model == "" {
		model = a.defaultModel
	}

	params := openai.ChatCompletionNewParams{
		Model:    model,
		Messages: convertMessages(req.Messages),
	}
	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	}
	if req.MaxTokens != nil {
		params.MaxCompletionTokens = openai.Int(int64(*req.MaxTokens))
	}

	resp, err := a.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, translateSDKError(err)
	}

	content := ""
	if len(resp.Choices) > 0 {
		content = resp.Choices[0].Message.Content
	}

	return &Response{
		ID:       resp.ID,
		Model:    resp.Model,
		Provider: a.Name(),
		Content:  content,
		Usage: Usage{
			InputTokens:  int(resp.Usage.PromptTokens),
			OutputTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:  int(resp.Usage.TotalTokens),
		},
	}, nil
}

// convertMessages maps the common message shape onto SDK param unions.
func convertMessages(messages []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			out = append(out, openai.SystemMessage(msg.Content))
		case RoleAssistant:
			out = append(out, openai.AssistantMessage(msg.Content))
		default:
			out = append(out, openai.UserMessage(msg.Content))
		}
	}
	return out
}

// translateSDKError maps SDK errors onto the typed error taxonomy so that
// retry logic can classify them.
func translateSDKError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return ErrorFromStatusCode(apiErr.StatusCode, apiErr.Error(), "openai", "", nil, nil)
	}
	return &NetworkError{
		SDKError: SDKError{Message: "openai: request failed", Cause: err},
	}
}

var _ Provider = (*OpenAIAdapter)(nil)
