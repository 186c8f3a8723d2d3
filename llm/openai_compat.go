// ABOUTME: Raw-HTTP Chat Completions adapter for OpenAI-compatible providers.
// ABOUTME: Implements the WebSearcher capability via search-enabled completion models.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
)

// CompatAdapter talks to any OpenAI-compatible Chat Completions endpoint
// over raw HTTP. It also implements WebSearcher for providers that accept
// web_search_options and return url_citation annotations.
type CompatAdapter struct {
	BaseAdapter
	defaultModel string
	searchModel  string
}

// NewCompatAdapter creates an adapter for an OpenAI-compatible endpoint.
// baseURL must include the scheme and host, e.g. "https://api.example.com/v1".
// searchModel names the model used for web-grounded queries; empty disables
// the WebSearcher capability at the client level.
func NewCompatAdapter(name, apiKey, baseURL, defaultModel, searchModel string) (*CompatAdapter, error) {
	if apiKey == "" {
		return nil, &ConfigurationError{
			SDKError: SDKError{Message: name + ": API key is required"},
		}
	}
	if baseURL == "" {
		return nil, &ConfigurationError{
			SDKError: SDKError{Message: name + ": base URL is required"},
		}
	}

	return &CompatAdapter{
		BaseAdapter:  NewBaseAdapter(name, apiKey, strings.TrimRight(baseURL, "/"), DefaultAdapterTimeout()),
		defaultModel: defaultModel,
		searchModel:  searchModel,
	}, nil
}

// Wire types for the Chat Completions endpoint. Defined locally so the
// adapter does not depend on any particular provider SDK.

type compatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type compatWebSearchOptions struct {
	SearchContextSize string `json:"search_context_size,omitempty"`
}

type compatRequest struct {
	Model            string                  `json:"model"`
	Messages         []compatMessage         `json:"messages"`
	Temperature      *float64                `json:"temperature,omitempty"`
	MaxTokens        *int                    `json:"max_tokens,omitempty"`
	WebSearchOptions *compatWebSearchOptions `json:"web_search_options,omitempty"`
}

type compatURLCitation struct {
	URL   string `json:"url"`
	Title string `json:"title"`
}

type compatAnnotation struct {
	Type        string            `json:"type"`
	URLCitation compatURLCitation `json:"url_citation"`
}

type compatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content     string             `json:"content"`
			Annotations []compatAnnotation `json:"annotations"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	} `json:"error"`
}

// Complete performs a chat completion over raw HTTP.
func (a *CompatAdapter) Complete(ctx context.Context, req Request) (*Response, error) {
	model := req.Model
	if model == "" {
		model = a.defaultModel
	}

	body := compatRequest{
		Model:       model,
		Messages:    toCompatMessages(req.Messages),
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}

	parsed, raw, err := a.post(ctx, body)
	if err != nil {
		return nil, err
	}

	content := ""
	if len(parsed.Choices) > 0 {
		content = parsed.Choices[0].Message.Content
	}

	return &Response{
		ID:       parsed.ID,
		Model:    parsed.Model,
		Provider: a.Name(),
		Content:  content,
		Usage: Usage{
			InputTokens:  parsed.Usage.PromptTokens,
			OutputTokens: parsed.Usage.CompletionTokens,
			TotalTokens:  parsed.Usage.TotalTokens,
		},
		Raw: raw,
	}, nil
}

// WebSearch issues a search-grounded completion and extracts url_citation
// annotations into SearchHits. Only hits with a non-empty URL are returned.
func (a *CompatAdapter) WebSearch(ctx context.Context, model, query string) (*SearchResult, error) {
	if model == "" {
		model = a.searchModel
	}
	if model == "" {
		return nil, &ConfigurationError{
			SDKError: SDKError{Message: a.Name() + ": no search model configured"},
		}
	}

	body := compatRequest{
		Model: model,
		Messages: []compatMessage{
			{Role: "user", Content: query},
		},
		WebSearchOptions: &compatWebSearchOptions{SearchContextSize: "low"},
	}

	parsed, _, err := a.post(ctx, body)
	if err != nil {
		return nil, err
	}
	if len(parsed.Choices) == 0 {
		return &SearchResult{}, nil
	}

	msg := parsed.Choices[0].Message
	result := &SearchResult{Content: msg.Content}
	for _, ann := range msg.Annotations {
		if ann.Type != "url_citation" || ann.URLCitation.URL == "" {
			continue
		}
		result.Results = append(result.Results, SearchHit{
			Title: ann.URLCitation.Title,
			URL:   ann.URLCitation.URL,
		})
	}
	return result, nil
}

// post sends the request to /chat/completions and maps HTTP failures onto
// the typed error taxonomy.
func (a *CompatAdapter) post(ctx context.Context, body compatRequest) (*compatResponse, json.RawMessage, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, nil, &InvalidRequestError{
			ProviderError: ProviderError{
				SDKError: SDKError{Message: "encoding request failed", Cause: err},
				Provider: a.Name(),
			},
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, nil, &NetworkError{
			SDKError: SDKError{Message: "building request failed", Cause: err},
		}
	}
	httpReq.Header.Set("Authorization", "Bearer "+a.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil, &RequestTimeoutError{
				SDKError: SDKError{Message: "request cancelled or timed out", Cause: err},
			}
		}
		return nil, nil, &NetworkError{
			SDKError: SDKError{Message: "request failed", Cause: err},
		}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, &NetworkError{
			SDKError: SDKError{Message: "reading response failed", Cause: err},
		}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, nil, a.statusError(resp, raw)
	}

	var parsed compatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, nil, &ProviderError{
			SDKError:   SDKError{Message: "decoding response failed", Cause: err},
			Provider:   a.Name(),
			StatusCode: resp.StatusCode,
			Raw:        raw,
		}
	}
	if parsed.Error != nil {
		return nil, nil, &ProviderError{
			SDKError:  SDKError{Message: parsed.Error.Message},
			Provider:  a.Name(),
			ErrorCode: parsed.Error.Code,
			Raw:       raw,
		}
	}
	return &parsed, raw, nil
}

// statusError builds a typed error from a non-200 response, preserving any
// Retry-After hint.
func (a *CompatAdapter) statusError(resp *http.Response, raw []byte) error {
	message := fmt.Sprintf("%s returned status %d", a.Name(), resp.StatusCode)
	var envelope struct {
		Error struct {
			Message string `json:"message"`
			Code    string `json:"code"`
		} `json:"error"`
	}
	errorCode := ""
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Error.Message != "" {
		message = envelope.Error.Message
		errorCode = envelope.Error.Code
	}

	var retryAfter *float64
	if header := resp.Header.Get("Retry-After"); header != "" {
		if seconds, err := strconv.ParseFloat(header, 64); err == nil {
			retryAfter = &seconds
		}
	}

	return ErrorFromStatusCode(resp.StatusCode, message, a.Name(), errorCode, raw, retryAfter)
}

// toCompatMessages maps the common message shape onto wire messages.
func toCompatMessages(messages []Message) []compatMessage {
	out := make([]compatMessage, 0, len(messages))
	for _, msg := range messages {
		out = append(out, compatMessage{Role: string(msg.Role), Content: msg.Content})
	}
	return out
}

var (
	_ Provider    = (*CompatAdapter)(nil)
	_ WebSearcher = (*CompatAdapter)(nil)
)
