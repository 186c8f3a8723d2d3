// ABOUTME: Client infrastructure for the unified LLM client with provider routing and middleware.
// ABOUTME: NewClient takes functional options; FromEnv wires real adapters from environment variables.
package llm

import (
	"context"
	"fmt"
	"os"
)

// Middleware wraps an LLM call, enabling request/response transformation,
// logging, retry, and other cross-cutting concerns. Middleware executes in
// registration order for requests and reverse order for responses.
type Middleware func(ctx context.Context, req Request, next NextFunc) (*Response, error)

// NextFunc is the function signature passed to middleware to continue the chain.
type NextFunc func(ctx context.Context, req Request) (*Response, error)

// Client is the entry point for LLM calls. It manages provider adapters,
// routes requests to the correct provider, and applies the middleware chain.
type Client struct {
	providers       map[string]Provider
	defaultProvider string
	middleware      []Middleware
}

// ClientOption is a functional option for configuring a Client.
type ClientOption func(*Client)

// WithProvider registers a Provider under the given name. The first provider
// registered becomes the default unless one has been set explicitly.
func WithProvider(name string, provider Provider) ClientOption {
	return func(c *Client) {
		c.providers[name] = provider
		if c.defaultProvider == "" {
			c.defaultProvider = name
		}
	}
}

// WithDefaultProvider sets the provider used when a Request does not specify one.
func WithDefaultProvider(name string) ClientOption {
	return func(c *Client) {
		c.defaultProvider = name
	}
}

// WithMiddleware appends middleware to the client's chain. The first
// middleware registered is the outermost layer.
func WithMiddleware(mw ...Middleware) ClientOption {
	return func(c *Client) {
		c.middleware = append(c.middleware, mw...)
	}
}

// WithRetryMiddleware wraps provider calls in the given transport-level
// retry policy.
func WithRetryMiddleware(policy RetryPolicy) ClientOption {
	return WithMiddleware(func(ctx context.Context, req Request, next NextFunc) (*Response, error) {
		var resp *Response
		err := Retry(ctx, policy, func() error {
			var callErr error
			resp, callErr = next(ctx, req)
			return callErr
		})
		return resp, err
	})
}

// NewClient creates a new Client with the given options applied.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		providers: make(map[string]Provider),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FromEnv creates a Client from environment variables. OPENAI_API_KEY wires
// the SDK adapter against the official endpoint; setting OPENAI_BASE_URL
// switches to the raw-HTTP compatible adapter so custom hosts (OpenRouter,
// Cerebras, gateways) get full capability support including web search.
// OPENAI_MODEL and OPENAI_SEARCH_MODEL select default models.
func FromEnv() (*Client, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, &ConfigurationError{
			SDKError: SDKError{Message: "no API key found in environment (checked OPENAI_API_KEY)"},
		}
	}

	baseURL := os.Getenv("OPENAI_BASE_URL")
	model := os.Getenv("OPENAI_MODEL")
	searchModel := os.Getenv("OPENAI_SEARCH_MODEL")

	var provider Provider
	var err error
	if baseURL != "" {
		provider, err = NewCompatAdapter("openai", apiKey, baseURL, model, searchModel)
	} else {
		provider, err = NewOpenAIAdapter(apiKey, model, "")
	}
	if err != nil {
		return nil, err
	}

	return NewClient(
		WithProvider("openai", provider),
		WithRetryMiddleware(DefaultRetryPolicy()),
	), nil
}

// resolveProvider determines which Provider should handle the request, using
// req.Provider when set and the client default otherwise.
func (c *Client) resolveProvider(req Request) (Provider, error) {
	name := req.Provider
	if name == "" {
		name = c.defaultProvider
	}
	if name == "" {
		return nil, &ConfigurationError{
			SDKError: SDKError{Message: "no provider specified and no default provider configured"},
		}
	}

	provider, ok := c.providers[name]
	if !ok {
		return nil, &ConfigurationError{
			SDKError: SDKError{Message: fmt.Sprintf("provider %q not registered", name)},
		}
	}
	return provider, nil
}

// Complete sends a completion request through the middleware chain and then
// to the resolved provider adapter.
func (c *Client) Complete(ctx context.Context, req Request) (*Response, error) {
	handler := func(ctx context.Context, req Request) (*Response, error) {
		provider, err := c.resolveProvider(req)
		if err != nil {
			return nil, err
		}
		return provider.Complete(ctx, req)
	}

	chain := handler
	for i := len(c.middleware) - 1; i >= 0; i-- {
		mw := c.middleware[i]
		next := chain
		chain = func(ctx context.Context, req Request) (*Response, error) {
			return mw(ctx, req, next)
		}
	}

	return chain(ctx, req)
}

// Searcher returns the default provider's WebSearcher capability, or false
// when the provider does not implement it.
func (c *Client) Searcher() (WebSearcher, bool) {
	provider, ok := c.providers[c.defaultProvider]
	if !ok {
		return nil, false
	}
	searcher, ok := provider.(WebSearcher)
	return searcher, ok
}

// Close shuts down all registered provider adapters, collecting errors.
func (c *Client) Close() error {
	var errs []error
	for name, provider := range c.providers {
		if err := provider.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing provider %q: %w", name, err))
		}
	}
	if len(errs) > 0 {
		combined := errs[0]
		for _, e := range errs[1:] {
			combined = fmt.Errorf("%w; %v", combined, e)
		}
		return combined
	}
	return nil
}
