// ABOUTME: Provider adapter interfaces and shared HTTP plumbing for LLM backends.
// ABOUTME: WebSearcher is an optional capability detected via type assertion.
package llm

import (
	"context"
	"net"
	"net/http"
	"time"
)

// Provider adapts a single LLM backend to the common Request/Response shapes.
type Provider interface {
	// Name returns the provider identifier used in Request.Provider routing.
	Name() string

	// Complete performs a chat completion.
	Complete(ctx context.Context, req Request) (*Response, error)

	// Close releases any resources held by the provider.
	Close() error
}

// WebSearcher is an optional capability: providers that can ground a query
// against live web results implement it in addition to Provider. Callers
// detect it with a type assertion.
type WebSearcher interface {
	WebSearch(ctx context.Context, model, query string) (*SearchResult, error)
}

// BaseAdapter holds the HTTP client and credentials shared by concrete
// provider adapters.
type BaseAdapter struct {
	name       string
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewBaseAdapter constructs the common adapter state with a client tuned to
// the given timeouts.
func NewBaseAdapter(name, apiKey, baseURL string, timeout AdapterTimeout) BaseAdapter {
	return BaseAdapter{
		name:    name,
		apiKey:  apiKey,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout.Request,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: timeout.Connect,
				}).DialContext,
				TLSHandshakeTimeout:   timeout.Connect,
				ResponseHeaderTimeout: timeout.Request,
				IdleConnTimeout:       90 * time.Second,
			},
		},
	}
}

// Name returns the provider identifier.
func (a *BaseAdapter) Name() string { return a.name }

// Close shuts down idle connections.
func (a *BaseAdapter) Close() error {
	a.httpClient.CloseIdleConnections()
	return nil
}
