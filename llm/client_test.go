// ABOUTME: Tests for the provider-routing client: default resolution, middleware
// ABOUTME: ordering, retry middleware, and web-search capability detection.
package llm_test

import (
	"context"
	"errors"
	"testing"

	"github.com/sporelabs/shroomboard/llm"
)

// fakeProvider is a scriptable Provider for client tests.
type fakeProvider struct {
	name    string
	calls   int
	results []func() (*llm.Response, error)
}

func (p *fakeProvider) Name() string { return p.name }
func (p *fakeProvider) Close() error { return nil }

func (p *fakeProvider) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	i := p.calls
	p.calls++
	if i >= len(p.results) {
		i = len(p.results) - 1
	}
	return p.results[i]()
}

// searchingProvider adds the WebSearcher capability.
type searchingProvider struct {
	fakeProvider
}

func (p *searchingProvider) WebSearch(ctx context.Context, model, query string) (*llm.SearchResult, error) {
	return &llm.SearchResult{Content: "found", Results: []llm.SearchHit{{Title: "t", URL: "https://example.com"}}}, nil
}

func okResponse(content string) func() (*llm.Response, error) {
	return func() (*llm.Response, error) {
		return &llm.Response{Content: content}, nil
	}
}

func failWith(err error) func() (*llm.Response, error) {
	return func() (*llm.Response, error) { return nil, err }
}

func TestClientRoutesToDefaultProvider(t *testing.T) {
	p := &fakeProvider{name: "fake", results: []func() (*llm.Response, error){okResponse("hi")}}
	c := llm.NewClient(llm.WithProvider("fake", p))

	resp, err := c.Complete(context.Background(), llm.Request{Model: "m"})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "hi" {
		t.Errorf("Content = %q, want %q", resp.Content, "hi")
	}
}

func TestClientUnknownProvider(t *testing.T) {
	p := &fakeProvider{name: "fake", results: []func() (*llm.Response, error){okResponse("hi")}}
	c := llm.NewClient(llm.WithProvider("fake", p))

	_, err := c.Complete(context.Background(), llm.Request{Provider: "nope"})
	var cfgErr *llm.ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Errorf("err = %v, want ConfigurationError", err)
	}
}

func TestClientMiddlewareRunsInRegistrationOrder(t *testing.T) {
	p := &fakeProvider{name: "fake", results: []func() (*llm.Response, error){okResponse("hi")}}

	var order []string
	mark := func(label string) llm.Middleware {
		return func(ctx context.Context, req llm.Request, next llm.NextFunc) (*llm.Response, error) {
			order = append(order, label)
			return next(ctx, req)
		}
	}

	c := llm.NewClient(
		llm.WithProvider("fake", p),
		llm.WithMiddleware(mark("outer"), mark("inner")),
	)
	if _, err := c.Complete(context.Background(), llm.Request{}); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if len(order) != 2 || order[0] != "outer" || order[1] != "inner" {
		t.Errorf("middleware order = %v, want [outer inner]", order)
	}
}

func TestClientRetryMiddlewareRecoversTransientFailure(t *testing.T) {
	serverErr := llm.ErrorFromStatusCode(500, "boom", "fake", "", nil, nil)
	p := &fakeProvider{name: "fake", results: []func() (*llm.Response, error){
		failWith(serverErr),
		okResponse("recovered"),
	}}

	c := llm.NewClient(
		llm.WithProvider("fake", p),
		llm.WithRetryMiddleware(llm.RetryPolicy{
			MaxRetries:        2,
			BaseDelay:         0,
			MaxDelay:          0,
			BackoffMultiplier: 1.0,
		}),
	)

	resp, err := c.Complete(context.Background(), llm.Request{})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "recovered" {
		t.Errorf("Content = %q, want %q", resp.Content, "recovered")
	}
	if p.calls != 2 {
		t.Errorf("provider calls = %d, want 2", p.calls)
	}
}

func TestClientSearcherCapabilityDetection(t *testing.T) {
	plain := &fakeProvider{name: "plain", results: []func() (*llm.Response, error){okResponse("")}}
	c := llm.NewClient(llm.WithProvider("plain", plain))
	if _, ok := c.Searcher(); ok {
		t.Error("plain provider should not expose WebSearcher")
	}

	searching := &searchingProvider{fakeProvider{name: "search", results: []func() (*llm.Response, error){okResponse("")}}}
	c2 := llm.NewClient(llm.WithProvider("search", searching))
	s, ok := c2.Searcher()
	if !ok {
		t.Fatal("searching provider should expose WebSearcher")
	}
	result, err := s.WebSearch(context.Background(), "", "query")
	if err != nil {
		t.Fatalf("WebSearch: %v", err)
	}
	if len(result.Results) != 1 || result.Results[0].URL != "https://example.com" {
		t.Errorf("unexpected search results: %+v", result.Results)
	}
}
