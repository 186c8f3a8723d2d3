// ABOUTME: Generation Pipeline: prompt assembly, optional web augmentation, backend call, parse, retry, fallback.
// ABOUTME: Generate never returns an error; the result may be synthetic fallback stubs.
package engine

import (
	"context"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/sporelabs/shroomboard/llm"
)

// Completer is the slice of the LLM client the pipeline needs.
type Completer interface {
	Complete(ctx context.Context, req llm.Request) (*llm.Response, error)
}

// GenerationRequest carries everything the pipeline needs to produce drafts.
type GenerationRequest struct {
	BoardContext         string
	ColumnInstructions   string
	StandingInstructions string
	Count                int
}

// Generator turns board context plus free-text instructions into card
// drafts via the LLM backend.
type Generator struct {
	client      Completer
	searcher    llm.WebSearcher
	model       string
	temperature float64
	pool        *FallbackPool
	delay       time.Duration

	// onUsage and onComplete fire at most once per successful non-fallback
	// generation. Quota metering and notifications hang off these.
	onUsage    func(usage llm.Usage)
	onComplete func(draftCount int)
}

// GeneratorOption configures a Generator.
type GeneratorOption func(*Generator)

// WithSearcher enables web augmentation through the given searcher.
func WithSearcher(s llm.WebSearcher) GeneratorOption {
	return func(g *Generator) { g.searcher = s }
}

// WithModel sets the model used for generation calls.
func WithModel(model string) GeneratorOption {
	return func(g *Generator) { g.model = model }
}

// WithFallbackPool replaces the built-in fallback idea pool.
func WithFallbackPool(pool *FallbackPool) GeneratorOption {
	return func(g *Generator) { g.pool = pool }
}

// WithUsageHook registers a callback fired once per successful
// non-fallback generation with the backend's token usage.
func WithUsageHook(fn func(usage llm.Usage)) GeneratorOption {
	return func(g *Generator) { g.onUsage = fn }
}

// WithCompletionHook registers a callback fired once per successful
// non-fallback generation with the number of drafts produced.
func WithCompletionHook(fn func(draftCount int)) GeneratorOption {
	return func(g *Generator) { g.onComplete = fn }
}

// WithRetryDelay overrides the pause between the initial call and the
// single retry. Tests use this to avoid real sleeps.
func WithRetryDelay(d time.Duration) GeneratorOption {
	return func(g *Generator) { g.delay = d }
}

// NewGenerator creates a Generator backed by the given completer.
func NewGenerator(client Completer, opts ...GeneratorOption) *Generator {
	g := &Generator{
		client:      client,
		temperature: 0.8,
		pool:        DefaultFallbackPool(),
		delay:       retryDelay,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

const generationSystemPrompt = `You generate cards for a kanban planning board.
Respond with a JSON array only. Each element is an object with exactly two string fields:
"title" (short, one line) and "content" (markdown, at most a few sentences).
Do not wrap the array in markdown fences or add commentary.`

// defaultDraftCount is used when a request does not specify a count.
const defaultDraftCount = 3

// webSearchQueryLimit bounds the query sent to the search backend.
const webSearchQueryLimit = 300

// genResult pairs parsed drafts with the usage of the call that produced them.
type genResult struct {
	drafts []Draft
	usage  llm.Usage
}

// Generate runs the full pipeline: assemble prompts, optionally augment
// with web results, call the backend, parse permissively, retry once on a
// zero-card result, and fall back to idea stubs when the retry also fails.
// The returned list never exceeds the requested count and is never nil for
// a positive count. Usage and completion hooks fire only for non-fallback
// results, and the returned usage is zero for fallback results.
func (g *Generator) Generate(ctx context.Context, req GenerationRequest) ([]Draft, llm.Usage) {
	count := req.Count
	if count <= 0 {
		count = defaultDraftCount
	}

	user := buildUserPrompt(req, count)
	if block := g.webAugment(ctx, req); block != "" {
		user += "\n\n" + block
	}

	messages := []llm.Message{
		llm.SystemMessage(generationSystemPrompt),
		llm.UserMessage(user),
	}

	result, ok := withRetry(ctx, 2, g.delay, func(ctx context.Context) (genResult, bool) {
		resp, err := g.client.Complete(ctx, llm.Request{
			Model:       g.model,
			Messages:    messages,
			Temperature: llm.Float64Ptr(g.temperature),
		})
		if err != nil {
			log.Printf("component=engine action=generate result=call_failed error=%v", err)
			return genResult{}, false
		}
		drafts := ParseDrafts(resp.Content)
		if len(drafts) == 0 {
			log.Printf("component=engine action=generate result=unparsable response_len=%d", len(resp.Content))
			return genResult{}, false
		}
		return genResult{drafts: drafts, usage: resp.Usage}, true
	})

	if !ok {
		drafts := g.pool.Sample(count)
		log.Printf("component=engine action=generate result=fallback count=%d", len(drafts))
		return drafts, llm.Usage{}
	}

	drafts := result.drafts
	if len(drafts) > count {
		drafts = drafts[:count]
	}

	if g.onUsage != nil {
		g.onUsage(result.usage)
	}
	if g.onComplete != nil {
		g.onComplete(len(drafts))
	}
	return drafts, result.usage
}

// buildUserPrompt orders the prompt general context, then board state, then
// the task. Column-specific instructions go last so they carry the most
// recency weight with the model.
func buildUserPrompt(req GenerationRequest, count int) string {
	var sb strings.Builder

	if req.StandingInstructions != "" {
		sb.WriteString("General guidance for this board:\n")
		sb.WriteString(req.StandingInstructions)
		sb.WriteString("\n\n")
	}

	if req.BoardContext != "" {
		sb.WriteString("Current board state:\n")
		sb.WriteString(req.BoardContext)
		sb.WriteString("\n\n")
	}

	sb.WriteString("Task: generate ")
	sb.WriteString(intToWords(count))
	sb.WriteString(" new cards for the target column.")

	if req.ColumnInstructions != "" {
		sb.WriteString("\n\nInstructions for the target column:\n")
		sb.WriteString(req.ColumnInstructions)
	}

	return sb.String()
}

// intToWords renders small counts as words for prompt readability; larger
// values fall back to digits.
func intToWords(n int) string {
	words := []string{"zero", "one", "two", "three", "four", "five", "six", "seven", "eight", "nine", "ten"}
	if n >= 0 && n < len(words) {
		return words[n]
	}
	return strconv.Itoa(n)
}

// webIntentKeywords mark instructions that want live web material.
var webIntentKeywords = []string{
	"http://", "https://", "www.", ".com", ".org", ".net",
	"video", "article", "search for", "look up", "link to",
	"url", "website", "news", "youtube", "blog post",
}

// hasWebIntent reports whether the combined instructions ask for web content.
func hasWebIntent(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range webIntentKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// webAugment performs the optional web-search step. It returns a prompt
// block containing only verified URLs taken from the search results' own
// metadata, plus an explicit no-fabrication instruction. Search failures
// are swallowed; generation proceeds without augmentation.
func (g *Generator) webAugment(ctx context.Context, req GenerationRequest) string {
	if g.searcher == nil {
		return ""
	}
	combined := strings.TrimSpace(req.ColumnInstructions + " " + req.StandingInstructions)
	if !hasWebIntent(combined) {
		return ""
	}

	query := truncateChars(combined, webSearchQueryLimit)
	result, err := g.searcher.WebSearch(ctx, "", query)
	if err != nil {
		log.Printf("component=engine action=web_search result=failed error=%v", err)
		return ""
	}

	var sb strings.Builder
	sb.WriteString("Verified URLs from a live web search. Only these URLs may appear in card content; ")
	sb.WriteString("never invent or alter a URL. If this list is empty, produce no links at all.\n")
	for _, hit := range result.Results {
		if hit.URL == "" {
			continue
		}
		sb.WriteString("- ")
		if hit.Title != "" {
			sb.WriteString(hit.Title + ": ")
		}
		sb.WriteString(hit.URL)
		sb.WriteString("\n")
	}
	return sb.String()
}
