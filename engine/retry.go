// ABOUTME: Semantic retry combinator for generation: retry usable-result functions, then signal fallback.
// ABOUTME: Distinct from the transport-level llm.RetryPolicy, which covers 429/5xx on the wire.
package engine

import (
	"context"
	"time"
)

// retryDelay is the fixed pause between semantic retry attempts.
const retryDelay = 2 * time.Second

// withRetry runs fn up to attempts times, pausing delay between tries,
// until fn reports a usable result. The second return value is false when
// every attempt came back unusable, signalling the caller to fall back.
// Context cancellation stops further attempts.
func withRetry[T any](ctx context.Context, attempts int, delay time.Duration, fn func(context.Context) (T, bool)) (T, bool) {
	var last T
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return last, false
			case <-time.After(delay):
			}
		}
		value, usable := fn(ctx)
		last = value
		if usable {
			return value, true
		}
	}
	return last, false
}
