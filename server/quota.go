// ABOUTME: Anonymous-caller quota: an opaque uuid in a long-lived cookie plus daily usage checks.
// ABOUTME: The cookie is always set, even on rejected calls, so tracking persists across failures.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/sporelabs/shroomboard/store"
)

// quotaCookieName holds the opaque anonymous-caller id.
const quotaCookieName = "shroom_quota_id"

// quotaCookieTTL keeps the id stable long enough for meaningful metering.
const quotaCookieTTL = 365 * 24 * time.Hour

// UsageStore is the metering capability the quota layer depends on.
type UsageStore interface {
	RecordUsage(ctx context.Context, quotaID string, inputTokens, outputTokens int) error
	UsageToday(ctx context.Context, quotaID string) (store.DayUsage, error)
}

// EnsureQuotaCookie returns the caller's anonymous quota id, minting and
// setting a new one when the cookie is absent or unparsable. The cookie is
// set before any quota decision so a rejected call still carries its id
// forward.
func EnsureQuotaCookie(w http.ResponseWriter, r *http.Request) string {
	if cookie, err := r.Cookie(quotaCookieName); err == nil {
		if _, err := uuid.Parse(cookie.Value); err == nil {
			return cookie.Value
		}
	}

	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     quotaCookieName,
		Value:    id,
		Path:     "/",
		Expires:  time.Now().Add(quotaCookieTTL),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}

// Quota enforces a daily generation limit per anonymous id.
type Quota struct {
	usage UsageStore
	daily int
}

// NewQuota creates a quota over the given usage store. A zero or negative
// daily limit disables enforcement.
func NewQuota(usage UsageStore, daily int) *Quota {
	return &Quota{usage: usage, daily: daily}
}

// Allow reports whether the id has quota remaining today.
func (q *Quota) Allow(ctx context.Context, quotaID string) (bool, error) {
	if q.daily <= 0 {
		return true, nil
	}
	u, err := q.usage.UsageToday(ctx, quotaID)
	if err != nil {
		return false, err
	}
	return u.Generations < q.daily, nil
}

// Record charges one successful non-fallback generation to the id.
func (q *Quota) Record(ctx context.Context, quotaID string, inputTokens, outputTokens int) error {
	return q.usage.RecordUsage(ctx, quotaID, inputTokens, outputTokens)
}
