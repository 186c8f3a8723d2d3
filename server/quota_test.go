// ABOUTME: Tests for the anonymous quota: cookie minting and stability, the
// ABOUTME: daily Allow check, and the disabled-limit escape hatch.
package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/sporelabs/shroomboard/store"
)

// fakeUsage is an in-memory UsageStore for quota tests.
type fakeUsage struct {
	byID map[string]store.DayUsage
}

func newFakeUsage() *fakeUsage {
	return &fakeUsage{byID: make(map[string]store.DayUsage)}
}

func (f *fakeUsage) RecordUsage(ctx context.Context, quotaID string, inputTokens, outputTokens int) error {
	u := f.byID[quotaID]
	u.Generations++
	u.InputTokens += inputTokens
	u.OutputTokens += outputTokens
	f.byID[quotaID] = u
	return nil
}

func (f *fakeUsage) UsageToday(ctx context.Context, quotaID string) (store.DayUsage, error) {
	return f.byID[quotaID], nil
}

func TestEnsureQuotaCookieMintsAndKeeps(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/generate", nil)

	id := EnsureQuotaCookie(rec, req)
	if _, err := uuid.Parse(id); err != nil {
		t.Fatalf("minted id %q is not a uuid: %v", id, err)
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != quotaCookieName || cookies[0].Value != id {
		t.Fatalf("cookie not set correctly: %+v", cookies)
	}
	if !cookies[0].HttpOnly {
		t.Error("quota cookie is not HttpOnly")
	}

	// A request carrying the cookie keeps its id and gets no replacement.
	rec2 := httptest.NewRecorder()
	req2 := httptest.NewRequest(http.MethodPost, "/api/generate", nil)
	req2.AddCookie(cookies[0])
	if got := EnsureQuotaCookie(rec2, req2); got != id {
		t.Errorf("id changed across requests: %q vs %q", got, id)
	}
	if len(rec2.Result().Cookies()) != 0 {
		t.Error("cookie re-set for a caller that already had one")
	}
}

func TestEnsureQuotaCookieReplacesGarbage(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/generate", nil)
	req.AddCookie(&http.Cookie{Name: quotaCookieName, Value: "not-a-uuid"})

	id := EnsureQuotaCookie(rec, req)
	if id == "not-a-uuid" {
		t.Fatal("garbage cookie value accepted")
	}
	if _, err := uuid.Parse(id); err != nil {
		t.Fatalf("replacement id %q is not a uuid: %v", id, err)
	}
	if len(rec.Result().Cookies()) != 1 {
		t.Error("replacement cookie not set")
	}
}

func TestQuotaAllowEnforcesDailyLimit(t *testing.T) {
	usage := newFakeUsage()
	q := NewQuota(usage, 2)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, err := q.Allow(ctx, "visitor")
		if err != nil || !ok {
			t.Fatalf("Allow #%d = (%v, %v), want allowed", i+1, ok, err)
		}
		if err := q.Record(ctx, "visitor", 10, 5); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	ok, err := q.Allow(ctx, "visitor")
	if err != nil {
		t.Fatalf("Allow: %v", err)
	}
	if ok {
		t.Error("third generation allowed with a limit of 2")
	}

	// A different id has its own daily allowance.
	if ok, _ := q.Allow(ctx, "other"); !ok {
		t.Error("fresh id denied")
	}
}

func TestQuotaZeroLimitDisablesEnforcement(t *testing.T) {
	usage := newFakeUsage()
	usage.byID["visitor"] = store.DayUsage{Generations: 10_000}
	q := NewQuota(usage, 0)

	if ok, err := q.Allow(context.Background(), "visitor"); err != nil || !ok {
		t.Errorf("Allow with disabled limit = (%v, %v), want allowed", ok, err)
	}
}
