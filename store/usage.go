// ABOUTME: Anonymous-usage metering: per-quota-id daily generation and token counters.
// ABOUTME: Usage accrues only on successful non-fallback generations against the shared key.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// DayUsage is one quota id's accrued usage for a single day.
type DayUsage struct {
	Generations  int
	InputTokens  int
	OutputTokens int
}

// usageDay formats the metering bucket for a point in time.
func usageDay(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// RecordUsage increments a quota id's counters for today.
func (s *Store) RecordUsage(ctx context.Context, quotaID string, inputTokens, outputTokens int) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO usage (quota_id, day, generations, input_tokens, output_tokens)
		 VALUES (?, ?, 1, ?, ?)
		 ON CONFLICT(quota_id, day) DO UPDATE SET
			generations = generations + 1,
			input_tokens = input_tokens + excluded.input_tokens,
			output_tokens = output_tokens + excluded.output_tokens`,
		quotaID, usageDay(time.Now()), inputTokens, outputTokens)
	if err != nil {
		return fmt.Errorf("record usage: %w", err)
	}
	return nil
}

// UsageToday returns a quota id's accrued usage for today. A quota id with
// no recorded usage returns zeros.
func (s *Store) UsageToday(ctx context.Context, quotaID string) (DayUsage, error) {
	var u DayUsage
	err := s.db.QueryRowContext(ctx,
		"SELECT generations, input_tokens, output_tokens FROM usage WHERE quota_id = ? AND day = ?",
		quotaID, usageDay(time.Now())).Scan(&u.Generations, &u.InputTokens, &u.OutputTokens)
	if err == sql.ErrNoRows {
		return DayUsage{}, nil
	}
	if err != nil {
		return DayUsage{}, fmt.Errorf("query usage: %w", err)
	}
	return u, nil
}
