// ABOUTME: ColumnResolver maps stored column names to live columns with an ordered strategy.
// ABOUTME: Exact match, then case-insensitive, then substring, then first-column fallback.
package board

import (
	"strings"

	"github.com/oklog/ulid/v2"
)

// MatchConfidence reports how a column name was resolved, so callers can
// distinguish a confident resolution from a fallback.
type MatchConfidence string

const (
	MatchExact           MatchConfidence = "exact"
	MatchCaseInsensitive MatchConfidence = "case_insensitive"
	MatchSubstring       MatchConfidence = "substring"
	MatchFallback        MatchConfidence = "fallback"
)

// Resolution pairs a resolved column id with the confidence of the match.
type Resolution struct {
	ColumnID   ulid.ULID
	Confidence MatchConfidence
}

// ResolveColumn resolves a stored column name against the board's live
// columns. Unresolvable names fall back to the board's first column: the
// engine degrades rather than fails when columns have been renamed since
// the instruction was saved. Returns ok=false only when the board has no
// columns at all.
func ResolveColumn(b *Board, name string) (Resolution, bool) {
	if len(b.Columns) == 0 {
		return Resolution{}, false
	}

	for i := range b.Columns {
		if b.Columns[i].Name == name {
			return Resolution{ColumnID: b.Columns[i].ColumnID, Confidence: MatchExact}, true
		}
	}

	lower := strings.ToLower(name)
	for i := range b.Columns {
		if strings.ToLower(b.Columns[i].Name) == lower {
			return Resolution{ColumnID: b.Columns[i].ColumnID, Confidence: MatchCaseInsensitive}, true
		}
	}

	if lower != "" {
		for i := range b.Columns {
			colLower := strings.ToLower(b.Columns[i].Name)
			if strings.Contains(colLower, lower) || strings.Contains(lower, colLower) {
				return Resolution{ColumnID: b.Columns[i].ColumnID, Confidence: MatchSubstring}, true
			}
		}
	}

	return Resolution{ColumnID: b.Columns[0].ColumnID, Confidence: MatchFallback}, true
}

// ResolveTarget resolves an instruction target to an ordered column id list.
// The first entry is primary. TargetBoard resolves to every column in board
// order with exact confidence.
func ResolveTarget(b *Board, t Target) ([]Resolution, bool) {
	if len(b.Columns) == 0 {
		return nil, false
	}

	switch t.Kind {
	case TargetBoard:
		out := make([]Resolution, 0, len(b.Columns))
		for i := range b.Columns {
			out = append(out, Resolution{ColumnID: b.Columns[i].ColumnID, Confidence: MatchExact})
		}
		return out, true

	case TargetColumn:
		res, ok := ResolveColumn(b, t.Primary())
		if !ok {
			return nil, false
		}
		return []Resolution{res}, true

	case TargetColumns:
		if len(t.ColumnNames) == 0 {
			res, ok := ResolveColumn(b, "")
			if !ok {
				return nil, false
			}
			return []Resolution{res}, true
		}
		seen := make(map[ulid.ULID]bool)
		var out []Resolution
		for _, name := range t.ColumnNames {
			res, ok := ResolveColumn(b, name)
			if !ok {
				return nil, false
			}
			if seen[res.ColumnID] {
				continue
			}
			seen[res.ColumnID] = true
			out = append(out, res)
		}
		return out, true

	default:
		res, ok := ResolveColumn(b, t.Primary())
		if !ok {
			return nil, false
		}
		return []Resolution{res}, true
	}
}
