// ABOUTME: Board Context Builder: projects a board snapshot into a bounded prompt string.
// ABOUTME: Pure projection, never errors; missing fields degrade to omitted lines.
package engine

import (
	"strings"

	"github.com/oklog/ulid/v2"

	"github.com/sporelabs/shroomboard/board"
)

// excerptLimit bounds each card excerpt so prompt size grows linearly in
// visible card count rather than in card content.
const excerptLimit = 150

// BuildBoardContext renders a compact textual summary of the board for
// prompt assembly: the board's name, description, and standing instructions,
// then every non-empty column (the target column always included, even when
// empty) with its front-side cards. Archived card titles appear under a
// "Completed" sub-list only when includeArchived is set. Empty non-target
// columns are omitted.
func BuildBoardContext(b *board.Board, targetColumnID ulid.ULID, includeArchived bool) string {
	var sb strings.Builder

	if b.Name != "" {
		sb.WriteString("Board: " + b.Name + "\n")
	}
	if b.Description != "" {
		sb.WriteString("Description: " + b.Description + "\n")
	}
	if b.Instructions != "" {
		sb.WriteString("Standing instructions: " + b.Instructions + "\n")
	}

	for i := range b.Columns {
		col := &b.Columns[i]
		isTarget := col.ColumnID == targetColumnID
		hasArchived := includeArchived && len(col.Archived) > 0
		if len(col.CardIDs) == 0 && !hasArchived && !isTarget {
			continue
		}

		sb.WriteString("\n## Column: " + col.Name)
		if isTarget {
			sb.WriteString(" (target)")
		}
		sb.WriteString("\n")

		for _, cardID := range col.CardIDs {
			card, ok := b.Cards[cardID]
			if !ok {
				continue
			}
			sb.WriteString("- " + card.Title)
			if excerpt := card.Excerpt(); excerpt != "" {
				sb.WriteString(": " + truncateChars(excerpt, excerptLimit))
			}
			sb.WriteString("\n")
		}

		if hasArchived {
			sb.WriteString("Completed:\n")
			for _, cardID := range col.Archived {
				card, ok := b.Cards[cardID]
				if !ok {
					continue
				}
				sb.WriteString("- " + card.Title + "\n")
			}
		}
	}

	return sb.String()
}

// Excerpt bounds a free-text snippet to the same per-card limit the context
// builder applies to stored cards.
func Excerpt(s string) string {
	return truncateChars(strings.TrimSpace(s), excerptLimit)
}

// truncateChars truncates a string to at most limit characters (runes, not
// bytes), ending in "..." when truncation occurred. The ellipsis counts
// against the limit so the result never exceeds it.
func truncateChars(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-3]) + "..."
}
