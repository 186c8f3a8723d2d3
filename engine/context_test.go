// ABOUTME: Tests for the board context builder: bounded excerpts, target column
// ABOUTME: inclusion, empty-column omission, and archived sub-lists.
package engine

import (
	"strings"
	"testing"

	"github.com/sporelabs/shroomboard/board"
)

func boardWithCards(t *testing.T, columnCards map[string][]string) *board.Board {
	t.Helper()
	names := []string{"Inbox", "Doing", "Done"}
	b := board.NewBoard("Test Board", names...)
	for colName, titles := range columnCards {
		col := b.ColumnByName(colName)
		if col == nil {
			t.Fatalf("no column %q", colName)
		}
		for _, title := range titles {
			card := board.NewCard(title, "<p>body of "+title+"</p>", "user")
			b.Cards[card.CardID] = card
			col.CardIDs = append(col.CardIDs, card.CardID)
		}
	}
	return b
}

func TestContextIncludesBoardHeaderLines(t *testing.T) {
	b := boardWithCards(t, nil)
	b.Description = "A board about tests"
	b.Instructions = "Keep cards short"

	out := BuildBoardContext(b, b.Columns[0].ColumnID, false)
	for _, want := range []string{
		"Board: Test Board",
		"Description: A board about tests",
		"Standing instructions: Keep cards short",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("context missing %q:\n%s", want, out)
		}
	}
}

func TestContextOmitsMissingHeaderLines(t *testing.T) {
	b := boardWithCards(t, nil)
	out := BuildBoardContext(b, b.Columns[0].ColumnID, false)
	if strings.Contains(out, "Description:") {
		t.Error("empty description should be omitted")
	}
	if strings.Contains(out, "Standing instructions:") {
		t.Error("empty standing instructions should be omitted")
	}
}

func TestContextTargetColumnIncludedEvenWhenEmpty(t *testing.T) {
	b := boardWithCards(t, map[string][]string{"Inbox": {"Card A"}})
	doing := b.ColumnByName("Doing")

	out := BuildBoardContext(b, doing.ColumnID, false)
	if !strings.Contains(out, "## Column: Doing (target)") {
		t.Errorf("empty target column missing:\n%s", out)
	}
	// Done is empty and not the target, so it disappears entirely.
	if strings.Contains(out, "Done") {
		t.Errorf("empty non-target column should be omitted:\n%s", out)
	}
}

func TestContextExcerptsBounded(t *testing.T) {
	long := strings.Repeat("x", 4000)
	b := boardWithCards(t, nil)
	col := b.ColumnByName("Inbox")
	card := board.NewCard("Long card", long, "user")
	card.Summary = long
	b.Cards[card.CardID] = card
	col.CardIDs = append(col.CardIDs, card.CardID)

	out := BuildBoardContext(b, col.ColumnID, false)
	for _, line := range strings.Split(out, "\n") {
		if !strings.HasPrefix(line, "- Long card: ") {
			continue
		}
		excerpt := strings.TrimPrefix(line, "- Long card: ")
		if n := len([]rune(excerpt)); n > 150 {
			t.Errorf("excerpt is %d runes, want <= 150", n)
		}
		if !strings.HasSuffix(excerpt, "...") {
			t.Errorf("truncated excerpt should end with ellipsis: %q", excerpt)
		}
		return
	}
	t.Fatalf("card line not found in context:\n%s", out)
}

func TestContextGrowthLinearInCardCount(t *testing.T) {
	build := func(n int) string {
		titles := make([]string, n)
		for i := range titles {
			titles[i] = "Card"
		}
		b := boardWithCards(t, map[string][]string{"Inbox": titles})
		return BuildBoardContext(b, b.ColumnByName("Inbox").ColumnID, false)
	}

	ten := len(build(10))
	twenty := len(build(20))
	// Doubling the card count should roughly double the output, never
	// explode past a fixed per-card bound.
	perCard := 150 + 100
	if twenty-ten > 10*perCard {
		t.Errorf("growth from 10 to 20 cards was %d bytes, want <= %d", twenty-ten, 10*perCard)
	}
}

func TestContextArchivedTitlesOnlyWhenRequested(t *testing.T) {
	b := boardWithCards(t, map[string][]string{"Done": {"Active"}})
	done := b.ColumnByName("Done")
	archived := board.NewCard("Old finished thing", "<p>done</p>", "user")
	b.Cards[archived.CardID] = archived
	done.Archived = append(done.Archived, archived.CardID)

	without := BuildBoardContext(b, done.ColumnID, false)
	if strings.Contains(without, "Old finished thing") {
		t.Error("archived card leaked without includeArchived")
	}

	with := BuildBoardContext(b, done.ColumnID, true)
	if !strings.Contains(with, "Completed:") || !strings.Contains(with, "- Old finished thing") {
		t.Errorf("archived sub-list missing:\n%s", with)
	}
}
