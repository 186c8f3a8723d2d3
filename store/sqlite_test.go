// ABOUTME: Tests for the SQLite board repository against real temp-file
// ABOUTME: databases: persistence across reopen, mutations, and usage metering.
package store_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/sporelabs/shroomboard/board"
	"github.com/sporelabs/shroomboard/store"
)

func openStore(t *testing.T) (*store.Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "shroomboard.db")
	s, err := store.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s, path
}

func seedBoard(t *testing.T, s *store.Store) *board.Board {
	t.Helper()
	b := board.NewBoard("Grow Log", "Inbox", "Doing", "Done")
	if err := s.SaveBoard(context.Background(), b); err != nil {
		t.Fatalf("SaveBoard: %v", err)
	}
	return b
}

func TestSnapshotUnknownBoard(t *testing.T) {
	s, _ := openStore(t)
	if _, err := s.Snapshot(context.Background(), board.NewULID()); !errors.Is(err, board.ErrBoardNotFound) {
		t.Fatalf("Snapshot(unknown) = %v, want ErrBoardNotFound", err)
	}
}

func TestBoardSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shroomboard.db")
	ctx := context.Background()

	s, err := store.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	b := board.NewBoard("Grow Log", "Inbox", "Done")
	b.Instructions = "keep titles short"
	card := board.NewCard("sterilize jars", "<p>pressure cooker, 90 min</p>", "user")
	b.Cards[card.CardID] = card
	b.Columns[0].CardIDs = append(b.Columns[0].CardIDs, card.CardID)
	if err := s.SaveBoard(ctx, b); err != nil {
		t.Fatalf("SaveBoard: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s, err = store.Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = s.Close() }()

	got, err := s.Snapshot(ctx, b.BoardID)
	if err != nil {
		t.Fatalf("Snapshot after reopen: %v", err)
	}
	if got.Name != "Grow Log" || got.Instructions != "keep titles short" {
		t.Errorf("board fields lost: %q / %q", got.Name, got.Instructions)
	}
	if len(got.Columns) != 2 || len(got.Columns[0].CardIDs) != 1 {
		t.Fatalf("column layout lost: %+v", got.Columns)
	}
	stored := got.Cards[card.CardID]
	if stored.Title != "sterilize jars" || stored.Body() != "<p>pressure cooker, 90 min</p>" {
		t.Errorf("card content lost: %q / %q", stored.Title, stored.Body())
	}
}

func TestSaveBoardUpserts(t *testing.T) {
	s, _ := openStore(t)
	ctx := context.Background()
	b := seedBoard(t, s)

	b.Name = "Renamed"
	b.UpdatedAt = time.Now().UTC()
	if err := s.SaveBoard(ctx, b); err != nil {
		t.Fatalf("SaveBoard(again): %v", err)
	}

	boards, err := s.ListBoards(ctx)
	if err != nil {
		t.Fatalf("ListBoards: %v", err)
	}
	if len(boards) != 1 {
		t.Fatalf("got %d boards after upsert, want 1", len(boards))
	}
	if boards[0].Name != "Renamed" {
		t.Errorf("Name = %q, want %q", boards[0].Name, "Renamed")
	}
}

func TestCreateMoveDeleteCard(t *testing.T) {
	s, _ := openStore(t)
	ctx := context.Background()
	b := seedBoard(t, s)
	inbox := b.Columns[0].ColumnID
	done := b.Columns[2].ColumnID

	card := board.NewCard("inoculate", "<p>use the flow hood</p>", "assistant")
	if err := s.CreateCard(ctx, b.BoardID, inbox, card, -1); err != nil {
		t.Fatalf("CreateCard: %v", err)
	}
	snap, err := s.Snapshot(ctx, b.BoardID)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if len(snap.Columns[0].CardIDs) != 1 || snap.Columns[0].CardIDs[0] != card.CardID {
		t.Fatalf("card not in Inbox: %v", snap.Columns[0].CardIDs)
	}

	if err := s.MoveCard(ctx, b.BoardID, card.CardID, done, -1); err != nil {
		t.Fatalf("MoveCard: %v", err)
	}
	snap, _ = s.Snapshot(ctx, b.BoardID)
	if len(snap.Columns[0].CardIDs) != 0 {
		t.Error("card still referenced in Inbox after move")
	}
	if len(snap.Columns[2].CardIDs) != 1 {
		t.Fatalf("card missing from Done after move: %v", snap.Columns[2].CardIDs)
	}

	if err := s.DeleteCard(ctx, b.BoardID, card.CardID); err != nil {
		t.Fatalf("DeleteCard: %v", err)
	}
	snap, _ = s.Snapshot(ctx, b.BoardID)
	if _, ok := snap.Cards[card.CardID]; ok {
		t.Error("card table still holds deleted card")
	}
	if len(snap.Columns[2].CardIDs) != 0 {
		t.Error("column still references deleted card")
	}

	var notFound *board.CardNotFoundError
	if err := s.DeleteCard(ctx, b.BoardID, card.CardID); !errors.As(err, &notFound) {
		t.Errorf("DeleteCard(again) = %v, want CardNotFoundError", err)
	}
}

func TestUpdateCardContent(t *testing.T) {
	s, _ := openStore(t)
	ctx := context.Background()
	b := seedBoard(t, s)

	card := board.NewCard("old", "old body", "user")
	if err := s.CreateCard(ctx, b.BoardID, b.Columns[0].ColumnID, card, -1); err != nil {
		t.Fatalf("CreateCard: %v", err)
	}
	if err := s.UpdateCardContent(ctx, b.BoardID, card.CardID, "new", "<p>new body</p>"); err != nil {
		t.Fatalf("UpdateCardContent: %v", err)
	}

	snap, _ := s.Snapshot(ctx, b.BoardID)
	got := snap.Cards[card.CardID]
	if got.Title != "new" || got.Body() != "<p>new body</p>" {
		t.Errorf("card content = %q / %q", got.Title, got.Body())
	}
}

func TestCreateCardUnknownColumnRollsBack(t *testing.T) {
	s, _ := openStore(t)
	ctx := context.Background()
	b := seedBoard(t, s)

	card := board.NewCard("orphan", "", "user")
	var notFound *board.ColumnNotFoundError
	if err := s.CreateCard(ctx, b.BoardID, board.NewULID(), card, -1); !errors.As(err, &notFound) {
		t.Fatalf("CreateCard(unknown column) = %v, want ColumnNotFoundError", err)
	}

	snap, _ := s.Snapshot(ctx, b.BoardID)
	if _, ok := snap.Cards[card.CardID]; ok {
		t.Error("failed create leaked into the stored document")
	}
}

func TestMarkProcessedPersists(t *testing.T) {
	s, _ := openStore(t)
	ctx := context.Background()
	b := seedBoard(t, s)

	card := board.NewCard("note", "", "user")
	if err := s.CreateCard(ctx, b.BoardID, b.Columns[0].ColumnID, card, -1); err != nil {
		t.Fatalf("CreateCard: %v", err)
	}

	instr := board.NewULID()
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	if err := s.MarkProcessed(ctx, b.BoardID, card.CardID, instr, at); err != nil {
		t.Fatalf("MarkProcessed: %v", err)
	}
	snap, _ := s.Snapshot(ctx, b.BoardID)
	if got, ok := snap.Cards[card.CardID].ProcessedBy[instr]; !ok || !got.Equal(at) {
		t.Fatalf("ProcessedBy = (%v, %v), want (%v, true)", got, ok, at)
	}

	if err := s.ClearProcessed(ctx, b.BoardID, card.CardID, instr); err != nil {
		t.Fatalf("ClearProcessed: %v", err)
	}
	snap, _ = s.Snapshot(ctx, b.BoardID)
	if _, ok := snap.Cards[card.CardID].ProcessedBy[instr]; ok {
		t.Error("marker survived ClearProcessed")
	}
}

func TestUsageAccumulatesPerDay(t *testing.T) {
	s, _ := openStore(t)
	ctx := context.Background()

	if err := s.RecordUsage(ctx, "visitor-1", 100, 40); err != nil {
		t.Fatalf("RecordUsage: %v", err)
	}
	if err := s.RecordUsage(ctx, "visitor-1", 50, 10); err != nil {
		t.Fatalf("RecordUsage: %v", err)
	}
	if err := s.RecordUsage(ctx, "visitor-2", 1, 1); err != nil {
		t.Fatalf("RecordUsage: %v", err)
	}

	u, err := s.UsageToday(ctx, "visitor-1")
	if err != nil {
		t.Fatalf("UsageToday: %v", err)
	}
	if u.Generations != 2 || u.InputTokens != 150 || u.OutputTokens != 50 {
		t.Errorf("visitor-1 usage = %+v", u)
	}

	u, err = s.UsageToday(ctx, "visitor-2")
	if err != nil {
		t.Fatalf("UsageToday: %v", err)
	}
	if u.Generations != 1 {
		t.Errorf("visitor-2 generations = %d, want 1", u.Generations)
	}

	u, err = s.UsageToday(ctx, "never-seen")
	if err != nil {
		t.Fatalf("UsageToday: %v", err)
	}
	if u != (store.DayUsage{}) {
		t.Errorf("unknown quota id usage = %+v, want zeros", u)
	}
}
