// ABOUTME: Tests for the durable run ledger: record, lookup, undo marking,
// ABOUTME: double-undo refusal, and reopen-from-disk replay.
package ledger_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/sporelabs/shroomboard/board"
	"github.com/sporelabs/shroomboard/ledger"
)

func TestRunLedgerRecordAndLookup(t *testing.T) {
	dir := t.TempDir()
	l, err := ledger.NewRunLedger(dir)
	if err != nil {
		t.Fatalf("NewRunLedger: %v", err)
	}
	defer func() { _ = l.Close() }()

	ctx := context.Background()
	boardID := board.NewULID()
	run := makeRun(boardID, 1)

	if err := l.Record(ctx, run); err != nil {
		t.Fatalf("Record: %v", err)
	}

	got, err := l.Run(ctx, boardID, run.RunID)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got.RunID != run.RunID {
		t.Errorf("RunID = %s, want %s", got.RunID, run.RunID)
	}

	runs, err := l.Runs(ctx, boardID)
	if err != nil {
		t.Fatalf("Runs: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(runs))
	}
}

func TestRunLedgerUnknownRun(t *testing.T) {
	l, err := ledger.NewRunLedger(t.TempDir())
	if err != nil {
		t.Fatalf("NewRunLedger: %v", err)
	}
	defer func() { _ = l.Close() }()

	_, err = l.Run(context.Background(), board.NewULID(), board.NewULID())
	if !errors.Is(err, board.ErrRunNotFound) {
		t.Errorf("err = %v, want ErrRunNotFound", err)
	}
}

func TestRunLedgerMarkUndoneRefusesDouble(t *testing.T) {
	l, err := ledger.NewRunLedger(t.TempDir())
	if err != nil {
		t.Fatalf("NewRunLedger: %v", err)
	}
	defer func() { _ = l.Close() }()

	ctx := context.Background()
	boardID := board.NewULID()
	run := makeRun(boardID, 1)
	if err := l.Record(ctx, run); err != nil {
		t.Fatalf("Record: %v", err)
	}

	if err := l.MarkUndone(ctx, boardID, run.RunID); err != nil {
		t.Fatalf("MarkUndone: %v", err)
	}
	if err := l.MarkUndone(ctx, boardID, run.RunID); !errors.Is(err, board.ErrRunAlreadyUndone) {
		t.Errorf("second MarkUndone = %v, want ErrRunAlreadyUndone", err)
	}

	got, err := l.Run(ctx, boardID, run.RunID)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !got.Undone {
		t.Error("run not flagged undone after MarkUndone")
	}
}

func TestRunLedgerSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	boardID := board.NewULID()

	l, err := ledger.NewRunLedger(dir)
	if err != nil {
		t.Fatalf("NewRunLedger: %v", err)
	}
	r1 := makeRun(boardID, 2)
	r2 := makeRun(boardID, 0)
	if err := l.Record(ctx, r1); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := l.Record(ctx, r2); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := l.MarkUndone(ctx, boardID, r1.RunID); err != nil {
		t.Fatalf("MarkUndone: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Reopen in a fresh ledger over the same directory. The undone run must
	// replay as undone even though undo appended a second line for it.
	l2, err := ledger.NewRunLedger(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = l2.Close() }()

	runs, err := l2.Runs(ctx, boardID)
	if err != nil {
		t.Fatalf("Runs: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs after reopen, got %d", len(runs))
	}

	got, err := l2.Run(ctx, boardID, r1.RunID)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !got.Undone {
		t.Error("undone flag lost across reopen")
	}
	if len(got.Changes) != 2 {
		t.Errorf("changes lost across reopen: got %d, want 2", len(got.Changes))
	}

	if _, err := l2.Run(ctx, boardID, r2.RunID); err != nil {
		t.Errorf("second run missing after reopen: %v", err)
	}

	// Each board gets its own log file.
	if _, err := filepath.Glob(filepath.Join(dir, "*.runs.jsonl")); err != nil {
		t.Fatalf("glob: %v", err)
	}
}

func TestMemoryLedgerMatchesRecorderContract(t *testing.T) {
	ctx := context.Background()
	l := ledger.NewMemoryLedger()
	boardID := board.NewULID()
	run := makeRun(boardID, 1)

	if err := l.Record(ctx, run); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := l.MarkUndone(ctx, boardID, run.RunID); err != nil {
		t.Fatalf("MarkUndone: %v", err)
	}
	if err := l.MarkUndone(ctx, boardID, run.RunID); !errors.Is(err, board.ErrRunAlreadyUndone) {
		t.Errorf("second MarkUndone = %v, want ErrRunAlreadyUndone", err)
	}
	if _, err := l.Run(ctx, boardID, board.NewULID()); !errors.Is(err, board.ErrRunNotFound) {
		t.Errorf("unknown run = %v, want ErrRunNotFound", err)
	}
}
