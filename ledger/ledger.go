// ABOUTME: RunLedger records instruction runs and their undo state per board.
// ABOUTME: File-backed via per-board JSONL logs; MemoryLedger backs engine tests.
package ledger

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/sporelabs/shroomboard/board"
)

// Recorder is the ledger capability the rule engine depends on.
type Recorder interface {
	// Record appends a completed run to the board's history.
	Record(ctx context.Context, run *board.InstructionRun) error

	// Run returns the current record for one run.
	Run(ctx context.Context, boardID, runID ulid.ULID) (*board.InstructionRun, error)

	// Runs returns a board's run history, oldest first.
	Runs(ctx context.Context, boardID ulid.ULID) ([]board.InstructionRun, error)

	// MarkUndone flags a run as reversed. Returns board.ErrRunAlreadyUndone
	// when the run is already flagged.
	MarkUndone(ctx context.Context, boardID, runID ulid.ULID) error
}

// boardHistory is the in-memory view of one board's run log.
type boardHistory struct {
	log   *JsonlLog
	order []ulid.ULID
	runs  map[ulid.ULID]*board.InstructionRun
}

// RunLedger is a file-backed Recorder. Each board gets its own JSONL log
// under the ledger directory; an in-memory index keeps the last record per
// run id, so an undo shows up as a second line for the same run.
type RunLedger struct {
	dir    string
	mu     sync.Mutex
	boards map[ulid.ULID]*boardHistory
}

// NewRunLedger creates a ledger rooted at dir, creating it if needed.
func NewRunLedger(dir string) (*RunLedger, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create ledger dir: %w", err)
	}
	return &RunLedger{
		dir:    dir,
		boards: make(map[ulid.ULID]*boardHistory),
	}, nil
}

// Close closes all open board logs.
func (l *RunLedger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	var firstErr error
	for _, h := range l.boards {
		if err := h.log.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	l.boards = make(map[ulid.ULID]*boardHistory)
	return firstErr
}

// logPath returns the JSONL path for one board's run history.
func (l *RunLedger) logPath(boardID ulid.ULID) string {
	return filepath.Join(l.dir, boardID.String()+".runs.jsonl")
}

// history returns the loaded history for a board, opening and replaying its
// log on first access. A log that fails to replay is repaired once and
// replayed again; runs lost to truncation are dropped.
func (l *RunLedger) history(boardID ulid.ULID) (*boardHistory, error) {
	if h, ok := l.boards[boardID]; ok {
		return h, nil
	}

	path := l.logPath(boardID)
	var replayed []board.InstructionRun
	if _, err := os.Stat(path); err == nil {
		replayed, err = ReplayJsonl(path)
		if err != nil {
			kept, repairErr := RepairJsonl(path)
			if repairErr != nil {
				return nil, fmt.Errorf("repair run log: %w", repairErr)
			}
			log.Printf("component=ledger action=repair board=%s kept=%d", boardID, kept)
			replayed, err = ReplayJsonl(path)
			if err != nil {
				return nil, fmt.Errorf("replay after repair: %w", err)
			}
		}
	}

	jl, err := OpenJsonl(path)
	if err != nil {
		return nil, err
	}

	h := &boardHistory{
		log:  jl,
		runs: make(map[ulid.ULID]*board.InstructionRun),
	}
	for i := range replayed {
		run := replayed[i]
		if _, seen := h.runs[run.RunID]; !seen {
			h.order = append(h.order, run.RunID)
		}
		h.runs[run.RunID] = &run
	}
	l.boards[boardID] = h
	return h, nil
}

// Record appends a run to the board's log and index.
func (l *RunLedger) Record(ctx context.Context, run *board.InstructionRun) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	h, err := l.history(run.BoardID)
	if err != nil {
		return err
	}
	if err := h.log.Append(run); err != nil {
		return err
	}
	if _, seen := h.runs[run.RunID]; !seen {
		h.order = append(h.order, run.RunID)
	}
	stored := *run
	h.runs[run.RunID] = &stored
	return nil
}

// Run returns a copy of the current record for one run.
func (l *RunLedger) Run(ctx context.Context, boardID, runID ulid.ULID) (*board.InstructionRun, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	h, err := l.history(boardID)
	if err != nil {
		return nil, err
	}
	run, ok := h.runs[runID]
	if !ok {
		return nil, board.ErrRunNotFound
	}
	out := *run
	return &out, nil
}

// Runs returns a board's history, oldest first.
func (l *RunLedger) Runs(ctx context.Context, boardID ulid.ULID) ([]board.InstructionRun, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	h, err := l.history(boardID)
	if err != nil {
		return nil, err
	}
	out := make([]board.InstructionRun, 0, len(h.order))
	for _, id := range h.order {
		out = append(out, *h.runs[id])
	}
	return out, nil
}

// MarkUndone flags a run as reversed, appending the updated record so the
// log stays append-only.
func (l *RunLedger) MarkUndone(ctx context.Context, boardID, runID ulid.ULID) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	h, err := l.history(boardID)
	if err != nil {
		return err
	}
	run, ok := h.runs[runID]
	if !ok {
		return board.ErrRunNotFound
	}
	if run.Undone {
		return board.ErrRunAlreadyUndone
	}

	updated := *run
	updated.Undone = true
	if err := h.log.Append(&updated); err != nil {
		return err
	}
	h.runs[runID] = &updated
	return nil
}

var _ Recorder = (*RunLedger)(nil)

// MemoryLedger is an in-memory Recorder for tests and ephemeral boards.
type MemoryLedger struct {
	mu   sync.Mutex
	runs map[ulid.ULID]map[ulid.ULID]*board.InstructionRun
}

// NewMemoryLedger creates an empty in-memory ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{runs: make(map[ulid.ULID]map[ulid.ULID]*board.InstructionRun)}
}

func (l *MemoryLedger) Record(ctx context.Context, run *board.InstructionRun) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	byRun, ok := l.runs[run.BoardID]
	if !ok {
		byRun = make(map[ulid.ULID]*board.InstructionRun)
		l.runs[run.BoardID] = byRun
	}
	stored := *run
	byRun[run.RunID] = &stored
	return nil
}

func (l *MemoryLedger) Run(ctx context.Context, boardID, runID ulid.ULID) (*board.InstructionRun, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	run, ok := l.runs[boardID][runID]
	if !ok {
		return nil, board.ErrRunNotFound
	}
	out := *run
	return &out, nil
}

func (l *MemoryLedger) Runs(ctx context.Context, boardID ulid.ULID) ([]board.InstructionRun, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]board.InstructionRun, 0, len(l.runs[boardID]))
	for _, run := range l.runs[boardID] {
		out = append(out, *run)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}

func (l *MemoryLedger) MarkUndone(ctx context.Context, boardID, runID ulid.ULID) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	run, ok := l.runs[boardID][runID]
	if !ok {
		return board.ErrRunNotFound
	}
	if run.Undone {
		return board.ErrRunAlreadyUndone
	}
	run.Undone = true
	return nil
}

var _ Recorder = (*MemoryLedger)(nil)
