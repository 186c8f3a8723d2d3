// ABOUTME: Sentinel and typed errors for board lookups and run reversal.
// ABOUTME: Typed errors carry the id that failed to resolve.
package board

import (
	"errors"
	"fmt"

	"github.com/oklog/ulid/v2"
)

var (
	// ErrBoardNotFound indicates the referenced board doesn't exist.
	ErrBoardNotFound = errors.New("board not found")

	// ErrNoColumns indicates the board has no columns to resolve against.
	ErrNoColumns = errors.New("board has no columns")

	// ErrRunAlreadyUndone indicates an undo was requested for a run that
	// has already been reversed. Reported, never fatal.
	ErrRunAlreadyUndone = errors.New("run already undone")

	// ErrRunNotFound indicates the referenced instruction run doesn't exist.
	ErrRunNotFound = errors.New("instruction run not found")
)

// CardNotFoundError indicates the referenced card doesn't exist on the board.
type CardNotFoundError struct {
	CardID ulid.ULID
}

func (e *CardNotFoundError) Error() string {
	return fmt.Sprintf("card not found: %s", e.CardID)
}

// ColumnNotFoundError indicates the referenced column doesn't exist.
type ColumnNotFoundError struct {
	ColumnID ulid.ULID
}

func (e *ColumnNotFoundError) Error() string {
	return fmt.Sprintf("column not found: %s", e.ColumnID)
}

// InstructionNotFoundError indicates the referenced instruction card
// doesn't exist on the board.
type InstructionNotFoundError struct {
	InstructionID ulid.ULID
}

func (e *InstructionNotFoundError) Error() string {
	return fmt.Sprintf("instruction not found: %s", e.InstructionID)
}
