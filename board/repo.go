// ABOUTME: Repository is the capability the engine uses to read and mutate boards.
// ABOUTME: MemoryRepository is a mutex-guarded in-memory implementation for tests and single-node use.
package board

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Repository provides snapshot reads and discrete mutations against boards.
// The engine takes this as an explicit dependency rather than reaching into
// ambient state, so tests can inject an in-memory fake.
type Repository interface {
	// Snapshot returns a copy of the board that callers may read freely.
	Snapshot(ctx context.Context, boardID ulid.ULID) (*Board, error)

	// SaveBoard creates or replaces a whole board (last-writer-wins).
	SaveBoard(ctx context.Context, b *Board) error

	// ListBoards returns snapshots of all stored boards.
	ListBoards(ctx context.Context) ([]*Board, error)

	// CreateCard inserts a card into a column's front-side list at index
	// (-1 appends) and adds it to the board's card table.
	CreateCard(ctx context.Context, boardID, columnID ulid.ULID, card Card, index int) error

	// UpdateCardContent replaces a card's title and body in place.
	UpdateCardContent(ctx context.Context, boardID, cardID ulid.ULID, title, body string) error

	// DeleteCard removes a card from its column reference list and the table.
	DeleteCard(ctx context.Context, boardID, cardID ulid.ULID) error

	// MoveCard relocates a card to a column's front-side list at index
	// (-1 appends), removing it from wherever it currently sits.
	MoveCard(ctx context.Context, boardID, cardID, toColumnID ulid.ULID, index int) error

	// MarkProcessed stamps a card's processed-by marker for an instruction.
	MarkProcessed(ctx context.Context, boardID, cardID, instructionID ulid.ULID, at time.Time) error

	// ClearProcessed removes one card/instruction processed-by marker so the
	// rule can touch that card again.
	ClearProcessed(ctx context.Context, boardID, cardID, instructionID ulid.ULID) error
}

// MemoryRepository keeps boards in memory behind a mutex. It backs the
// engine's unit tests and small single-process deployments.
type MemoryRepository struct {
	mu     sync.RWMutex
	boards map[ulid.ULID]*Board
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{boards: make(map[ulid.ULID]*Board)}
}

// Snapshot returns a deep copy of the board.
func (r *MemoryRepository) Snapshot(ctx context.Context, boardID ulid.ULID) (*Board, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.boards[boardID]
	if !ok {
		return nil, ErrBoardNotFound
	}
	return cloneBoard(b), nil
}

// SaveBoard stores a deep copy of the given board.
func (r *MemoryRepository) SaveBoard(ctx context.Context, b *Board) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.boards[b.BoardID] = cloneBoard(b)
	return nil
}

// ListBoards returns snapshots of all boards in unspecified order.
func (r *MemoryRepository) ListBoards(ctx context.Context) ([]*Board, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Board, 0, len(r.boards))
	for _, b := range r.boards {
		out = append(out, cloneBoard(b))
	}
	return out, nil
}

// CreateCard inserts a card into the column's front-side list.
func (r *MemoryRepository) CreateCard(ctx context.Context, boardID, columnID ulid.ULID, card Card, index int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.boards[boardID]
	if !ok {
		return ErrBoardNotFound
	}
	col := b.Column(columnID)
	if col == nil {
		return &ColumnNotFoundError{ColumnID: columnID}
	}
	b.Cards[card.CardID] = card
	insertCardID(col, card.CardID, index)
	b.UpdatedAt = time.Now().UTC()
	return nil
}

// UpdateCardContent replaces the card's title and body.
func (r *MemoryRepository) UpdateCardContent(ctx context.Context, boardID, cardID ulid.ULID, title, body string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.boards[boardID]
	if !ok {
		return ErrBoardNotFound
	}
	card, ok := b.Cards[cardID]
	if !ok {
		return &CardNotFoundError{CardID: cardID}
	}
	card.Title = title
	card.SetBody(body)
	card.UpdatedAt = time.Now().UTC()
	b.Cards[cardID] = card
	b.UpdatedAt = card.UpdatedAt
	return nil
}

// DeleteCard removes the card from its column and the card table.
func (r *MemoryRepository) DeleteCard(ctx context.Context, boardID, cardID ulid.ULID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.boards[boardID]
	if !ok {
		return ErrBoardNotFound
	}
	if _, ok := b.Cards[cardID]; !ok {
		return &CardNotFoundError{CardID: cardID}
	}
	for i := range b.Columns {
		removeCardID(&b.Columns[i], cardID)
		for j, id := range b.Columns[i].Archived {
			if id == cardID {
				b.Columns[i].Archived = append(b.Columns[i].Archived[:j], b.Columns[i].Archived[j+1:]...)
				break
			}
		}
	}
	delete(b.Cards, cardID)
	b.UpdatedAt = time.Now().UTC()
	return nil
}

// MoveCard relocates the card to the destination column at index.
func (r *MemoryRepository) MoveCard(ctx context.Context, boardID, cardID, toColumnID ulid.ULID, index int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.boards[boardID]
	if !ok {
		return ErrBoardNotFound
	}
	if _, ok := b.Cards[cardID]; !ok {
		return &CardNotFoundError{CardID: cardID}
	}
	dest := b.Column(toColumnID)
	if dest == nil {
		return &ColumnNotFoundError{ColumnID: toColumnID}
	}
	for i := range b.Columns {
		removeCardID(&b.Columns[i], cardID)
	}
	insertCardID(dest, cardID, index)
	b.UpdatedAt = time.Now().UTC()
	return nil
}

// MarkProcessed stamps the card's processed-by marker.
func (r *MemoryRepository) MarkProcessed(ctx context.Context, boardID, cardID, instructionID ulid.ULID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.boards[boardID]
	if !ok {
		return ErrBoardNotFound
	}
	card, ok := b.Cards[cardID]
	if !ok {
		return &CardNotFoundError{CardID: cardID}
	}
	card.MarkProcessed(instructionID, at)
	b.Cards[cardID] = card
	return nil
}

// ClearProcessed removes the card's processed-by marker for one instruction.
func (r *MemoryRepository) ClearProcessed(ctx context.Context, boardID, cardID, instructionID ulid.ULID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.boards[boardID]
	if !ok {
		return ErrBoardNotFound
	}
	card, ok := b.Cards[cardID]
	if !ok {
		return &CardNotFoundError{CardID: cardID}
	}
	delete(card.ProcessedBy, instructionID)
	b.Cards[cardID] = card
	return nil
}

// cloneBoard returns a deep copy of a board.
func cloneBoard(b *Board) *Board {
	out := *b
	out.Columns = make([]Column, len(b.Columns))
	for i, col := range b.Columns {
		c := col
		c.CardIDs = append([]ulid.ULID(nil), col.CardIDs...)
		c.Archived = append([]ulid.ULID(nil), col.Archived...)
		out.Columns[i] = c
	}
	out.Cards = make(map[ulid.ULID]Card, len(b.Cards))
	for id, card := range b.Cards {
		out.Cards[id] = cloneCard(card)
	}
	out.Rules = make([]InstructionCard, len(b.Rules))
	for i, rule := range b.Rules {
		rc := rule
		rc.ContextColumns = append([]string(nil), rule.ContextColumns...)
		rc.History = append([]ChatTurn(nil), rule.History...)
		rc.Target.ColumnNames = append([]string(nil), rule.Target.ColumnNames...)
		out.Rules[i] = rc
	}
	return &out
}

// cloneCard returns a deep copy of a card.
func cloneCard(c Card) Card {
	out := c
	out.Messages = append([]CardMessage(nil), c.Messages...)
	out.Tags = append([]string(nil), c.Tags...)
	if c.ProcessedBy != nil {
		out.ProcessedBy = make(map[ulid.ULID]time.Time, len(c.ProcessedBy))
		for k, v := range c.ProcessedBy {
			out.ProcessedBy[k] = v
		}
	}
	return out
}
