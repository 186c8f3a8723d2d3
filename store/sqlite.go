// ABOUTME: SQLite-backed board repository plus anonymous-usage metering tables.
// ABOUTME: Boards persist as JSON documents; a card index table serves list queries and is always rebuildable.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/oklog/ulid/v2"

	"github.com/sporelabs/shroomboard/board"
)

const timeLayout = "2006-01-02T15:04:05Z07:00"

// Store is a SQLite-backed board.Repository. Each board is stored as one
// JSON document; mutations load, modify, and rewrite the document inside a
// transaction. The card_index table mirrors card placement for fast list
// queries and is rebuilt from the document on every write, never read back
// as the source of truth.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path and ensures the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	schema := `
		CREATE TABLE IF NOT EXISTS boards (
			board_id TEXT PRIMARY KEY,
			data TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS card_index (
			card_id TEXT PRIMARY KEY,
			board_id TEXT NOT NULL,
			column_name TEXT NOT NULL,
			title TEXT NOT NULL,
			archived INTEGER NOT NULL DEFAULT 0,
			updated_at TEXT NOT NULL,
			FOREIGN KEY (board_id) REFERENCES boards(board_id)
		);

		CREATE TABLE IF NOT EXISTS usage (
			quota_id TEXT NOT NULL,
			day TEXT NOT NULL,
			generations INTEGER NOT NULL DEFAULT 0,
			input_tokens INTEGER NOT NULL DEFAULT 0,
			output_tokens INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (quota_id, day)
		);`

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Snapshot loads one board document.
func (s *Store) Snapshot(ctx context.Context, boardID ulid.ULID) (*board.Board, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		"SELECT data FROM boards WHERE board_id = ?", boardID.String()).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, board.ErrBoardNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query board: %w", err)
	}

	var b board.Board
	if err := json.Unmarshal([]byte(data), &b); err != nil {
		return nil, fmt.Errorf("decode board: %w", err)
	}
	return &b, nil
}

// SaveBoard upserts a whole board document (last-writer-wins).
func (s *Store) SaveBoard(ctx context.Context, b *board.Board) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := writeBoard(ctx, tx, b); err != nil {
		return err
	}
	return tx.Commit()
}

// ListBoards returns all stored boards.
func (s *Store) ListBoards(ctx context.Context) ([]*board.Board, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT data FROM boards ORDER BY updated_at DESC")
	if err != nil {
		return nil, fmt.Errorf("query boards: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var boards []*board.Board
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan board row: %w", err)
		}
		var b board.Board
		if err := json.Unmarshal([]byte(data), &b); err != nil {
			return nil, fmt.Errorf("decode board: %w", err)
		}
		boards = append(boards, &b)
	}
	return boards, rows.Err()
}

// mutate runs fn against the loaded board document inside a transaction and
// rewrites the document plus its card index.
func (s *Store) mutate(ctx context.Context, boardID ulid.ULID, fn func(b *board.Board) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin mutate: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var data string
	err = tx.QueryRowContext(ctx,
		"SELECT data FROM boards WHERE board_id = ?", boardID.String()).Scan(&data)
	if err == sql.ErrNoRows {
		return board.ErrBoardNotFound
	}
	if err != nil {
		return fmt.Errorf("query board for mutate: %w", err)
	}

	var b board.Board
	if err := json.Unmarshal([]byte(data), &b); err != nil {
		return fmt.Errorf("decode board for mutate: %w", err)
	}

	if err := fn(&b); err != nil {
		return err
	}
	b.UpdatedAt = time.Now().UTC()

	if err := writeBoard(ctx, tx, &b); err != nil {
		return err
	}
	return tx.Commit()
}

// writeBoard upserts the board document and rebuilds its card index rows.
func writeBoard(ctx context.Context, tx *sql.Tx, b *board.Board) error {
	data, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("encode board: %w", err)
	}
	ts := b.UpdatedAt.Format(timeLayout)

	_, err = tx.ExecContext(ctx,
		`INSERT INTO boards (board_id, data, updated_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT(board_id) DO UPDATE SET
			data = excluded.data,
			updated_at = excluded.updated_at`,
		b.BoardID.String(), string(data), ts)
	if err != nil {
		return fmt.Errorf("upsert board: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM card_index WHERE board_id = ?", b.BoardID.String()); err != nil {
		return fmt.Errorf("clear card index: %w", err)
	}

	for i := range b.Columns {
		col := &b.Columns[i]
		for _, cardID := range col.CardIDs {
			if err := indexCard(ctx, tx, b, cardID, col.Name, false); err != nil {
				return err
			}
		}
		for _, cardID := range col.Archived {
			if err := indexCard(ctx, tx, b, cardID, col.Name, true); err != nil {
				return err
			}
		}
	}
	return nil
}

func indexCard(ctx context.Context, tx *sql.Tx, b *board.Board, cardID ulid.ULID, columnName string, archived bool) error {
	card, ok := b.Cards[cardID]
	if !ok {
		return nil
	}
	arch := 0
	if archived {
		arch = 1
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO card_index (card_id, board_id, column_name, title, archived, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		cardID.String(), b.BoardID.String(), columnName, card.Title, arch,
		card.UpdatedAt.Format(timeLayout))
	if err != nil {
		return fmt.Errorf("index card: %w", err)
	}
	return nil
}

// CreateCard inserts a card into a column's front-side list at index
// (-1 appends) and adds it to the board's card table.
func (s *Store) CreateCard(ctx context.Context, boardID, columnID ulid.ULID, card board.Card, index int) error {
	return s.mutate(ctx, boardID, func(b *board.Board) error {
		if b.Column(columnID) == nil {
			return &board.ColumnNotFoundError{ColumnID: columnID}
		}
		b.Cards[card.CardID] = card
		return b.InsertCardRef(columnID, card.CardID, index)
	})
}

// UpdateCardContent replaces a card's title and body in place.
func (s *Store) UpdateCardContent(ctx context.Context, boardID, cardID ulid.ULID, title, body string) error {
	return s.mutate(ctx, boardID, func(b *board.Board) error {
		card, ok := b.Cards[cardID]
		if !ok {
			return &board.CardNotFoundError{CardID: cardID}
		}
		card.Title = title
		card.SetBody(body)
		card.UpdatedAt = time.Now().UTC()
		b.Cards[cardID] = card
		return nil
	})
}

// DeleteCard removes a card from its column reference lists and the table.
func (s *Store) DeleteCard(ctx context.Context, boardID, cardID ulid.ULID) error {
	return s.mutate(ctx, boardID, func(b *board.Board) error {
		if _, ok := b.Cards[cardID]; !ok {
			return &board.CardNotFoundError{CardID: cardID}
		}
		b.RemoveCardRef(cardID)
		delete(b.Cards, cardID)
		return nil
	})
}

// MoveCard relocates a card to a column's front-side list at index (-1 appends).
func (s *Store) MoveCard(ctx context.Context, boardID, cardID, toColumnID ulid.ULID, index int) error {
	return s.mutate(ctx, boardID, func(b *board.Board) error {
		if _, ok := b.Cards[cardID]; !ok {
			return &board.CardNotFoundError{CardID: cardID}
		}
		if b.Column(toColumnID) == nil {
			return &board.ColumnNotFoundError{ColumnID: toColumnID}
		}
		b.RemoveCardRef(cardID)
		return b.InsertCardRef(toColumnID, cardID, index)
	})
}

// MarkProcessed stamps a card's processed-by marker for an instruction.
func (s *Store) MarkProcessed(ctx context.Context, boardID, cardID, instructionID ulid.ULID, at time.Time) error {
	return s.mutate(ctx, boardID, func(b *board.Board) error {
		card, ok := b.Cards[cardID]
		if !ok {
			return &board.CardNotFoundError{CardID: cardID}
		}
		card.MarkProcessed(instructionID, at)
		b.Cards[cardID] = card
		return nil
	})
}

// ClearProcessed removes one card/instruction processed-by marker.
func (s *Store) ClearProcessed(ctx context.Context, boardID, cardID, instructionID ulid.ULID) error {
	return s.mutate(ctx, boardID, func(b *board.Board) error {
		card, ok := b.Cards[cardID]
		if !ok {
			return &board.CardNotFoundError{CardID: cardID}
		}
		delete(card.ProcessedBy, instructionID)
		b.Cards[cardID] = card
		return nil
	})
}

var _ board.Repository = (*Store)(nil)
