// ABOUTME: Board and Column types: ordered lanes holding front-side and archived card references.
// ABOUTME: A card id appears in exactly one column's front or backside list at a time.
package board

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// Column is an ordered lane on a board. CardIDs is the front-side (active)
// ordering; Archived is the backside (completed) ordering. Instructions is
// free text that feeds prompts when this column is a generation target.
type Column struct {
	ColumnID     ulid.ULID   `json:"column_id"`
	Name         string      `json:"name"`
	Instructions string      `json:"instructions,omitempty"`
	CardIDs      []ulid.ULID `json:"card_ids"`
	Archived     []ulid.ULID `json:"archived"`
}

// NewColumn creates an empty Column with the given name.
func NewColumn(name string) Column {
	return Column{
		ColumnID: NewULID(),
		Name:     name,
		CardIDs:  []ulid.ULID{},
		Archived: []ulid.ULID{},
	}
}

// Board is the top-level container: ordered columns, a flat card table, and
// the instruction cards plus run history the board owns. Card ordering is
// owned entirely by the column reference lists, never by the card table.
type Board struct {
	BoardID      ulid.ULID               `json:"board_id"`
	Name         string                  `json:"name"`
	Description  string                  `json:"description,omitempty"`
	Instructions string                  `json:"instructions,omitempty"` // standing instructions
	Columns      []Column                `json:"columns"`
	Cards        map[ulid.ULID]Card      `json:"cards"`
	Rules        []InstructionCard       `json:"rules"`
	CreatedAt    time.Time               `json:"created_at"`
	UpdatedAt    time.Time               `json:"updated_at"`
}

// NewBoard creates a Board with the given name and column names, in order.
func NewBoard(name string, columnNames ...string) *Board {
	now := time.Now().UTC()
	b := &Board{
		BoardID:   NewULID(),
		Name:      name,
		Cards:     make(map[ulid.ULID]Card),
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, cn := range columnNames {
		b.Columns = append(b.Columns, NewColumn(cn))
	}
	return b
}

// Column returns a pointer to the column with the given id, or nil.
func (b *Board) Column(id ulid.ULID) *Column {
	for i := range b.Columns {
		if b.Columns[i].ColumnID == id {
			return &b.Columns[i]
		}
	}
	return nil
}

// ColumnByName returns a pointer to the column with the exact name, or nil.
func (b *Board) ColumnByName(name string) *Column {
	for i := range b.Columns {
		if b.Columns[i].Name == name {
			return &b.Columns[i]
		}
	}
	return nil
}

// Rule returns a pointer to the instruction card with the given id, or nil.
func (b *Board) Rule(id ulid.ULID) *InstructionCard {
	for i := range b.Rules {
		if b.Rules[i].InstructionID == id {
			return &b.Rules[i]
		}
	}
	return nil
}

// Locate finds the column and front-side index holding the given card.
// Returns (columnID, index, true) for front-side cards and
// (columnID, -1, true) for archived cards; found=false when the card id is
// not referenced by any column.
func (b *Board) Locate(cardID ulid.ULID) (ulid.ULID, int, bool) {
	for i := range b.Columns {
		col := &b.Columns[i]
		for idx, id := range col.CardIDs {
			if id == cardID {
				return col.ColumnID, idx, true
			}
		}
		for _, id := range col.Archived {
			if id == cardID {
				return col.ColumnID, -1, true
			}
		}
	}
	return ulid.ULID{}, 0, false
}

// InsertCardRef inserts a card id into a column's front-side list at index
// (-1 appends). The card must already exist in the card table.
func (b *Board) InsertCardRef(columnID, cardID ulid.ULID, index int) error {
	col := b.Column(columnID)
	if col == nil {
		return &ColumnNotFoundError{ColumnID: columnID}
	}
	insertCardID(col, cardID, index)
	return nil
}

// RemoveCardRef removes a card id from every column's front-side and
// backside list. Returns the front-side column and index it held, or
// (zero, -1) when the card was archived or absent.
func (b *Board) RemoveCardRef(cardID ulid.ULID) (ulid.ULID, int) {
	foundCol := ulid.ULID{}
	foundIdx := -1
	for i := range b.Columns {
		if idx := removeCardID(&b.Columns[i], cardID); idx >= 0 {
			foundCol = b.Columns[i].ColumnID
			foundIdx = idx
		}
		for j, id := range b.Columns[i].Archived {
			if id == cardID {
				b.Columns[i].Archived = append(b.Columns[i].Archived[:j], b.Columns[i].Archived[j+1:]...)
				break
			}
		}
	}
	return foundCol, foundIdx
}

// insertCardID inserts a card id into a column's front-side list at the
// given index. Index -1 or any index beyond the list appends.
func insertCardID(col *Column, cardID ulid.ULID, index int) {
	if index < 0 || index >= len(col.CardIDs) {
		col.CardIDs = append(col.CardIDs, cardID)
		return
	}
	col.CardIDs = append(col.CardIDs, ulid.ULID{})
	copy(col.CardIDs[index+1:], col.CardIDs[index:])
	col.CardIDs[index] = cardID
}

// removeCardID removes a card id from a column's front-side list.
// Returns the index it held, or -1 if absent.
func removeCardID(col *Column, cardID ulid.ULID) int {
	for i, id := range col.CardIDs {
		if id == cardID {
			col.CardIDs = append(col.CardIDs[:i], col.CardIDs[i+1:]...)
			return i
		}
	}
	return -1
}
