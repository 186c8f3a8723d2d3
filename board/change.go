// ABOUTME: Change is a tagged union of reversible mutations captured inside an instruction run.
// ABOUTME: Each variant carries the capture-time state needed to reverse itself exactly.
package board

import (
	"encoding/json"
	"fmt"

	"github.com/oklog/ulid/v2"
)

// Change is one reversible mutation recorded by an instruction run.
// A run's changes, replayed in reverse order, restore the board to its
// pre-run state with respect to the cards the run touched.
type Change interface {
	ChangeType() string
	changeSeal()
}

// CardCreatedChange records a card created by a generate action.
// Reverse: delete the card.
type CardCreatedChange struct {
	ColumnID ulid.ULID `json:"column_id"`
	Card     Card      `json:"card"`
}

func (c CardCreatedChange) ChangeType() string { return "CardCreated" }
func (c CardCreatedChange) changeSeal()        {}

// CardEditedChange records a modify action's in-place edit, carrying the
// full prior title and body so undo is an exact restore rather than a
// diff-and-reverse heuristic.
type CardEditedChange struct {
	CardID     ulid.ULID `json:"card_id"`
	PriorTitle string    `json:"prior_title"`
	PriorBody  string    `json:"prior_body"`
	NewTitle   string    `json:"new_title"`
	NewBody    string    `json:"new_body"`
}

func (c CardEditedChange) ChangeType() string { return "CardEdited" }
func (c CardEditedChange) changeSeal()        {}

// CardMovedChange records a move action's relocation, including the
// originating column and prior front-side index so undo reinserts the card
// at the same position.
type CardMovedChange struct {
	CardID       ulid.ULID `json:"card_id"`
	FromColumnID ulid.ULID `json:"from_column_id"`
	FromIndex    int       `json:"from_index"`
	ToColumnID   ulid.ULID `json:"to_column_id"`
}

func (c CardMovedChange) ChangeType() string { return "CardMoved" }
func (c CardMovedChange) changeSeal()        {}

// MarshalChange serializes a Change with a "type" discriminator.
func MarshalChange(c Change) ([]byte, error) {
	if c == nil {
		return nil, fmt.Errorf("cannot marshal nil change")
	}
	raw, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	typeJSON, _ := json.Marshal(c.ChangeType())
	m["type"] = typeJSON
	return json.Marshal(m)
}

// UnmarshalChange deserializes a Change from its discriminated form.
func UnmarshalChange(data []byte) (Change, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("unmarshal change type: %w", err)
	}

	switch envelope.Type {
	case "CardCreated":
		var c CardCreatedChange
		return c, json.Unmarshal(data, &c)
	case "CardEdited":
		var c CardEditedChange
		return c, json.Unmarshal(data, &c)
	case "CardMoved":
		var c CardMovedChange
		return c, json.Unmarshal(data, &c)
	default:
		return nil, fmt.Errorf("unknown change type: %q", envelope.Type)
	}
}
