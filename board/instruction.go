// ABOUTME: InstructionCard is a saved automation rule: a tagged-union action plus a target.
// ABOUTME: RuleAction variants carry only the fields their action needs, JSON-discriminated by "type".
package board

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
)

// RunMode controls how an instruction card is triggered.
type RunMode string

const (
	RunManual    RunMode = "manual"
	RunAutomatic RunMode = "automatic"
)

// TargetKind discriminates what an instruction targets.
type TargetKind string

const (
	TargetColumn  TargetKind = "column"
	TargetColumns TargetKind = "columns"
	TargetBoard   TargetKind = "board"
)

// Target names what an instruction applies to. ColumnNames is stored by
// name, not id, so a rule survives column deletion and rename; resolution
// happens at every run (see ColumnResolver). For TargetColumns the first
// name is primary and supplies the destination for single-destination
// actions. TargetBoard ignores ColumnNames.
type Target struct {
	Kind        TargetKind `json:"kind"`
	ColumnNames []string   `json:"column_names,omitempty"`
}

// Primary returns the primary target column name, if any.
func (t Target) Primary() string {
	if len(t.ColumnNames) > 0 {
		return t.ColumnNames[0]
	}
	return ""
}

// RuleAction is a closed tagged union over the three automation actions.
// Adding a variant is a compile-time change everywhere the union is matched.
type RuleAction interface {
	ActionType() string
	actionSeal()
}

// GenerateAction creates new cards in the primary target column.
type GenerateAction struct {
	CardCount int `json:"card_count"`
}

func (a GenerateAction) ActionType() string { return "generate" }
func (a GenerateAction) actionSeal()        {}

// ModifyAction rewrites each in-scope card's title and body via the model.
type ModifyAction struct{}

func (a ModifyAction) ActionType() string { return "modify" }
func (a ModifyAction) actionSeal()        {}

// MoveAction relocates matching in-scope cards to a destination column.
// DestinationName is resolved with the same degrade policy as targets.
type MoveAction struct {
	DestinationName string `json:"destination_name"`
}

func (a MoveAction) ActionType() string { return "move" }
func (a MoveAction) actionSeal()        {}

// MarshalRuleAction serializes a RuleAction with a "type" discriminator.
func MarshalRuleAction(a RuleAction) ([]byte, error) {
	if a == nil {
		return nil, fmt.Errorf("cannot marshal nil rule action")
	}
	raw, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	typeJSON, _ := json.Marshal(a.ActionType())
	m["type"] = typeJSON
	return json.Marshal(m)
}

// UnmarshalRuleAction deserializes a RuleAction from its discriminated form.
func UnmarshalRuleAction(data []byte) (RuleAction, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("unmarshal action type: %w", err)
	}

	switch envelope.Type {
	case "generate":
		var a GenerateAction
		return a, json.Unmarshal(data, &a)
	case "modify":
		var a ModifyAction
		return a, json.Unmarshal(data, &a)
	case "move":
		var a MoveAction
		return a, json.Unmarshal(data, &a)
	default:
		return nil, fmt.Errorf("unknown action type: %q", envelope.Type)
	}
}

// ChatTurn is one exchange in an instruction card's configuration history.
type ChatTurn struct {
	Role    string    `json:"role"` // "user" or "assistant"
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}

// InstructionCard is a saved automation rule owned by a board. Deleting it
// removes it from the board's rule list but never unwinds past runs.
type InstructionCard struct {
	InstructionID  ulid.ULID  `json:"instruction_id"`
	Title          string     `json:"title"`
	Instructions   string     `json:"instructions"`
	Action         RuleAction `json:"-"` // custom marshal
	Target         Target     `json:"target"`
	ContextColumns []string   `json:"context_columns,omitempty"`
	Mode           RunMode    `json:"mode"`
	History        []ChatTurn `json:"history,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// instructionJSON is the wire format for InstructionCard.
type instructionJSON struct {
	InstructionID  ulid.ULID       `json:"instruction_id"`
	Title          string          `json:"title"`
	Instructions   string          `json:"instructions"`
	Action         json.RawMessage `json:"action"`
	Target         Target          `json:"target"`
	ContextColumns []string        `json:"context_columns,omitempty"`
	Mode           RunMode         `json:"mode"`
	History        []ChatTurn      `json:"history,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// MarshalJSON serializes the instruction with its action inlined.
func (ic InstructionCard) MarshalJSON() ([]byte, error) {
	actionJSON, err := MarshalRuleAction(ic.Action)
	if err != nil {
		return nil, fmt.Errorf("marshal instruction action: %w", err)
	}
	return json.Marshal(instructionJSON{
		InstructionID:  ic.InstructionID,
		Title:          ic.Title,
		Instructions:   ic.Instructions,
		Action:         actionJSON,
		Target:         ic.Target,
		ContextColumns: ic.ContextColumns,
		Mode:           ic.Mode,
		History:        ic.History,
		CreatedAt:      ic.CreatedAt,
		UpdatedAt:      ic.UpdatedAt,
	})
}

// UnmarshalJSON deserializes the instruction with its action.
func (ic *InstructionCard) UnmarshalJSON(data []byte) error {
	var j instructionJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	action, err := UnmarshalRuleAction(j.Action)
	if err != nil {
		return fmt.Errorf("unmarshal instruction action: %w", err)
	}
	ic.InstructionID = j.InstructionID
	ic.Title = j.Title
	ic.Instructions = j.Instructions
	ic.Action = action
	ic.Target = j.Target
	ic.ContextColumns = j.ContextColumns
	ic.Mode = j.Mode
	ic.History = j.History
	ic.CreatedAt = j.CreatedAt
	ic.UpdatedAt = j.UpdatedAt
	return nil
}

// NewInstructionCard creates a manual-mode instruction card.
func NewInstructionCard(title, instructions string, action RuleAction, target Target) InstructionCard {
	now := time.Now().UTC()
	return InstructionCard{
		InstructionID: NewULID(),
		Title:         title,
		Instructions:  instructions,
		Action:        action,
		Target:        target,
		Mode:          RunManual,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}
