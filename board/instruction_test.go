// ABOUTME: Tests for the rule-action and change tagged unions and the
// ABOUTME: instruction/run wire formats they ride in.
package board

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestRuleActionUnionRoundTrip(t *testing.T) {
	actions := []RuleAction{
		GenerateAction{CardCount: 4},
		ModifyAction{},
		MoveAction{DestinationName: "Done"},
	}

	for _, action := range actions {
		t.Run(action.ActionType(), func(t *testing.T) {
			data, err := MarshalRuleAction(action)
			if err != nil {
				t.Fatalf("MarshalRuleAction: %v", err)
			}
			if !strings.Contains(string(data), `"type":"`+action.ActionType()+`"`) {
				t.Errorf("missing type discriminator: %s", data)
			}

			back, err := UnmarshalRuleAction(data)
			if err != nil {
				t.Fatalf("UnmarshalRuleAction: %v", err)
			}
			if back.ActionType() != action.ActionType() {
				t.Errorf("round-trip changed type: %q -> %q", action.ActionType(), back.ActionType())
			}
		})
	}
}

func TestRuleActionUnknownType(t *testing.T) {
	if _, err := UnmarshalRuleAction([]byte(`{"type": "explode"}`)); err == nil {
		t.Error("unknown action type should error")
	}
}

func TestGenerateActionCarriesCount(t *testing.T) {
	data, err := MarshalRuleAction(GenerateAction{CardCount: 7})
	if err != nil {
		t.Fatalf("MarshalRuleAction: %v", err)
	}
	back, err := UnmarshalRuleAction(data)
	if err != nil {
		t.Fatalf("UnmarshalRuleAction: %v", err)
	}
	gen, ok := back.(GenerateAction)
	if !ok {
		t.Fatalf("got %T", back)
	}
	if gen.CardCount != 7 {
		t.Errorf("CardCount = %d, want 7", gen.CardCount)
	}
}

func TestInstructionCardJSONCarriesAction(t *testing.T) {
	card := NewInstructionCard("Archive", "move finished work",
		MoveAction{DestinationName: "Done"},
		Target{Kind: TargetColumn, ColumnNames: []string{"Inbox"}})

	data, err := json.Marshal(card)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var back InstructionCard
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	mv, ok := back.Action.(MoveAction)
	if !ok {
		t.Fatalf("Action = %T", back.Action)
	}
	if mv.DestinationName != "Done" {
		t.Errorf("DestinationName = %q", mv.DestinationName)
	}
	if back.Mode != RunManual {
		t.Errorf("Mode = %q, want manual default", back.Mode)
	}
}

func TestInstructionRunJSONCarriesTypedChanges(t *testing.T) {
	run := InstructionRun{
		RunID:          NewULID(),
		BoardID:        NewULID(),
		InstructionID:  NewULID(),
		StartedAt:      time.Now().UTC(),
		TargetColumnID: NewULID(),
		Confidence:     string(MatchExact),
		Changes: []Change{
			CardCreatedChange{ColumnID: NewULID(), Card: NewCard("new", "<p>x</p>", "assistant")},
			CardEditedChange{CardID: NewULID(), PriorTitle: "a", PriorBody: "b", NewTitle: "c", NewBody: "d"},
			CardMovedChange{CardID: NewULID(), FromColumnID: NewULID(), FromIndex: 2, ToColumnID: NewULID()},
		},
	}

	data, err := json.Marshal(run)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var back InstructionRun
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if len(back.Changes) != 3 {
		t.Fatalf("got %d changes, want 3", len(back.Changes))
	}
	edited, ok := back.Changes[1].(CardEditedChange)
	if !ok {
		t.Fatalf("Changes[1] = %T", back.Changes[1])
	}
	if edited.PriorTitle != "a" || edited.NewBody != "d" {
		t.Errorf("edit payload lost: %+v", edited)
	}
	moved, ok := back.Changes[2].(CardMovedChange)
	if !ok {
		t.Fatalf("Changes[2] = %T", back.Changes[2])
	}
	if moved.FromIndex != 2 {
		t.Errorf("FromIndex = %d, want 2", moved.FromIndex)
	}
}
