// ABOUTME: Tests for the chat-based rule configuration flow: parsing model
// ABOUTME: replies, degraded plain-text handling, and committing configs.
package engine

import (
	"context"
	"strings"
	"testing"

	"github.com/sporelabs/shroomboard/board"
	"github.com/sporelabs/shroomboard/llm"
)

func TestChatProposesConfig(t *testing.T) {
	client := &scriptedCompleter{results: []func() (*llm.Response, error){
		respond(`{"response": "How about this rule?", "shroomConfig": {"title": "Tidy up", "instructions": "Fix titles", "action": "modify", "targetColumnName": "Inbox"}}`),
	}}
	b := board.NewBoard("B", "Inbox", "Done")

	result, err := Chat(context.Background(), client, "m", ChatRequest{
		UserMessage: "I want titles cleaned up",
		Mode:        ChatCreate,
		Board:       b,
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if result.Response != "How about this rule?" {
		t.Errorf("Response = %q", result.Response)
	}
	if result.Config == nil {
		t.Fatal("expected a candidate config")
	}
	if result.Config.Action != "modify" || result.Config.TargetColumnName != "Inbox" {
		t.Errorf("unexpected config: %+v", result.Config)
	}

	// The board's column names reach the model.
	sys := client.requests[0].Messages[1].Content
	if !strings.Contains(sys, "Inbox") || !strings.Contains(sys, "Done") {
		t.Errorf("column names missing from prompt: %q", sys)
	}
}

func TestChatPlainTextDegradesGracefully(t *testing.T) {
	client := &scriptedCompleter{results: []func() (*llm.Response, error){
		respond("Which column should this apply to?"),
	}}

	result, err := Chat(context.Background(), client, "m", ChatRequest{
		UserMessage: "make a rule",
		Mode:        ChatCreate,
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if result.Response != "Which column should this apply to?" {
		t.Errorf("Response = %q", result.Response)
	}
	if result.Config != nil {
		t.Error("plain reply must not yield a config")
	}
}

func TestChatRejectsUnknownAction(t *testing.T) {
	client := &scriptedCompleter{results: []func() (*llm.Response, error){
		respond(`{"response": "done", "shroomConfig": {"title": "T", "instructions": "I", "action": "explode", "targetColumnName": "Inbox"}}`),
	}}

	result, err := Chat(context.Background(), client, "m", ChatRequest{UserMessage: "x", Mode: ChatCreate})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if result.Config != nil {
		t.Error("unknown action must not yield a config")
	}
}

func TestCommitConfigGenerate(t *testing.T) {
	b := board.NewBoard("B", "Inbox", "Done")
	card, err := CommitConfig(b, CandidateConfig{
		Title:            "Seed",
		Instructions:     "Suggest ideas",
		Action:           "generate",
		TargetColumnName: "Inbox",
	}, nil)
	if err != nil {
		t.Fatalf("CommitConfig: %v", err)
	}
	gen, ok := card.Action.(board.GenerateAction)
	if !ok {
		t.Fatalf("Action = %T", card.Action)
	}
	if gen.CardCount != 3 {
		t.Errorf("CardCount = %d, want default 3", gen.CardCount)
	}
	if card.Mode != board.RunManual {
		t.Errorf("Mode = %q, want manual", card.Mode)
	}
}

func TestCommitConfigValidation(t *testing.T) {
	b := board.NewBoard("B", "Inbox")

	cases := []struct {
		name string
		cfg  CandidateConfig
	}{
		{"missing title", CandidateConfig{Instructions: "i", Action: "modify", TargetColumnName: "Inbox"}},
		{"missing instructions", CandidateConfig{Title: "t", Action: "modify", TargetColumnName: "Inbox"}},
		{"move without destination", CandidateConfig{Title: "t", Instructions: "i", Action: "move", TargetColumnName: "Inbox"}},
		{"unknown action", CandidateConfig{Title: "t", Instructions: "i", Action: "teleport", TargetColumnName: "Inbox"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := CommitConfig(b, tc.cfg, nil); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestCommitConfigMove(t *testing.T) {
	b := board.NewBoard("B", "Inbox", "Done")
	card, err := CommitConfig(b, CandidateConfig{
		Title:            "Archive",
		Instructions:     "Move finished work",
		Action:           "move",
		TargetColumnName: "Inbox",
		DestinationName:  "Done",
	}, []board.ChatTurn{{Role: "user", Content: "archive stuff"}})
	if err != nil {
		t.Fatalf("CommitConfig: %v", err)
	}
	mv, ok := card.Action.(board.MoveAction)
	if !ok {
		t.Fatalf("Action = %T", card.Action)
	}
	if mv.DestinationName != "Done" {
		t.Errorf("DestinationName = %q", mv.DestinationName)
	}
	if len(card.History) != 1 {
		t.Errorf("History len = %d, want 1", len(card.History))
	}
}
