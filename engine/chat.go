// ABOUTME: Conversational instruction configuration: free text in, assistant reply or candidate config out.
// ABOUTME: Column names in a committed config resolve with the standard degrade policy, now and at every run.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sporelabs/shroomboard/board"
	"github.com/sporelabs/shroomboard/llm"
)

// ChatMode distinguishes configuring a new rule from editing an existing one.
type ChatMode string

const (
	ChatCreate ChatMode = "create"
	ChatEdit   ChatMode = "edit"
)

// CandidateConfig is a proposed instruction configuration produced by the
// chat flow. The caller may keep chatting to revise it or commit it as an
// InstructionCard.
type CandidateConfig struct {
	Title            string `json:"title"`
	Instructions     string `json:"instructions"`
	Action           string `json:"action"`
	TargetColumnName string `json:"targetColumnName"`
	CardCount        int    `json:"cardCount,omitempty"`
	DestinationName  string `json:"destinationName,omitempty"`
}

// ChatRequest is one turn of the configuration conversation.
type ChatRequest struct {
	UserMessage string
	Mode        ChatMode
	History     []board.ChatTurn
	Board       *board.Board

	// Existing is the rule being edited; only consulted in edit mode.
	Existing *board.InstructionCard
}

// ChatResult is either another assistant message, or a message plus a
// candidate configuration ready for approval.
type ChatResult struct {
	Response string           `json:"response"`
	Config   *CandidateConfig `json:"shroomConfig,omitempty"`
}

// chatWire is the shape the model is asked to produce.
type chatWire struct {
	Response string           `json:"response"`
	Config   *CandidateConfig `json:"shroomConfig"`
}

const chatSystemPrompt = `You help a user configure a kanban automation rule through conversation.
A rule has: a short title, free-text instructions, an action ("generate", "modify", or "move"),
a target column name, a cardCount (generate only), and a destinationName (move only).
Ask questions until the rule is unambiguous, then propose it.
Respond with a JSON object only. While gathering details: {"response": "<your message>"}.
When proposing a complete rule: {"response": "<summary>", "shroomConfig": {"title": ..., "instructions": ...,
"action": ..., "targetColumnName": ..., "cardCount": ..., "destinationName": ...}}.`

// Chat runs one turn of the configuration conversation. A response is
// always produced; a candidate config appears only when the model proposed
// one with a recognizable action. Malformed model output degrades to a
// plain-text reply rather than an error.
func Chat(ctx context.Context, client Completer, model string, req ChatRequest) (*ChatResult, error) {
	messages := []llm.Message{llm.SystemMessage(chatSystemPrompt)}

	if req.Board != nil {
		var names []string
		for i := range req.Board.Columns {
			names = append(names, req.Board.Columns[i].Name)
		}
		messages = append(messages, llm.SystemMessage("Board columns: "+strings.Join(names, ", ")))
	}
	if req.Mode == ChatEdit && req.Existing != nil {
		existing, err := json.Marshal(req.Existing)
		if err == nil {
			messages = append(messages, llm.SystemMessage("Rule being edited: "+string(existing)))
		}
	}

	for _, turn := range req.History {
		switch turn.Role {
		case "assistant":
			messages = append(messages, llm.AssistantMessage(turn.Content))
		default:
			messages = append(messages, llm.UserMessage(turn.Content))
		}
	}
	messages = append(messages, llm.UserMessage(req.UserMessage))

	resp, err := client.Complete(ctx, llm.Request{Model: model, Messages: messages})
	if err != nil {
		return nil, fmt.Errorf("configuration call failed: %w", err)
	}

	result := &ChatResult{Response: strings.TrimSpace(resp.Content)}
	obj, ok := ExtractJSONObject(resp.Content)
	if !ok {
		return result, nil
	}
	var wire chatWire
	if err := json.Unmarshal([]byte(obj), &wire); err != nil || wire.Response == "" {
		return result, nil
	}

	result.Response = wire.Response
	if wire.Config != nil && validAction(wire.Config.Action) {
		result.Config = wire.Config
	}
	return result, nil
}

func validAction(action string) bool {
	switch action {
	case "generate", "modify", "move":
		return true
	}
	return false
}

// CommitConfig turns an approved candidate into an InstructionCard. The
// target column name is resolved once here so obvious typos are caught at
// commit, and again at every future run in case columns get renamed.
func CommitConfig(b *board.Board, cfg CandidateConfig, history []board.ChatTurn) (board.InstructionCard, error) {
	if cfg.Title == "" || cfg.Instructions == "" {
		return board.InstructionCard{}, fmt.Errorf("candidate config missing title or instructions")
	}
	if _, ok := board.ResolveColumn(b, cfg.TargetColumnName); !ok {
		return board.InstructionCard{}, board.ErrNoColumns
	}

	var action board.RuleAction
	switch cfg.Action {
	case "generate":
		count := cfg.CardCount
		if count <= 0 {
			count = defaultDraftCount
		}
		action = board.GenerateAction{CardCount: count}
	case "modify":
		action = board.ModifyAction{}
	case "move":
		if cfg.DestinationName == "" {
			return board.InstructionCard{}, fmt.Errorf("move config missing destination")
		}
		action = board.MoveAction{DestinationName: cfg.DestinationName}
	default:
		return board.InstructionCard{}, fmt.Errorf("unknown action %q", cfg.Action)
	}

	target := board.Target{Kind: board.TargetColumn, ColumnNames: []string{cfg.TargetColumnName}}
	card := board.NewInstructionCard(cfg.Title, cfg.Instructions, action, target)
	card.History = history
	return card, nil
}
