// ABOUTME: Instruction Rule Engine: resolves targets, executes generate/modify/move, records undoable runs.
// ABOUTME: LLM work happens against a snapshot first; changes apply only after the whole plan is computed.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/sporelabs/shroomboard/board"
	"github.com/sporelabs/shroomboard/ledger"
	"github.com/sporelabs/shroomboard/llm"
)

// RuleEngine executes instruction cards against a board and records each
// execution as a reversible InstructionRun.
type RuleEngine struct {
	repo   board.Repository
	runs   ledger.Recorder
	gen    *Generator
	client Completer
	model  string
	now    func() time.Time
}

// RuleEngineOption configures a RuleEngine.
type RuleEngineOption func(*RuleEngine)

// WithRuleModel sets the model used for per-card modify and move calls.
func WithRuleModel(model string) RuleEngineOption {
	return func(e *RuleEngine) { e.model = model }
}

// WithClock overrides the engine's time source. Tests use this for
// deterministic processed-by stamps.
func WithClock(now func() time.Time) RuleEngineOption {
	return func(e *RuleEngine) { e.now = now }
}

// NewRuleEngine creates an engine over the given repository, run ledger,
// generation pipeline, and LLM client.
func NewRuleEngine(repo board.Repository, runs ledger.Recorder, gen *Generator, client Completer, opts ...RuleEngineOption) *RuleEngine {
	e := &RuleEngine{
		repo:   repo,
		runs:   runs,
		gen:    gen,
		client: client,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes one instruction card against its board. The plan is computed
// first (including all LLM calls) against a snapshot; only then are changes
// applied, so a failure before planning completes commits nothing. Per-card
// failures during planning are recorded on the run and do not abort it.
func (e *RuleEngine) Run(ctx context.Context, boardID, instructionID ulid.ULID) (*board.InstructionRun, error) {
	snap, err := e.repo.Snapshot(ctx, boardID)
	if err != nil {
		return nil, err
	}
	rule := snap.Rule(instructionID)
	if rule == nil {
		return nil, &board.InstructionNotFoundError{InstructionID: instructionID}
	}

	resolutions, ok := board.ResolveTarget(snap, rule.Target)
	if !ok {
		return nil, board.ErrNoColumns
	}
	primary := resolutions[0]

	run := &board.InstructionRun{
		RunID:          board.NewULID(),
		BoardID:        boardID,
		InstructionID:  instructionID,
		StartedAt:      e.now(),
		TargetColumnID: primary.ColumnID,
		Confidence:     string(primary.Confidence),
	}

	switch action := rule.Action.(type) {
	case board.GenerateAction:
		e.planGenerate(ctx, snap, rule, action, primary, run)
	case board.ModifyAction:
		e.planModify(ctx, snap, rule, resolutions, run)
	case board.MoveAction:
		e.planMove(ctx, snap, rule, action, resolutions, run)
	default:
		return nil, fmt.Errorf("unhandled action type %q", rule.Action.ActionType())
	}

	if err := e.apply(ctx, boardID, instructionID, run); err != nil {
		return nil, err
	}

	if err := e.runs.Record(ctx, run); err != nil {
		return nil, fmt.Errorf("recording run: %w", err)
	}

	log.Printf("component=engine action=run instruction=%s changes=%d errors=%d confidence=%s",
		instructionID, len(run.Changes), len(run.Errors), run.Confidence)
	return run, nil
}

// planGenerate invokes the generation pipeline and plans a creation change
// per draft, appended to the primary target column.
func (e *RuleEngine) planGenerate(ctx context.Context, snap *board.Board, rule *board.InstructionCard, action board.GenerateAction, primary board.Resolution, run *board.InstructionRun) {
	targetCol := snap.Column(primary.ColumnID)
	columnInstructions := rule.Instructions
	if targetCol != nil && targetCol.Instructions != "" {
		columnInstructions = strings.TrimSpace(targetCol.Instructions + "\n" + rule.Instructions)
	}

	drafts, _ := e.gen.Generate(ctx, GenerationRequest{
		BoardContext:         BuildBoardContext(snap, primary.ColumnID, false),
		ColumnInstructions:   columnInstructions,
		StandingInstructions: snap.Instructions,
		Count:                action.CardCount,
	})

	for _, draft := range drafts {
		card := board.NewCard(draft.Title, draft.HTMLBody, "assistant")
		run.Changes = append(run.Changes, board.CardCreatedChange{
			ColumnID: primary.ColumnID,
			Card:     card,
		})
	}
}

// modifyWire is the shape a modify call asks the model to produce.
type modifyWire struct {
	Title   *string `json:"title"`
	Content *string `json:"content"`
}

// planModify asks the model for an updated title and body per in-scope
// card. The change carries the full prior title and body so undo is an
// exact restore.
func (e *RuleEngine) planModify(ctx context.Context, snap *board.Board, rule *board.InstructionCard, targets []board.Resolution, run *board.InstructionRun) {
	for _, card := range e.cardsInScope(snap, rule, targets) {
		updated, err := e.modifyCard(ctx, rule, card)
		if err != nil {
			run.Errors = append(run.Errors, board.RunError{CardID: card.CardID, Message: err.Error()})
			continue
		}
		if updated.Title == card.Title && updated.Body == card.Body() {
			continue
		}
		run.Changes = append(run.Changes, board.CardEditedChange{
			CardID:     card.CardID,
			PriorTitle: card.Title,
			PriorBody:  card.Body(),
			NewTitle:   updated.Title,
			NewBody:    updated.Body,
		})
	}
}

// cardUpdate is the result of one per-card modify call.
type cardUpdate struct {
	Title string
	Body  string
}

func (e *RuleEngine) modifyCard(ctx context.Context, rule *board.InstructionCard, card board.Card) (cardUpdate, error) {
	system := `You rewrite a single kanban card per an instruction.
Respond with a JSON object only, with exactly two string fields: "title" and "content" (markdown).
Return the card unchanged if the instruction does not apply.`

	user := fmt.Sprintf("Instruction:\n%s\n\nCard title: %s\nCard body:\n%s",
		rule.Instructions, card.Title, card.Body())

	resp, err := e.client.Complete(ctx, llm.Request{
		Model: e.model,
		Messages: []llm.Message{
			llm.SystemMessage(system),
			llm.UserMessage(user),
		},
	})
	if err != nil {
		return cardUpdate{}, fmt.Errorf("modify call failed: %w", err)
	}

	obj, ok := ExtractJSONObject(resp.Content)
	if !ok {
		return cardUpdate{}, fmt.Errorf("no JSON object in modify response")
	}
	var wire modifyWire
	if err := json.Unmarshal([]byte(obj), &wire); err != nil {
		return cardUpdate{}, fmt.Errorf("parsing modify response: %w", err)
	}
	if wire.Title == nil || wire.Content == nil {
		return cardUpdate{}, fmt.Errorf("modify response missing title or content")
	}

	title := strings.TrimSpace(*wire.Title)
	if title == "" {
		title = card.Title
	}
	return cardUpdate{Title: title, Body: strings.TrimSpace(*wire.Content)}, nil
}

// moveWire is the shape a move evaluation asks the model to produce.
type moveWire struct {
	Move *bool `json:"move"`
}

// planMove evaluates the instruction as a placement rule per in-scope card
// and plans a relocation for each match. The change records the origin
// column and front-side index so undo reinserts at the same position.
func (e *RuleEngine) planMove(ctx context.Context, snap *board.Board, rule *board.InstructionCard, action board.MoveAction, targets []board.Resolution, run *board.InstructionRun) {
	dest, ok := board.ResolveColumn(snap, action.DestinationName)
	if !ok {
		run.Errors = append(run.Errors, board.RunError{Message: "no columns to resolve destination against"})
		return
	}

	for _, card := range e.cardsInScope(snap, rule, targets) {
		fromColumnID, fromIndex, found := snap.Locate(card.CardID)
		if !found || fromIndex < 0 || fromColumnID == dest.ColumnID {
			continue
		}

		matches, err := e.cardMatches(ctx, rule, card)
		if err != nil {
			run.Errors = append(run.Errors, board.RunError{CardID: card.CardID, Message: err.Error()})
			continue
		}
		if !matches {
			continue
		}

		run.Changes = append(run.Changes, board.CardMovedChange{
			CardID:       card.CardID,
			FromColumnID: fromColumnID,
			FromIndex:    fromIndex,
			ToColumnID:   dest.ColumnID,
		})
	}
}

func (e *RuleEngine) cardMatches(ctx context.Context, rule *board.InstructionCard, card board.Card) (bool, error) {
	system := `You evaluate whether a kanban card matches a placement rule.
Respond with a JSON object only: {"move": true} or {"move": false}.`

	user := fmt.Sprintf("Placement rule:\n%s\n\nCard title: %s\nCard body:\n%s",
		rule.Instructions, card.Title, card.Body())

	resp, err := e.client.Complete(ctx, llm.Request{
		Model: e.model,
		Messages: []llm.Message{
			llm.SystemMessage(system),
			llm.UserMessage(user),
		},
	})
	if err != nil {
		return false, fmt.Errorf("move evaluation failed: %w", err)
	}

	obj, ok := ExtractJSONObject(resp.Content)
	if !ok {
		return false, fmt.Errorf("no JSON object in move response")
	}
	var wire moveWire
	if err := json.Unmarshal([]byte(obj), &wire); err != nil {
		return false, fmt.Errorf("parsing move response: %w", err)
	}
	if wire.Move == nil {
		return false, fmt.Errorf("move response missing verdict")
	}
	return *wire.Move, nil
}

// cardsInScope returns the front-side cards the rule applies to, in board
// order. Context columns override the target columns when specified. Cards
// already carrying this instruction's processed-by marker are skipped;
// clearing the marker re-admits a card without re-processing the column.
func (e *RuleEngine) cardsInScope(snap *board.Board, rule *board.InstructionCard, targets []board.Resolution) []board.Card {
	var columnIDs []ulid.ULID
	if len(rule.ContextColumns) > 0 {
		for _, name := range rule.ContextColumns {
			if res, ok := board.ResolveColumn(snap, name); ok {
				columnIDs = append(columnIDs, res.ColumnID)
			}
		}
	} else {
		for _, res := range targets {
			columnIDs = append(columnIDs, res.ColumnID)
		}
	}

	var cards []board.Card
	seen := make(map[ulid.ULID]bool)
	for _, colID := range columnIDs {
		col := snap.Column(colID)
		if col == nil || seen[colID] {
			continue
		}
		seen[colID] = true
		for _, cardID := range col.CardIDs {
			card, ok := snap.Cards[cardID]
			if !ok {
				continue
			}
			if _, done := card.ProcessedBy[rule.InstructionID]; done {
				continue
			}
			cards = append(cards, card)
		}
	}
	return cards
}

// apply commits a planned run's changes in order and stamps each touched
// card's processed-by marker.
func (e *RuleEngine) apply(ctx context.Context, boardID, instructionID ulid.ULID, run *board.InstructionRun) error {
	stamp := e.now()
	for _, change := range run.Changes {
		switch c := change.(type) {
		case board.CardCreatedChange:
			if err := e.repo.CreateCard(ctx, boardID, c.ColumnID, c.Card, -1); err != nil {
				return fmt.Errorf("applying creation: %w", err)
			}
			if err := e.repo.MarkProcessed(ctx, boardID, c.Card.CardID, instructionID, stamp); err != nil {
				return fmt.Errorf("stamping created card: %w", err)
			}
		case board.CardEditedChange:
			if err := e.repo.UpdateCardContent(ctx, boardID, c.CardID, c.NewTitle, c.NewBody); err != nil {
				return fmt.Errorf("applying edit: %w", err)
			}
			if err := e.repo.MarkProcessed(ctx, boardID, c.CardID, instructionID, stamp); err != nil {
				return fmt.Errorf("stamping edited card: %w", err)
			}
		case board.CardMovedChange:
			if err := e.repo.MoveCard(ctx, boardID, c.CardID, c.ToColumnID, -1); err != nil {
				return fmt.Errorf("applying move: %w", err)
			}
			if err := e.repo.MarkProcessed(ctx, boardID, c.CardID, instructionID, stamp); err != nil {
				return fmt.Errorf("stamping moved card: %w", err)
			}
		}
	}
	return nil
}

// Undo reverses one run by replaying its changes in reverse order: created
// cards are deleted, edits restore the exact prior title and body, moved
// cards reinsert at their original column and index. A run already marked
// undone returns board.ErrRunAlreadyUndone without mutating anything.
func (e *RuleEngine) Undo(ctx context.Context, boardID, runID ulid.ULID) (*board.InstructionRun, error) {
	run, err := e.runs.Run(ctx, boardID, runID)
	if err != nil {
		return nil, err
	}
	if run.Undone {
		return run, board.ErrRunAlreadyUndone
	}

	var moves []board.CardMovedChange
	for i := len(run.Changes) - 1; i >= 0; i-- {
		switch c := run.Changes[i].(type) {
		case board.CardCreatedChange:
			if err := e.repo.DeleteCard(ctx, boardID, c.Card.CardID); err != nil {
				return nil, fmt.Errorf("undoing creation: %w", err)
			}
		case board.CardEditedChange:
			if err := e.repo.UpdateCardContent(ctx, boardID, c.CardID, c.PriorTitle, c.PriorBody); err != nil {
				return nil, fmt.Errorf("undoing edit: %w", err)
			}
		case board.CardMovedChange:
			moves = append(moves, c)
		}
	}

	// Origin indices were captured against the pre-run board, so reinsert
	// lowest index first: each reinsertion restores the position the later
	// indices were counted against.
	sort.SliceStable(moves, func(i, j int) bool { return moves[i].FromIndex < moves[j].FromIndex })
	for _, c := range moves {
		if err := e.repo.MoveCard(ctx, boardID, c.CardID, c.FromColumnID, c.FromIndex); err != nil {
			return nil, fmt.Errorf("undoing move: %w", err)
		}
	}

	if err := e.runs.MarkUndone(ctx, boardID, runID); err != nil {
		return nil, err
	}
	run.Undone = true
	log.Printf("component=engine action=undo run=%s changes=%d", runID, len(run.Changes))
	return run, nil
}

// ClearInstructionRun removes the processed-by marker for one card and
// instruction pair so the rule can touch that card again. Distinct from
// deleting the InstructionRun record itself.
func (e *RuleEngine) ClearInstructionRun(ctx context.Context, boardID, cardID, instructionID ulid.ULID) error {
	return e.repo.ClearProcessed(ctx, boardID, cardID, instructionID)
}

// RunAutomatic executes every automatic-mode instruction that has unmarked
// cards in scope. Single cooperative pass, no background workers; callers
// invoke it after board mutations. Generate rules are manual-only since no
// card entering a column triggers them.
func (e *RuleEngine) RunAutomatic(ctx context.Context, boardID ulid.ULID) ([]*board.InstructionRun, error) {
	snap, err := e.repo.Snapshot(ctx, boardID)
	if err != nil {
		return nil, err
	}

	var runs []*board.InstructionRun
	for i := range snap.Rules {
		rule := &snap.Rules[i]
		if rule.Mode != board.RunAutomatic {
			continue
		}
		if _, isGenerate := rule.Action.(board.GenerateAction); isGenerate {
			continue
		}

		targets, ok := board.ResolveTarget(snap, rule.Target)
		if !ok {
			continue
		}
		if len(e.cardsInScope(snap, rule, targets)) == 0 {
			continue
		}

		run, err := e.Run(ctx, boardID, rule.InstructionID)
		if err != nil {
			log.Printf("component=engine action=auto_run instruction=%s error=%v", rule.InstructionID, err)
			continue
		}
		runs = append(runs, run)
	}
	return runs, nil
}
