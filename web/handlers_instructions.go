// ABOUTME: Instruction endpoints: chat-based rule configuration, committing a
// ABOUTME: candidate config, running rules, undoing runs, and clearing card markers.
package web

import (
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/sporelabs/shroomboard/board"
	"github.com/sporelabs/shroomboard/engine"
)

// chatContext names the board (and in edit mode the rule) the conversation
// is about.
type chatContext struct {
	BoardID       string `json:"boardId"`
	InstructionID string `json:"instructionId,omitempty"`
}

type instructionChatRequest struct {
	UserMessage string           `json:"userMessage"`
	Mode        string           `json:"mode"`
	Context     chatContext      `json:"context"`
	History     []board.ChatTurn `json:"history,omitempty"`
}

func (s *Server) handleInstructionChat(w http.ResponseWriter, r *http.Request) {
	var req instructionChatRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.UserMessage) == "" {
		writeError(w, http.StatusBadRequest, "missing_message", "userMessage is required")
		return
	}
	mode := engine.ChatMode(req.Mode)
	if mode != engine.ChatCreate && mode != engine.ChatEdit {
		writeError(w, http.StatusBadRequest, "bad_request", `mode must be "create" or "edit"`)
		return
	}
	if s.client == nil {
		writeError(w, http.StatusServiceUnavailable, "ai_unavailable", "no language-model backend configured")
		return
	}

	boardID, err := ulid.Parse(req.Context.BoardID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "context.boardId must be a board id")
		return
	}
	b, ok := s.boardOrError(w, r, boardID)
	if !ok {
		return
	}

	var existing *board.InstructionCard
	if mode == engine.ChatEdit {
		instructionID, err := ulid.Parse(req.Context.InstructionID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", "context.instructionId must be an instruction id")
			return
		}
		existing = b.Rule(instructionID)
		if existing == nil {
			writeError(w, http.StatusNotFound, "instruction_not_found", "instruction not found")
			return
		}
	}

	result, err := engine.Chat(r.Context(), s.client, s.model, engine.ChatRequest{
		UserMessage: req.UserMessage,
		Mode:        mode,
		History:     req.History,
		Board:       b,
		Existing:    existing,
	})
	if err != nil {
		log.Printf("component=web action=instruction_chat error=%v", err)
		writeError(w, http.StatusServiceUnavailable, "ai_unavailable", "language-model backend failed")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type instructionCommitRequest struct {
	Config  engine.CandidateConfig `json:"shroomConfig"`
	History []board.ChatTurn       `json:"history,omitempty"`
}

// handleInstructionCommit turns an approved chat config into a saved rule
// on the board.
func (s *Server) handleInstructionCommit(w http.ResponseWriter, r *http.Request) {
	boardID, ok := boardIDParam(w, r)
	if !ok {
		return
	}
	var req instructionCommitRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	b, ok := s.boardOrError(w, r, boardID)
	if !ok {
		return
	}

	rule, err := engine.CommitConfig(b, req.Config, req.History)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_config", err.Error())
		return
	}

	b.Rules = append(b.Rules, rule)
	b.UpdatedAt = time.Now()
	if err := s.repo.SaveBoard(r.Context(), b); err != nil {
		log.Printf("component=web action=commit_instruction board=%s error=%v", boardID, err)
		writeError(w, http.StatusInternalServerError, "internal", "internal server error")
		return
	}
	writeJSON(w, http.StatusCreated, rule)
}

func (s *Server) handleInstructionRun(w http.ResponseWriter, r *http.Request) {
	boardID, ok := boardIDParam(w, r)
	if !ok {
		return
	}
	instructionID, ok := ulidParam(w, r, "instructionID")
	if !ok {
		return
	}
	if s.rules == nil {
		writeError(w, http.StatusServiceUnavailable, "ai_unavailable", "no language-model backend configured")
		return
	}

	run, err := s.rules.Run(r.Context(), boardID, instructionID)
	if err != nil {
		var notFound *board.InstructionNotFoundError
		switch {
		case errors.Is(err, board.ErrBoardNotFound):
			writeError(w, http.StatusNotFound, "board_not_found", "board not found")
		case errors.As(err, &notFound):
			writeError(w, http.StatusNotFound, "instruction_not_found", "instruction not found")
		case errors.Is(err, board.ErrNoColumns):
			writeError(w, http.StatusBadRequest, "no_columns", "board has no columns to target")
		default:
			log.Printf("component=web action=run_instruction board=%s instruction=%s error=%v", boardID, instructionID, err)
			writeError(w, http.StatusInternalServerError, "internal", "internal server error")
		}
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// handleAutomaticRun sweeps the board's automatic-mode rules. The UI calls
// this after card moves land, since drag-and-drop happens outside this
// service.
func (s *Server) handleAutomaticRun(w http.ResponseWriter, r *http.Request) {
	boardID, ok := boardIDParam(w, r)
	if !ok {
		return
	}
	if s.rules == nil {
		writeError(w, http.StatusServiceUnavailable, "ai_unavailable", "no language-model backend configured")
		return
	}

	runs, err := s.rules.RunAutomatic(r.Context(), boardID)
	if err != nil {
		if errors.Is(err, board.ErrBoardNotFound) {
			writeError(w, http.StatusNotFound, "board_not_found", "board not found")
			return
		}
		log.Printf("component=web action=automatic_run board=%s error=%v", boardID, err)
		writeError(w, http.StatusInternalServerError, "internal", "internal server error")
		return
	}
	if runs == nil {
		runs = []*board.InstructionRun{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (s *Server) handleRunList(w http.ResponseWriter, r *http.Request) {
	boardID, ok := boardIDParam(w, r)
	if !ok {
		return
	}
	runs, err := s.runs.Runs(r.Context(), boardID)
	if err != nil {
		log.Printf("component=web action=list_runs board=%s error=%v", boardID, err)
		writeError(w, http.StatusInternalServerError, "internal", "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (s *Server) handleRunUndo(w http.ResponseWriter, r *http.Request) {
	boardID, ok := boardIDParam(w, r)
	if !ok {
		return
	}
	runID, ok := ulidParam(w, r, "runID")
	if !ok {
		return
	}
	if s.rules == nil {
		writeError(w, http.StatusServiceUnavailable, "ai_unavailable", "engine not configured")
		return
	}

	run, err := s.rules.Undo(r.Context(), boardID, runID)
	switch {
	case errors.Is(err, board.ErrRunAlreadyUndone):
		// No mutation happened; report the state rather than failing hard.
		writeJSON(w, http.StatusConflict, map[string]any{
			"code": "run_already_undone",
			"run":  run,
		})
	case errors.Is(err, board.ErrRunNotFound):
		writeError(w, http.StatusNotFound, "run_not_found", "run not found")
	case err != nil:
		log.Printf("component=web action=undo_run board=%s run=%s error=%v", boardID, runID, err)
		writeError(w, http.StatusInternalServerError, "internal", "internal server error")
	default:
		writeJSON(w, http.StatusOK, run)
	}
}

type clearMarkerRequest struct {
	InstructionID string `json:"instructionId"`
}

// handleClearMarker removes one card's processed-by stamp so the rule can
// touch it again on the next run.
func (s *Server) handleClearMarker(w http.ResponseWriter, r *http.Request) {
	boardID, ok := boardIDParam(w, r)
	if !ok {
		return
	}
	cardID, ok := ulidParam(w, r, "cardID")
	if !ok {
		return
	}
	var req clearMarkerRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	instructionID, err := ulid.Parse(req.InstructionID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "instructionId must be an instruction id")
		return
	}

	if err := s.repo.ClearProcessed(r.Context(), boardID, cardID, instructionID); err != nil {
		var cardErr *board.CardNotFoundError
		switch {
		case errors.Is(err, board.ErrBoardNotFound):
			writeError(w, http.StatusNotFound, "board_not_found", "board not found")
		case errors.As(err, &cardErr):
			writeError(w, http.StatusNotFound, "card_not_found", "card not found")
		default:
			log.Printf("component=web action=clear_marker board=%s card=%s error=%v", boardID, cardID, err)
			writeError(w, http.StatusInternalServerError, "internal", "internal server error")
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
