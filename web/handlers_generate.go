// ABOUTME: POST /api/generate: card drafting for a board column, gated by the
// ABOUTME: anonymous quota cookie and degraded to fallback stubs on backend failure.
package web

import (
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/sporelabs/shroomboard/engine"
	"github.com/sporelabs/shroomboard/server"
)

// generateRequest is the UI's drafting call. Channel names the board;
// cards carries the caller's current column view so drafting still works
// when the client is ahead of the stored snapshot.
type generateRequest struct {
	Channel            string         `json:"channel"`
	Count              int            `json:"count"`
	Cards              []generateCard `json:"cards"`
	TargetColumnID     string         `json:"targetColumnId,omitempty"`
	SystemInstructions string         `json:"systemInstructions,omitempty"`
}

type generateCard struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

type generateDebug struct {
	Model        string `json:"model"`
	Fallback     bool   `json:"fallback"`
	InputTokens  int    `json:"inputTokens"`
	OutputTokens int    `json:"outputTokens"`
	DurationMS   int64  `json:"durationMs"`
}

type generateResponse struct {
	Cards []engine.Draft `json:"cards"`
	Debug generateDebug  `json:"debug"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	// The cookie is set before any quota decision so tracking persists
	// across rejected calls.
	quotaID := server.EnsureQuotaCookie(w, r)

	var req generateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Channel) == "" {
		writeError(w, http.StatusBadRequest, "missing_channel", "channel is required")
		return
	}

	if s.gen == nil || s.client == nil {
		writeError(w, http.StatusServiceUnavailable, "ai_unavailable", "no language-model backend configured")
		return
	}

	if !server.IsAuthed(r) && s.quota != nil {
		allowed, err := s.quota.Allow(r.Context(), quotaID)
		if err != nil {
			log.Printf("component=web action=quota_check error=%v", err)
			writeError(w, http.StatusInternalServerError, "internal", "internal server error")
			return
		}
		if !allowed {
			writeError(w, http.StatusForbidden, "quota_exceeded", "daily generation quota exhausted")
			return
		}
	}

	boardID, err := ulid.Parse(req.Channel)
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing_channel", "channel must be a board id")
		return
	}
	b, ok := s.boardOrError(w, r, boardID)
	if !ok {
		return
	}

	targetID := ulid.ULID{}
	if req.TargetColumnID != "" {
		targetID, err = ulid.Parse(req.TargetColumnID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", "invalid targetColumnId")
			return
		}
	} else if len(b.Columns) > 0 {
		targetID = b.Columns[0].ColumnID
	}

	boardContext := engine.BuildBoardContext(b, targetID, false)
	if block := clientCardsBlock(req.Cards); block != "" {
		boardContext += "\n" + block
	}

	columnInstructions := ""
	if col := b.Column(targetID); col != nil {
		columnInstructions = col.Instructions
	}

	start := time.Now()
	drafts, usage := s.gen.Generate(r.Context(), engine.GenerationRequest{
		BoardContext:         boardContext,
		ColumnInstructions:   columnInstructions,
		StandingInstructions: strings.TrimSpace(b.Instructions + "\n" + req.SystemInstructions),
		Count:                req.Count,
	})

	fallback := len(drafts) > 0 && drafts[0].Fallback
	if !fallback && !server.IsAuthed(r) && s.quota != nil {
		if err := s.quota.Record(r.Context(), quotaID, usage.InputTokens, usage.OutputTokens); err != nil {
			log.Printf("component=web action=quota_record error=%v", err)
		}
	}

	writeJSON(w, http.StatusOK, generateResponse{
		Cards: drafts,
		Debug: generateDebug{
			Model:        s.model,
			Fallback:     fallback,
			InputTokens:  usage.InputTokens,
			OutputTokens: usage.OutputTokens,
			DurationMS:   time.Since(start).Milliseconds(),
		},
	})
}

// clientCardsBlock renders the caller-supplied card view as extra context.
// Titles only plus a short excerpt, same bound as stored cards.
func clientCardsBlock(cards []generateCard) string {
	if len(cards) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("Cards currently in the caller's view:\n")
	for _, c := range cards {
		title := strings.TrimSpace(c.Title)
		if title == "" {
			continue
		}
		sb.WriteString("- " + title)
		if excerpt := engine.Excerpt(c.Content); excerpt != "" {
			sb.WriteString(": " + excerpt)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
