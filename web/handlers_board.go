// ABOUTME: Board read/create endpoints plus a YAML export of a board's full
// ABOUTME: state for offline inspection and backup.
package web

import (
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"gopkg.in/yaml.v3"

	"github.com/sporelabs/shroomboard/board"
)

type boardSummary struct {
	BoardID   string    `json:"board_id"`
	Name      string    `json:"name"`
	Columns   int       `json:"columns"`
	Cards     int       `json:"cards"`
	Rules     int       `json:"rules"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (s *Server) handleBoardList(w http.ResponseWriter, r *http.Request) {
	boards, err := s.repo.ListBoards(r.Context())
	if err != nil {
		log.Printf("component=web action=list_boards error=%v", err)
		writeError(w, http.StatusInternalServerError, "internal", "internal server error")
		return
	}

	summaries := make([]boardSummary, 0, len(boards))
	for _, b := range boards {
		summaries = append(summaries, boardSummary{
			BoardID:   b.BoardID.String(),
			Name:      b.Name,
			Columns:   len(b.Columns),
			Cards:     len(b.Cards),
			Rules:     len(b.Rules),
			UpdatedAt: b.UpdatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"boards": summaries})
}

type boardCreateRequest struct {
	Name         string   `json:"name"`
	Description  string   `json:"description,omitempty"`
	Instructions string   `json:"instructions,omitempty"`
	Columns      []string `json:"columns"`
}

func (s *Server) handleBoardCreate(w http.ResponseWriter, r *http.Request) {
	var req boardCreateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "missing_name", "name is required")
		return
	}
	columns := req.Columns
	if len(columns) == 0 {
		columns = []string{"Inbox", "Doing", "Done"}
	}

	b := board.NewBoard(req.Name, columns...)
	b.Description = req.Description
	b.Instructions = req.Instructions
	if err := s.repo.SaveBoard(r.Context(), b); err != nil {
		log.Printf("component=web action=create_board error=%v", err)
		writeError(w, http.StatusInternalServerError, "internal", "internal server error")
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

func (s *Server) handleBoardGet(w http.ResponseWriter, r *http.Request) {
	boardID, ok := boardIDParam(w, r)
	if !ok {
		return
	}
	b, ok := s.boardOrError(w, r, boardID)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// exportBoard is the YAML shape for a board export. Cards are inlined under
// their columns so the file reads top to bottom like the board itself.
type exportBoard struct {
	Name         string         `yaml:"name"`
	Description  string         `yaml:"description,omitempty"`
	Instructions string         `yaml:"instructions,omitempty"`
	ExportedAt   time.Time      `yaml:"exported_at"`
	Columns      []exportColumn `yaml:"columns"`
	Rules        []exportRule   `yaml:"rules,omitempty"`
}

type exportColumn struct {
	Name         string       `yaml:"name"`
	Instructions string       `yaml:"instructions,omitempty"`
	Cards        []exportCard `yaml:"cards"`
	Archived     []exportCard `yaml:"archived,omitempty"`
}

type exportCard struct {
	Title   string `yaml:"title"`
	Content string `yaml:"content,omitempty"`
}

type exportRule struct {
	Title        string `yaml:"title"`
	Instructions string `yaml:"instructions"`
	Action       string `yaml:"action"`
	Target       string `yaml:"target"`
}

func (s *Server) handleBoardExport(w http.ResponseWriter, r *http.Request) {
	boardID, ok := boardIDParam(w, r)
	if !ok {
		return
	}
	b, ok := s.boardOrError(w, r, boardID)
	if !ok {
		return
	}

	export := exportBoard{
		Name:         b.Name,
		Description:  b.Description,
		Instructions: b.Instructions,
		ExportedAt:   time.Now().UTC(),
	}
	for i := range b.Columns {
		col := &b.Columns[i]
		ec := exportColumn{
			Name:         col.Name,
			Instructions: col.Instructions,
			Cards:        exportCards(b, col.CardIDs),
			Archived:     exportCards(b, col.Archived),
		}
		export.Columns = append(export.Columns, ec)
	}
	for _, rule := range b.Rules {
		export.Rules = append(export.Rules, exportRule{
			Title:        rule.Title,
			Instructions: rule.Instructions,
			Action:       rule.Action.ActionType(),
			Target:       rule.Target.Primary(),
		})
	}

	data, err := yaml.Marshal(export)
	if err != nil {
		log.Printf("component=web action=export_board board=%s error=%v", boardID, err)
		writeError(w, http.StatusInternalServerError, "internal", "internal server error")
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	w.Header().Set("Content-Disposition", `attachment; filename="board.yaml"`)
	w.Write(data)
}

func exportCards(b *board.Board, ids []ulid.ULID) []exportCard {
	cards := make([]exportCard, 0, len(ids))
	for _, id := range ids {
		card, ok := b.Cards[id]
		if !ok {
			continue
		}
		cards = append(cards, exportCard{Title: card.Title, Content: card.Body()})
	}
	return cards
}
