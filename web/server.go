// ABOUTME: Shroomboard HTTP server: chi router wiring board, generation, and
// ABOUTME: instruction endpoints behind auth, quota, and request-logging middleware.
package web

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/oklog/ulid/v2"

	"github.com/sporelabs/shroomboard/board"
	"github.com/sporelabs/shroomboard/engine"
	"github.com/sporelabs/shroomboard/ledger"
	"github.com/sporelabs/shroomboard/server"
)

// maxRequestBody bounds JSON request bodies.
const maxRequestBody = 1 << 20

// Server is the shroomboard HTTP surface. All state lives in the injected
// repository, ledger, and engine; handlers hold no state of their own.
type Server struct {
	repo   board.Repository
	runs   ledger.Recorder
	gen    *engine.Generator
	rules  *engine.RuleEngine
	client engine.Completer
	quota  *server.Quota
	model  string

	router chi.Router
	addr   string
}

// ServerConfig holds the dependencies and settings for the HTTP server.
// Client may be nil when no backend credential is configured; generation
// endpoints then answer 503 rather than producing fallback-only output.
type ServerConfig struct {
	Addr      string
	AuthToken string
	Model     string
	Repo      board.Repository
	Runs      ledger.Recorder
	Generator *engine.Generator
	Rules     *engine.RuleEngine
	Client    engine.Completer
	Quota     *server.Quota
}

// NewServer wires the router from the given dependencies.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:7710"
	}
	if cfg.Repo == nil {
		return nil, errors.New("Repo must not be nil")
	}
	if cfg.Runs == nil {
		return nil, errors.New("Runs must not be nil")
	}

	s := &Server{
		repo:   cfg.Repo,
		runs:   cfg.Runs,
		gen:    cfg.Generator,
		rules:  cfg.Rules,
		client: cfg.Client,
		quota:  cfg.Quota,
		model:  cfg.Model,
		addr:   cfg.Addr,
	}
	s.router = s.buildRouter(cfg.AuthToken)
	return s, nil
}

// Router exposes the configured router, mainly for tests.
func (s *Server) Router() http.Handler { return s.router }

// buildRouter constructs the chi router with all routes and middleware.
func (s *Server) buildRouter(authToken string) chi.Router {
	r := chi.NewRouter()

	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(server.AuthMiddleware(authToken))

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Post("/generate", s.handleGenerate)
		r.Post("/instruction-chat", s.handleInstructionChat)

		r.Route("/boards", func(r chi.Router) {
			r.Get("/", s.handleBoardList)
			r.Post("/", s.handleBoardCreate)

			r.Route("/{boardID}", func(r chi.Router) {
				r.Get("/", s.handleBoardGet)
				r.Get("/export", s.handleBoardExport)
				r.Get("/runs", s.handleRunList)

				r.Post("/instructions", s.handleInstructionCommit)
				r.Post("/instructions/{instructionID}/run", s.handleInstructionRun)
				r.Post("/automatic-run", s.handleAutomaticRun)
				r.Post("/runs/{runID}/undo", s.handleRunUndo)
				r.Post("/cards/{cardID}/clear-marker", s.handleClearMarker)
			})
		})
	})

	return r
}

// ListenAndServe starts the HTTP server with sane timeouts for a local
// single-user daemon.
func (s *Server) ListenAndServe() error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	log.Printf("component=web action=listen addr=%s", s.addr)
	return srv.ListenAndServe()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// boardIDParam parses the boardID path parameter, writing a 400 on failure.
func boardIDParam(w http.ResponseWriter, r *http.Request) (ulid.ULID, bool) {
	return ulidParam(w, r, "boardID")
}

func ulidParam(w http.ResponseWriter, r *http.Request, name string) (ulid.ULID, bool) {
	id, err := ulid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid "+name)
		return ulid.ULID{}, false
	}
	return id, true
}

// decodeJSON reads a bounded JSON body into v, writing a 400 on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	body := http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return false
	}
	return true
}

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a machine-readable error envelope. The code field is
// stable API surface; the message is for humans.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"code": code, "error": message})
}

// boardOrError loads a board snapshot, translating not-found into a 404.
func (s *Server) boardOrError(w http.ResponseWriter, r *http.Request, boardID ulid.ULID) (*board.Board, bool) {
	b, err := s.repo.Snapshot(r.Context(), boardID)
	if err != nil {
		if errors.Is(err, board.ErrBoardNotFound) {
			writeError(w, http.StatusNotFound, "board_not_found", "board not found")
		} else {
			log.Printf("component=web action=snapshot board=%s error=%v", boardID, err)
			writeError(w, http.StatusInternalServerError, "internal", "internal server error")
		}
		return nil, false
	}
	return b, true
}
