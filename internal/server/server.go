// Package server exposes the run protocol over HTTP. Runs stream back as
// server-sent events; everything else is small synchronous JSON.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"folio/internal/config"
	"folio/internal/conversation"
	"folio/internal/logging"
	"folio/internal/provider"
	"folio/internal/runner"
	"folio/internal/stream"
	"folio/internal/tools"
)

// Server handles the run protocol endpoints.
type Server struct {
	cfg        *config.Config
	store      *conversation.Store
	runner     *runner.Runner
	registry   *tools.Registry
	httpServer *http.Server
}

// New creates a server.
func New(cfg *config.Config, store *conversation.Store, r *runner.Runner, registry *tools.Registry) *Server {
	s := &Server{
		cfg:      cfg,
		store:    store,
		runner:   r,
		registry: registry,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/runs", s.handleRun)
	mux.HandleFunc("POST /v1/conversations/{id}/mode", s.handleMode)
	mux.HandleFunc("GET /healthz", s.handleHealth)

	s.httpServer = &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: mux,
		// No WriteTimeout: run streams stay open for the length of a run.
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// ListenAndServe runs the HTTP server until Shutdown or failure.
func (s *Server) ListenAndServe() error {
	logging.Info("server listening", "addr", s.cfg.Server.Addr)
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

type runRequest struct {
	ConversationID string `json:"conversation_id,omitempty"`
	Message        string `json:"message"`
	Mode           string `json:"mode,omitempty"`
	Context        string `json:"context,omitempty"`
}

type modeRequest struct {
	Mode string `json:"mode"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: code})
}

// handleRun begins a run and streams its events until the terminal event.
// An empty conversation_id creates a new conversation; an unknown one is a
// 404 the client must treat as stale state.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed_request")
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "empty_message")
		return
	}

	var conv *conversation.Conversation
	if req.ConversationID == "" {
		mode := conversation.ModeAnalyst
		if req.Mode != "" {
			parsed, err := conversation.ParseMode(req.Mode)
			if err != nil {
				writeError(w, http.StatusBadRequest, "unknown_mode")
				return
			}
			mode = parsed
		}
		conv = s.store.Create(mode, req.Context)
		logging.Info("conversation created", "conversation_id", conv.ID, "mode", mode)
	} else {
		existing, ok := s.store.Get(req.ConversationID)
		if !ok {
			logging.Warn("run requested for unknown conversation", "conversation_id", req.ConversationID)
			writeError(w, http.StatusNotFound, "unknown_conversation")
			return
		}
		conv = existing
	}

	run, err := conv.BeginRun()
	if err != nil {
		if errors.Is(err, conversation.ErrActiveRun) {
			writeError(w, http.StatusConflict, "run_already_active")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error")
		return
	}

	turn := runner.Turn{
		ConversationID:     conv.ID,
		UserMessageID:      uuid.New().String(),
		AssistantMessageID: uuid.New().String(),
		System:             conv.SystemPrompt(),
		Messages: append(conv.History(), provider.Message{
			Role:    provider.RoleUser,
			Content: req.Message,
		}),
		Tools: s.registry.Definitions(),
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	enc := stream.NewEncoder(w)
	events := s.runner.Start(r.Context(), run, turn)

	var final *stream.DonePayload
	for ev := range events {
		if err := enc.Encode(ev); err != nil {
			// Client went away; the run loop observes the request context.
			logging.Warn("event write failed, client gone", "run_id", run.ID, "error", err)
			break
		}
		if ev.Type == stream.EventDone {
			if p, err := ev.Done(); err == nil {
				final = &p
			}
		}
	}
	// Drain so the loop goroutine never blocks on an abandoned channel.
	for range events {
	}

	if final != nil {
		conv.Append(
			provider.Message{Role: provider.RoleUser, Content: req.Message},
			provider.Message{Role: provider.RoleAssistant, Content: final.FinalText},
		)
	}
}

// handleMode switches the conversation's response mode.
func (s *Server) handleMode(w http.ResponseWriter, r *http.Request) {
	conv, ok := s.store.Get(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown_conversation")
		return
	}

	var req modeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed_request")
		return
	}
	mode, err := conversation.ParseMode(req.Mode)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unknown_mode")
		return
	}

	conv.SetMode(mode)
	logging.Info("conversation mode switched", "conversation_id", conv.ID, "mode", mode)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"conversation_id": conv.ID,
		"mode":            string(mode),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":        "ok",
		"version":       s.cfg.Version,
		"conversations": s.store.Count(),
	})
}
