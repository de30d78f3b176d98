// Package api exposes the assistant and the ticket store over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/guardianbot/guardian/internal/agent"
	"github.com/guardianbot/guardian/internal/logbuf"
	"github.com/guardianbot/guardian/internal/memory"
	"github.com/guardianbot/guardian/internal/ticket"
	"github.com/guardianbot/guardian/internal/tool"
	"github.com/guardianbot/guardian/pkg/protocol"
)

// Assistant runs one conversational turn.
type Assistant interface {
	Converse(ctx context.Context, conv *memory.Conversation, input string) (string, error)
}

// SessionStore resolves session ids to conversations.
type SessionStore interface {
	Get(id string) *memory.Conversation
	Delete(id string) bool
}

// TicketService is the part of the ticket store the API serves directly.
type TicketService interface {
	Create(ctx context.Context, fields protocol.NewTicket) (string, error)
	Status(ctx context.Context, id string) (ticket.StatusResult, error)
	List(ctx context.Context) ([]protocol.Ticket, error)
}

// LogQuerier abstracts log entry querying to avoid coupling to logbuf.Buffer.
type LogQuerier interface {
	Query(f logbuf.Filter) []logbuf.Entry
}

// Config holds API server configuration.
type Config struct {
	Host string
	Port int
}

// Deps are the services behind the routes. Logs and Gatherer may be nil.
type Deps struct {
	Assistant Assistant
	Sessions  SessionStore
	Tickets   TicketService
	Logs      LogQuerier
	Gatherer  prometheus.Gatherer
}

// Server is the guardian HTTP API server.
type Server struct {
	deps   Deps
	logger *slog.Logger
	srv    *http.Server
}

// NewServer creates a new API server.
func NewServer(cfg Config, deps Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		deps:   deps,
		logger: logger.With("component", "api"),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /chat", s.handleChat)
	mux.HandleFunc("POST /create-ticket", s.handleCreateTicket)
	mux.HandleFunc("GET /tickets", s.handleListTickets)
	mux.HandleFunc("GET /ticket-status/{ticket_id}", s.handleTicketStatus)
	mux.HandleFunc("DELETE /sessions/{id}", s.handleDeleteSession)
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/logs", s.handleGetLogs)
	if deps.Gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	s.srv = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           s.logRequests(s.corsMiddleware(mux)),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Start begins listening. Blocks until context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.srv.Shutdown(shutCtx)
	}()

	s.logger.Info("api server starting", "addr", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}

// Handler returns the underlying http.Handler for testing.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// --- Middleware ---

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds())
	})
}

// --- Handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ChatRequest is the body of POST /chat.
type ChatRequest struct {
	Input     string `json:"input"`
	SessionID string `json:"session_id,omitempty"`
}

// ChatResponse is the reply of POST /chat. On failure Response holds a
// generic message and Error one of the Failure* kinds.
type ChatResponse struct {
	Response  string `json:"response"`
	SessionID string `json:"session_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Kinds of failed chat turns.
const (
	FailureModelClient = "model_client"
	FailureLoopBound   = "loop_bound"
	FailureCancelled   = "cancelled"
	FailureInternal    = "internal"
)

// chatFailureMessage is all an end user sees of a failed turn.
const chatFailureMessage = "Error communicating with the assistant. Please try again later."

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

func chatFailureKind(err error) string {
	switch {
	case errors.Is(err, agent.ErrModelClient):
		return FailureModelClient
	case errors.Is(err, agent.ErrLoopBoundExceeded):
		return FailureLoopBound
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return FailureCancelled
	default:
		return FailureInternal
	}
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if !readJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Input) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "input is required"})
		return
	}

	conv := s.deps.Sessions.Get(req.SessionID)
	reply, err := s.deps.Assistant.Converse(r.Context(), conv, req.Input)
	if err != nil {
		kind := chatFailureKind(err)
		s.logger.Error("chat turn failed", "session", conv.ID(), "kind", kind, "error", err)
		writeJSON(w, http.StatusInternalServerError, ChatResponse{
			Response:  chatFailureMessage,
			SessionID: conv.ID(),
			Error:     kind,
		})
		return
	}
	writeJSON(w, http.StatusOK, ChatResponse{Response: reply, SessionID: conv.ID()})
}

// CreateTicketResponse is the reply of POST /create-ticket.
type CreateTicketResponse struct {
	Message  string `json:"message"`
	TicketID string `json:"ticket_id"`
}

func (s *Server) handleCreateTicket(w http.ResponseWriter, r *http.Request) {
	var fields map[string]any
	if !readJSON(w, r, &fields) {
		return
	}

	call, err := tool.ParseCreateTicket(fields)
	if err != nil {
		var verr *tool.ValidationError
		if errors.As(err, &verr) {
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":  verr.Error(),
				"fields": verr.FieldNames(),
			})
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	id, err := s.deps.Tickets.Create(r.Context(), call.NewTicket())
	if err != nil {
		s.logger.Error("create ticket failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, CreateTicketResponse{Message: "Ticket created successfully", TicketID: id})
}

func (s *Server) handleListTickets(w http.ResponseWriter, r *http.Request) {
	tickets, err := s.deps.Tickets.List(r.Context())
	if err != nil {
		s.logger.Error("list tickets failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if tickets == nil {
		tickets = []protocol.Ticket{}
	}
	writeJSON(w, http.StatusOK, tickets)
}

func (s *Server) handleTicketStatus(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Tickets.Status(r.Context(), r.PathValue("ticket_id"))
	if errors.Is(err, ticket.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Ticket not found"})
		return
	}
	if err != nil {
		s.logger.Error("ticket status failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"ticket_id": res.TicketID,
		"status":    string(res.Status),
	})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if s.deps.Sessions.Delete(r.PathValue("id")) {
		s.logger.Info("session deleted", "session", r.PathValue("id"))
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetLogs(w http.ResponseWriter, r *http.Request) {
	if s.deps.Logs == nil {
		writeJSON(w, http.StatusOK, []logbuf.Entry{})
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Logs.Query(parseLogFilter(r)))
}

// parseLogFilter reads since (unix ms or RFC 3339), level, limit and
// repeated attr=key:value parameters. Unparseable values are ignored.
func parseLogFilter(r *http.Request) logbuf.Filter {
	q := r.URL.Query()
	f := logbuf.Filter{MinLevel: slog.LevelDebug, Limit: 200}

	if l := q.Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			f.Limit = n
		}
	}

	if lvl := q.Get("level"); lvl != "" {
		var parsed slog.Level
		if err := parsed.UnmarshalText([]byte(lvl)); err == nil {
			f.MinLevel = parsed
		}
	}

	if since := q.Get("since"); since != "" {
		if ms, err := strconv.ParseInt(since, 10, 64); err == nil {
			f.Since = time.UnixMilli(ms)
		} else if t, err := time.Parse(time.RFC3339, since); err == nil {
			f.Since = t
		}
	}

	for _, kv := range q["attr"] {
		k, v, ok := strings.Cut(kv, ":")
		if !ok || k == "" {
			continue
		}
		if f.Attrs == nil {
			f.Attrs = make(map[string]string)
		}
		f.Attrs[k] = v
	}
	return f
}

// --- Helpers ---

// readJSON decodes a capped request body into v, answering 413 or 400 on
// failure.
func readJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
	var tooBig *http.MaxBytesError
	switch {
	case err == nil:
		return true
	case errors.As(err, &tooBig):
		writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "request body too large"})
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
