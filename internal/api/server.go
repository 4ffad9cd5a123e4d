package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/h1v3-io/relay/internal/audit"
	"github.com/h1v3-io/relay/internal/logbuf"
	"github.com/h1v3-io/relay/internal/scheduler"
	"github.com/h1v3-io/relay/internal/session"
	"github.com/h1v3-io/relay/pkg/protocol"
)

// LogQuerier abstracts log entry querying to avoid coupling to logbuf directly.
type LogQuerier interface {
	Query(filter logbuf.Filter) []logbuf.Entry
}

// RelayService is the interface the API server needs from the relay.
type RelayService interface {
	ListBots() []protocol.BotIdentity
	ListTickets(filter session.Filter) []protocol.Ticket
	GetTicket(botKey, userID string) (protocol.Ticket, bool)
	ListReplies() []protocol.ReplyIntent
	ListAudit(ctx context.Context, filter audit.Filter) ([]audit.Entry, error)
	ListJobs() []scheduler.JobInfo
}

// Config holds API server configuration.
type Config struct {
	Host string
	Port int
	Key  string // API key for Bearer auth
}

// Server is the relay's HTTP server: webhook intake plus the operator
// status API.
type Server struct {
	svc    RelayService
	cfg    Config
	logger *slog.Logger
	logs   LogQuerier
	srv    *http.Server
}

// NewServer creates a new API server. logs and webhook may be nil; webhook
// is mounted at POST /webhook/{botKey} outside Bearer auth.
func NewServer(svc RelayService, cfg Config, logger *slog.Logger, logs LogQuerier, webhook http.Handler) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		svc:    svc,
		cfg:    cfg,
		logger: logger,
		logs:   logs,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/bots", s.requireAuth(s.handleListBots))
	mux.HandleFunc("GET /api/tickets", s.requireAuth(s.handleListTickets))
	mux.HandleFunc("GET /api/tickets/{bot}/{user}", s.requireAuth(s.handleGetTicket))
	mux.HandleFunc("GET /api/replies", s.requireAuth(s.handleListReplies))
	mux.HandleFunc("GET /api/audit", s.requireAuth(s.handleListAudit))
	mux.HandleFunc("GET /api/jobs", s.requireAuth(s.handleListJobs))
	mux.HandleFunc("GET /api/logs", s.requireAuth(s.handleGetLogs))
	if webhook != nil {
		mux.Handle("POST /webhook/{botKey}", webhook)
	}

	s.srv = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           s.corsMiddleware(mux),
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
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
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
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.Key == "" {
			next(w, r)
			return
		}
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") || strings.TrimPrefix(auth, "Bearer ") != s.cfg.Key {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		next(w, r)
	}
}

// --- Handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"bots":   len(s.svc.ListBots()),
	})
}

func (s *Server) handleListBots(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.ListBots())
}

func (s *Server) handleListTickets(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := session.Filter{
		BotKey: q.Get("bot"),
		Limit:  queryInt(q.Get("limit"), 0),
	}
	if status := q.Get("status"); status != "" {
		ts := protocol.TicketStatus(status)
		if ts != protocol.TicketOpen && ts != protocol.TicketClosed {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "status must be open or closed"})
			return
		}
		filter.Status = ts
	}

	tickets := s.svc.ListTickets(filter)
	if tickets == nil {
		tickets = []protocol.Ticket{}
	}
	writeJSON(w, http.StatusOK, tickets)
}

func (s *Server) handleGetTicket(w http.ResponseWriter, r *http.Request) {
	t, ok := s.svc.GetTicket(r.PathValue("bot"), r.PathValue("user"))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "ticket not found"})
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleListReplies(w http.ResponseWriter, _ *http.Request) {
	replies := s.svc.ListReplies()
	if replies == nil {
		replies = []protocol.ReplyIntent{}
	}
	writeJSON(w, http.StatusOK, replies)
}

func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	entries, err := s.svc.ListAudit(r.Context(), audit.Filter{
		BotKey:   q.Get("bot"),
		UserID:   q.Get("user"),
		TicketID: q.Get("ticket"),
		Kind:     audit.Kind(q.Get("kind")),
		Limit:    queryInt(q.Get("limit"), 100),
	})
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleListJobs(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.ListJobs())
}

func (s *Server) handleGetLogs(w http.ResponseWriter, r *http.Request) {
	if s.logs == nil {
		writeJSON(w, http.StatusOK, []logbuf.Entry{})
		return
	}

	q := r.URL.Query()
	filter := logbuf.Filter{
		MinLevel: logbuf.ParseLevel(q.Get("level")),
		Limit:    queryInt(q.Get("limit"), 200),
		Bot:      q.Get("bot"),
	}
	if s := q.Get("since"); s != "" {
		if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
			filter.Since = time.UnixMilli(ms)
		}
	}

	entries := s.logs.Query(filter)
	if entries == nil {
		entries = []logbuf.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// --- Helpers ---

func queryInt(s string, fallback int) int {
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return fallback
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
