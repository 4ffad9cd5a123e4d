package webhook

import (
	"bytes"
	"crypto/subtle"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/h1v3-io/relay/internal/connector"
	"github.com/h1v3-io/relay/pkg/protocol"
)

// SecretHeader carries the secret token Telegram echoes on every webhook
// delivery when one was set with setWebhook.
const SecretHeader = "X-Telegram-Bot-Api-Secret-Token"

const maxBody = 1 << 20 // 1MB

// Decoder turns one request body received for botKey into an inbound event.
// ok is false for payloads that carry nothing to handle.
type Decoder func(botKey string, body io.Reader) (ev protocol.InboundEvent, ok bool, err error)

// Config holds webhook intake configuration.
type Config struct {
	// Secret, when set, must match the SecretHeader value of every request.
	Secret string
}

// Handler accepts provider webhooks at /webhook/{botKey}.
type Handler struct {
	config  Config
	decode  Decoder
	handler connector.InboundHandler
	logger  *slog.Logger
}

// New creates a new webhook handler.
func New(cfg Config, decode Decoder, handler connector.InboundHandler, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		config:  cfg,
		decode:  decode,
		handler: handler,
		logger:  logger,
	}
}

// ServeHTTP handles one webhook delivery. Once the body decodes the response
// is 200 regardless of what the relay did with the event, so the provider
// never re-delivers it.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	botKey := r.PathValue("botKey")
	if botKey == "" {
		botKey = extractName(r.URL.Path)
	}
	if botKey == "" {
		http.Error(w, "missing bot key in path", http.StatusBadRequest)
		return
	}

	if !h.authenticate(r) {
		h.logger.Warn("webhook secret mismatch", "bot", botKey, "remote", r.RemoteAddr)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	ev, ok, err := h.decode(botKey, bytes.NewReader(body))
	if err != nil {
		h.logger.Warn("webhook decode failed", "bot", botKey, "error", err)
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	if ok {
		if err := h.handler(r.Context(), ev); err != nil {
			h.logger.Error("webhook handler error",
				"bot", botKey,
				"error", err,
			)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (h *Handler) authenticate(r *http.Request) bool {
	if h.config.Secret == "" {
		return true
	}
	got := r.Header.Get(SecretHeader)
	return subtle.ConstantTimeCompare([]byte(got), []byte(h.config.Secret)) == 1
}

// extractName gets the last path segment from /webhook/{botKey}.
func extractName(path string) string {
	path = strings.TrimSuffix(path, "/")
	parts := strings.Split(path, "/")
	if len(parts) < 2 || parts[len(parts)-2] != "webhook" {
		return ""
	}
	return parts[len(parts)-1]
}
