package webhook

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/h1v3-io/relay/internal/connector/telegram"
	"github.com/h1v3-io/relay/pkg/protocol"
)

type capturedEvents struct {
	mu     sync.Mutex
	events []protocol.InboundEvent
	err    error
}

func (c *capturedEvents) handler(_ context.Context, ev protocol.InboundEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return c.err
}

func (c *capturedEvents) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func (c *capturedEvents) last() protocol.InboundEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.events[len(c.events)-1]
}

func newTestHandler(secret string) (*Handler, *capturedEvents) {
	cap := &capturedEvents{}
	h := New(Config{Secret: secret}, telegram.DecodeWebhook, cap.handler, nil)
	return h, cap
}

const textUpdate = `{"update_id":1,"message":{"message_id":1,"date":0,
	"chat":{"id":42,"type":"private"},"from":{"id":42,"is_bot":false,"username":"ann"},"text":"hello"}}`

func post(h http.Handler, path, body string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestWebhook_BasicPost(t *testing.T) {
	h, cap := newTestHandler("")

	w := post(h, "/webhook/botA", textUpdate, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	ev := cap.last()
	if ev.BotKey != "botA" {
		t.Errorf("bot key = %q", ev.BotKey)
	}
	if ev.SenderID != "42" || ev.Text != "hello" {
		t.Errorf("unexpected event: %+v", ev)
	}
}

func TestWebhook_PathValue(t *testing.T) {
	h, cap := newTestHandler("")
	mux := http.NewServeMux()
	mux.Handle("POST /webhook/{botKey}", h)

	w := post(mux, "/webhook/botB", textUpdate, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if ev := cap.last(); ev.BotKey != "botB" {
		t.Errorf("bot key = %q", ev.BotKey)
	}
}

func TestWebhook_SecretToken(t *testing.T) {
	h, cap := newTestHandler("s3cret")

	if w := post(h, "/webhook/botA", textUpdate, nil); w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without secret, got %d", w.Code)
	}
	if w := post(h, "/webhook/botA", textUpdate, map[string]string{SecretHeader: "wrong"}); w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 with wrong secret, got %d", w.Code)
	}
	if cap.count() != 0 {
		t.Fatal("unauthorized request reached the handler")
	}
	if w := post(h, "/webhook/botA", textUpdate, map[string]string{SecretHeader: "s3cret"}); w.Code != http.StatusOK {
		t.Errorf("expected 200 with secret, got %d", w.Code)
	}
}

func TestWebhook_HandlerErrorStillOK(t *testing.T) {
	h, cap := newTestHandler("")
	cap.err = errors.New("boom")

	if w := post(h, "/webhook/botA", textUpdate, nil); w.Code != http.StatusOK {
		t.Errorf("expected 200 so the provider does not re-deliver, got %d", w.Code)
	}
}

func TestWebhook_SkipsUnhandledUpdates(t *testing.T) {
	h, cap := newTestHandler("")

	w := post(h, "/webhook/botA", `{"update_id":2,"edited_message":{"message_id":1,"date":0,"chat":{"id":1,"type":"private"}}}`, nil)
	if w.Code != http.StatusOK {
		t.Errorf("status = %d", w.Code)
	}
	if cap.count() != 0 {
		t.Error("unhandled update reached the handler")
	}
}

func TestWebhook_BadRequests(t *testing.T) {
	h, _ := newTestHandler("")

	req := httptest.NewRequest(http.MethodGet, "/webhook/botA", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET: status = %d", w.Code)
	}

	if w := post(h, "/webhook/botA", "{bad", nil); w.Code != http.StatusBadRequest {
		t.Errorf("bad JSON: status = %d", w.Code)
	}
	if w := post(h, "/hooks", textUpdate, nil); w.Code != http.StatusBadRequest {
		t.Errorf("missing key: status = %d", w.Code)
	}
}

func TestExtractName(t *testing.T) {
	tests := map[string]string{
		"/webhook/botA":  "botA",
		"/webhook/botA/": "botA",
		"/webhook":       "",
		"/api/other/x":   "",
	}
	for in, want := range tests {
		if got := extractName(in); got != want {
			t.Errorf("extractName(%q) = %q, want %q", in, got, want)
		}
	}
}
