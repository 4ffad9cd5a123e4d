package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/h1v3-io/relay/internal/connector"
	"github.com/h1v3-io/relay/pkg/protocol"
)

// Verify Connector implements connector.Connector at compile time.
var _ connector.Connector = (*Connector)(nil)

type apiCall struct {
	token  string
	method string
	form   map[string]string
}

// fakeBotAPI impersonates the Telegram Bot API.
type fakeBotAPI struct {
	mu         sync.Mutex
	calls      []apiCall
	rejectHTML bool
	updates    string // JSON array served once by getUpdates
}

func (f *fakeBotAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/bot"), "/")
	if len(parts) != 2 {
		http.NotFound(w, r)
		return
	}
	r.ParseForm()
	form := make(map[string]string)
	for k := range r.PostForm {
		form[k] = r.PostForm.Get(k)
	}

	f.mu.Lock()
	f.calls = append(f.calls, apiCall{token: parts[0], method: parts[1], form: form})
	updates := f.updates
	f.updates = ""
	reject := f.rejectHTML && form["parse_mode"] == "HTML"
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch {
	case reject:
		fmt.Fprint(w, `{"ok":false,"error_code":400,"description":"Bad Request: can't parse entities"}`)
	case parts[1] == "getMe":
		fmt.Fprintf(w, `{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"Acme Help %s","username":"acme_bot"}}`, parts[0])
	case parts[1] == "answerCallbackQuery":
		fmt.Fprint(w, `{"ok":true,"result":true}`)
	case parts[1] == "getUpdates":
		if updates == "" {
			time.Sleep(10 * time.Millisecond)
			updates = "[]"
		}
		fmt.Fprintf(w, `{"ok":true,"result":%s}`, updates)
	default:
		fmt.Fprint(w, `{"ok":true,"result":{"message_id":1,"date":0,"chat":{"id":42,"type":"private"}}}`)
	}
}

func (f *fakeBotAPI) recorded() []apiCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]apiCall(nil), f.calls...)
}

func newTestConnector(t *testing.T, api *fakeBotAPI, mode string, handler connector.InboundHandler) *Connector {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	c, err := New(Config{
		Bots: map[string]protocol.Credential{
			"botA": "tokenA",
			"botB": "tokenB",
		},
		Mode:        mode,
		APIEndpoint: srv.URL + "/bot%s/%s",
		PollTimeout: 1,
	}, handler, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestSend_TextWithActions(t *testing.T) {
	api := &fakeBotAPI{}
	c := newTestConnector(t, api, ModeWebhook, nil)

	err := c.Send(context.Background(), protocol.OutboundSend{
		BotKey:   "botB",
		TargetID: "42",
		Kind:     protocol.SendText,
		Text:     "hello",
		Actions: []protocol.ActionButton{
			{Label: "Reply", Token: "reply_42"},
			{Label: "Close", Token: "close_42"},
		},
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	calls := api.recorded()
	if len(calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(calls))
	}
	call := calls[0]
	if call.token != "tokenB" || call.method != "sendMessage" {
		t.Errorf("call = %s/%s", call.token, call.method)
	}
	if call.form["chat_id"] != "42" || call.form["text"] != "hello" {
		t.Errorf("form = %v", call.form)
	}
	markup := call.form["reply_markup"]
	if !strings.Contains(markup, `"callback_data":"reply_42"`) || !strings.Contains(markup, `"callback_data":"close_42"`) {
		t.Errorf("reply_markup = %q", markup)
	}
}

func TestSend_MediaKinds(t *testing.T) {
	tests := []struct {
		kind   protocol.SendKind
		method string
		field  string
	}{
		{protocol.SendPhoto, "sendPhoto", "photo"},
		{protocol.SendVideo, "sendVideo", "video"},
		{protocol.SendDocument, "sendDocument", "document"},
		{protocol.SendAudio, "sendAudio", "audio"},
		{protocol.SendVoice, "sendVoice", "voice"},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			api := &fakeBotAPI{}
			c := newTestConnector(t, api, ModeWebhook, nil)

			err := c.Send(context.Background(), protocol.OutboundSend{
				BotKey: "botA", TargetID: "42", Kind: tt.kind, MediaRef: "file-123", Caption: "cap",
			})
			if err != nil {
				t.Fatalf("Send: %v", err)
			}
			call := api.recorded()[0]
			if call.method != tt.method {
				t.Errorf("method = %q, want %q", call.method, tt.method)
			}
			if call.form[tt.field] != "file-123" || call.form["caption"] != "cap" {
				t.Errorf("form = %v", call.form)
			}
			if _, ok := call.form["reply_markup"]; ok {
				t.Error("unexpected reply_markup without actions")
			}
		})
	}
}

func TestSend_HTMLFallback(t *testing.T) {
	api := &fakeBotAPI{rejectHTML: true}
	c := newTestConnector(t, api, ModeWebhook, nil)

	err := c.Send(context.Background(), protocol.OutboundSend{
		BotKey: "botA", TargetID: "42", Kind: protocol.SendText,
		Text: "bot of <b>Acme &amp; Co</b>", Markup: protocol.MarkupHTML,
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	calls := api.recorded()
	if len(calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(calls))
	}
	if calls[1].form["text"] != "bot of Acme & Co" || calls[1].form["parse_mode"] != "" {
		t.Errorf("fallback form = %v", calls[1].form)
	}
}

func TestSend_Errors(t *testing.T) {
	api := &fakeBotAPI{}
	c := newTestConnector(t, api, ModeWebhook, nil)
	ctx := context.Background()

	err := c.Send(ctx, protocol.OutboundSend{BotKey: "nope", TargetID: "1", Kind: protocol.SendText, Text: "x"})
	if !errors.Is(err, protocol.ErrUnknownBotKey) {
		t.Errorf("expected ErrUnknownBotKey, got %v", err)
	}
	if err := c.Send(ctx, protocol.OutboundSend{BotKey: "botA", TargetID: "abc", Kind: protocol.SendText, Text: "x"}); err == nil {
		t.Error("expected error for non-numeric chat id")
	}
	if err := c.Send(ctx, protocol.OutboundSend{BotKey: "botA", TargetID: "1", Kind: protocol.SendPhoto}); err == nil {
		t.Error("expected error for photo without media ref")
	}
	if n := len(api.recorded()); n != 0 {
		t.Errorf("invalid sends reached the API: %d calls", n)
	}
}

func TestAcknowledge(t *testing.T) {
	api := &fakeBotAPI{}
	c := newTestConnector(t, api, ModeWebhook, nil)

	if err := c.Acknowledge(context.Background(), protocol.Ack{BotKey: "botA", CallbackID: "cb-9", Text: "No open ticket", Alert: true}); err != nil {
		t.Fatalf("Acknowledge: %v", err)
	}
	call := api.recorded()[0]
	if call.method != "answerCallbackQuery" {
		t.Errorf("method = %q", call.method)
	}
	if call.form["callback_query_id"] != "cb-9" || call.form["show_alert"] != "true" || call.form["text"] != "No open ticket" {
		t.Errorf("form = %v", call.form)
	}
}

func TestFetchDisplayName(t *testing.T) {
	api := &fakeBotAPI{}
	c := newTestConnector(t, api, ModeWebhook, nil)

	name, err := c.FetchDisplayName(context.Background(), "botA")
	if err != nil {
		t.Fatalf("FetchDisplayName: %v", err)
	}
	if name != "Acme Help tokenA" {
		t.Errorf("name = %q", name)
	}
}

func TestPolling_DeliversUpdates(t *testing.T) {
	api := &fakeBotAPI{updates: `[{"update_id":7,"message":{"message_id":1,"date":0,"chat":{"id":42,"type":"private"},"from":{"id":42,"is_bot":false,"first_name":"Ann"},"text":"hello"}}]`}
	got := make(chan protocol.InboundEvent, 4)
	c := newTestConnector(t, api, ModePolling, func(_ context.Context, ev protocol.InboundEvent) error {
		got <- ev
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx) }()

	select {
	case ev := <-got:
		if ev.Text != "hello" || ev.SenderID != "42" {
			t.Errorf("unexpected event: %+v", ev)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no event delivered")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Config{}, nil, nil); err == nil {
		t.Error("expected error for no bots")
	}
	if _, err := New(Config{Bots: map[string]protocol.Credential{"a": ""}}, nil, nil); err == nil {
		t.Error("expected error for empty token")
	}
}
