// Package relay wires the classifier and the dispatcher into the single
// inbound handler every transport calls.
package relay

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/h1v3-io/relay/internal/audit"
	"github.com/h1v3-io/relay/internal/classify"
	"github.com/h1v3-io/relay/internal/connector"
	"github.com/h1v3-io/relay/internal/dispatch"
	"github.com/h1v3-io/relay/internal/registry"
	"github.com/h1v3-io/relay/internal/reply"
	"github.com/h1v3-io/relay/internal/session"
	"github.com/h1v3-io/relay/pkg/protocol"
)

// Options configures an Engine.
type Options struct {
	Registry    *registry.Registry
	Sessions    *session.Directory
	Replies     *reply.Router
	Gateway     connector.Gateway
	Journal     audit.Journal
	AdminID     string
	SendTimeout time.Duration
	Logger      *slog.Logger
}

// Engine handles inbound events: classify, then dispatch.
type Engine struct {
	classifier *classify.Classifier
	dispatcher *dispatch.Dispatcher
	logger     *slog.Logger
}

// New creates an engine over the shared relay state.
func New(opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	journal := opts.Journal
	if journal == nil {
		journal = audit.Nop{}
	}
	return &Engine{
		classifier: &classify.Classifier{
			Bots:    opts.Registry,
			Tickets: opts.Sessions,
			Replies: opts.Replies,
			AdminID: opts.AdminID,
		},
		dispatcher: &dispatch.Dispatcher{
			Sessions:    opts.Sessions,
			Replies:     opts.Replies,
			Names:       opts.Registry,
			Gateway:     opts.Gateway,
			Journal:     journal,
			AdminID:     opts.AdminID,
			SendTimeout: opts.SendTimeout,
			Logger:      logger.With("component", "dispatch"),
		},
		logger: logger.With("component", "relay"),
	}
}

// HandleEvent processes one inbound event. It returns nil for every
// recoverable outcome so transports acknowledge the event upstream and the
// provider never re-delivers it.
func (e *Engine) HandleEvent(ctx context.Context, ev protocol.InboundEvent) error {
	eventID := ev.CorrelationHint
	if eventID == "" {
		eventID = uuid.NewString()
	}
	log := e.logger.With("event_id", eventID, "bot", ev.BotKey)

	dec, err := e.classifier.Classify(ev)
	if err != nil {
		var pe *protocol.ParseError
		switch {
		case errors.Is(err, protocol.ErrUnknownBotKey):
			log.Warn("event rejected: unknown bot key")
		case errors.As(err, &pe):
			log.Warn("event dropped: malformed action token", "token", pe.Token, "reason", pe.Reason)
			if ev.Kind == protocol.EventCallback {
				e.dispatcher.Dispatch(ctx, classify.Ignored{
					BotKey:     ev.BotKey,
					Reason:     "malformed action token",
					CallbackID: ev.CorrelationHint,
				})
			}
		default:
			log.Error("classify failed", "error", err)
		}
		return nil
	}

	log.Debug("event classified", "decision", decisionName(dec), "sender", ev.SenderID)

	if err := e.dispatcher.Dispatch(ctx, dec); err != nil {
		// Already logged by the dispatcher; state changes stay committed.
		log.Debug("dispatch finished with recovered error", "decision", decisionName(dec), "error", err)
	}
	return nil
}

// Handler adapts the engine to connector.InboundHandler.
func (e *Engine) Handler() connector.InboundHandler {
	return e.HandleEvent
}

func decisionName(dec classify.Decision) string {
	switch dec.(type) {
	case classify.StartCommand:
		return "start"
	case classify.CallbackAction:
		return "callback"
	case classify.AdminReply:
		return "admin_reply"
	case classify.AdminIdle:
		return "admin_idle"
	case classify.UserMessage:
		return "user_message"
	case classify.UnsolicitedMessage:
		return "unsolicited"
	case classify.Ignored:
		return "ignored"
	}
	return "unknown"
}
