// Package dispatch carries out relay decisions: state mutations first, then
// the outbound sends they imply.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/h1v3-io/relay/internal/audit"
	"github.com/h1v3-io/relay/internal/classify"
	"github.com/h1v3-io/relay/internal/connector"
	"github.com/h1v3-io/relay/pkg/protocol"
)

// DefaultSendTimeout bounds one gateway call when none is configured.
const DefaultSendTimeout = 15 * time.Second

// Sessions is the ticket store the dispatcher mutates.
type Sessions interface {
	GetOrCreate(botKey, userID string) (protocol.Ticket, bool)
	Get(botKey, userID string) (protocol.Ticket, bool)
	Close(botKey, userID string) (protocol.Ticket, bool, error)
}

// Replies is the reply-target router.
type Replies interface {
	Arm(botKey, userID string) (protocol.ReplyIntent, error)
	ConsumeIfArmed(botKey string) (string, bool)
	Invalidate(botKey, userID string) bool
}

// Names resolves a bot's display name.
type Names interface {
	DisplayName(ctx context.Context, botKey string) string
}

// Dispatcher executes decisions. Send failures never undo a committed state
// change; they are logged, journaled and returned as *protocol.SendFailure.
type Dispatcher struct {
	Sessions    Sessions
	Replies     Replies
	Names       Names
	Gateway     connector.Gateway
	Journal     audit.Journal // nil = no journal
	AdminID     string
	SendTimeout time.Duration // 0 = DefaultSendTimeout
	Logger      *slog.Logger
}

// Dispatch executes dec. The returned error is informational: the state
// mutation for dec has already been applied when it is non-nil.
func (d *Dispatcher) Dispatch(ctx context.Context, dec classify.Decision) error {
	switch dec := dec.(type) {
	case classify.StartCommand:
		return d.start(ctx, dec)
	case classify.CallbackAction:
		switch dec.Action {
		case protocol.ActionReply:
			return d.arm(ctx, dec)
		case protocol.ActionClose:
			return d.close(ctx, dec)
		}
		return fmt.Errorf("dispatch: unknown action %q", dec.Action)
	case classify.AdminReply:
		return d.adminReply(ctx, dec)
	case classify.UserMessage:
		return d.userMessage(ctx, dec)
	case classify.UnsolicitedMessage:
		return d.send(ctx, protocol.OutboundSend{
			BotKey:   dec.BotKey,
			TargetID: dec.UserID,
			Kind:     protocol.SendText,
			Text:     unsolicitedText,
		})
	case classify.AdminIdle:
		d.logger().Info("operator message dropped: no reply target armed", "bot", dec.BotKey)
		return nil
	case classify.Ignored:
		d.logger().Debug("event ignored", "bot", dec.BotKey, "reason", dec.Reason)
		return d.ack(ctx, dec.BotKey, dec.CallbackID, "", false)
	}
	return fmt.Errorf("dispatch: unhandled decision %T", dec)
}

func (d *Dispatcher) start(ctx context.Context, dec classify.StartCommand) error {
	t, created := d.Sessions.GetOrCreate(dec.BotKey, dec.UserID)
	if created {
		d.logger().Info("ticket opened", "bot", t.BotKey, "user", t.UserID, "ticket", t.ID)
		d.record(ctx, audit.Entry{Kind: audit.KindTicketOpened, BotKey: t.BotKey, UserID: t.UserID, TicketID: t.ID})
	}

	name := d.Names.DisplayName(ctx, dec.BotKey)
	return d.send(ctx, protocol.OutboundSend{
		BotKey:   dec.BotKey,
		TargetID: dec.UserID,
		Kind:     protocol.SendText,
		Text:     welcomeText(name, t.ID),
		Markup:   protocol.MarkupHTML,
	})
}

func (d *Dispatcher) arm(ctx context.Context, dec classify.CallbackAction) error {
	intent, err := d.Replies.Arm(dec.BotKey, dec.TargetUserID)
	if err != nil {
		d.logger().Warn("arm failed", "bot", dec.BotKey, "user", dec.TargetUserID, "error", err)
		return errors.Join(err, d.ack(ctx, dec.BotKey, dec.CallbackID, ackNoTicket(dec.TargetUserID), true))
	}

	ticketID := d.ticketID(intent.BotKey, intent.TargetUserID)
	d.logger().Info("reply target armed", "bot", intent.BotKey, "user", intent.TargetUserID, "ticket", ticketID)
	d.record(ctx, audit.Entry{Kind: audit.KindReplyArmed, BotKey: intent.BotKey, UserID: intent.TargetUserID, TicketID: ticketID})
	return d.ack(ctx, dec.BotKey, dec.CallbackID, ackArmed(intent.TargetUserID), false)
}

func (d *Dispatcher) close(ctx context.Context, dec classify.CallbackAction) error {
	t, changed, err := d.Sessions.Close(dec.BotKey, dec.TargetUserID)
	if err != nil {
		d.logger().Warn("close failed", "bot", dec.BotKey, "user", dec.TargetUserID, "error", err)
		return errors.Join(err, d.ack(ctx, dec.BotKey, dec.CallbackID, ackNoTicket(dec.TargetUserID), true))
	}
	d.Replies.Invalidate(dec.BotKey, dec.TargetUserID)

	if !changed {
		return d.ack(ctx, dec.BotKey, dec.CallbackID, ackAlreadyClosed(t), false)
	}

	d.logger().Info("ticket closed", "bot", t.BotKey, "user", t.UserID, "ticket", t.ID)
	d.record(ctx, audit.Entry{Kind: audit.KindTicketClosed, BotKey: t.BotKey, UserID: t.UserID, TicketID: t.ID})

	ackErr := d.ack(ctx, dec.BotKey, dec.CallbackID, ackClosed(t), false)
	sendErr := d.send(ctx, protocol.OutboundSend{
		BotKey:   t.BotKey,
		TargetID: t.UserID,
		Kind:     protocol.SendText,
		Text:     closedNotice(t.ID),
	})
	return errors.Join(ackErr, sendErr)
}

func (d *Dispatcher) adminReply(ctx context.Context, dec classify.AdminReply) error {
	target, ok := d.Replies.ConsumeIfArmed(dec.BotKey)
	if !ok {
		d.logger().Info("operator reply dropped: arming expired", "bot", dec.BotKey)
		return nil
	}

	out := protocol.OutboundSend{BotKey: dec.BotKey, TargetID: target}
	if dec.Content.HasMedia() {
		out.Kind = protocol.SendKindFor(dec.Content.MediaKind)
		out.MediaRef = dec.Content.MediaRef
		out.Caption = dec.Content.Text
	} else {
		out.Kind = protocol.SendText
		out.Text = dec.Content.Text
		if out.Text == "" {
			out.Text = emptyReplyBody
		}
	}

	if err := d.send(ctx, out); err != nil {
		return err
	}
	ticketID := d.ticketID(dec.BotKey, target)
	d.logger().Info("operator reply relayed", "bot", dec.BotKey, "user", target, "ticket", ticketID, "kind", out.Kind)
	d.record(ctx, audit.Entry{Kind: audit.KindAdminRelayed, BotKey: dec.BotKey, UserID: target, TicketID: ticketID, Detail: string(out.Kind)})
	return nil
}

func (d *Dispatcher) userMessage(ctx context.Context, dec classify.UserMessage) error {
	name := d.Names.DisplayName(ctx, dec.BotKey)
	header := operatorHeader(name, dec.BotKey, dec.Ticket.ID, dec.SenderName, dec.UserID)

	out := protocol.OutboundSend{BotKey: dec.BotKey, TargetID: d.AdminID}
	if dec.Content.HasMedia() {
		out.Kind = protocol.SendKindFor(dec.Content.MediaKind)
		out.MediaRef = dec.Content.MediaRef
		out.Caption = header + "\n\n" + dec.Content.Text
	} else {
		body := dec.Content.Text
		if body == "" {
			body = nonTextBody
		}
		out.Kind = protocol.SendText
		out.Text = header + "\n\n" + body
	}

	actions, err := actionButtons(dec.UserID)
	if err != nil {
		d.logger().Warn("relaying without actions", "bot", dec.BotKey, "user", dec.UserID, "error", err)
	}
	out.Actions = actions

	if err := d.send(ctx, out); err != nil {
		return err
	}
	d.logger().Info("user message relayed", "bot", dec.BotKey, "user", dec.UserID, "ticket", dec.Ticket.ID, "kind", out.Kind)
	d.record(ctx, audit.Entry{Kind: audit.KindUserRelayed, BotKey: dec.BotKey, UserID: dec.UserID, TicketID: dec.Ticket.ID, Detail: string(out.Kind)})
	return nil
}

func actionButtons(userID string) ([]protocol.ActionButton, error) {
	reply, err := protocol.EncodeAction(protocol.ActionReply, userID)
	if err != nil {
		return nil, err
	}
	closeTok, err := protocol.EncodeAction(protocol.ActionClose, userID)
	if err != nil {
		return nil, err
	}
	return []protocol.ActionButton{
		{Label: replyLabel, Token: reply},
		{Label: closeLabel, Token: closeTok},
	}, nil
}

// send delivers out with a bounded timeout detached from the caller's
// cancellation, so a finished inbound request cannot abort the send.
func (d *Dispatcher) send(ctx context.Context, out protocol.OutboundSend) error {
	sctx, cancel := d.sendContext(ctx)
	defer cancel()

	if err := d.Gateway.Send(sctx, out); err != nil {
		return d.sendFailed(ctx, out.BotKey, out.TargetID, out.Kind, err)
	}
	return nil
}

// ack answers a callback. An empty text clears the button's loading state
// without showing anything.
func (d *Dispatcher) ack(ctx context.Context, botKey, callbackID, text string, alert bool) error {
	if callbackID == "" {
		return nil
	}
	sctx, cancel := d.sendContext(ctx)
	defer cancel()

	err := d.Gateway.Acknowledge(sctx, protocol.Ack{
		BotKey:     botKey,
		CallbackID: callbackID,
		Text:       text,
		Alert:      alert,
	})
	if err != nil {
		return d.sendFailed(ctx, botKey, d.AdminID, "ack", err)
	}
	return nil
}

func (d *Dispatcher) sendFailed(ctx context.Context, botKey, target string, kind protocol.SendKind, err error) error {
	f := &protocol.SendFailure{BotKey: botKey, TargetID: target, Kind: kind, Err: err}
	d.logger().Error("send failed", "bot", botKey, "target", target, "kind", kind, "error", err)
	d.record(ctx, audit.Entry{Kind: audit.KindSendFailed, BotKey: botKey, UserID: target, Detail: f.Error()})
	return f
}

func (d *Dispatcher) sendContext(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := d.SendTimeout
	if timeout <= 0 {
		timeout = DefaultSendTimeout
	}
	return context.WithTimeout(context.WithoutCancel(ctx), timeout)
}

func (d *Dispatcher) ticketID(botKey, userID string) string {
	if t, ok := d.Sessions.Get(botKey, userID); ok {
		return t.ID
	}
	return ""
}

func (d *Dispatcher) record(ctx context.Context, e audit.Entry) {
	if d.Journal == nil {
		return
	}
	if err := d.Journal.Record(context.WithoutCancel(ctx), e); err != nil {
		d.logger().Warn("audit record failed", "kind", e.Kind, "bot", e.BotKey, "error", err)
	}
}

func (d *Dispatcher) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}
