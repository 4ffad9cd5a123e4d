// Package classify turns inbound events into relay decisions.
package classify

import (
	"fmt"
	"strings"

	"github.com/h1v3-io/relay/pkg/protocol"
)

// StartText is the command that opens a ticket.
const StartText = "/start"

// BotResolver checks that an event's bot key is configured.
type BotResolver interface {
	Resolve(botKey string) (protocol.BotIdentity, error)
}

// TicketLookup is the read side of the session directory.
type TicketLookup interface {
	Get(botKey, userID string) (protocol.Ticket, bool)
}

// ArmingLookup is the non-mutating view of the reply router.
type ArmingLookup interface {
	Armed(botKey string) (protocol.ReplyIntent, bool)
}

// Classifier is a pure function of the event, the current session/router
// state and the configured admin id. It never mutates state.
type Classifier struct {
	Bots    BotResolver
	Tickets TicketLookup
	Replies ArmingLookup
	AdminID string
}

// Classify returns the decision for ev. Errors are protocol.ErrUnknownBotKey
// (wrapped) and *protocol.ParseError; both stop the event here.
func (c *Classifier) Classify(ev protocol.InboundEvent) (Decision, error) {
	if _, err := c.Bots.Resolve(ev.BotKey); err != nil {
		return nil, err
	}

	if ev.Kind == protocol.EventCallback {
		return c.classifyCallback(ev)
	}

	if ev.SenderID == "" {
		return Ignored{BotKey: ev.BotKey, Reason: "event has no sender"}, nil
	}

	if isStart(ev) {
		return StartCommand{BotKey: ev.BotKey, UserID: ev.SenderID}, nil
	}

	content := ev.Content()
	if ev.SenderID == c.AdminID {
		if _, armed := c.Replies.Armed(ev.BotKey); armed {
			return AdminReply{BotKey: ev.BotKey, Content: content}, nil
		}
		return AdminIdle{BotKey: ev.BotKey, Content: content}, nil
	}

	t, ok := c.Tickets.Get(ev.BotKey, ev.SenderID)
	if !ok || !t.IsOpen() {
		return UnsolicitedMessage{BotKey: ev.BotKey, UserID: ev.SenderID}, nil
	}
	return UserMessage{
		BotKey:     ev.BotKey,
		UserID:     ev.SenderID,
		SenderName: ev.SenderName,
		Ticket:     t,
		Content:    content,
	}, nil
}

func (c *Classifier) classifyCallback(ev protocol.InboundEvent) (Decision, error) {
	token := ev.CallbackData
	if ev.CallbackAction != "" {
		// Pre-decoded fields go back through the same codec.
		token = string(ev.CallbackAction) + "_" + ev.CallbackTargetID
	}
	tok, err := protocol.DecodeAction(token)
	if err != nil {
		return nil, err
	}
	action, target := tok.Action, tok.UserID

	if ev.SenderID != c.AdminID {
		return Ignored{
			BotKey:     ev.BotKey,
			Reason:     fmt.Sprintf("%s callback from non-admin sender", action),
			CallbackID: ev.CorrelationHint,
		}, nil
	}

	return CallbackAction{
		Action:       action,
		BotKey:       ev.BotKey,
		TargetUserID: target,
		CallbackID:   ev.CorrelationHint,
	}, nil
}

func isStart(ev protocol.InboundEvent) bool {
	if ev.Kind != protocol.EventContent && ev.Kind != protocol.EventCommand {
		return false
	}
	return strings.TrimSpace(ev.Text) == StartText
}
