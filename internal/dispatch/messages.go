package dispatch

import (
	"fmt"
	"html"
	"strings"

	"github.com/h1v3-io/relay/pkg/protocol"
)

const (
	noUsername      = "(no username)"
	nonTextBody     = "[non-text message]"
	emptyReplyBody  = "[reply]"
	unsolicitedText = "Please send /start to open a support ticket."

	replyLabel = "↩️ Reply"
	closeLabel = "✖️ Close"
)

// welcomeText greets a user who just sent /start. The bot name is escaped
// for HTML markup.
func welcomeText(botName, ticketID string) string {
	var b strings.Builder
	b.WriteString("👋 Welcome!\n\n")
	fmt.Fprintf(&b, "This is a relay support bot of <b>%s</b>.\n", html.EscapeString(botName))
	b.WriteString("Send your message and it will be delivered to our team.\n")
	b.WriteString("We’ll reply here as soon as possible.\n\n")
	fmt.Fprintf(&b, "Your ticket: #%s", html.EscapeString(ticketID))
	return b.String()
}

// operatorHeader tags a relayed user message for the operator.
func operatorHeader(botName, botKey, ticketID, sender, userID string) string {
	if sender == "" {
		sender = noUsername
	}
	bot := botKey
	if botName != "" && botName != botKey {
		bot = fmt.Sprintf("%s (%s)", botName, botKey)
	}
	return fmt.Sprintf("📩 New message\nBot: %s\nTicket: #%s\nFrom: %s\nUser ID: %s",
		bot, ticketID, sender, userID)
}

func closedNotice(ticketID string) string {
	return fmt.Sprintf("✅ Your ticket #%s has been closed.\nSend /start if you need anything else.", ticketID)
}

func ackArmed(userID string) string {
	return fmt.Sprintf("Replying to user %s. Your next message goes to them.", userID)
}

func ackNoTicket(userID string) string {
	return fmt.Sprintf("No open ticket for user %s.", userID)
}

func ackClosed(t protocol.Ticket) string {
	return fmt.Sprintf("Ticket #%s closed.", t.ID)
}

func ackAlreadyClosed(t protocol.Ticket) string {
	return fmt.Sprintf("Ticket #%s is already closed.", t.ID)
}
