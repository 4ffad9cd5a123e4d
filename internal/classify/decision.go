package classify

import "github.com/h1v3-io/relay/pkg/protocol"

// Decision is the classified form of an inbound event. The set of
// implementations is closed.
type Decision interface {
	decision()
	// Bot returns the bot key the event arrived through.
	Bot() string
}

// StartCommand is a /start from any sender.
type StartCommand struct {
	BotKey string
	UserID string
}

// CallbackAction is an operator action decoded from a callback token.
type CallbackAction struct {
	Action       protocol.Action
	BotKey       string
	TargetUserID string
	CallbackID   string
}

// AdminReply is operator content while a reply target is armed for the bot.
type AdminReply struct {
	BotKey  string
	Content protocol.Content
}

// AdminIdle is operator content while nothing is armed for the bot. It has
// no destination and is dropped.
type AdminIdle struct {
	BotKey  string
	Content protocol.Content
}

// UserMessage is content from a user holding an open ticket.
type UserMessage struct {
	BotKey     string
	UserID     string
	SenderName string
	Ticket     protocol.Ticket
	Content    protocol.Content
}

// UnsolicitedMessage is content from a user without an open ticket.
type UnsolicitedMessage struct {
	BotKey string
	UserID string
}

// Ignored is an event the relay deliberately does nothing with. A dropped
// callback keeps its CallbackID so the button can still be answered.
type Ignored struct {
	BotKey     string
	Reason     string
	CallbackID string
}

func (StartCommand) decision()       {}
func (CallbackAction) decision()     {}
func (AdminReply) decision()         {}
func (AdminIdle) decision()          {}
func (UserMessage) decision()        {}
func (UnsolicitedMessage) decision() {}
func (Ignored) decision()            {}

func (d StartCommand) Bot() string       { return d.BotKey }
func (d CallbackAction) Bot() string     { return d.BotKey }
func (d AdminReply) Bot() string         { return d.BotKey }
func (d AdminIdle) Bot() string          { return d.BotKey }
func (d UserMessage) Bot() string        { return d.BotKey }
func (d UnsolicitedMessage) Bot() string { return d.BotKey }
func (d Ignored) Bot() string            { return d.BotKey }
