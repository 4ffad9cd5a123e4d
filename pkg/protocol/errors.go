package protocol

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownBotKey is returned for events routed to a bot key that is not
	// configured.
	ErrUnknownBotKey = errors.New("unknown bot key")
	// ErrNoSuchTicket is returned when an action references a (bot, user)
	// pair without a usable ticket.
	ErrNoSuchTicket = errors.New("no such ticket")
)

// ParseError reports a malformed callback action token.
type ParseError struct {
	Token  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse action token %q: %s", e.Token, e.Reason)
}

// SendFailure wraps an error returned by the messaging gateway.
type SendFailure struct {
	BotKey   string
	TargetID string
	Kind     SendKind
	Err      error
}

func (e *SendFailure) Error() string {
	return fmt.Sprintf("send %s to %s via %s: %v", e.Kind, e.TargetID, e.BotKey, e.Err)
}

func (e *SendFailure) Unwrap() error { return e.Err }
