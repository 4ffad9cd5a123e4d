package protocol

import "time"

// TicketStatus represents the lifecycle state of a ticket.
type TicketStatus string

const (
	TicketOpen   TicketStatus = "open"
	TicketClosed TicketStatus = "closed"
)

// TicketKey identifies the conversation a ticket belongs to. The same user
// talking to two bot identities holds two independent tickets.
type TicketKey struct {
	BotKey string `json:"bot_key"`
	UserID string `json:"user_id"`
}

// Ticket is one support conversation between a user and the operator,
// scoped to a single bot identity.
type Ticket struct {
	ID        string       `json:"id"`
	BotKey    string       `json:"bot_key"`
	UserID    string       `json:"user_id"`
	Status    TicketStatus `json:"status"`
	CreatedAt time.Time    `json:"created_at"`
	ClosedAt  *time.Time   `json:"closed_at,omitempty"`
}

// Key returns the (bot, user) pair the ticket is filed under.
func (t Ticket) Key() TicketKey {
	return TicketKey{BotKey: t.BotKey, UserID: t.UserID}
}

// IsOpen reports whether the ticket still accepts messages.
func (t Ticket) IsOpen() bool {
	return t.Status == TicketOpen
}

// ReplyIntent is the operator's declared target for their next message
// through one bot identity.
type ReplyIntent struct {
	BotKey       string    `json:"bot_key"`
	TargetUserID string    `json:"target_user_id"`
	ArmedAt      time.Time `json:"armed_at"`
}
