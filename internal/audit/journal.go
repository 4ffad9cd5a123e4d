// Package audit keeps a write-only history of ticket lifecycle and relay
// events. The relay never reads it back to rebuild state.
package audit

import (
	"context"
	"time"
)

// Kind names a journal entry type.
type Kind string

const (
	KindTicketOpened Kind = "ticket_opened"
	KindTicketClosed Kind = "ticket_closed"
	KindReplyArmed   Kind = "reply_armed"
	KindReplyExpired Kind = "reply_expired"
	KindUserRelayed  Kind = "user_relayed"
	KindAdminRelayed Kind = "admin_relayed"
	KindSendFailed   Kind = "send_failed"
)

// Entry is one journal record.
type Entry struct {
	ID       string    `json:"id"`
	Kind     Kind      `json:"kind"`
	BotKey   string    `json:"bot_key"`
	UserID   string    `json:"user_id,omitempty"`
	TicketID string    `json:"ticket_id,omitempty"`
	Detail   string    `json:"detail,omitempty"`
	At       time.Time `json:"at"`
}

// Filter constrains List queries.
type Filter struct {
	BotKey   string
	UserID   string
	TicketID string
	Kind     Kind
	Limit    int // 0 = no limit
}

// Journal records entries. Record must not block on anything but local I/O.
type Journal interface {
	Record(ctx context.Context, e Entry) error
	List(ctx context.Context, filter Filter) ([]Entry, error)
}

// Nop is a Journal that keeps nothing.
type Nop struct{}

func (Nop) Record(context.Context, Entry) error           { return nil }
func (Nop) List(context.Context, Filter) ([]Entry, error) { return []Entry{}, nil }
