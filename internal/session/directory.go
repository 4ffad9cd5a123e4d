// Package session owns support tickets keyed by (bot key, user id).
//
// State lives only in memory; a restart starts with no tickets.
package session

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/h1v3-io/relay/pkg/protocol"
)

const shardCount = 64

// Filter constrains List and Count.
type Filter struct {
	BotKey string
	Status protocol.TicketStatus // empty = any
	Limit  int                   // 0 = no limit
}

func (f Filter) match(t *protocol.Ticket) bool {
	if f.BotKey != "" && t.BotKey != f.BotKey {
		return false
	}
	if f.Status != "" && t.Status != f.Status {
		return false
	}
	return true
}

type shard struct {
	mu      sync.Mutex
	tickets map[protocol.TicketKey]*protocol.Ticket
}

// Directory is a concurrent ticket store. Operations on one (bot, user) key
// are atomic; keys on different shards never share a lock.
type Directory struct {
	shards [shardCount]*shard

	// Overridable in tests.
	now   func() time.Time
	newID func() string
}

// NewDirectory creates an empty directory.
func NewDirectory() *Directory {
	d := &Directory{
		now:   time.Now,
		newID: generateID,
	}
	for i := range d.shards {
		d.shards[i] = &shard{tickets: make(map[protocol.TicketKey]*protocol.Ticket)}
	}
	return d
}

func (d *Directory) shardFor(key protocol.TicketKey) *shard {
	return d.shards[xxhash.Sum64String(key.BotKey+"\x00"+key.UserID)%shardCount]
}

// GetOrCreate returns the open ticket for (botKey, userID), creating one if
// there is none or the previous ticket is closed. created reports whether a
// new ticket was allocated.
func (d *Directory) GetOrCreate(botKey, userID string) (t protocol.Ticket, created bool) {
	key := protocol.TicketKey{BotKey: botKey, UserID: userID}
	s := d.shardFor(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	if cur, ok := s.tickets[key]; ok && cur.IsOpen() {
		return *cur, false
	}

	// A closed ticket is terminal: replace it with a fresh one.
	nt := &protocol.Ticket{
		ID:        d.newID(),
		BotKey:    botKey,
		UserID:    userID,
		Status:    protocol.TicketOpen,
		CreatedAt: d.now(),
	}
	s.tickets[key] = nt
	return *nt, true
}

// Get returns the current ticket for (botKey, userID), open or closed.
func (d *Directory) Get(botKey, userID string) (protocol.Ticket, bool) {
	key := protocol.TicketKey{BotKey: botKey, UserID: userID}
	s := d.shardFor(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tickets[key]
	if !ok {
		return protocol.Ticket{}, false
	}
	return *t, true
}

// Close marks the ticket for (botKey, userID) closed. Closing an already
// closed ticket succeeds without changes; changed reports whether this call
// performed the transition.
func (d *Directory) Close(botKey, userID string) (t protocol.Ticket, changed bool, err error) {
	key := protocol.TicketKey{BotKey: botKey, UserID: userID}
	s := d.shardFor(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.tickets[key]
	if !ok {
		return protocol.Ticket{}, false, fmt.Errorf("session: close %s/%s: %w", botKey, userID, protocol.ErrNoSuchTicket)
	}
	if !cur.IsOpen() {
		return *cur, false, nil
	}

	now := d.now()
	cur.Status = protocol.TicketClosed
	cur.ClosedAt = &now
	return *cur, true, nil
}

// List returns copies of the tickets matching filter, newest first.
func (d *Directory) List(filter Filter) []protocol.Ticket {
	var out []protocol.Ticket
	for _, s := range d.shards {
		s.mu.Lock()
		for _, t := range s.tickets {
			if filter.match(t) {
				out = append(out, *t)
			}
		}
		s.mu.Unlock()
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out
}

// Count returns the number of tickets matching filter. Limit is ignored.
func (d *Directory) Count(filter Filter) int {
	n := 0
	for _, s := range d.shards {
		s.mu.Lock()
		for _, t := range s.tickets {
			if filter.match(t) {
				n++
			}
		}
		s.mu.Unlock()
	}
	return n
}
