// Package reply tracks, per bot identity, which user the operator's next
// message is addressed to.
package reply

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/h1v3-io/relay/pkg/protocol"
)

// TicketLookup is the read side of the session directory.
type TicketLookup interface {
	Get(botKey, userID string) (protocol.Ticket, bool)
}

// Router holds at most one live ReplyIntent per bot key. Arming a second
// target for the same bot replaces the first (last writer wins).
type Router struct {
	tickets TicketLookup
	ttl     time.Duration // 0 = intents never expire

	mu      sync.Mutex
	intents map[string]protocol.ReplyIntent // bot key → intent

	now func() time.Time
}

// New creates a router validating targets against tickets. A positive ttl
// makes armings expire if unused.
func New(tickets TicketLookup, ttl time.Duration) *Router {
	return &Router{
		tickets: tickets,
		ttl:     ttl,
		intents: make(map[string]protocol.ReplyIntent),
		now:     time.Now,
	}
}

// Arm points the operator's next message through botKey at userID. The
// target must hold an open ticket under the same bot.
func (r *Router) Arm(botKey, userID string) (protocol.ReplyIntent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// The ticket check runs under the router lock so a concurrent
	// close+Invalidate cannot slip between the check and the store.
	t, ok := r.tickets.Get(botKey, userID)
	if !ok || !t.IsOpen() {
		return protocol.ReplyIntent{}, fmt.Errorf("reply: arm %s/%s: %w", botKey, userID, protocol.ErrNoSuchTicket)
	}

	intent := protocol.ReplyIntent{
		BotKey:       botKey,
		TargetUserID: userID,
		ArmedAt:      r.now(),
	}
	r.intents[botKey] = intent
	return intent, nil
}

// Armed returns the live intent for botKey without consuming it.
func (r *Router) Armed(botKey string) (protocol.ReplyIntent, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	intent, ok := r.intents[botKey]
	if !ok || r.expired(intent) {
		return protocol.ReplyIntent{}, false
	}
	return intent, true
}

// ConsumeIfArmed atomically reads and clears the intent for botKey. Only one
// of several concurrent callers receives the target.
func (r *Router) ConsumeIfArmed(botKey string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	intent, ok := r.intents[botKey]
	if !ok {
		return "", false
	}
	delete(r.intents, botKey)
	if r.expired(intent) {
		return "", false
	}
	return intent.TargetUserID, true
}

// Invalidate drops the intent for botKey if it targets userID. It reports
// whether an intent was removed.
func (r *Router) Invalidate(botKey, userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	intent, ok := r.intents[botKey]
	if !ok || intent.TargetUserID != userID {
		return false
	}
	delete(r.intents, botKey)
	return true
}

// Sweep removes expired intents and returns them.
func (r *Router) Sweep() []protocol.ReplyIntent {
	if r.ttl <= 0 {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var expired []protocol.ReplyIntent
	for key, intent := range r.intents {
		if r.expired(intent) {
			expired = append(expired, intent)
			delete(r.intents, key)
		}
	}
	return expired
}

// Snapshot returns the live intents ordered by bot key.
func (r *Router) Snapshot() []protocol.ReplyIntent {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]protocol.ReplyIntent, 0, len(r.intents))
	for _, intent := range r.intents {
		if !r.expired(intent) {
			out = append(out, intent)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BotKey < out[j].BotKey })
	return out
}

func (r *Router) expired(intent protocol.ReplyIntent) bool {
	return r.ttl > 0 && r.now().Sub(intent.ArmedAt) > r.ttl
}
