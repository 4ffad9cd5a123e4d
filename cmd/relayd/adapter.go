package main

import (
	"context"
	"net/http"

	"github.com/h1v3-io/relay/internal/audit"
	"github.com/h1v3-io/relay/internal/connector/webhook"
	"github.com/h1v3-io/relay/internal/registry"
	"github.com/h1v3-io/relay/internal/reply"
	"github.com/h1v3-io/relay/internal/scheduler"
	"github.com/h1v3-io/relay/internal/session"
	"github.com/h1v3-io/relay/pkg/protocol"
)

// relayServiceAdapter implements api.RelayService over the live relay state.
type relayServiceAdapter struct {
	reg     *registry.Registry
	dir     *session.Directory
	router  *reply.Router
	journal audit.Journal
	sched   *scheduler.Scheduler
}

func (a *relayServiceAdapter) ListBots() []protocol.BotIdentity {
	return a.reg.Identities()
}

func (a *relayServiceAdapter) ListTickets(filter session.Filter) []protocol.Ticket {
	return a.dir.List(filter)
}

func (a *relayServiceAdapter) GetTicket(botKey, userID string) (protocol.Ticket, bool) {
	return a.dir.Get(botKey, userID)
}

func (a *relayServiceAdapter) ListReplies() []protocol.ReplyIntent {
	return a.router.Snapshot()
}

func (a *relayServiceAdapter) ListAudit(ctx context.Context, filter audit.Filter) ([]audit.Entry, error) {
	return a.journal.List(ctx, filter)
}

func (a *relayServiceAdapter) ListJobs() []scheduler.JobInfo {
	return a.sched.ListJobs()
}

// webhookHandler keeps a nil *webhook.Handler from becoming a non-nil
// http.Handler interface value.
func webhookHandler(h *webhook.Handler) http.Handler {
	if h == nil {
		return nil
	}
	return h
}
