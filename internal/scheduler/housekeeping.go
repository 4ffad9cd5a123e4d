package scheduler

import (
	"context"
	"log/slog"

	"github.com/h1v3-io/relay/internal/audit"
	"github.com/h1v3-io/relay/internal/session"
	"github.com/h1v3-io/relay/pkg/protocol"
)

// Job names.
const (
	SweepJobName = "sweep-armings"
	StatsJobName = "ticket-stats"
)

// ArmingSweeper removes expired reply armings.
type ArmingSweeper interface {
	Sweep() []protocol.ReplyIntent
	Snapshot() []protocol.ReplyIntent
}

// TicketCounter counts tickets.
type TicketCounter interface {
	Count(filter session.Filter) int
}

// SweepJob returns a job that clears expired armings and journals each one.
func SweepJob(replies ArmingSweeper, journal audit.Journal, logger *slog.Logger) func() {
	if logger == nil {
		logger = slog.Default()
	}
	return func() {
		for _, intent := range replies.Sweep() {
			logger.Info("reply arming expired",
				"bot", intent.BotKey,
				"user", intent.TargetUserID,
				"armed_at", intent.ArmedAt,
			)
			if journal == nil {
				continue
			}
			err := journal.Record(context.Background(), audit.Entry{
				Kind:   audit.KindReplyExpired,
				BotKey: intent.BotKey,
				UserID: intent.TargetUserID,
			})
			if err != nil {
				logger.Warn("audit record failed", "kind", audit.KindReplyExpired, "error", err)
			}
		}
	}
}

// StatsJob returns a job that logs ticket and arming counts.
func StatsJob(tickets TicketCounter, replies ArmingSweeper, logger *slog.Logger) func() {
	if logger == nil {
		logger = slog.Default()
	}
	return func() {
		logger.Info("relay stats",
			"open_tickets", tickets.Count(session.Filter{Status: protocol.TicketOpen}),
			"closed_tickets", tickets.Count(session.Filter{Status: protocol.TicketClosed}),
			"armed_bots", len(replies.Snapshot()),
		)
	}
}
