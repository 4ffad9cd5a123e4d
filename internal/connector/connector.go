package connector

import (
	"context"

	"github.com/h1v3-io/relay/pkg/protocol"
)

// Gateway delivers outbound sends and callback acknowledgments to the
// messaging provider. Implementations must be safe for concurrent use.
type Gateway interface {
	// Send delivers one message through the bot identity named in msg.
	Send(ctx context.Context, msg protocol.OutboundSend) error
	// Acknowledge answers a callback action at its origin.
	Acknowledge(ctx context.Context, ack protocol.Ack) error
}

// Connector is a messaging platform that both receives and sends.
type Connector interface {
	Gateway
	// Name returns the connector type (e.g., "telegram").
	Name() string
	// Start begins receiving inbound events. Blocks until context is cancelled.
	Start(ctx context.Context) error
	// Stop gracefully shuts down the connector.
	Stop() error
}

// InboundHandler processes events received from a transport. Handlers are
// called concurrently.
type InboundHandler func(ctx context.Context, ev protocol.InboundEvent) error
