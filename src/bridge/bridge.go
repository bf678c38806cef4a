package bridge

import "github.com/orchestra-mcp/chat-relay/src/types"

// Bridge defines the interface for cross-instance event relaying.
// Implementations relay chat events between multiple server instances.
type Bridge interface {
	// Publish queues an event for all other instances.
	Publish(ev types.Event) error

	// Start begins listening for events from other instances.
	Start() error

	// Stop shuts down the bridge connection.
	Stop() error

	// Available reports whether the bridge is connected and operational.
	Available() bool
}

// BroadcastTarget is implemented by the Hub to receive events from the bridge.
type BroadcastTarget interface {
	BroadcastToLocal(ev types.Event)
}
