package providers

import (
	"github.com/orchestra-mcp/chat-relay/src/bridge"
	"github.com/orchestra-mcp/chat-relay/src/hub"
	"github.com/orchestra-mcp/chat-relay/src/registry"
	"github.com/orchestra-mcp/chat-relay/src/types"
)

// Compile-time interface assertions.
var (
	_ types.Conn             = (*fasthttpConn)(nil)
	_ hub.Pinger             = (*fasthttpConn)(nil)
	_ registry.Channel       = (*hub.Client)(nil)
	_ bridge.Bridge          = (*bridge.RedisBridge)(nil)
	_ bridge.BroadcastTarget = (*hub.Hub)(nil)
	_ hub.MessageBridge      = (*bridge.RedisBridge)(nil)
)
