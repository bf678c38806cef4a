package hub

import (
	"github.com/orchestra-mcp/chat-relay/src/registry"
	"github.com/orchestra-mcp/chat-relay/src/types"
	"github.com/samber/lo"
)

// Sessions returns info for every connected session in connect order.
func (h *Hub) Sessions() []types.SessionInfo {
	return lo.Map(h.registry.SnapshotAll(), func(s *registry.Session, _ int) types.SessionInfo {
		return s.Info()
	})
}

// SessionInfo returns info for a connected session, or nil.
func (h *Hub) SessionInfo(id string) *types.SessionInfo {
	s, ok := h.registry.Get(id)
	if !ok {
		return nil
	}
	info := s.Info()
	return &info
}

// Closed reports whether CloseAll has run.
func (h *Hub) Closed() bool {
	h.events.Lock()
	defer h.events.Unlock()
	return h.closed
}

// SessionCount returns the number of connected sessions.
func (h *Hub) SessionCount() int {
	return h.registry.Len()
}

// ActiveCount returns the number of sessions that have set a nickname.
func (h *Hub) ActiveCount() int {
	return lo.CountBy(h.registry.SnapshotAll(), func(s *registry.Session) bool { return s.Active() })
}
