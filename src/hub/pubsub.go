package hub

import (
	"github.com/orchestra-mcp/chat-relay/src/registry"
	"github.com/orchestra-mcp/chat-relay/src/types"
)

// broadcast delivers ev to local active sessions except exclude, forwards it
// to the bridge and disconnects every recipient whose send failed.
// Callers hold h.events.
func (h *Hub) broadcast(ev types.Event, exclude string) {
	failed := h.fanout(ev, exclude)
	h.publishToBridge(ev)
	h.dropFailed(failed)
}

// fanout sends ev to a snapshot of the active sessions. Each send is
// independent; failures are collected and never stop the pass.
func (h *Hub) fanout(ev types.Event, exclude string) []*DeliveryError {
	var failed []*DeliveryError
	for _, s := range h.registry.SnapshotAll() {
		if s.ID == exclude || !s.Active() {
			continue
		}
		if err := s.Deliver(ev); err != nil {
			failed = append(failed, &DeliveryError{SessionID: s.ID, Err: err})
		}
	}
	return failed
}

func (h *Hub) dropFailed(failed []*DeliveryError) {
	if len(failed) == 0 {
		return
	}
	ids := make([]string, 0, len(failed))
	for _, f := range failed {
		h.metrics.DeliveryFailed()
		h.logger.Warn().Err(f).Str("session_id", f.SessionID).Msg("delivery failed, disconnecting")
		ids = append(ids, f.SessionID)
	}
	h.disconnect(ids...)
}

// notice sends a notice to s alone. A failed notice disconnects s.
func (h *Hub) notice(s *registry.Session, code, text string) {
	if err := s.Deliver(types.Event{Type: types.EventNotice, Code: code, Text: text}); err != nil {
		h.dropFailed([]*DeliveryError{{SessionID: s.ID, Err: err}})
	}
}

// publishToBridge forwards an event to the bridge if one is attached.
func (h *Hub) publishToBridge(ev types.Event) {
	h.mu.RLock()
	b := h.bridge
	h.mu.RUnlock()

	if b == nil || !b.Available() {
		return
	}
	if err := b.Publish(ev); err != nil {
		h.logger.Error().Err(err).Str("event", string(ev.Type)).Msg("bridge publish failed")
	}
}

// BroadcastToLocal delivers an event from another instance to local active
// sessions only. It does not re-publish to the bridge, preventing loops.
func (h *Hub) BroadcastToLocal(ev types.Event) {
	h.events.Lock()
	defer h.events.Unlock()

	h.metrics.Relayed()
	h.dropFailed(h.fanout(ev, ""))
}
