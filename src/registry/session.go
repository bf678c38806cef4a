package registry

import (
	"sync"
	"time"

	"github.com/orchestra-mcp/chat-relay/src/types"
)

// State is a session's position in its connection lifecycle.
type State int

const (
	StateConnected State = iota
	StateActive
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateActive:
		return "active"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Channel is the send-capable handle to one client's transport.
type Channel interface {
	Deliver(ev types.Event) error
	Close()
}

// Session is one connected client.
type Session struct {
	ID          string
	ConnectedAt time.Time

	seq     uint64
	channel Channel

	mu       sync.RWMutex
	nickname string
	state    State

	closeOnce sync.Once
}

// Nickname returns the current display nickname, empty until announced.
func (s *Session) Nickname() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nickname
}

// State returns the lifecycle state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Active reports whether the session has announced a nickname and is still registered.
func (s *Session) Active() bool {
	return s.State() == StateActive
}

// Deliver hands ev to the session's channel.
func (s *Session) Deliver(ev types.Event) error {
	return s.channel.Deliver(ev)
}

// Close closes the session's channel. Only the first call has an effect.
func (s *Session) Close() {
	s.closeOnce.Do(s.channel.Close)
}

// Info returns metadata about this session.
func (s *Session) Info() types.SessionInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return types.SessionInfo{
		ID:          s.ID,
		Nickname:    s.nickname,
		State:       s.state.String(),
		ConnectedAt: s.ConnectedAt,
	}
}

func (s *Session) setNickname(nickname string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nickname = nickname
	if s.state == StateConnected {
		s.state = StateActive
	}
}

func (s *Session) markDisconnected() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateDisconnected
}
