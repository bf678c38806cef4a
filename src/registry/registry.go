// Package registry tracks live chat sessions keyed by connection id.
package registry

import (
	"cmp"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/samber/lo"
)

// Registry is a concurrency-safe set of live sessions. Mutations take the
// write lock; snapshots take the read lock, so no snapshot ever contains a
// half-registered or half-removed session.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	seq      uint64
	now      func() time.Time
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		now:      time.Now,
	}
}

// Register adds a session for id backed by channel.
func (r *Registry) Register(id string, channel Channel) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[id]; ok {
		return nil, fmt.Errorf("register %s: %w", id, ErrDuplicateID)
	}
	r.seq++
	s := &Session{
		ID:          id,
		ConnectedAt: r.now(),
		seq:         r.seq,
		channel:     channel,
		state:       StateConnected,
	}
	r.sessions[id] = s
	return s, nil
}

// SetNickname stores nickname on the session and marks it active. The
// nickname is stored as given; callers sanitize it.
func (r *Registry) SetNickname(id, nickname string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, fmt.Errorf("set nickname %s: %w", id, ErrUnknownSession)
	}
	s.setNickname(nickname)
	return s, nil
}

// Unregister removes id. Removing an absent id is a no-op and reports false.
func (r *Registry) Unregister(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, false
	}
	delete(r.sessions, id)
	s.markDisconnected()
	return s, true
}

// Get returns the live session for id.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// SnapshotAll returns the live sessions in registration order.
func (r *Registry) SnapshotAll() []*Session {
	r.mu.RLock()
	out := lo.Values(r.sessions)
	r.mu.RUnlock()

	slices.SortFunc(out, func(a, b *Session) int { return cmp.Compare(a.seq, b.seq) })
	return out
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
