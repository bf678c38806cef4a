package hub

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/orchestra-mcp/chat-relay/src/metrics"
	"github.com/orchestra-mcp/chat-relay/src/registry"
	"github.com/orchestra-mcp/chat-relay/src/sanitize"
	"github.com/orchestra-mcp/chat-relay/src/spam"
	"github.com/orchestra-mcp/chat-relay/src/types"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

// MessageBridge publishes events to other server instances.
// Defined here to avoid circular imports with the bridge package.
type MessageBridge interface {
	Publish(ev types.Event) error
	Available() bool
}

// Hub owns the session registry and serializes connect, nickname, message
// and disconnect events so every recipient observes them in the order the
// hub processed them. Fan-out only enqueues onto session channels; network
// writes happen in each client's write pump.
type Hub struct {
	registry   *registry.Registry
	classifier *spam.Classifier
	metrics    *metrics.Metrics

	echoToSender bool
	flagSpam     bool
	rateBurst    int
	rateInterval time.Duration

	// events serializes every state change and fan-out pass.
	events   sync.Mutex
	limiters map[string]*rateLimiter
	closed   bool

	bridge MessageBridge
	mu     sync.RWMutex

	newID  func() string
	now    func() time.Time
	logger zerolog.Logger
}

// Option configures a Hub.
type Option func(*Hub)

// WithEchoToSender controls whether a sender receives its own messages.
func WithEchoToSender(echo bool) Option {
	return func(h *Hub) { h.echoToSender = echo }
}

// WithSpamFlagging delivers spam with Flagged set instead of dropping it.
func WithSpamFlagging(flag bool) Option {
	return func(h *Hub) { h.flagSpam = flag }
}

// WithClassifier replaces the default spam classifier.
func WithClassifier(c *spam.Classifier) Option {
	return func(h *Hub) { h.classifier = c }
}

// WithRateLimit allows burst messages per interval for each session.
func WithRateLimit(burst int, interval time.Duration) Option {
	return func(h *Hub) {
		h.rateBurst = burst
		h.rateInterval = interval
	}
}

// WithMetrics records hub activity on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Hub) { h.metrics = m }
}

// WithIDGenerator replaces the session id source.
func WithIDGenerator(fn func() string) Option {
	return func(h *Hub) { h.newID = fn }
}

// WithClock replaces the clock used for message timestamps and rate limits.
func WithClock(fn func() time.Time) Option {
	return func(h *Hub) { h.now = fn }
}

// New creates a new Hub instance.
func New(logger zerolog.Logger, opts ...Option) *Hub {
	h := &Hub{
		registry:     registry.New(),
		classifier:   lo.Must(spam.NewClassifier(spam.DefaultKeywords)),
		echoToSender: true,
		rateBurst:    5,
		rateInterval: time.Second,
		limiters:     make(map[string]*rateLimiter),
		newID:        func() string { return uuid.New().String() },
		now:          time.Now,
		logger:       logger.With().Str("component", "hub").Logger(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// SetBridge attaches a cross-instance message bridge to the hub.
// When set, locally originated broadcasts are also forwarded to other instances.
func (h *Hub) SetBridge(b MessageBridge) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.bridge = b
}

// OnConnect registers a new session backed by ch and announces it to the
// active sessions. It returns the generated session id.
func (h *Hub) OnConnect(ch registry.Channel) (string, error) {
	h.events.Lock()
	defer h.events.Unlock()

	if h.closed {
		return "", ErrHubClosed
	}
	id := h.newID()
	if _, err := h.registry.Register(id, ch); err != nil {
		h.logger.Error().Err(err).Str("session_id", id).Msg("session registration refused")
		return "", err
	}
	h.limiters[id] = newRateLimiter(h.rateBurst, h.rateInterval, h.now())
	h.logger.Info().Str("session_id", id).Msg("session connected")

	h.broadcast(types.Event{Type: types.EventJoined, SessionID: id}, id)
	h.recordSessions()
	return id, nil
}

// OnNicknameSet sanitizes nickname, activates the session and broadcasts
// the presence update to every active session, the setter included.
func (h *Hub) OnNicknameSet(id, nickname string) error {
	h.events.Lock()
	defer h.events.Unlock()

	s, ok := h.registry.Get(id)
	if !ok {
		return fmt.Errorf("nickname for %s: %w", id, ErrUnknownSession)
	}
	clean := sanitize.Nickname(nickname)
	if clean == "" {
		h.notice(s, types.NoticeInvalidNickname, "nickname must not be empty")
		return fmt.Errorf("nickname for %s: %w", id, ErrInvalidNickname)
	}
	if _, err := h.registry.SetNickname(id, clean); err != nil {
		return err
	}
	h.logger.Info().Str("session_id", id).Str("nickname", clean).Msg("nickname set")

	h.broadcast(types.Event{Type: types.EventNicknameSet, SessionID: id, Nickname: clean}, "")
	h.recordSessions()
	return nil
}

// OnMessage sanitizes and classifies rawText from session id and broadcasts
// it to the active sessions. The sender is included only when echo is on.
func (h *Hub) OnMessage(id, rawText string) error {
	h.events.Lock()
	defer h.events.Unlock()

	s, ok := h.registry.Get(id)
	if !ok {
		return fmt.Errorf("message from %s: %w", id, ErrUnknownSession)
	}
	if !s.Active() {
		h.metrics.Message(metrics.OutcomeNotActive)
		h.notice(s, types.NoticeNotActive, "set a nickname before sending messages")
		return fmt.Errorf("message from %s: %w", id, ErrNotActive)
	}
	now := h.now()
	if l, ok := h.limiters[id]; ok && !l.allow(now) {
		h.metrics.Message(metrics.OutcomeRateLimited)
		h.notice(s, types.NoticeRateLimited, "slow down")
		return fmt.Errorf("message from %s: %w", id, ErrRateLimited)
	}

	text := sanitize.Text(rawText)
	if text == "" {
		h.metrics.Message(metrics.OutcomeEmpty)
		return nil
	}

	flagged := h.classifier.IsSpam(text)
	if flagged && !h.flagSpam {
		h.metrics.Message(metrics.OutcomeSpamDropped)
		h.logger.Debug().Str("session_id", id).Msg("spam dropped")
		h.notice(s, types.NoticeSpam, "message looks like spam and was not delivered")
		return fmt.Errorf("message from %s: %w", id, ErrSpamDropped)
	}

	exclude := id
	if h.echoToSender {
		exclude = ""
	}
	h.broadcast(types.Event{
		Type:      types.EventMessage,
		SessionID: id,
		Nickname:  s.Nickname(),
		Text:      text,
		Flagged:   flagged,
		Timestamp: &now,
	}, exclude)

	if flagged {
		h.metrics.Message(metrics.OutcomeFlagged)
	} else {
		h.metrics.Message(metrics.OutcomeBroadcast)
	}
	return nil
}

// OnDisconnect removes the session, closes its channel and tells the
// remaining active sessions. Calling it again for the same id is a no-op.
func (h *Hub) OnDisconnect(id string) {
	h.events.Lock()
	defer h.events.Unlock()
	h.disconnect(id)
}

// Announce sends a sanitized system notice to every active session.
func (h *Hub) Announce(text string) error {
	clean := sanitize.Text(text)
	if strings.TrimSpace(clean) == "" {
		return ErrEmptyAnnouncement
	}

	h.events.Lock()
	defer h.events.Unlock()
	h.broadcast(types.Event{Type: types.EventNotice, Code: types.NoticeAnnouncement, Text: clean}, "")
	return nil
}

// Notify sends a notice to one session only.
func (h *Hub) Notify(id, code, text string) error {
	h.events.Lock()
	defer h.events.Unlock()

	s, ok := h.registry.Get(id)
	if !ok {
		return fmt.Errorf("notify %s: %w", id, ErrUnknownSession)
	}
	h.notice(s, code, text)
	return nil
}

// CloseAll closes every session without announcing departures and refuses
// later connections. Used on shutdown.
func (h *Hub) CloseAll() {
	h.events.Lock()
	defer h.events.Unlock()

	h.closed = true
	for _, s := range h.registry.SnapshotAll() {
		if _, ok := h.registry.Unregister(s.ID); ok {
			delete(h.limiters, s.ID)
			s.Close()
		}
	}
	h.recordSessions()
	h.logger.Info().Msg("all sessions closed")
}

// disconnect unregisters ids and announces each departure. Recipients that
// fail while being told are disconnected in turn. Callers hold h.events.
func (h *Hub) disconnect(ids ...string) {
	queue := append([]string(nil), ids...)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		s, ok := h.registry.Unregister(id)
		if !ok {
			continue
		}
		delete(h.limiters, id)
		s.Close()
		h.logger.Info().Str("session_id", id).Msg("session disconnected")

		failed := h.fanout(types.Event{Type: types.EventLeft, SessionID: id, Nickname: s.Nickname()}, "")
		h.publishToBridge(types.Event{Type: types.EventLeft, SessionID: id, Nickname: s.Nickname()})
		for _, f := range failed {
			queue = append(queue, f.SessionID)
		}
	}
	h.recordSessions()
}

func (h *Hub) recordSessions() {
	if h.metrics == nil {
		return
	}
	all := h.registry.SnapshotAll()
	active := 0
	for _, s := range all {
		if s.Active() {
			active++
		}
	}
	h.metrics.SetSessions(len(all), active)
}
