package hub_test

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/orchestra-mcp/chat-relay/src/hub"
	"github.com/orchestra-mcp/chat-relay/src/metrics"
	"github.com/orchestra-mcp/chat-relay/src/spam"
	"github.com/orchestra-mcp/chat-relay/src/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder is a session channel that keeps every delivered event.
type recorder struct {
	mu     sync.Mutex
	events []types.Event
	closes int
	fail   error
}

func (r *recorder) Deliver(ev types.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return r.fail
	}
	if r.closes > 0 {
		return hub.ErrChannelClosed
	}
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closes++
}

func (r *recorder) setFail(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fail = err
}

func (r *recorder) all() []types.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]types.Event(nil), r.events...)
}

func (r *recorder) ofType(t types.EventType) []types.Event {
	var out []types.Event
	for _, ev := range r.all() {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestHub(t *testing.T, opts ...hub.Option) *hub.Hub {
	t.Helper()
	seq := 0
	base := []hub.Option{
		hub.WithIDGenerator(func() string {
			seq++
			return fmt.Sprintf("s%d", seq)
		}),
		hub.WithClock(func() time.Time { return fixedNow }),
		hub.WithRateLimit(1000, time.Second),
	}
	return hub.New(zerolog.Nop(), append(base, opts...)...)
}

// join connects a recorder and sets its nickname.
func join(t *testing.T, h *hub.Hub, nickname string) (string, *recorder) {
	t.Helper()
	rec := &recorder{}
	id, err := h.OnConnect(rec)
	require.NoError(t, err)
	require.NoError(t, h.OnNicknameSet(id, nickname))
	return id, rec
}

func TestScenarioWithoutEcho(t *testing.T) {
	h := newTestHub(t, hub.WithEchoToSender(false))
	a, recA := join(t, h, "alice")
	b, recB := join(t, h, "bob")
	_, recC := join(t, h, "carol")

	require.NoError(t, h.OnMessage(a, "hi"))

	for _, rec := range []*recorder{recB, recC} {
		msgs := rec.ofType(types.EventMessage)
		require.Len(t, msgs, 1)
		assert.Equal(t, "alice", msgs[0].Nickname)
		assert.Equal(t, a, msgs[0].SessionID)
		assert.Equal(t, "hi", msgs[0].Text)
		require.NotNil(t, msgs[0].Timestamp)
		assert.Equal(t, fixedNow, *msgs[0].Timestamp)
	}
	assert.Empty(t, recA.ofType(types.EventMessage))

	h.OnDisconnect(b)
	recB.reset()
	recC.reset()
	require.NoError(t, h.OnMessage(a, "bye"))

	assert.Empty(t, recB.ofType(types.EventMessage))
	msgs := recC.ofType(types.EventMessage)
	require.Len(t, msgs, 1)
	assert.Equal(t, "bye", msgs[0].Text)
}

func TestScenarioWithEcho(t *testing.T) {
	h := newTestHub(t, hub.WithEchoToSender(true))
	a, recA := join(t, h, "alice")
	_, recB := join(t, h, "bob")

	require.NoError(t, h.OnMessage(a, "hi"))

	assert.Len(t, recA.ofType(types.EventMessage), 1)
	assert.Len(t, recB.ofType(types.EventMessage), 1)
}

func TestMessageBeforeNicknameIsNeverDelivered(t *testing.T) {
	h := newTestHub(t)
	_, recA := join(t, h, "alice")

	silent := &recorder{}
	id, err := h.OnConnect(silent)
	require.NoError(t, err)

	err = h.OnMessage(id, "hello?")
	assert.ErrorIs(t, err, hub.ErrNotActive)
	assert.Empty(t, recA.ofType(types.EventMessage))
	assert.Empty(t, silent.ofType(types.EventMessage))

	notices := silent.ofType(types.EventNotice)
	require.Len(t, notices, 1)
	assert.Equal(t, types.NoticeNotActive, notices[0].Code)
}

func TestJoinAndNicknameEvents(t *testing.T) {
	h := newTestHub(t)
	a, recA := join(t, h, "alice")

	recB := &recorder{}
	b, err := h.OnConnect(recB)
	require.NoError(t, err)

	joined := recA.ofType(types.EventJoined)
	require.Len(t, joined, 1)
	assert.Equal(t, b, joined[0].SessionID)
	assert.Empty(t, joined[0].Nickname)
	assert.Empty(t, recB.all(), "inactive sessions receive nothing")

	require.NoError(t, h.OnNicknameSet(b, "bob"))

	for _, rec := range []*recorder{recA, recB} {
		sets := rec.ofType(types.EventNicknameSet)
		require.NotEmpty(t, sets)
		last := sets[len(sets)-1]
		assert.Equal(t, b, last.SessionID)
		assert.Equal(t, "bob", last.Nickname)
	}
	assert.NotEqual(t, a, b)
}

func TestNicknameIsSanitized(t *testing.T) {
	h := newTestHub(t)
	id, rec := join(t, h, "  <b>bob</b>  ")

	sets := rec.ofType(types.EventNicknameSet)
	require.Len(t, sets, 1)
	assert.Equal(t, "&lt;b&gt;bob&lt;/b&gt;", sets[0].Nickname)
	assert.Equal(t, "&lt;b&gt;bob&lt;/b&gt;", h.SessionInfo(id).Nickname)
}

func TestEmptyNicknameRejected(t *testing.T) {
	h := newTestHub(t)
	rec := &recorder{}
	id, err := h.OnConnect(rec)
	require.NoError(t, err)

	err = h.OnNicknameSet(id, " \u200b ")
	assert.ErrorIs(t, err, hub.ErrInvalidNickname)
	assert.Equal(t, "connected", h.SessionInfo(id).State)

	notices := rec.ofType(types.EventNotice)
	require.Len(t, notices, 1)
	assert.Equal(t, types.NoticeInvalidNickname, notices[0].Code)
}

func TestRenameKeepsSessionActive(t *testing.T) {
	h := newTestHub(t)
	id, rec := join(t, h, "alice")
	require.NoError(t, h.OnNicknameSet(id, "alicia"))

	require.NoError(t, h.OnMessage(id, "hello"))
	msgs := rec.ofType(types.EventMessage)
	require.Len(t, msgs, 1)
	assert.Equal(t, "alicia", msgs[0].Nickname)
}

func TestMessageIsSanitized(t *testing.T) {
	h := newTestHub(t)
	a, _ := join(t, h, "alice")
	_, recB := join(t, h, "bob")

	require.NoError(t, h.OnMessage(a, `<script>javascript:alert("x")</script>`))

	msgs := recB.ofType(types.EventMessage)
	require.Len(t, msgs, 1)
	assert.Equal(t, "&lt;script&gt;alert(&quot;x&quot;)&lt;/script&gt;", msgs[0].Text)
}

func TestEmptyMessageDropped(t *testing.T) {
	h := newTestHub(t)
	a, recA := join(t, h, "alice")

	require.NoError(t, h.OnMessage(a, "\x00\x01"))
	assert.Empty(t, recA.ofType(types.EventMessage))
}

func TestSpamDropped(t *testing.T) {
	h := newTestHub(t)
	a, recA := join(t, h, "alice")
	_, recB := join(t, h, "bob")

	err := h.OnMessage(a, "buy viagra now")
	assert.ErrorIs(t, err, hub.ErrSpamDropped)
	assert.Empty(t, recB.ofType(types.EventMessage))

	notices := recA.ofType(types.EventNotice)
	require.Len(t, notices, 1)
	assert.Equal(t, types.NoticeSpam, notices[0].Code)
}

func TestSpamFlagged(t *testing.T) {
	h := newTestHub(t, hub.WithSpamFlagging(true))
	a, _ := join(t, h, "alice")
	_, recB := join(t, h, "bob")

	require.NoError(t, h.OnMessage(a, "visit www.example.com"))
	msgs := recB.ofType(types.EventMessage)
	require.Len(t, msgs, 1)
	assert.True(t, msgs[0].Flagged)
	assert.Equal(t, "alice", msgs[0].Nickname)
	assert.Equal(t, a, msgs[0].SessionID)
}

func TestCustomClassifier(t *testing.T) {
	c, err := spam.NewClassifier([]string{"crypto"})
	require.NoError(t, err)
	h := newTestHub(t, hub.WithClassifier(c))
	a, _ := join(t, h, "alice")
	_, recB := join(t, h, "bob")

	assert.ErrorIs(t, h.OnMessage(a, "free crypto"), hub.ErrSpamDropped)
	assert.NoError(t, h.OnMessage(a, "I won the lottery"))
	assert.Len(t, recB.ofType(types.EventMessage), 1)
}

func TestFailedRecipientIsIsolatedAndDisconnected(t *testing.T) {
	m := metrics.New()
	h := newTestHub(t, hub.WithMetrics(m))
	a, recA := join(t, h, "alice")
	_, recB := join(t, h, "bob")
	c, recC := join(t, h, "carol")

	recC.setFail(errors.New("broken pipe"))
	require.NoError(t, h.OnMessage(a, "hi"))

	assert.Len(t, recB.ofType(types.EventMessage), 1)
	assert.Nil(t, h.SessionInfo(c))
	assert.Equal(t, 2, h.SessionCount())
	assert.Equal(t, 1, recC.closes)

	for _, rec := range []*recorder{recA, recB} {
		left := rec.ofType(types.EventLeft)
		require.Len(t, left, 1)
		assert.Equal(t, c, left[0].SessionID)
		assert.Equal(t, "carol", left[0].Nickname)
	}
}

func TestFailuresCascadeWithoutDeadlock(t *testing.T) {
	h := newTestHub(t)
	a, _ := join(t, h, "alice")
	_, recB := join(t, h, "bob")
	_, recC := join(t, h, "carol")
	_, recD := join(t, h, "dave")

	recB.setFail(hub.ErrSendBufferFull)
	recC.setFail(hub.ErrSendBufferFull)
	require.NoError(t, h.OnMessage(a, "hi"))

	assert.Equal(t, 2, h.SessionCount())
	assert.Len(t, recD.ofType(types.EventMessage), 1)
	assert.Len(t, recD.ofType(types.EventLeft), 2)
}

func TestDisconnectIsIdempotent(t *testing.T) {
	h := newTestHub(t)
	_, recA := join(t, h, "alice")
	b, recB := join(t, h, "bob")

	h.OnDisconnect(b)
	h.OnDisconnect(b)
	h.OnDisconnect("never-existed")

	assert.Len(t, recA.ofType(types.EventLeft), 1)
	assert.Equal(t, 1, recB.closes)
	assert.Equal(t, 1, h.SessionCount())
}

func TestDisconnectedSessionCannotAct(t *testing.T) {
	h := newTestHub(t)
	a, _ := join(t, h, "alice")
	h.OnDisconnect(a)

	assert.ErrorIs(t, h.OnMessage(a, "ghost"), hub.ErrUnknownSession)
	assert.ErrorIs(t, h.OnNicknameSet(a, "again"), hub.ErrUnknownSession)
	assert.ErrorIs(t, h.Notify(a, types.NoticeBadRequest, "x"), hub.ErrUnknownSession)
}

func TestDuplicateIDRefused(t *testing.T) {
	h := hub.New(zerolog.Nop(), hub.WithIDGenerator(func() string { return "same" }))
	_, err := h.OnConnect(&recorder{})
	require.NoError(t, err)

	_, err = h.OnConnect(&recorder{})
	assert.ErrorIs(t, err, hub.ErrDuplicateID)
	assert.Equal(t, 1, h.SessionCount())
}

func TestRateLimit(t *testing.T) {
	h := newTestHub(t, hub.WithRateLimit(2, time.Minute))
	a, recA := join(t, h, "alice")

	require.NoError(t, h.OnMessage(a, "one"))
	require.NoError(t, h.OnMessage(a, "two"))
	assert.ErrorIs(t, h.OnMessage(a, "three"), hub.ErrRateLimited)

	assert.Len(t, recA.ofType(types.EventMessage), 2)
	notices := recA.ofType(types.EventNotice)
	require.Len(t, notices, 1)
	assert.Equal(t, types.NoticeRateLimited, notices[0].Code)
}

func TestBroadcastOrderMatchesReceiptOrder(t *testing.T) {
	h := newTestHub(t)
	a, _ := join(t, h, "alice")
	b, _ := join(t, h, "bob")
	_, recC := join(t, h, "carol")

	var want []string
	for i := 0; i < 10; i++ {
		from := a
		if i%2 == 1 {
			from = b
		}
		text := fmt.Sprintf("m%d", i)
		want = append(want, text)
		require.NoError(t, h.OnMessage(from, text))
	}

	var got []string
	for _, ev := range recC.ofType(types.EventMessage) {
		got = append(got, ev.Text)
	}
	assert.Equal(t, want, got)
}

func TestConcurrentEvents(t *testing.T) {
	h := newTestHub(t)
	observer, recO := join(t, h, "observer")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec := &recorder{}
			id, err := h.OnConnect(rec)
			if !assert.NoError(t, err) {
				return
			}
			assert.NoError(t, h.OnNicknameSet(id, fmt.Sprintf("user%d", i)))
			assert.NoError(t, h.OnMessage(id, "hello"))
			h.OnDisconnect(id)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, h.SessionCount())
	assert.Len(t, recO.ofType(types.EventMessage), 20)
	assert.Len(t, recO.ofType(types.EventLeft), 20)
	assert.NotNil(t, h.SessionInfo(observer))
}

func TestAnnounce(t *testing.T) {
	h := newTestHub(t)
	_, recA := join(t, h, "alice")
	silent := &recorder{}
	_, err := h.OnConnect(silent)
	require.NoError(t, err)

	require.NoError(t, h.Announce("maintenance <soon>"))
	assert.ErrorIs(t, h.Announce("\x00"), hub.ErrEmptyAnnouncement)

	notices := recA.ofType(types.EventNotice)
	require.Len(t, notices, 1)
	assert.Equal(t, types.NoticeAnnouncement, notices[0].Code)
	assert.Equal(t, "maintenance &lt;soon&gt;", notices[0].Text)
	assert.Empty(t, silent.all())
}

func TestAnnounceRejectsBlankText(t *testing.T) {
	h := newTestHub(t)
	_, rec := join(t, h, "alice")

	for _, text := range []string{"", "   \t ", "\n\r\x00"} {
		assert.ErrorIs(t, h.Announce(text), hub.ErrEmptyAnnouncement, "%q", text)
	}
	assert.Empty(t, rec.ofType(types.EventNotice))
}

func TestQueries(t *testing.T) {
	h := newTestHub(t)
	a, _ := join(t, h, "alice")
	b, err := h.OnConnect(&recorder{})
	require.NoError(t, err)

	assert.Equal(t, 2, h.SessionCount())
	assert.Equal(t, 1, h.ActiveCount())

	infos := h.Sessions()
	require.Len(t, infos, 2)
	assert.Equal(t, a, infos[0].ID)
	assert.Equal(t, "active", infos[0].State)
	assert.Equal(t, b, infos[1].ID)
	assert.Equal(t, "connected", infos[1].State)
	assert.Nil(t, h.SessionInfo("missing"))
}

func TestCloseAll(t *testing.T) {
	h := newTestHub(t)
	_, recA := join(t, h, "alice")
	_, recB := join(t, h, "bob")

	h.CloseAll()

	assert.Equal(t, 0, h.SessionCount())
	assert.Equal(t, 1, recA.closes)
	assert.Equal(t, 1, recB.closes)
	assert.Empty(t, recA.ofType(types.EventLeft))
}

func TestCloseAllRefusesNewSessions(t *testing.T) {
	h := newTestHub(t)
	assert.False(t, h.Closed())

	h.CloseAll()
	assert.True(t, h.Closed())

	rec := &recorder{}
	_, err := h.OnConnect(rec)
	assert.ErrorIs(t, err, hub.ErrHubClosed)
	assert.Equal(t, 0, h.SessionCount())
	assert.Empty(t, rec.all())
}

type fakeBridge struct {
	mu        sync.Mutex
	published []types.Event
}

func (f *fakeBridge) Publish(ev types.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, ev)
	return nil
}

func (f *fakeBridge) Available() bool { return true }

func (f *fakeBridge) events() []types.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]types.Event(nil), f.published...)
}

func TestBridgePublishAndRelay(t *testing.T) {
	h := newTestHub(t)
	b := &fakeBridge{}
	h.SetBridge(b)

	a, recA := join(t, h, "alice")
	require.NoError(t, h.OnMessage(a, "hi"))

	var published []types.EventType
	for _, ev := range b.events() {
		published = append(published, ev.Type)
	}
	assert.Equal(t, []types.EventType{types.EventJoined, types.EventNicknameSet, types.EventMessage}, published)

	remote := types.Event{Type: types.EventMessage, SessionID: "remote-1", Nickname: "zed", Text: "from afar"}
	h.BroadcastToLocal(remote)

	msgs := recA.ofType(types.EventMessage)
	require.Len(t, msgs, 2)
	assert.Equal(t, "from afar", msgs[1].Text)
	assert.Len(t, b.events(), 3, "relayed events are not published again")
}
