package hub

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/orchestra-mcp/chat-relay/src/types"
	"github.com/rs/zerolog"
)

// Pinger is implemented by connections that support keepalive pings.
type Pinger interface {
	Ping(deadline time.Time) error
}

// ClientConfig tunes a client's send queue and write pump.
type ClientConfig struct {
	SendBuffer   int
	WriteTimeout time.Duration
	PingInterval time.Duration
}

// DefaultClientConfig mirrors the server defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		SendBuffer:   256,
		WriteTimeout: 10 * time.Second,
		PingInterval: 30 * time.Second,
	}
}

// Client wraps a WebSocket connection and is the session's send channel.
type Client struct {
	ID     string
	conn   types.Conn
	hub    *Hub
	send   chan types.Event
	done   chan struct{}
	cfg    ClientConfig
	logger zerolog.Logger

	mu     sync.Mutex
	closed bool
}

// NewClient creates a new WebSocket client wrapper.
func NewClient(conn types.Conn, h *Hub, cfg ClientConfig) *Client {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = DefaultClientConfig().SendBuffer
	}
	return &Client{
		conn:   conn,
		hub:    h,
		send:   make(chan types.Event, cfg.SendBuffer),
		done:   make(chan struct{}),
		cfg:    cfg,
		logger: h.logger,
	}
}

// Connect registers the client with the hub and records its session id.
func (c *Client) Connect() (string, error) {
	id, err := c.hub.OnConnect(c)
	if err != nil {
		return "", err
	}
	c.ID = id
	c.logger = c.logger.With().Str("session_id", id).Logger()
	return id, nil
}

// Deliver queues ev for the write pump without blocking.
func (c *Client) Deliver(ev types.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrChannelClosed
	}
	select {
	case c.send <- ev:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Close stops the pumps. Queued events are discarded.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.done)
	}
}

// Done is closed once the client has been closed.
func (c *Client) Done() <-chan struct{} { return c.done }

// ReadPump reads frames from the WebSocket and routes them to the hub until
// the connection fails or the client leaves.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.OnDisconnect(c.ID)
		c.conn.Close()
	}()

	for {
		var frame types.Frame
		if err := c.conn.ReadJSON(&frame); err != nil {
			if isDecodeError(err) {
				c.reject("malformed frame")
				continue
			}
			c.logger.Debug().Err(err).Msg("read ended")
			return
		}
		if !c.dispatch(frame) {
			return
		}
	}
}

// dispatch routes one frame and reports whether reading should continue.
func (c *Client) dispatch(frame types.Frame) bool {
	var err error
	switch frame.Type {
	case types.FrameNickname:
		err = c.hub.OnNicknameSet(c.ID, frame.Nickname)
	case types.FrameMessage:
		err = c.hub.OnMessage(c.ID, frame.Text)
	case types.FrameLeave:
		return false
	default:
		c.reject("unknown frame type")
	}
	if errors.Is(err, ErrUnknownSession) {
		return false
	}
	if err != nil {
		c.logger.Debug().Err(err).Msg("frame rejected")
	}
	return true
}

func (c *Client) reject(text string) {
	if err := c.hub.Notify(c.ID, types.NoticeBadRequest, text); err != nil {
		c.logger.Debug().Err(err).Msg("notice not sent")
	}
}

// WritePump writes queued events to the WebSocket. A failed or timed out
// write disconnects this session only.
func (c *Client) WritePump() {
	defer c.conn.Close()

	var tick <-chan time.Time
	pinger, canPing := c.conn.(Pinger)
	if canPing && c.cfg.PingInterval > 0 {
		ticker := time.NewTicker(c.cfg.PingInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-c.done:
			return
		case ev := <-c.send:
			select {
			case <-c.done:
				return
			default:
			}
			if err := c.write(ev); err != nil {
				c.logger.Warn().Err(err).Msg("write failed")
				c.hub.OnDisconnect(c.ID)
				return
			}
		case <-tick:
			if err := pinger.Ping(c.deadline()); err != nil {
				c.logger.Debug().Err(err).Msg("ping failed")
				c.hub.OnDisconnect(c.ID)
				return
			}
		}
	}
}

func (c *Client) write(ev types.Event) error {
	if err := c.conn.SetWriteDeadline(c.deadline()); err != nil {
		return err
	}
	return c.conn.WriteJSON(ev)
}

func (c *Client) deadline() time.Time {
	if c.cfg.WriteTimeout <= 0 {
		return time.Time{}
	}
	return time.Now().Add(c.cfg.WriteTimeout)
}

func isDecodeError(err error) bool {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	return errors.As(err, &syntaxErr) || errors.As(err, &typeErr)
}
