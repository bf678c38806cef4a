package providers

import (
	"strings"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/gofiber/fiber/v3"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

const (
	HubPath     = "/messenger/hub"
	EntryPath   = "/messenger/index.html"
	MetricsPath = "/metrics"
)

// RegisterRoutes registers the chat info, admin and redirect routes.
// The WebSocket upgrade and metrics are served by Handler, outside Fiber,
// since Fiber v3 does not expose *fasthttp.RequestCtx.
func (p *ChatServer) RegisterRoutes(router fiber.Router) {
	router.Get("/", p.redirectToEntry)
	router.Get("/messenger", p.redirectToEntry)
	router.Get("/chat/info", p.handleInfo)
	p.registerAdminRoutes(router)
}

func (p *ChatServer) redirectToEntry(c fiber.Ctx) error {
	return c.Redirect().Status(fiber.StatusFound).To(EntryPath)
}

func (p *ChatServer) handleInfo(c fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"websocket": true,
		"endpoint":  HubPath,
		"sessions":  p.hub.SessionCount(),
		"active":    p.hub.ActiveCount(),
		"bridge":    p.bridge != nil && p.bridge.Available(),
	})
}

// Handler routes WebSocket upgrades and metrics directly and everything
// else through the Fiber app.
func (p *ChatServer) Handler() fasthttp.RequestHandler {
	app := p.app.Handler()
	ws := p.FastHTTPHandler()
	prom := fasthttpadaptor.NewFastHTTPHandler(p.metrics.Handler())

	return func(ctx *fasthttp.RequestCtx) {
		switch string(ctx.Path()) {
		case HubPath:
			ws(ctx)
		case MetricsPath:
			prom(ctx)
		default:
			app(ctx)
		}
	}
}

// FastHTTPHandler returns a raw fasthttp handler for WebSocket upgrades.
func (p *ChatServer) FastHTTPHandler() fasthttp.RequestHandler {
	upgrader := websocket.FastHTTPUpgrader{
		ReadBufferSize:  p.cfg.ReadBufferSize,
		WriteBufferSize: p.cfg.WriteBufferSize,
	}

	return func(ctx *fasthttp.RequestCtx) {
		upgrade := string(ctx.Request.Header.Peek("Upgrade"))
		if !strings.EqualFold(upgrade, "websocket") {
			ctx.SetStatusCode(fasthttp.StatusUpgradeRequired)
			ctx.SetContentType("application/json")
			ctx.SetBodyString(`{"error":"upgrade_required","message":"WebSocket upgrade required"}`)
			return
		}
		if !p.service.Accepting() {
			ctx.SetStatusCode(fasthttp.StatusServiceUnavailable)
			ctx.SetContentType("application/json")
			ctx.SetBodyString(`{"error":"too_many_connections","message":"connection limit reached"}`)
			return
		}

		err := upgrader.Upgrade(ctx, func(conn *websocket.Conn) {
			wc := newFasthttpConn(conn, p.cfg.MaxMessageSize, p.cfg.ReadTimeout)
			if err := p.service.Serve(wc); err != nil {
				p.logger.Error().Err(err).Msg("session refused")
			}
		})
		if err != nil {
			p.logger.Error().Err(err).Msg("websocket upgrade failed")
		}
	}
}

// fasthttpConn wraps fasthttp/websocket.Conn to satisfy types.Conn.
type fasthttpConn struct {
	conn        *websocket.Conn
	readTimeout time.Duration
}

func newFasthttpConn(conn *websocket.Conn, readLimit int64, readTimeout time.Duration) *fasthttpConn {
	f := &fasthttpConn{conn: conn, readTimeout: readTimeout}
	conn.SetReadLimit(readLimit)
	f.extendRead()
	conn.SetPongHandler(func(string) error {
		f.extendRead()
		return nil
	})
	return f
}

func (f *fasthttpConn) extendRead() {
	if f.readTimeout > 0 {
		_ = f.conn.SetReadDeadline(time.Now().Add(f.readTimeout))
	}
}

func (f *fasthttpConn) WriteJSON(v any) error { return f.conn.WriteJSON(v) }

func (f *fasthttpConn) ReadJSON(v any) error {
	if err := f.conn.ReadJSON(v); err != nil {
		return err
	}
	f.extendRead()
	return nil
}

func (f *fasthttpConn) SetWriteDeadline(t time.Time) error { return f.conn.SetWriteDeadline(t) }

func (f *fasthttpConn) Ping(deadline time.Time) error {
	return f.conn.WriteControl(websocket.PingMessage, nil, deadline)
}

func (f *fasthttpConn) Close() error { return f.conn.Close() }
