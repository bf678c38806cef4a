package providers

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v3"
	"github.com/orchestra-mcp/chat-relay/config"
	"github.com/orchestra-mcp/chat-relay/src/bridge"
	"github.com/orchestra-mcp/chat-relay/src/hub"
	"github.com/orchestra-mcp/chat-relay/src/metrics"
	"github.com/orchestra-mcp/chat-relay/src/service"
	"github.com/orchestra-mcp/chat-relay/src/spam"
	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"
)

// ChatServer wires the hub, service, bridge and HTTP surface together.
type ChatServer struct {
	active  bool
	cfg     *config.ChatConfig
	hub     *hub.Hub
	service *service.Service
	bridge  bridge.Bridge
	metrics *metrics.Metrics
	app     *fiber.App
	server  *fasthttp.Server
	logger  zerolog.Logger
}

// NewChatServer builds the hub and routes from cfg.
func NewChatServer(cfg *config.ChatConfig, logger zerolog.Logger) (*ChatServer, error) {
	classifier, err := spam.NewClassifier(cfg.Keywords())
	if err != nil {
		return nil, fmt.Errorf("build spam classifier: %w", err)
	}

	m := metrics.New()
	h := hub.New(logger,
		hub.WithClassifier(classifier),
		hub.WithEchoToSender(cfg.EchoToSender),
		hub.WithSpamFlagging(cfg.FlagSpam()),
		hub.WithRateLimit(cfg.RateLimitBurst, cfg.RateLimitInterval),
		hub.WithMetrics(m),
	)
	clientCfg := hub.ClientConfig{
		SendBuffer:   cfg.SendBufferSize,
		WriteTimeout: cfg.WriteTimeout,
		PingInterval: cfg.PingInterval,
	}

	p := &ChatServer{
		cfg:     cfg,
		hub:     h,
		service: service.New(h, clientCfg, cfg.MaxConnections, logger),
		metrics: m,
		app:     fiber.New(),
		logger:  logger,
	}
	p.RegisterRoutes(p.app)
	p.server = &fasthttp.Server{
		Handler:         p.Handler(),
		Name:            "chat-relay",
		ReadBufferSize:  cfg.ReadBufferSize * 4,
		WriteBufferSize: cfg.WriteBufferSize * 4,
	}
	return p, nil
}

// Activate attaches the Redis bridge when enabled. A bridge that cannot
// connect leaves the hub in standalone mode.
func (p *ChatServer) Activate() error {
	if p.cfg.RedisEnabled {
		p.initBridge()
	}
	p.active = true
	p.logger.Info().
		Bool("echo_to_sender", p.cfg.EchoToSender).
		Str("spam_policy", p.cfg.SpamPolicy).
		Msg("chat relay activated")
	return nil
}

func (p *ChatServer) initBridge() {
	cfg := bridge.RedisConfigFromEnv()
	rb := bridge.NewRedisBridge(cfg, p.hub, p.logger)

	if err := rb.Start(); err != nil {
		p.logger.Warn().Err(err).Msg("redis bridge unavailable, running standalone")
		return
	}

	p.bridge = rb
	p.hub.SetBridge(rb)
	p.logger.Info().Str("redis_addr", cfg.Addr).Msg("redis bridge connected")
}

// ListenAndServe serves HTTP and WebSocket traffic on the configured address.
func (p *ChatServer) ListenAndServe() error {
	p.logger.Info().Str("addr", p.cfg.Addr).Msg("listening")
	return p.server.ListenAndServe(p.cfg.Addr)
}

// Deactivate stops the listener, then closes every session and the bridge.
// Upgrades still in flight are refused by the closed hub.
func (p *ChatServer) Deactivate() error {
	var errs []error
	if err := p.server.Shutdown(); err != nil {
		errs = append(errs, err)
	}
	p.service.Shutdown()
	if p.bridge != nil {
		if err := p.bridge.Stop(); err != nil {
			p.logger.Error().Err(err).Msg("bridge stop error")
			errs = append(errs, err)
		}
		p.bridge = nil
	}
	p.active = false
	return errors.Join(errs...)
}

// IsActive reports whether Activate has run without a later Deactivate.
func (p *ChatServer) IsActive() bool { return p.active }

// Service exposes the chat service.
func (p *ChatServer) Service() *service.Service { return p.service }
