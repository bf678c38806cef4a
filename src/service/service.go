package service

import (
	"fmt"

	"github.com/orchestra-mcp/chat-relay/src/hub"
	"github.com/orchestra-mcp/chat-relay/src/types"
	"github.com/rs/zerolog"
)

// Service provides the high-level chat API on top of the hub.
type Service struct {
	hub       *hub.Hub
	clientCfg hub.ClientConfig
	maxConns  int
	logger    zerolog.Logger
}

// New creates a chat service backed by the given hub. maxConns <= 0 means unlimited.
func New(h *hub.Hub, clientCfg hub.ClientConfig, maxConns int, logger zerolog.Logger) *Service {
	return &Service{
		hub:       h,
		clientCfg: clientCfg,
		maxConns:  maxConns,
		logger:    logger.With().Str("component", "service").Logger(),
	}
}

// Hub returns the underlying hub.
func (s *Service) Hub() *hub.Hub { return s.hub }

// Accepting reports whether another connection fits under the cap.
func (s *Service) Accepting() bool {
	if s.hub.Closed() {
		return false
	}
	return s.maxConns <= 0 || s.hub.SessionCount() < s.maxConns
}

// Serve attaches conn as a new session and blocks until it disconnects.
func (s *Service) Serve(conn types.Conn) error {
	client := hub.NewClient(conn, s.hub, s.clientCfg)
	id, err := client.Connect()
	if err != nil {
		conn.Close()
		return fmt.Errorf("attach connection: %w", err)
	}
	s.logger.Debug().Str("session_id", id).Msg("serving session")

	go client.WritePump()
	client.ReadPump()
	return nil
}

// Announce sends a system notice to every active session.
func (s *Service) Announce(text string) error {
	if err := s.hub.Announce(text); err != nil {
		return err
	}
	s.logger.Info().Msg("announcement sent")
	return nil
}

// Kick disconnects a session.
func (s *Service) Kick(sessionID string) error {
	if s.hub.SessionInfo(sessionID) == nil {
		return fmt.Errorf("session %s: %w", sessionID, hub.ErrUnknownSession)
	}
	s.hub.OnDisconnect(sessionID)
	s.logger.Info().Str("session_id", sessionID).Msg("session kicked")
	return nil
}

// GetSessions returns all connected sessions.
func (s *Service) GetSessions() []types.SessionInfo {
	return s.hub.Sessions()
}

// GetSessionInfo returns info for a connected session, or error.
func (s *Service) GetSessionInfo(sessionID string) (*types.SessionInfo, error) {
	info := s.hub.SessionInfo(sessionID)
	if info == nil {
		return nil, fmt.Errorf("session %s: %w", sessionID, hub.ErrUnknownSession)
	}
	return info, nil
}

// Shutdown closes every session.
func (s *Service) Shutdown() {
	s.hub.CloseAll()
}
