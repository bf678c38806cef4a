package providers

import (
	"encoding/json"
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/orchestra-mcp/chat-relay/src/hub"
)

type announceRequest struct {
	Text string `json:"text"`
}

func (p *ChatServer) registerAdminRoutes(router fiber.Router) {
	router.Get("/chat/sessions", p.handleListSessions)
	router.Get("/chat/sessions/:id", p.handleGetSession)
	router.Delete("/chat/sessions/:id", p.handleKickSession)
	router.Post("/chat/announce", p.handleAnnounce)
}

func (p *ChatServer) handleListSessions(c fiber.Ctx) error {
	sessions := p.service.GetSessions()
	return c.JSON(fiber.Map{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

func (p *ChatServer) handleGetSession(c fiber.Ctx) error {
	info, err := p.service.GetSessionInfo(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "session_not_found"})
	}
	return c.JSON(info)
}

func (p *ChatServer) handleKickSession(c fiber.Ctx) error {
	if err := p.service.Kick(c.Params("id")); err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "session_not_found"})
	}
	return c.JSON(fiber.Map{"kicked": true})
}

func (p *ChatServer) handleAnnounce(c fiber.Ctx) error {
	var req announceRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_json"})
	}
	if err := p.service.Announce(req.Text); err != nil {
		if errors.Is(err, hub.ErrEmptyAnnouncement) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "text_required"})
		}
		return err
	}
	return c.JSON(fiber.Map{"announced": true})
}
