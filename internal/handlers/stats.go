package handlers

import (
	"github.com/EncantoFlores/encanto-backend/internal/storage"
	"github.com/gofiber/fiber/v2"
)

// StatsHandler serves aggregate conversation numbers for the admin panel.
type StatsHandler struct {
	store storage.Store
}

func NewStatsHandler(store storage.Store) *StatsHandler {
	return &StatsHandler{
		store: store,
	}
}

// GetOverview returns session and message totals plus a breakdown of
// blocked (handed off to the team) and expired conversations.
func (h *StatsHandler) GetOverview(c *fiber.Ctx) error {
	totalSessions, err := h.store.CountSessions()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "Erro ao contar sessões",
		})
	}

	totalMessages, err := h.store.CountMessages()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "Erro ao contar mensagens",
		})
	}

	sessions, err := h.store.ListSessions(0)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "Erro ao listar sessões",
		})
	}

	blocked := 0
	expired := 0
	for _, session := range sessions {
		if session.Blocked {
			blocked++
		}
		if session.Expired() {
			expired++
		}
	}

	return c.JSON(fiber.Map{
		"success": true,
		"stats": fiber.Map{
			"total_sessions":   totalSessions,
			"total_messages":   totalMessages,
			"blocked_sessions": blocked,
			"expired_sessions": expired,
		},
	})
}
