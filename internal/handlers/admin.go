package handlers

import (
	"errors"
	"log"
	"strconv"

	"github.com/EncantoFlores/encanto-backend/internal/storage"
	"github.com/gofiber/fiber/v2"
)

// AdminHandler exposes the session operations the shop team uses
type AdminHandler struct {
	store storage.Store
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(store storage.Store) *AdminHandler {
	return &AdminHandler{store: store}
}

// ListSessions returns the most recent sessions
func (h *AdminHandler) ListSessions(c *fiber.Ctx) error {
	limit, err := strconv.Atoi(c.Query("limit", "50"))
	if err != nil || limit <= 0 {
		limit = 50
	}

	sessions, err := h.store.ListSessions(limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch sessions",
		})
	}

	return c.JSON(fiber.Map{
		"success":  true,
		"sessions": sessions,
		"count":    len(sessions),
	})
}

// GetSessionMessages returns one session transcript
func (h *AdminHandler) GetSessionMessages(c *fiber.Ctx) error {
	sessionID := c.Params("sessionID")

	limit, err := strconv.Atoi(c.Query("limit", "200"))
	if err != nil || limit <= 0 {
		limit = 200
	}

	if _, err := h.store.GetSession(sessionID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Session not found",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch session",
		})
	}

	messages, err := h.store.GetSessionMessages(sessionID, limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch messages",
		})
	}

	return c.JSON(fiber.Map{
		"success":  true,
		"messages": messages,
		"count":    len(messages),
	})
}

// UnblockSession hands a conversation back to the assistant
func (h *AdminHandler) UnblockSession(c *fiber.Ctx) error {
	sessionID := c.Params("sessionID")

	if err := h.store.SetSessionBlocked(sessionID, false); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Session not found",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to unblock session",
		})
	}

	log.Printf("✅ Sessão %s desbloqueada pela equipe", sessionID)

	return c.JSON(fiber.Map{
		"success": true,
		"session": fiber.Map{
			"id":      sessionID,
			"blocked": false,
		},
	})
}

// DeleteSession clears a conversation and its dependent records
func (h *AdminHandler) DeleteSession(c *fiber.Ctx) error {
	sessionID := c.Params("sessionID")

	if _, err := h.store.GetSession(sessionID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Session not found",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch session",
		})
	}

	if err := h.store.DeleteSession(sessionID); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete session",
		})
	}

	log.Printf("🧹 Sessão %s removida pela equipe", sessionID)

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Session deleted",
	})
}

// GetCustomerMemory returns the stored summary for a phone number
func (h *AdminHandler) GetCustomerMemory(c *fiber.Ctx) error {
	phone := c.Params("phone")

	memory, err := h.store.GetCustomerMemory(phone)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "No memory for this customer",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch customer memory",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"memory":  memory,
	})
}
