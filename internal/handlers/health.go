package handlers

import (
	"github.com/EncantoFlores/encanto-backend/internal/storage"
	"github.com/gofiber/fiber/v2"
)

// HealthHandler handles health check requests
type HealthHandler struct {
	Version string
	store   storage.Store
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(version string, store storage.Store) *HealthHandler {
	return &HealthHandler{
		Version: version,
		store:   store,
	}
}

// Check returns the liveness status of the service
func (h *HealthHandler) Check(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "OK",
		"service": "Encanto Flores Backend",
		"version": h.Version,
	})
}

// DetailedCheck exercises the store and reports row counts
func (h *HealthHandler) DetailedCheck(c *fiber.Ctx) error {
	sessions, err := h.store.CountSessions()
	if err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status": "DEGRADED",
			"error":  err.Error(),
		})
	}
	messages, err := h.store.CountMessages()
	if err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status": "DEGRADED",
			"error":  err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"status":   "OK",
		"service":  "Encanto Flores Backend",
		"version":  h.Version,
		"sessions": sessions,
		"messages": messages,
	})
}
