package routes

import (
	"log"
	"os"

	"github.com/EncantoFlores/encanto-backend/internal/handlers"
	"github.com/EncantoFlores/encanto-backend/internal/middleware"
	"github.com/EncantoFlores/encanto-backend/internal/services"
	"github.com/EncantoFlores/encanto-backend/internal/storage"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRoutes configures all API routes
func SetupRoutes(app *fiber.App, store storage.Store, assistant *services.AssistantService) {
	whatsappHandler := handlers.NewWhatsAppHandler(assistant)
	healthHandler := handlers.NewHealthHandler("1.0.0", store)
	adminHandler := handlers.NewAdminHandler(store)
	statsHandler := handlers.NewStatsHandler(store)

	// Root endpoint
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"message": "Encanto Flores Backend",
			"version": "1.0.0",
			"endpoints": fiber.Map{
				"health":  "/health",
				"webhook": "/webhook/whatsapp",
				"metrics": "/metrics",
				"admin":   "/api/admin",
			},
		})
	})

	// Health checks
	app.Get("/health", healthHandler.Check)
	app.Get("/api/health/detailed", healthHandler.DetailedCheck)

	// Prometheus metrics
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// ========== WEBHOOK ROUTES ==========
	webhooks := app.Group("/webhook")
	webhooks.Post("/whatsapp", middleware.ValidateTwilioSignature(), whatsappHandler.HandleWebhook)

	// Simulated messages, only outside production
	if os.Getenv("ENVIRONMENT") != "production" {
		webhooks.Post("/test", whatsappHandler.HandleTestWebhook)
		log.Println("⚠️ Webhook de teste habilitado em /webhook/test")
	}

	// ========== ADMIN ROUTES ==========
	admin := app.Group("/api/admin", middleware.RequireAdminToken())
	admin.Get("/sessions", adminHandler.ListSessions)
	admin.Get("/sessions/:sessionID/messages", adminHandler.GetSessionMessages)
	admin.Post("/sessions/:sessionID/unblock", adminHandler.UnblockSession)
	admin.Delete("/sessions/:sessionID", adminHandler.DeleteSession)
	admin.Get("/memories/:phone", adminHandler.GetCustomerMemory)
	admin.Get("/stats", statsHandler.GetOverview)
}
