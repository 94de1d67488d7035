package handlers

import (
	"log"
	"strings"

	"github.com/EncantoFlores/encanto-backend/internal/services"
	"github.com/gofiber/fiber/v2"
)

// WhatsAppHandler turns Twilio webhooks into conversation turns
type WhatsAppHandler struct {
	assistant     *services.AssistantService
	twilioService *services.TwilioService
}

// NewWhatsAppHandler creates a new WhatsApp handler
func NewWhatsAppHandler(assistant *services.AssistantService) *WhatsAppHandler {
	twilioSvc, err := services.NewTwilioService()
	if err != nil {
		log.Printf("⚠️ Twilio não inicializado (respostas só nos logs): %v", err)
	}

	return &WhatsAppHandler{
		assistant:     assistant,
		twilioService: twilioSvc,
	}
}

// TwilioWebhookPayload is the inbound message form Twilio posts
type TwilioWebhookPayload struct {
	MessageSid  string `form:"MessageSid"`
	AccountSid  string `form:"AccountSid"`
	From        string `form:"From"`        // "whatsapp:+5531988887777"
	To          string `form:"To"`          // our Twilio number
	Body        string `form:"Body"`        // message text
	WaId        string `form:"WaId"`        // bare WhatsApp id digits
	ProfileName string `form:"ProfileName"` // customer display name
	NumMedia    string `form:"NumMedia"`
}

// HandleWebhook processes incoming WhatsApp messages
func (h *WhatsAppHandler) HandleWebhook(c *fiber.Ctx) error {
	var payload TwilioWebhookPayload
	if err := c.BodyParser(&payload); err != nil {
		log.Printf("❌ Webhook inválido: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid webhook payload",
		})
	}

	// Status callbacks arrive on the same URL without a body; ack and move on
	if payload.Body == "" || payload.From == "" {
		return c.SendStatus(fiber.StatusOK)
	}

	phone := strings.TrimPrefix(payload.From, "whatsapp:")
	sessionID := sessionIDFor(payload.WaId, phone)

	reply, err := h.runTurn(c, services.ConverseRequest{
		SessionID:     sessionID,
		UserMessage:   payload.Body,
		CustomerPhone: phone,
		CustomerName:  payload.ProfileName,
	})
	if err != nil {
		log.Printf("❌ Erro no turno da sessão %s: %v", sessionID, err)
		reply = services.FallbackReply
	}

	if h.twilioService != nil && reply != "" {
		if err := h.twilioService.SendWhatsAppMessage(phone, reply); err != nil {
			log.Printf("❌ Falha ao responder %s: %v", phone, err)
		}
	} else if reply != "" {
		log.Printf("📤 Resposta (Twilio desligado): %s", reply)
	}

	return c.SendStatus(fiber.StatusOK)
}

// TestWebhookPayload simulates a message without Twilio
type TestWebhookPayload struct {
	From    string `json:"from"`
	Name    string `json:"name"`
	Message string `json:"message"`
}

// HandleTestWebhook processes simulated messages during development
func (h *WhatsAppHandler) HandleTestWebhook(c *fiber.Ctx) error {
	var payload TestWebhookPayload
	if err := c.BodyParser(&payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid test payload",
		})
	}
	if payload.From == "" || payload.Message == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "from and message are required",
		})
	}

	log.Printf("🧪 Webhook de teste de %s", payload.From)

	phone := strings.TrimPrefix(payload.From, "whatsapp:")
	reply, err := h.runTurn(c, services.ConverseRequest{
		SessionID:     sessionIDFor("", phone),
		UserMessage:   payload.Message,
		CustomerPhone: phone,
		CustomerName:  payload.Name,
	})
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"success":  true,
		"response": reply,
	})
}

// runTurn drives one conversation turn and drains the reply stream
func (h *WhatsAppHandler) runTurn(c *fiber.Ctx, req services.ConverseRequest) (string, error) {
	stream, err := h.assistant.Converse(c.UserContext(), req)
	if err != nil {
		return "", err
	}
	return stream.Collect()
}

// sessionIDFor binds a conversation to the WhatsApp id, falling back to the
// phone digits
func sessionIDFor(waID, phone string) string {
	digits := waID
	if digits == "" {
		digits = strings.TrimLeft(phone, "+")
	}
	return digits + "@s.whatsapp.net"
}
