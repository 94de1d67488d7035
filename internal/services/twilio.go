package services

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// twilioMessageLimit is Twilio's WhatsApp body limit; longer replies are
// split on paragraph boundaries
const twilioMessageLimit = 1500

type TwilioService struct {
	client *twilio.RestClient
	from   string // "whatsapp:+14155238886"
}

// NewTwilioService creates a new Twilio service instance
func NewTwilioService() (*TwilioService, error) {
	accountSid := os.Getenv("TWILIO_ACCOUNT_SID")
	authToken := os.Getenv("TWILIO_AUTH_TOKEN")
	from := os.Getenv("TWILIO_WHATSAPP_FROM")

	if accountSid == "" || authToken == "" || from == "" {
		return nil, fmt.Errorf("missing Twilio credentials in environment variables")
	}

	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSid,
		Password: authToken,
	})

	return &TwilioService{client: client, from: from}, nil
}

// SendWhatsAppMessage sends a WhatsApp message via Twilio, splitting bodies
// that exceed the channel limit
func (t *TwilioService) SendWhatsAppMessage(to string, message string) error {
	if !strings.HasPrefix(to, "whatsapp:") {
		to = "whatsapp:" + to
	}

	for _, chunk := range splitMessage(message, twilioMessageLimit) {
		params := &twilioApi.CreateMessageParams{}
		params.SetFrom(t.from)
		params.SetTo(to)
		params.SetBody(chunk)

		resp, err := t.client.Api.CreateMessage(params)
		if err != nil {
			log.Printf("❌ Falha ao enviar mensagem WhatsApp: %v", err)
			return fmt.Errorf("enviar mensagem whatsapp: %w", err)
		}
		log.Printf("✅ Mensagem WhatsApp enviada! SID: %s", *resp.Sid)
	}
	return nil
}

// splitMessage breaks a long body into chunks under limit runes, preferring
// paragraph then space boundaries
func splitMessage(message string, limit int) []string {
	runes := []rune(message)
	if len(runes) <= limit {
		return []string{message}
	}

	var chunks []string
	for len(runes) > limit {
		cut := limit
		for i := limit; i > limit/2; i-- {
			if runes[i] == '\n' || runes[i] == ' ' {
				cut = i
				break
			}
		}
		chunks = append(chunks, strings.TrimSpace(string(runes[:cut])))
		runes = runes[cut:]
	}
	if trimmed := strings.TrimSpace(string(runes)); trimmed != "" {
		chunks = append(chunks, trimmed)
	}
	return chunks
}
