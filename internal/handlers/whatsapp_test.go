package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/EncantoFlores/encanto-backend/internal/services"
	"github.com/EncantoFlores/encanto-backend/internal/storage"
	"github.com/gofiber/fiber/v2"
	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubModel satisfies services.ModelClient for paths that never reach the model.
type stubModel struct{}

func (stubModel) ModelName(advanced bool) string { return "modelo-teste" }

func (stubModel) Complete(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	return openai.ChatCompletionResponse{}, context.Canceled
}

func (stubModel) CompleteStream(ctx context.Context, req openai.ChatCompletionRequest, onDelta func(string)) (string, error) {
	return "", context.Canceled
}

// stubProvider satisfies services.ToolProvider without a tool server.
type stubProvider struct{}

func (stubProvider) ListTools(ctx context.Context) ([]services.ToolDescriptor, error) {
	return nil, nil
}

func (stubProvider) CallTool(ctx context.Context, name string, args services.ToolArgs) (*services.ToolResult, error) {
	return nil, context.Canceled
}

func (stubProvider) GetPrompt(ctx context.Context, name string) (string, error) {
	return "", context.Canceled
}

func newTestApp(t *testing.T) (*fiber.App, storage.Store) {
	t.Helper()

	store := storage.NewMemoryStore()
	assistant := services.NewAssistantService(store, stubModel{}, stubProvider{})
	handler := NewWhatsAppHandler(assistant)

	app := fiber.New()
	app.Post("/webhook/test", handler.HandleTestWebhook)
	return app, store
}

func postJSON(t *testing.T, app *fiber.App, path string, payload any) (int, map[string]any) {
	t.Helper()

	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest("POST", path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	return resp.StatusCode, decoded
}

func TestHandleTestWebhook(t *testing.T) {
	t.Run("guardrail reply without model access", func(t *testing.T) {
		app, store := newTestApp(t)

		status, body := postJSON(t, app, "/webhook/test", TestWebhookPayload{
			From:    "+5531988887777",
			Name:    "Marina",
			Message: "qual a chave pix de vocês?",
		})

		assert.Equal(t, 200, status)
		assert.Equal(t, true, body["success"])
		assert.Equal(t, services.SensitiveTopicReply, body["response"])

		// the turn must have been persisted under the derived session id
		session, err := store.GetSession("5531988887777@s.whatsapp.net")
		require.NoError(t, err)
		assert.Equal(t, "5531988887777", session.CustomerPhone)

		messages, err := store.GetSessionMessages(session.ID, 0)
		require.NoError(t, err)
		require.Len(t, messages, 2)
		assert.Equal(t, "user", messages[0].Role)
		assert.Equal(t, "assistant", messages[1].Role)
	})

	t.Run("missing fields rejected", func(t *testing.T) {
		app, _ := newTestApp(t)

		status, body := postJSON(t, app, "/webhook/test", TestWebhookPayload{Name: "Marina"})
		assert.Equal(t, 400, status)
		assert.Contains(t, body["error"], "required")
	})

	t.Run("malformed body rejected", func(t *testing.T) {
		app, _ := newTestApp(t)

		req := httptest.NewRequest("POST", "/webhook/test", bytes.NewReader([]byte("{nope")))
		req.Header.Set("Content-Type", "application/json")

		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, 400, resp.StatusCode)
	})
}

func TestSessionIDFor(t *testing.T) {
	assert.Equal(t, "5531988887777@s.whatsapp.net", sessionIDFor("5531988887777", "+5531988887777"))
	assert.Equal(t, "5531988887777@s.whatsapp.net", sessionIDFor("", "+5531988887777"))
	assert.Equal(t, "5531988887777@s.whatsapp.net", sessionIDFor("", "5531988887777"))
}
