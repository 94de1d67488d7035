package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	openai "github.com/sashabaranov/go-openai"

	"github.com/EncantoFlores/encanto-backend/internal/models"
	"github.com/EncantoFlores/encanto-backend/internal/storage"
)

// fakeModel scripts Complete by call number (1-based) and CompleteStream once
type fakeModel struct {
	mu            sync.Mutex
	completeFn    func(call int, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
	streamFn      func(req openai.ChatCompletionRequest, onDelta func(string)) (string, error)
	completeCalls []openai.ChatCompletionRequest
	streamCalls   []openai.ChatCompletionRequest
}

func (f *fakeModel) ModelName(advanced bool) string {
	if advanced {
		return "modelo-avancado"
	}
	return "modelo-base"
}

func (f *fakeModel) Complete(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.mu.Lock()
	f.completeCalls = append(f.completeCalls, req)
	call := len(f.completeCalls)
	f.mu.Unlock()
	if f.completeFn == nil {
		return textResponse("tudo certo"), nil
	}
	return f.completeFn(call, req)
}

func (f *fakeModel) CompleteStream(_ context.Context, req openai.ChatCompletionRequest, onDelta func(string)) (string, error) {
	f.mu.Lock()
	f.streamCalls = append(f.streamCalls, req)
	f.mu.Unlock()
	if f.streamFn == nil {
		onDelta("resposta padrão")
		return "resposta padrão", nil
	}
	return f.streamFn(req, onDelta)
}

type toolInvocation struct {
	name string
	args ToolArgs
}

// fakeProvider serves a fixed tool catalog and records every call
type fakeProvider struct {
	mu     sync.Mutex
	tools  []ToolDescriptor
	callFn func(name string, args ToolArgs) (*ToolResult, error)
	calls  []toolInvocation
}

func (f *fakeProvider) ListTools(context.Context) ([]ToolDescriptor, error) {
	return f.tools, nil
}

func (f *fakeProvider) CallTool(_ context.Context, name string, args ToolArgs) (*ToolResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, toolInvocation{name: name, args: args})
	f.mu.Unlock()
	if f.callFn == nil {
		return &ToolResult{Text: "ok"}, nil
	}
	return f.callFn(name, args)
}

func (f *fakeProvider) GetPrompt(context.Context, string) (string, error) {
	return "", errors.New("prompt não publicado")
}

func defaultProvider() *fakeProvider {
	schema := json.RawMessage(`{"type": "object", "properties": {"termo": {"type": "string"}}}`)
	return &fakeProvider{
		tools: []ToolDescriptor{
			{Name: ToolSearchProducts, Description: "Busca produtos no catálogo", InputSchema: schema},
			{Name: ToolFreight, Description: "Calcula o frete por cidade"},
			{Name: ToolDeliveryDates, Description: "Verifica a agenda de entregas"},
			{Name: ToolNotifyTeam, Description: "Avisa a equipe humana"},
			{Name: ToolBlockSession, Description: "Transfere o atendimento para a equipe"},
		},
	}
}

func textResponse(content string) openai.ChatCompletionResponse {
	return openai.ChatCompletionResponse{Choices: []openai.ChatCompletionChoice{{
		Message: openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: content},
	}}}
}

func toolCallResponse(id, name, arguments string) openai.ChatCompletionResponse {
	return openai.ChatCompletionResponse{Choices: []openai.ChatCompletionChoice{{
		Message: openai.ChatCompletionMessage{
			Role: openai.ChatMessageRoleAssistant,
			ToolCalls: []openai.ToolCall{{
				ID:       id,
				Type:     openai.ToolTypeFunction,
				Function: openai.FunctionCall{Name: name, Arguments: arguments},
			}},
		},
	}}}
}

const twoProducts = `{"produtos": [
	{"id": "p1", "nome": "Cesta Carinho", "preco": 159.9},
	{"id": "p2", "nome": "Cesta Flor", "preco": 120.0}
]}`

func TestConverseProductInquiry(t *testing.T) {
	store := storage.NewMemoryStore()
	provider := defaultProvider()
	provider.callFn = func(name string, args ToolArgs) (*ToolResult, error) {
		return &ToolResult{Raw: json.RawMessage(twoProducts)}, nil
	}
	model := &fakeModel{
		completeFn: func(call int, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
			if call == 1 {
				return toolCallResponse("call_1", ToolSearchProducts, `{"termo": "cesta"}`), nil
			}
			return textResponse("Encontrei a Cesta Carinho por R$ 159,90 e a Cesta Flor por R$ 120,00"), nil
		},
		streamFn: func(req openai.ChatCompletionRequest, onDelta func(string)) (string, error) {
			onDelta("A Cesta Carinho sai por ")
			onDelta("R$ 159,90 💐")
			return "A Cesta Carinho sai por R$ 159,90 💐", nil
		},
	}
	assistant := NewAssistantService(store, model, provider)

	stream, err := assistant.Converse(context.Background(), ConverseRequest{
		SessionID:    testJID,
		UserMessage:  "Quero uma cesta de café da manhã, quanto custa e vocês entregam?",
		CustomerName: "Maria",
	})
	require.NoError(t, err)

	reply, err := stream.Collect()
	require.NoError(t, err)
	assert.Equal(t, "A Cesta Carinho sai por R$ 159,90 💐", reply)

	// Session came to life with the phone seeded from the id
	session, err := store.GetSession(testJID)
	require.NoError(t, err)
	assert.Equal(t, "5531988887777", session.CustomerPhone)

	// Transcript: user, tool-carrying assistant, tool result, final reply
	messages, err := store.GetSessionMessages(testJID, 0)
	require.NoError(t, err)
	require.Len(t, messages, 4)
	assert.Equal(t, models.RoleUser, messages[0].Role)
	assert.Equal(t, models.RoleAssistant, messages[1].Role)
	assert.Empty(t, messages[1].Content)
	assert.NotEmpty(t, messages[1].ToolCalls)
	assert.Equal(t, models.RoleTool, messages[2].Role)
	assert.Equal(t, ToolSearchProducts, messages[2].ToolName)
	assert.Equal(t, "call_1", messages[2].ToolCallID)
	assert.Equal(t, reply, messages[3].Content)

	// Every returned product is recorded as shown
	sent, err := store.GetSentProductIDs(testJID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"p1", "p2"}, sent)

	// Price question on a concrete product forces the first call
	require.Len(t, model.completeCalls, 2)
	assert.Equal(t, "required", model.completeCalls[0].ToolChoice)
	assert.Nil(t, model.completeCalls[1].ToolChoice)
	assert.Equal(t, "modelo-base", model.completeCalls[0].Model)

	// The persona prompt opens the context, the user message closes it
	first := model.completeCalls[0].Messages
	require.NotEmpty(t, first)
	assert.Equal(t, openai.ChatMessageRoleSystem, first[0].Role)
	assert.Contains(t, first[0].Content, "Flora")
	assert.Equal(t, openai.ChatMessageRoleUser, first[len(first)-1].Role)

	// Synthesis runs with tools off and the closing instruction last
	require.Len(t, model.streamCalls, 1)
	synthesis := model.streamCalls[0]
	assert.Empty(t, synthesis.Tools)
	assert.Contains(t, synthesis.Messages[len(synthesis.Messages)-1].Content, "Hora de responder")

	require.Len(t, provider.calls, 1)
	assert.Equal(t, ToolSearchProducts, provider.calls[0].name)
	assert.Equal(t, "cesta", provider.calls[0].args["termo"])
}

func TestConverseSensitiveTopic(t *testing.T) {
	store := storage.NewMemoryStore()
	provider := defaultProvider()
	model := &fakeModel{}
	assistant := NewAssistantService(store, model, provider)

	stream, err := assistant.Converse(context.Background(), ConverseRequest{
		SessionID:   testJID,
		UserMessage: "qual a chave pix de vocês?",
	})
	require.NoError(t, err)

	reply, err := stream.Collect()
	require.NoError(t, err)
	assert.Equal(t, SensitiveTopicReply, reply)

	// No model, no tools, and both halves of the pair persisted
	assert.Empty(t, model.completeCalls)
	assert.Empty(t, model.streamCalls)
	assert.Empty(t, provider.calls)

	messages, err := store.GetSessionMessages(testJID, 0)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, models.RoleUser, messages[0].Role)
	assert.Equal(t, SensitiveTopicReply, messages[1].Content)
}

func TestConverseBlockedSession(t *testing.T) {
	store := storage.NewMemoryStore()
	_, err := GetOrCreateSession(store, testJID, "", "")
	require.NoError(t, err)
	require.NoError(t, store.SetSessionBlocked(testJID, true))

	model := &fakeModel{}
	assistant := NewAssistantService(store, model, defaultProvider())

	stream, err := assistant.Converse(context.Background(), ConverseRequest{
		SessionID:   testJID,
		UserMessage: "quero mais uma cesta de café da manhã para sexta",
	})
	require.NoError(t, err)

	reply, err := stream.Collect()
	require.NoError(t, err)
	assert.Equal(t, BlockedSessionReply, reply)
	assert.Empty(t, model.completeCalls)
}

func TestConverseVagueMessage(t *testing.T) {
	store := storage.NewMemoryStore()
	model := &fakeModel{}
	assistant := NewAssistantService(store, model, defaultProvider())

	stream, err := assistant.Converse(context.Background(), ConverseRequest{
		SessionID:   testJID,
		UserMessage: "👍",
	})
	require.NoError(t, err)

	reply, err := stream.Collect()
	require.NoError(t, err)
	assert.Equal(t, VagueMessageReply, reply)
	assert.Empty(t, model.completeCalls)

	messages, err := store.GetSessionMessages(testJID, 0)
	require.NoError(t, err)
	assert.Len(t, messages, 2)
}

func TestConverseCartEvent(t *testing.T) {
	store := storage.NewMemoryStore()
	provider := defaultProvider()
	model := &fakeModel{}
	assistant := NewAssistantService(store, model, provider)

	stream, err := assistant.Converse(context.Background(), ConverseRequest{
		SessionID:    testJID,
		UserMessage:  "🛒 1x Cesta Carinho - R$ 159,90",
		CustomerName: "Maria",
	})
	require.NoError(t, err)

	reply, err := stream.Collect()
	require.NoError(t, err)
	assert.Equal(t, CartEventReply, reply)
	assert.Empty(t, model.completeCalls)

	// The team hears about the cart right away
	require.Len(t, provider.calls, 1)
	assert.Equal(t, ToolNotifyTeam, provider.calls[0].name)
	resumo, _ := provider.calls[0].args["resumo"].(string)
	assert.Contains(t, resumo, "Cesta Carinho")
}

func TestConverseConfirmation(t *testing.T) {
	store := storage.NewMemoryStore()
	provider := defaultProvider()
	model := &fakeModel{}
	assistant := NewAssistantService(store, model, provider)

	_, err := GetOrCreateSession(store, testJID, "", "")
	require.NoError(t, err)
	require.NoError(t, store.CreateMessage(&models.Message{SessionID: testJID, Role: models.RoleUser, Content: "quero a cesta flor do campo"}))
	require.NoError(t, store.CreateMessage(&models.Message{SessionID: testJID, Role: models.RoleAssistant, Content: fullSummary}))

	stream, err := assistant.Converse(context.Background(), ConverseRequest{
		SessionID:    testJID,
		UserMessage:  "pode confirmar",
		CustomerName: "Maria",
	})
	require.NoError(t, err)

	reply, err := stream.Collect()
	require.NoError(t, err)
	assert.Equal(t, HandoffReplyText, reply)

	// No model turn: confirmation resolves from the transcript alone
	assert.Empty(t, model.completeCalls)
	assert.Empty(t, model.streamCalls)

	// Team notified, session handed off, memory saved
	require.Len(t, provider.calls, 1)
	assert.Equal(t, ToolNotifyTeam, provider.calls[0].name)

	session, err := store.GetSession(testJID)
	require.NoError(t, err)
	assert.True(t, session.Blocked)

	memory, err := store.GetCustomerMemory("5531988887777")
	require.NoError(t, err)
	assert.Contains(t, memory.Summary, "Resumo do pedido")

	messages, err := store.GetSessionMessages(testJID, 0)
	require.NoError(t, err)
	require.Len(t, messages, 4)
	assert.Equal(t, HandoffReplyText, messages[3].Content)
}

func TestConverseIterationLimit(t *testing.T) {
	store := storage.NewMemoryStore()
	provider := defaultProvider()
	provider.callFn = func(name string, args ToolArgs) (*ToolResult, error) {
		return &ToolResult{Raw: json.RawMessage(twoProducts)}, nil
	}
	model := &fakeModel{
		completeFn: func(call int, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
			return toolCallResponse(fmt.Sprintf("call_%d", call), ToolSearchProducts, `{"termo": "cesta"}`), nil
		},
		streamFn: func(req openai.ChatCompletionRequest, onDelta func(string)) (string, error) {
			onDelta("Separei algumas cestas lindas para você!")
			return "Separei algumas cestas lindas para você!", nil
		},
	}
	assistant := NewAssistantService(store, model, provider)

	stream, err := assistant.Converse(context.Background(), ConverseRequest{
		SessionID:   testJID,
		UserMessage: "quanto custa a cesta grande de café da manhã para aniversário?",
	})
	require.NoError(t, err)

	reply, err := stream.Collect()
	require.NoError(t, err)
	assert.Equal(t, "Separei algumas cestas lindas para você!", reply)

	// The loop stops at the cap and the customer still gets an answer
	assert.Len(t, model.completeCalls, maxToolIterations)
	assert.Len(t, provider.calls, maxToolIterations)
	assert.Len(t, model.streamCalls, 1)

	messages, err := store.GetSessionMessages(testJID, 0)
	require.NoError(t, err)
	assert.Len(t, messages, 1+2*maxToolIterations+1)
}

func TestConverseStallCorrection(t *testing.T) {
	store := storage.NewMemoryStore()
	model := &fakeModel{
		completeFn: func(call int, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
			if call == 1 {
				return textResponse("Vou verificar, um momento!"), nil
			}
			return textResponse("A Cesta Carinho sai por R$ 159,90 hoje"), nil
		},
	}
	assistant := NewAssistantService(store, model, defaultProvider())

	stream, err := assistant.Converse(context.Background(), ConverseRequest{
		SessionID:   testJID,
		UserMessage: "quanto custa a cesta?",
	})
	require.NoError(t, err)

	_, err = stream.Collect()
	require.NoError(t, err)

	// The stall was corrected in place with an extra system instruction
	require.Len(t, model.completeCalls, 2)
	second := model.completeCalls[1].Messages
	last := second[len(second)-1]
	assert.Equal(t, openai.ChatMessageRoleSystem, last.Role)
	assert.Contains(t, last.Content, "Chame a ferramenta")

	// Corrections never land in the durable transcript
	messages, err := store.GetSessionMessages(testJID, 0)
	require.NoError(t, err)
	assert.Len(t, messages, 2)
}

func TestConverseEvidenceCorrection(t *testing.T) {
	store := storage.NewMemoryStore()
	model := &fakeModel{
		completeFn: func(call int, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
			if call == 1 {
				return textResponse("Temos várias opções lindas!"), nil
			}
			return textResponse("A Cesta Carinho custa R$ 159,90"), nil
		},
	}
	assistant := NewAssistantService(store, model, defaultProvider())

	stream, err := assistant.Converse(context.Background(), ConverseRequest{
		SessionID:   testJID,
		UserMessage: "Quero uma cesta de café da manhã, quanto custa e vocês entregam?",
	})
	require.NoError(t, err)

	_, err = stream.Collect()
	require.NoError(t, err)

	require.Len(t, model.completeCalls, 2)
	second := model.completeCalls[1].Messages
	assert.Contains(t, second[len(second)-1].Content, "dados concretos")
}

func TestConverseModelFailureDegrades(t *testing.T) {
	store := storage.NewMemoryStore()
	model := &fakeModel{
		completeFn: func(int, openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
			return openai.ChatCompletionResponse{}, errors.New("modelo fora do ar")
		},
		streamFn: func(req openai.ChatCompletionRequest, onDelta func(string)) (string, error) {
			onDelta("Posso te mostrar nossas cestas mais pedidas?")
			return "Posso te mostrar nossas cestas mais pedidas?", nil
		},
	}
	assistant := NewAssistantService(store, model, defaultProvider())

	stream, err := assistant.Converse(context.Background(), ConverseRequest{
		SessionID:   testJID,
		UserMessage: "Quero uma cesta de café da manhã, quanto custa e vocês entregam?",
	})
	require.NoError(t, err)

	reply, err := stream.Collect()
	require.NoError(t, err)
	assert.Equal(t, "Posso te mostrar nossas cestas mais pedidas?", reply)
	assert.Len(t, model.streamCalls, 1)
}

func TestConverseSynthesisFallback(t *testing.T) {
	store := storage.NewMemoryStore()
	model := &fakeModel{
		completeFn: func(int, openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
			return textResponse("A cesta custa R$ 99,90"), nil
		},
		streamFn: func(openai.ChatCompletionRequest, func(string)) (string, error) {
			return "", errors.New("stream quebrou")
		},
	}
	assistant := NewAssistantService(store, model, defaultProvider())

	stream, err := assistant.Converse(context.Background(), ConverseRequest{
		SessionID:   testJID,
		UserMessage: "quanto custa a cesta?",
	})
	require.NoError(t, err)

	reply, err := stream.Collect()
	require.NoError(t, err)
	assert.Equal(t, FallbackReply, reply)

	messages, err := store.GetSessionMessages(testJID, 0)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, FallbackReply, messages[1].Content)
}

func TestConverseToolValidationFeedback(t *testing.T) {
	store := storage.NewMemoryStore()
	provider := defaultProvider()
	model := &fakeModel{
		completeFn: func(call int, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
			if call == 1 {
				return toolCallResponse("call_1", ToolFreight, `{}`), nil
			}
			return textResponse("O frete para Contagem sai por R$ 25,00"), nil
		},
	}
	assistant := NewAssistantService(store, model, provider)

	stream, err := assistant.Converse(context.Background(), ConverseRequest{
		SessionID:   testJID,
		UserMessage: "qual o frete para Contagem e quando entregam por lá?",
	})
	require.NoError(t, err)

	_, err = stream.Collect()
	require.NoError(t, err)

	// The invalid call never reached the provider; the model saw the error
	assert.Empty(t, provider.calls)

	messages, err := store.GetSessionMessages(testJID, 0)
	require.NoError(t, err)
	require.Len(t, messages, 4)
	assert.Equal(t, models.RoleTool, messages[2].Role)
	assert.Contains(t, messages[2].Content, "erro")
	assert.Contains(t, messages[2].Content, "cidade")
}

func TestConverseBlockSessionTool(t *testing.T) {
	store := storage.NewMemoryStore()
	provider := defaultProvider()
	model := &fakeModel{
		completeFn: func(call int, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
			if call == 1 {
				return toolCallResponse("call_1", ToolBlockSession, `{}`), nil
			}
			return textResponse("Prontinho! A equipe assume daqui, e a Cesta Carinho segue reservada por R$ 159,90"), nil
		},
	}
	assistant := NewAssistantService(store, model, provider)

	stream, err := assistant.Converse(context.Background(), ConverseRequest{
		SessionID:   testJID,
		UserMessage: "quero falar com atendente humano agora, por favor",
	})
	require.NoError(t, err)

	_, err = stream.Collect()
	require.NoError(t, err)

	// Blocking is internal: session state flips, the provider never hears of it
	session, err := store.GetSession(testJID)
	require.NoError(t, err)
	assert.True(t, session.Blocked)
	assert.Empty(t, provider.calls)

	messages, err := store.GetSessionMessages(testJID, 0)
	require.NoError(t, err)
	require.Len(t, messages, 4)
	assert.Contains(t, messages[2].Content, "atendimento bloqueado")
}

func TestConverseEmptySessionID(t *testing.T) {
	assistant := NewAssistantService(storage.NewMemoryStore(), &fakeModel{}, defaultProvider())
	_, err := assistant.Converse(context.Background(), ConverseRequest{UserMessage: "oi"})
	assert.Error(t, err)
}

func TestBuildContextWindow(t *testing.T) {
	toolCallsJSON := `[{"id": "a", "type": "function", "function": {"name": "buscar_produtos", "arguments": "{}"}}]`

	t.Run("keeps complete call and result pairs", func(t *testing.T) {
		messages := []*models.Message{
			userMsg("quero cesta"),
			{Role: models.RoleAssistant, ToolCalls: toolCallsJSON},
			{Role: models.RoleTool, ToolCallID: "a", ToolName: ToolSearchProducts, Content: "Cesta - R$ 99,00"},
		}
		window := buildContextWindow(messages, 30)
		assert.Len(t, window, 3)
	})

	t.Run("drops tool results whose issuer fell outside the cut", func(t *testing.T) {
		messages := []*models.Message{
			{Role: models.RoleTool, ToolCallID: "x", Content: "resultado órfão"},
			userMsg("e aí?"),
		}
		window := buildContextWindow(messages, 30)
		require.Len(t, window, 1)
		assert.Equal(t, models.RoleUser, window[0].Role)
	})

	t.Run("drops assistant calls whose results are incomplete", func(t *testing.T) {
		messages := []*models.Message{
			{Role: models.RoleAssistant, ToolCalls: toolCallsJSON},
			userMsg("continua aí?"),
		}
		window := buildContextWindow(messages, 30)
		require.Len(t, window, 1)
		assert.Equal(t, models.RoleUser, window[0].Role)
	})

	t.Run("keeps plain assistant text", func(t *testing.T) {
		messages := []*models.Message{
			{Role: models.RoleAssistant, Content: "Oi! Como posso ajudar?"},
		}
		assert.Len(t, buildContextWindow(messages, 30), 1)
	})

	t.Run("truncates to the newest entries", func(t *testing.T) {
		var messages []*models.Message
		for i := 0; i < 35; i++ {
			messages = append(messages, userMsg(fmt.Sprintf("mensagem %d", i)))
		}
		window := buildContextWindow(messages, 30)
		require.Len(t, window, 30)
		assert.Equal(t, "mensagem 5", window[0].Content)
		assert.Equal(t, "mensagem 34", window[29].Content)
	})
}
