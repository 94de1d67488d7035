package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/EncantoFlores/encanto-backend/internal/metrics"
	"github.com/EncantoFlores/encanto-backend/internal/models"
	"github.com/EncantoFlores/encanto-backend/internal/storage"
)

// LoopPhase tags where the data-gathering state machine is
type LoopPhase string

const (
	PhaseAnalyzing      LoopPhase = "ANALYZING"
	PhaseGatheringData  LoopPhase = "GATHERING_DATA"
	PhaseReadyToRespond LoopPhase = "READY_TO_RESPOND"
)

const (
	// maxToolIterations bounds the gathering loop per turn
	maxToolIterations = 10
	// contextWindowSize bounds how much transcript one turn reconstructs
	contextWindowSize = 30
)

// synthesisInstruction closes every turn: tools are off, only gathered data
// may be used in the reply
const synthesisInstruction = `Hora de responder ao cliente. Escreva UMA única mensagem final, curta e calorosa, em português.
Use SOMENTE os dados retornados pelas ferramentas nesta conversa (nomes, preços, prazos, disponibilidade). Se algo não foi verificado, não afirme; ofereça verificar.
Nunca mencione ferramentas, sistemas ou processos internos.`

// ConverseRequest is one inbound user turn
type ConverseRequest struct {
	SessionID     string
	UserMessage   string
	CustomerPhone string
	CustomerName  string
	AltRemoteID   string
}

// ReplyStream delivers the outbound reply as ordered text deltas. Err is
// valid once the delta channel closes.
type ReplyStream struct {
	deltas chan string
	err    error
}

func newReplyStream() *ReplyStream {
	return &ReplyStream{deltas: make(chan string, 16)}
}

func newStaticReplyStream(text string) *ReplyStream {
	stream := &ReplyStream{deltas: make(chan string, 1)}
	stream.deltas <- text
	close(stream.deltas)
	return stream
}

// Deltas yields reply fragments in order until the reply is complete
func (r *ReplyStream) Deltas() <-chan string { return r.deltas }

// Err reports how the stream ended; only valid after Deltas closes
func (r *ReplyStream) Err() error { return r.err }

// Collect drains the stream into the full reply text
func (r *ReplyStream) Collect() (string, error) {
	var b strings.Builder
	for delta := range r.deltas {
		b.WriteString(delta)
	}
	return b.String(), r.err
}

func (r *ReplyStream) push(delta string) {
	if delta != "" {
		r.deltas <- delta
	}
}

func (r *ReplyStream) fail(err error) {
	r.err = err
	close(r.deltas)
}

func (r *ReplyStream) finish() {
	close(r.deltas)
}

// AssistantService runs conversation turns end to end: session resolution,
// guardrails, the bounded tool loop and the synthesis stream
type AssistantService struct {
	store storage.Store
	model ModelClient
	tools ToolProvider
	locks *TurnLocks
}

var (
	assistantInstance *AssistantService
	assistantOnce     sync.Once
)

// GetAssistantService returns the singleton wired from the globals set in main
func GetAssistantService() *AssistantService {
	assistantOnce.Do(func() {
		assistantInstance = NewAssistantService(storage.GetStore(), GetModelClient(), GetToolProvider())
	})
	return assistantInstance
}

// NewAssistantService builds a service over explicit collaborators
func NewAssistantService(store storage.Store, model ModelClient, tools ToolProvider) *AssistantService {
	return &AssistantService{
		store: store,
		model: model,
		tools: tools,
		locks: GetTurnLocks(),
	}
}

// turnState carries one turn through both phases
type turnState struct {
	req       ConverseRequest
	session   *models.Session
	window    []*models.Message
	messages  []openai.ChatCompletionMessage
	strategy  Strategy
	degraded  bool
	startedAt time.Time
}

// Converse runs one full turn and returns the reply stream. Guardrail turns
// come back already complete; model turns stream the synthesis as it arrives.
// Only persistence failures are returned as errors; everything else degrades
// into a best-effort reply.
func (s *AssistantService) Converse(ctx context.Context, req ConverseRequest) (*ReplyStream, error) {
	if strings.TrimSpace(req.SessionID) == "" {
		return nil, fmt.Errorf("converse: sessão sem identificador")
	}

	// Turns on the same session run one at a time; different sessions are
	// independent
	release := s.locks.Acquire(req.SessionID)

	turn, static, err := s.prepareTurn(ctx, req)
	if err != nil {
		release()
		return nil, err
	}
	if static != "" {
		release()
		return newStaticReplyStream(static), nil
	}

	stream := newReplyStream()
	go func() {
		defer release()
		s.streamSynthesis(ctx, turn, stream)
	}()
	return stream, nil
}

// prepareTurn resolves the session, persists the user message, walks the
// guardrail ladder and, when the turn needs the model, runs the gathering
// loop. A non-empty static reply means the turn is already answered and
// persisted.
func (s *AssistantService) prepareTurn(ctx context.Context, req ConverseRequest) (*turnState, string, error) {
	turn := &turnState{req: req, startedAt: time.Now()}

	session, err := GetOrCreateSession(s.store, req.SessionID, req.CustomerPhone, req.AltRemoteID)
	if err != nil {
		return nil, "", err
	}
	turn.session = session

	log.Printf("📱 Mensagem recebida de %s (%d caracteres)", session.ID, len(req.UserMessage))

	if err := s.persistMessage(&models.Message{
		SessionID: session.ID,
		Role:      models.RoleUser,
		Content:   req.UserMessage,
	}); err != nil {
		return nil, "", err
	}

	// Guardrail ladder: each branch answers without the model and persists
	// the assistant half of the pair
	if IsSensitiveTopic(req.UserMessage) {
		return s.finishGuardrail(turn, "sensitive_topic", SensitiveTopicReply)
	}
	if session.Blocked {
		return s.finishGuardrail(turn, "blocked", BlockedSessionReply)
	}
	if HasCartEvent(req.UserMessage) {
		s.notifyTeam(ctx, turn, "Pedido recebido pelo carrinho do WhatsApp:\n"+req.UserMessage)
		return s.finishGuardrail(turn, "cart_event", CartEventReply)
	}
	if IsVagueMessage(req.UserMessage) {
		return s.finishGuardrail(turn, "vague", VagueMessageReply)
	}

	history, err := s.store.GetSessionMessages(session.ID, contextWindowSize)
	if err != nil {
		return nil, "", fmt.Errorf("carregar histórico da sessão: %w", err)
	}
	turn.window = buildContextWindow(history, contextWindowSize)

	if IsExplicitConfirmation(turn.window, req.UserMessage) {
		return s.confirmCheckout(ctx, turn)
	}

	prompts, explicitMatch := SelectPrompts(req.UserMessage)
	turn.strategy = DecideStrategy(req.UserMessage, explicitMatch, prompts)
	turn.messages = s.buildModelContext(ctx, turn, prompts)

	if err := s.runToolLoop(ctx, turn); err != nil {
		return nil, "", err
	}
	return turn, "", nil
}

// finishGuardrail persists the canned assistant reply and closes the turn
func (s *AssistantService) finishGuardrail(turn *turnState, outcome, reply string) (*turnState, string, error) {
	if err := s.persistMessage(&models.Message{
		SessionID: turn.session.ID,
		Role:      models.RoleAssistant,
		Content:   reply,
	}); err != nil {
		return nil, "", err
	}
	observeTurn(outcome, turn.startedAt)
	return turn, reply, nil
}

// confirmCheckout runs the literal finalize sequence: notify the team, block
// the session, save the customer memory and answer with the hand-off text
func (s *AssistantService) confirmCheckout(ctx context.Context, turn *turnState) (*turnState, string, error) {
	data, _ := ExtractCheckoutState(turn.window)
	summary := BuildHandoffSummary(data, turn.req.CustomerName, turn.session.CustomerPhone)

	s.notifyTeam(ctx, turn, summary)

	if err := s.store.SetSessionBlocked(turn.session.ID, true); err != nil {
		return nil, "", fmt.Errorf("bloquear sessão confirmada: %w", err)
	}
	turn.session.Blocked = true

	SaveCustomerSummary(s.store, turn.session.CustomerPhone, summary)
	log.Printf("✅ Pedido confirmado na sessão %s, atendimento com a equipe", turn.session.ID)

	return s.finishGuardrail(turn, "confirmation", HandoffReplyText)
}

// notifyTeam pushes a hand-off summary to the team. Failures are logged and
// absorbed; the customer still gets the hand-off reply.
func (s *AssistantService) notifyTeam(ctx context.Context, turn *turnState, summary string) {
	if s.tools == nil {
		log.Printf("⚠️ Sem provedor de ferramentas para notificar a equipe")
		return
	}
	args := ToolArgs{
		"nome_cliente":     turn.req.CustomerName,
		"telefone_cliente": turn.session.CustomerPhone,
		"resumo":           summary,
	}
	if _, err := s.tools.CallTool(ctx, ToolNotifyTeam, args); err != nil {
		log.Printf("⚠️ Falha ao notificar equipe: %v", err)
		metrics.ToolCallsTotal.WithLabelValues(ToolNotifyTeam, "error").Inc()
		return
	}
	metrics.ToolCallsTotal.WithLabelValues(ToolNotifyTeam, "ok").Inc()
}

// buildModelContext assembles the system guidance plus the reconstructed
// transcript window
func (s *AssistantService) buildModelContext(ctx context.Context, turn *turnState, prompts []string) []openai.ChatCompletionMessage {
	var messages []openai.ChatCompletionMessage
	for _, name := range prompts {
		if text := s.promptText(ctx, name); text != "" {
			messages = append(messages, systemMessage(text))
		}
	}

	if memory := CustomerSummary(s.store, turn.session.CustomerPhone); memory != "" {
		messages = append(messages, systemMessage("O que já sabemos deste cliente:\n"+memory))
	}

	data, state := ExtractCheckoutState(turn.window)
	if coaching := CheckoutCoaching(state, data); coaching != "" {
		messages = append(messages, systemMessage(coaching))
	}

	return append(messages, toOpenAIMessages(turn.window)...)
}

// promptText prefers the provider's copy of a guideline prompt, falling back
// to the local catalog
func (s *AssistantService) promptText(ctx context.Context, name string) string {
	if s.tools != nil {
		if text, err := s.tools.GetPrompt(ctx, name); err == nil && strings.TrimSpace(text) != "" {
			return text
		}
	}
	return PromptText(name)
}

// runToolLoop is the gathering phase: bounded iterations of model requests and
// tool executions. Model failures degrade to synthesis; only persistence
// failures return an error.
func (s *AssistantService) runToolLoop(ctx context.Context, turn *turnState) error {
	tools := s.openAITools(ctx)
	if len(tools) == 0 {
		log.Printf("⚠️ Nenhuma ferramenta disponível, indo direto para a síntese")
		turn.degraded = true
		return nil
	}

	phase := PhaseAnalyzing
	for iteration := 0; iteration < maxToolIterations; iteration++ {
		request := openai.ChatCompletionRequest{
			Model:    s.model.ModelName(turn.strategy.UseAdvancedModel),
			Messages: turn.messages,
			Tools:    tools,
		}
		if turn.strategy.ToolCallRequired && iteration == 0 {
			request.ToolChoice = "required"
		}

		resp, err := s.model.Complete(ctx, request)
		if err != nil {
			log.Printf("❌ Falha do modelo na coleta de dados: %v", err)
			turn.degraded = true
			return nil
		}
		if len(resp.Choices) == 0 {
			log.Printf("❌ Modelo retornou resposta vazia na coleta de dados")
			turn.degraded = true
			return nil
		}
		reply := resp.Choices[0].Message

		if len(reply.ToolCalls) == 0 {
			text := strings.TrimSpace(reply.Content)
			if text == "" || IsStallingReply(text) {
				log.Printf("⚠️ Resposta enrolando na iteração %d, corrigindo", iteration+1)
				metrics.StallCorrectionsTotal.Inc()
				turn.messages = append(turn.messages, systemMessage(stallCorrection))
				continue
			}
			if turn.strategy.ToolCallRequired && IsEvasiveReply(text) {
				log.Printf("⚠️ Resposta sem evidência concreta na iteração %d, corrigindo", iteration+1)
				metrics.StallCorrectionsTotal.Inc()
				turn.messages = append(turn.messages, systemMessage(evidenceCorrection))
				continue
			}
			// Dados suficientes; o texto desta fase é descartado, quem fala
			// com o cliente é a síntese
			phase = PhaseReadyToRespond
			break
		}

		phase = PhaseGatheringData
		if err := s.executeToolCalls(ctx, turn, reply.ToolCalls); err != nil {
			return err
		}
	}

	if phase != PhaseReadyToRespond {
		log.Printf("⚠️ Limite de %d iterações atingido na sessão %s, sintetizando com o que há", maxToolIterations, turn.session.ID)
		metrics.IterationLimitTotal.Inc()
		turn.degraded = true
	}
	return nil
}

// executeToolCalls persists the tool-carrying assistant message and runs the
// calls strictly in order, since later calls can depend on exposure state
// written by earlier ones
func (s *AssistantService) executeToolCalls(ctx context.Context, turn *turnState, calls []openai.ToolCall) error {
	rawCalls, err := json.Marshal(calls)
	if err != nil {
		return fmt.Errorf("serializar tool calls: %w", err)
	}
	// Content stays empty: tool-carrying assistant turns are never shown
	if err := s.persistMessage(&models.Message{
		SessionID: turn.session.ID,
		Role:      models.RoleAssistant,
		Content:   "",
		ToolCalls: string(rawCalls),
	}); err != nil {
		return err
	}
	turn.messages = append(turn.messages, openai.ChatCompletionMessage{
		Role:      openai.ChatMessageRoleAssistant,
		ToolCalls: calls,
	})

	for _, call := range calls {
		log.Printf("🔧 Ferramenta solicitada: %s", call.Function.Name)
		resultText := s.runSingleTool(ctx, turn, call)

		if err := s.persistMessage(&models.Message{
			SessionID:  turn.session.ID,
			Role:       models.RoleTool,
			Content:    resultText,
			ToolCallID: call.ID,
			ToolName:   call.Function.Name,
		}); err != nil {
			return err
		}
		turn.messages = append(turn.messages, openai.ChatCompletionMessage{
			Role:       openai.ChatMessageRoleTool,
			Content:    resultText,
			ToolCallID: call.ID,
			Name:       call.Function.Name,
		})
	}
	return nil
}

// runSingleTool validates, executes and post-processes one tool call,
// returning the text fed back to the model. Failures come back as structured
// error text the model can recover from, never as a turn-level error.
func (s *AssistantService) runSingleTool(ctx context.Context, turn *turnState, call openai.ToolCall) string {
	name := call.Function.Name

	args := ToolArgs{}
	if raw := strings.TrimSpace(call.Function.Arguments); raw != "" {
		if err := json.Unmarshal([]byte(raw), &args); err != nil {
			metrics.ToolCallsTotal.WithLabelValues(name, "invalid_args").Inc()
			return toolErrorText(fmt.Sprintf("argumentos inválidos: %v", err))
		}
	}

	// O bloqueio é interno: executa direto contra o estado da sessão, sem
	// passar pelo provedor
	if name == ToolBlockSession {
		if err := s.store.SetSessionBlocked(turn.session.ID, true); err != nil {
			log.Printf("❌ Falha ao bloquear sessão %s: %v", turn.session.ID, err)
			metrics.ToolCallsTotal.WithLabelValues(name, "error").Inc()
			return toolErrorText("não foi possível bloquear o atendimento agora")
		}
		turn.session.Blocked = true
		log.Printf("✅ Sessão %s bloqueada para atendimento humano", turn.session.ID)
		metrics.ToolCallsTotal.WithLabelValues(name, "ok").Inc()
		return `{"status": "atendimento bloqueado, a equipe assume a conversa"}`
	}

	if err := ValidateToolArgs(name, args, s.toolContext(turn)); err != nil {
		log.Printf("⚠️ Validação de %s falhou: %v", name, err)
		metrics.ToolCallsTotal.WithLabelValues(name, "validation_error").Inc()
		return toolErrorText(err.Error())
	}

	if s.tools == nil {
		metrics.ToolCallsTotal.WithLabelValues(name, "error").Inc()
		return toolErrorText("ferramenta indisponível no momento")
	}

	result, err := s.tools.CallTool(ctx, name, args)
	if err != nil {
		log.Printf("❌ Ferramenta %s falhou: %v", name, err)
		metrics.ToolCallsTotal.WithLabelValues(name, "error").Inc()
		return toolErrorText(fmt.Sprintf("a ferramenta %s falhou: %v; tente outro caminho ou avise que a equipe confirma", name, err))
	}
	if result.IsError {
		metrics.ToolCallsTotal.WithLabelValues(name, "tool_error").Inc()
		return toolErrorText(result.Normalized())
	}
	metrics.ToolCallsTotal.WithLabelValues(name, "ok").Inc()

	text := result.Normalized()
	switch name {
	case ToolSearchProducts:
		s.recordExposure(turn.session.ID, result)
		memory := CustomerSummary(s.store, turn.session.CustomerPhone)
		text = Curate(ctx, s.model, result, turn.req.UserMessage, memory)
	case ToolNotifyTeam, ToolFinalizeOrder:
		summary := argString(args, "resumo")
		if summary == "" {
			data, _ := ExtractCheckoutState(turn.window)
			summary = BuildHandoffSummary(data, turn.req.CustomerName, turn.session.CustomerPhone)
		}
		SaveCustomerSummary(s.store, turn.session.CustomerPhone, summary)
	}

	if strings.TrimSpace(text) == "" {
		text = `{"status": "ok", "resultado": "vazio"}`
	}
	return text
}

// toolContext snapshots the session state the validators need
func (s *AssistantService) toolContext(turn *turnState) *ToolCallContext {
	sentIDs, err := s.store.GetSentProductIDs(turn.session.ID)
	if err != nil {
		log.Printf("⚠️ Erro ao carregar produtos já enviados: %v", err)
	}
	return &ToolCallContext{
		Session:        turn.session,
		CustomerName:   turn.req.CustomerName,
		UserMessage:    turn.req.UserMessage,
		Window:         turn.window,
		SentProductIDs: sentIDs,
	}
}

// recordExposure writes every returned product id into the session history so
// later searches exclude what the customer already saw
func (s *AssistantService) recordExposure(sessionID string, result *ToolResult) {
	products := ParseCatalogProducts(result.Raw)
	for _, product := range products {
		if product.ID == "" {
			continue
		}
		if err := s.store.UpsertProductSent(sessionID, product.ID); err != nil {
			log.Printf("⚠️ Erro ao registrar produto %s como enviado: %v", product.ID, err)
		}
	}
	if len(products) > 0 {
		log.Printf("🔍 %d produtos registrados na sessão %s", len(products), sessionID)
	}
}

// openAITools fetches the provider catalog fresh for this turn and converts
// it to the model's tool format
func (s *AssistantService) openAITools(ctx context.Context) []openai.Tool {
	if s.tools == nil {
		return nil
	}
	descriptors, err := s.tools.ListTools(ctx)
	if err != nil {
		log.Printf("⚠️ Erro ao listar ferramentas: %v", err)
		return nil
	}

	tools := make([]openai.Tool, 0, len(descriptors))
	for _, d := range descriptors {
		var params interface{} = map[string]interface{}{"type": "object"}
		if len(d.InputSchema) > 0 {
			params = d.InputSchema
		}
		tools = append(tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        d.Name,
				Description: d.Description,
				Parameters:  params,
			},
		})
	}
	return tools
}

// streamSynthesis is the reply phase: tools off, one final user-facing
// message streamed delta by delta and then persisted
func (s *AssistantService) streamSynthesis(ctx context.Context, turn *turnState, stream *ReplyStream) {
	messages := append(turn.messages, systemMessage(synthesisInstruction))

	reply, err := s.model.CompleteStream(ctx, openai.ChatCompletionRequest{
		Model:    s.model.ModelName(turn.strategy.UseAdvancedModel),
		Messages: messages,
	}, stream.push)
	if err != nil {
		log.Printf("❌ Falha na síntese da sessão %s: %v", turn.session.ID, err)
		turn.degraded = true
	}

	if strings.TrimSpace(reply) == "" {
		reply = FallbackReply
		stream.push(reply)
	}

	if err := s.persistMessage(&models.Message{
		SessionID: turn.session.ID,
		Role:      models.RoleAssistant,
		Content:   reply,
	}); err != nil {
		stream.fail(err)
		return
	}

	outcome := "completed"
	if turn.degraded {
		outcome = "degraded"
	} else {
		log.Printf("✅ Turno concluído na sessão %s", turn.session.ID)
	}
	observeTurn(outcome, turn.startedAt)
	stream.finish()
}

func (s *AssistantService) persistMessage(msg *models.Message) error {
	if err := s.store.CreateMessage(msg); err != nil {
		return fmt.Errorf("persistir mensagem %s: %w", msg.Role, err)
	}
	return nil
}

// buildContextWindow truncates the transcript to the newest max entries and
// drops tool messages whose issuing assistant call fell outside the cut, plus
// assistant tool-call messages whose results are incomplete in the window.
// Either orphan shape would be rejected by the model API.
func buildContextWindow(messages []*models.Message, max int) []*models.Message {
	if len(messages) > max {
		messages = messages[len(messages)-max:]
	}

	answered := make(map[string]bool)
	for _, msg := range messages {
		if msg.Role == models.RoleTool && msg.ToolCallID != "" {
			answered[msg.ToolCallID] = true
		}
	}

	issued := make(map[string]bool)
	window := make([]*models.Message, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case models.RoleAssistant:
			if msg.ToolCalls != "" {
				calls := decodeToolCalls(msg.ToolCalls)
				complete := len(calls) > 0
				for _, call := range calls {
					if !answered[call.ID] {
						complete = false
						break
					}
				}
				if !complete {
					continue
				}
				for _, call := range calls {
					issued[call.ID] = true
				}
			}
		case models.RoleTool:
			if !issued[msg.ToolCallID] {
				continue
			}
		}
		window = append(window, msg)
	}
	return window
}

// toOpenAIMessages converts transcript rows into the model's message format
func toOpenAIMessages(window []*models.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(window))
	for _, msg := range window {
		converted := openai.ChatCompletionMessage{Content: msg.Content}
		switch msg.Role {
		case models.RoleUser:
			converted.Role = openai.ChatMessageRoleUser
		case models.RoleAssistant:
			converted.Role = openai.ChatMessageRoleAssistant
			if msg.ToolCalls != "" {
				converted.ToolCalls = decodeToolCalls(msg.ToolCalls)
			}
		case models.RoleTool:
			converted.Role = openai.ChatMessageRoleTool
			converted.ToolCallID = msg.ToolCallID
			converted.Name = msg.ToolName
		case models.RoleSystem:
			converted.Role = openai.ChatMessageRoleSystem
		default:
			continue
		}
		out = append(out, converted)
	}
	return out
}

func decodeToolCalls(raw string) []openai.ToolCall {
	var calls []openai.ToolCall
	if err := json.Unmarshal([]byte(raw), &calls); err != nil {
		return nil
	}
	return calls
}

func systemMessage(content string) openai.ChatCompletionMessage {
	return openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: content}
}

// toolErrorText shapes a failure as a structured result the model can read
// and recover from
func toolErrorText(reason string) string {
	payload, _ := json.Marshal(map[string]string{"erro": reason})
	return string(payload)
}

func observeTurn(outcome string, startedAt time.Time) {
	metrics.TurnsTotal.WithLabelValues(outcome).Inc()
	metrics.TurnDuration.Observe(time.Since(startedAt).Seconds())
}
