package services

import (
	"strings"
	"unicode/utf8"
)

// Strategy is the per-turn tool/model decision. UseAdvancedModel is scoped to
// this turn only and travels as a value through the call chain, never as a
// field on a shared service.
type Strategy struct {
	ToolCallRequired bool
	UseAdvancedModel bool
}

// shortMessageLimit is the rune count under which a message never forces tools
const shortMessageLimit = 30

// comparativeWords signal the customer is weighing options rather than naming one
var comparativeWords = []string{
	"diferença", "diferenca", "melhor", "comparar", "comparação", "comparacao",
	"versus", " ou ", "prefere", "vale mais",
}

// enumerationWords signal the customer wants lists rather than a single item
var enumerationWords = []string{
	"opções", "opcoes", "lista", "listar", "todas", "todos", "quais", "tipos",
	"variedade", "me mostra tudo",
}

// finalizeIntents force a tool call regardless of scoring
var finalizeIntents = []string{
	"pode confirmar", "confirmar pedido", "confirma o pedido", "fechar pedido",
	"pode fechar", "finalizar", "fecha o pedido", "quero fechar",
}

// HasCartEvent reports whether the message carries a WhatsApp cart payload
func HasCartEvent(userMessage string) bool {
	if strings.Contains(userMessage, "🛒") {
		return true
	}
	normalized := normalizeText(userMessage)
	return strings.Contains(normalized, "enviou um carrinho") ||
		strings.Contains(normalized, "[carrinho]") ||
		strings.HasPrefix(normalized, "carrinho ")
}

func hasFinalizeIntent(normalized string) bool {
	for _, intent := range finalizeIntents {
		if strings.Contains(normalized, intent) {
			return true
		}
	}
	return false
}

// DecideStrategy picks whether this turn must call a tool and which model
// tier serves it, from the message shape and the prompts §SelectPrompts chose.
func DecideStrategy(userMessage string, explicitMatch bool, prompts []string) Strategy {
	normalized := normalizeText(userMessage)

	// Hard overrides: cart events and explicit closing always verify through
	// tools, on the baseline tier
	if HasCartEvent(userMessage) || hasFinalizeIntent(normalized) {
		return Strategy{ToolCallRequired: true, UseAdvancedModel: false}
	}

	strategy := Strategy{}
	strategy.UseAdvancedModel = complexityScore(userMessage, normalized) > 40 && topicalCount(prompts) > 1

	// Short or topic-free messages never force a tool call
	if utf8.RuneCountInString(strings.TrimSpace(userMessage)) <= shortMessageLimit || !explicitMatch {
		return strategy
	}

	score := 0

	// Factor 1: critical topical prompts (delivery, closing, pricing)
	if hasPromptWithPriority(prompts, priorityProtocol) || hasPromptWithPriority(prompts, priorityCritical) {
		score += 100
	}

	// Factor 2: supporting topical prompts (browsing, customization, indecision)
	if hasPromptWithPriority(prompts, prioritySupporting) {
		score += 30
	}

	// Factor 3: the customer named a concrete product or asked a price
	if hasSpecificProductLanguage(normalized) {
		score += 50
	}

	// Factor 4: generic or comparative phrasing argues against a forced call
	if containsAny(normalized, comparativeWords) {
		score -= 20
	}

	strategy.ToolCallRequired = score > 60
	return strategy
}

// complexityScore estimates how much reasoning the turn needs; above 40 with
// multiple topics selected, the turn runs on the advanced tier
func complexityScore(raw, normalized string) int {
	score := 0
	if containsAny(normalized, comparativeWords) {
		score += 25
	}
	if containsAny(normalized, enumerationWords) || strings.Count(raw, ",") >= 2 {
		score += 20
	}
	if utf8.RuneCountInString(raw) > 200 {
		score += 30
	}
	if strings.Count(raw, "?") >= 2 {
		score += 20
	}
	return score
}

func topicalCount(prompts []string) int {
	count := 0
	for _, name := range prompts {
		if name != BasePrompt {
			count++
		}
	}
	return count
}

func hasPromptWithPriority(prompts []string, priority int) bool {
	for _, name := range prompts {
		if name == BasePrompt {
			continue
		}
		if PromptPriority(name) == priority {
			return true
		}
	}
	return false
}

// hasSpecificProductLanguage reports catalog nouns or direct price asks
func hasSpecificProductLanguage(normalized string) bool {
	if containsAny(normalized, catalogKeywords) {
		return true
	}
	return strings.Contains(normalized, "quanto custa") ||
		strings.Contains(normalized, "qual o valor") ||
		strings.Contains(normalized, "preço de") ||
		strings.Contains(normalized, "preco de")
}

func containsAny(s string, terms []string) bool {
	for _, term := range terms {
		if strings.Contains(s, term) {
			return true
		}
	}
	return false
}
