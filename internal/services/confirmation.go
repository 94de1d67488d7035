package services

import (
	"strings"
	"unicode/utf8"

	"github.com/EncantoFlores/encanto-backend/internal/models"
)

// confirmationLimit bounds how long a message may be and still count as a
// bare confirmation
const confirmationLimit = 40

// affirmatives is the short-confirmation lexicon
var affirmatives = []string{
	"sim", "pode confirmar", "confirmo", "confirma", "confirmar",
	"pode ser", "pode sim", "pode fechar", "fechado", "fechou", "fecha",
	"isso", "isso mesmo", "exato", "certo", "perfeito", "claro",
	"ok", "okay", "beleza", "blz", "show", "top", "uhum", "aham",
	"vamos", "bora", "quero", "aceito", "combinado",
}

// hesitationWords disqualify a reply even when it carries an affirmative
var hesitationWords = []string{
	"mudar", "trocar", "outro", "outra", "espera", "calma", "ainda", "antes",
}

// summary shape: all four ingredient groups must appear in the assistant text
var (
	summaryPriceMarkers    = []string{"r$"}
	summaryDeliveryMarkers = []string{"entrega", "entregar", "retirada", "receber", "agendad"}
	summaryPaymentMarkers  = []string{"pix", "cartão", "cartao", "crédito", "credito", "débito", "debito", "dinheiro", "boleto", "pagamento"}
	summaryClosingMarkers  = []string{"tudo certo", "posso confirmar", "podemos confirmar", "confirma?", "confirmar?", "podemos fechar", "posso fechar"}
)

// IsExplicitConfirmation decides whether the current user message confirms an
// order. It needs both a qualifying summary in the latest assistant message
// and a short affirmative reply, so an "ok" early in the conversation never
// finalizes anything.
func IsExplicitConfirmation(window []*models.Message, userMessage string) bool {
	summary := latestAssistantText(window)
	if !LooksLikeOrderSummary(summary) {
		return false
	}
	return isAffirmativeReply(userMessage)
}

// LooksLikeOrderSummary checks the four ingredient groups of a complete
// summary: price, delivery, payment, and a closing question
func LooksLikeOrderSummary(text string) bool {
	if text == "" {
		return false
	}
	lowered := strings.ToLower(text)
	return containsAny(lowered, summaryPriceMarkers) &&
		containsAny(lowered, summaryDeliveryMarkers) &&
		containsAny(lowered, summaryPaymentMarkers) &&
		containsAny(lowered, summaryClosingMarkers)
}

func isAffirmativeReply(userMessage string) bool {
	normalized := normalizeText(userMessage)
	if normalized == "" {
		return false
	}

	// Any negation disqualifies ("ainda não", "não pode ser")
	if containsWord(normalized, "não") || containsWord(normalized, "nao") {
		return false
	}
	// So does a change request riding on an affirmative word ("quero mudar")
	for _, word := range hesitationWords {
		if containsWord(normalized, word) {
			return false
		}
	}

	for _, phrase := range affirmatives {
		if normalized == phrase {
			return true
		}
	}
	if utf8.RuneCountInString(normalized) > confirmationLimit {
		return false
	}
	for _, phrase := range affirmatives {
		if containsWord(normalized, phrase) {
			return true
		}
	}
	return false
}

// containsWord matches a phrase on word boundaries, so "assim" never reads as "sim"
func containsWord(s, phrase string) bool {
	return strings.Contains(" "+s+" ", " "+phrase+" ")
}

// latestAssistantText finds the newest assistant message that carries text
// (tool-carrying assistant turns have empty content and do not count)
func latestAssistantText(window []*models.Message) string {
	for i := len(window) - 1; i >= 0; i-- {
		msg := window[i]
		if msg.Role == models.RoleAssistant && strings.TrimSpace(msg.Content) != "" {
			return msg.Content
		}
	}
	return ""
}
