package services

import (
	"strings"
	"unicode/utf8"
)

// Corrective system instructions appended when the model narrates instead of
// acting. They re-prompt within the same turn; the customer never sees them.
const (
	stallCorrection = `Não anuncie que vai verificar nada. Chame a ferramenta necessária AGORA e responda somente com os dados que ela retornar.`

	evidenceCorrection = `Sua resposta precisa de dados concretos do catálogo (nome do produto e preço em R$). Chame buscar_produtos agora e monte a resposta com o resultado dela.`
)

// stallPhrases announce future action instead of performing it
var stallPhrases = []string{
	"vou verificar", "vou consultar", "vou checar", "vou buscar", "vou conferir",
	"vou dar uma olhada", "vou olhar", "irei verificar", "irei consultar",
	"um momento", "um momentinho", "um instante", "um instantinho",
	"só um momento", "so um momento", "só um instante", "so um instante",
	"aguarde", "aguarda um", "já te passo", "ja te passo", "já verifico",
	"ja verifico", "deixa eu ver", "deixe-me verificar", "me dê um segundo",
	"me de um segundo", "enquanto verifico", "assim que eu verificar",
}

// evidenceReplyLimit is the rune count under which a tool-required reply with
// no concrete data is treated as an evasion
const evidenceReplyLimit = 120

// IsStallingReply reports whether a non-tool model response is empty or
// announces a pending action instead of answering
func IsStallingReply(text string) bool {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return true
	}
	return containsAny(normalizeText(trimmed), stallPhrases)
}

// HasConcreteEvidence reports whether the text carries data that could only
// have come out of a tool: price markers, links, or catalog nouns
func HasConcreteEvidence(text string) bool {
	normalized := normalizeText(text)
	if strings.Contains(normalized, "r$") {
		return true
	}
	if strings.Contains(normalized, "http://") || strings.Contains(normalized, "https://") {
		return true
	}
	return containsAny(normalized, catalogKeywords)
}

// IsEvasiveReply flags short tool-required replies with nothing concrete in them
func IsEvasiveReply(text string) bool {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return true
	}
	if utf8.RuneCountInString(trimmed) > evidenceReplyLimit {
		return false
	}
	return !HasConcreteEvidence(trimmed)
}
