package services

import "unicode"

// Fixed replies for turns answered before the model runs
const (
	// SensitiveTopicReply deflects payment-credential probes to the team
	SensitiveTopicReply = "Sobre dados de pagamento, quem cuida é nossa equipe no fechamento do pedido, tá bom? 💐 Nenhum pagamento é combinado por aqui. Posso te ajudar a escolher flores, cestas ou presentes?"

	// BlockedSessionReply holds the line after a hand-off to humans
	BlockedSessionReply = "Seu atendimento já está com nossa equipe! 💐 Em instantes alguém fala com você por aqui, combinado?"

	// CartEventReply acknowledges an order sent through the WhatsApp cart
	CartEventReply = "Recebemos seu pedido pelo carrinho! 💐 Nossa equipe já foi avisada e vai confirmar os detalhes com você em instantes."

	// VagueMessageReply re-engages when the message carries nothing usable
	VagueMessageReply = "Oi! 😊 Sou a Flora, da Encanto Flores. Me conta o que você procura? Temos cestas de café da manhã, buquês, arranjos e presentes especiais."

	// FallbackReply covers synthesis failures
	FallbackReply = "Vou confirmar os detalhes com nossa equipe e já te retorno, tá bom? 💐"
)

// sensitiveTopics are payment-credential requests the assistant never engages
// with; the team handles anything involving keys, accounts or receipts
var sensitiveTopics = []string{
	"chave pix", "chave do pix", "seu pix", "pix da loja", "manda o pix",
	"dados bancários", "dados bancarios", "conta bancária", "conta bancaria",
	"comprovante", "cnpj",
}

// IsSensitiveTopic reports whether the message asks for payment credentials
func IsSensitiveTopic(userMessage string) bool {
	return containsAny(normalizeText(userMessage), sensitiveTopics)
}

// IsVagueMessage reports whether the message carries nothing to work with:
// only punctuation, only emoji, or a single character
func IsVagueMessage(userMessage string) bool {
	normalized := normalizeText(userMessage)
	if len([]rune(normalized)) < 2 {
		return true
	}
	for _, r := range normalized {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
