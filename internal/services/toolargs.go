package services

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/EncantoFlores/encanto-backend/internal/models"
)

// Tool names the orchestrator knows how to validate. The catalog itself comes
// from the tool provider; these are the names the coaching and the validator
// registry speak about.
const (
	ToolSearchProducts = "buscar_produtos"
	ToolFreight        = "calcular_frete"
	ToolDeliveryDates  = "verificar_datas_entrega"
	ToolAddComplement  = "adicionar_complemento"
	ToolFinalizeOrder  = "finalizar_pedido"
	ToolNotifyTeam     = "notificar_equipe"

	// Executed against the session store, never sent to the provider
	ToolBlockSession = "bloquear_atendimento"
)

// ToolArgs is the decoded argument object of one tool call
type ToolArgs map[string]interface{}

// ValidationError is a per-tool precondition failure. It is fed back to the
// model as a structured error result so it can self-correct; it never reaches
// the customer.
type ValidationError struct {
	Tool   string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Tool, e.Reason)
}

// ToolCallContext carries the session facts validators consult and fill in
type ToolCallContext struct {
	Session        *models.Session
	CustomerName   string
	UserMessage    string
	Window         []*models.Message
	SentProductIDs []string
}

// toolValidator normalizes args in place or rejects the call
type toolValidator func(args ToolArgs, tcc *ToolCallContext) error

// toolValidators is the per-tool registry: adding a tool means adding one
// entry here, not editing the loop
var toolValidators = map[string]toolValidator{
	ToolSearchProducts: validateSearchArgs,
	ToolFreight:        validateFreightArgs,
	ToolDeliveryDates:  validateDeliveryDateArgs,
	ToolAddComplement:  validateComplementArgs,
	ToolFinalizeOrder:  validateFinalizeArgs,
	ToolNotifyTeam:     validateNotifyArgs,
	ToolBlockSession:   func(ToolArgs, *ToolCallContext) error { return nil },
}

// ValidateToolArgs runs the registered validator for the tool. Unknown tools
// pass through untouched so new provider tools work before they earn a
// validator.
func ValidateToolArgs(name string, args ToolArgs, tcc *ToolCallContext) error {
	validator, ok := toolValidators[name]
	if !ok {
		return nil
	}
	return validator(args, tcc)
}

func validateSearchArgs(args ToolArgs, tcc *ToolCallContext) error {
	term := SynthesizeSearchTerm(argString(args, "termo"), tcc.UserMessage, recentUserText(tcc.Window))
	if term == "" {
		return &ValidationError{ToolSearchProducts, "termo de busca vazio; peça ao cliente o que ele procura ou use uma palavra do catálogo (cesta, flores, buquê, quadro, caneca)"}
	}
	args["termo"] = term

	// Keep already-shown products out of the next result set
	if len(tcc.SentProductIDs) > 0 {
		args["excluir_ids"] = tcc.SentProductIDs
	}
	return nil
}

func validateFreightArgs(args ToolArgs, tcc *ToolCallContext) error {
	if argString(args, "cidade") != "" {
		return nil
	}
	return &ValidationError{ToolFreight, "cidade ausente; pergunte ao cliente a cidade de entrega antes de calcular o frete"}
}

func validateDeliveryDateArgs(args ToolArgs, tcc *ToolCallContext) error {
	if argString(args, "data") != "" {
		return nil
	}
	// The model often forgets to copy a date the customer already gave
	if date := firstMatch(dateRe, tcc.UserMessage); date != "" {
		args["data"] = date
		return nil
	}
	return &ValidationError{ToolDeliveryDates, "data ausente; pergunte ao cliente a data desejada antes de verificar a agenda"}
}

func validateComplementArgs(args ToolArgs, tcc *ToolCallContext) error {
	data, _ := ExtractCheckoutState(tcc.Window)
	if data.ProductName == "" {
		return &ValidationError{ToolAddComplement, "nenhum produto confirmado ainda; apresente e confirme um produto com buscar_produtos antes de adicionar complementos"}
	}
	return nil
}

func validateFinalizeArgs(args ToolArgs, tcc *ToolCallContext) error {
	context := argString(args, "contexto")
	if !CheckoutContextComplete(context) {
		return &ValidationError{ToolFinalizeOrder, "checkout incompleto; o contexto precisa conter produto com preço, data, horário, endereço ou retirada, e forma de pagamento confirmados"}
	}
	return nil
}

func validateNotifyArgs(args ToolArgs, tcc *ToolCallContext) error {
	// Auto-fill identity the model tends to omit
	if argString(args, "nome_cliente") == "" && tcc.CustomerName != "" {
		args["nome_cliente"] = tcc.CustomerName
	}
	if argString(args, "telefone_cliente") == "" && tcc.Session != nil && tcc.Session.CustomerPhone != "" {
		args["telefone_cliente"] = tcc.Session.CustomerPhone
	}
	if argString(args, "resumo") == "" {
		data, _ := ExtractCheckoutState(tcc.Window)
		args["resumo"] = BuildHandoffSummary(data, tcc.CustomerName, argString(args, "telefone_cliente"))
	}
	return nil
}

// catalogKeywords is every noun the store actually sells; used for search
// synthesis, strategy scoring and evidence checks
var catalogKeywords = []string{
	"cesta", "cesto", "flores", "flor", "buquê", "buque", "arranjo",
	"rosa", "rosas", "girassol", "orquídea", "orquidea", "quadro",
	"caneca", "chocolate", "bombom", "café da manhã", "cafe da manha",
	"pelúcia", "pelucia", "ursinho", "vinho", "espumante", "presente",
}

// keywordCanonical maps colloquial mentions to the catalog term a search
// should actually use. Evaluated in order; the first hit wins.
var keywordCanonical = []struct {
	terms     []string
	canonical string
}{
	{[]string{"café da manhã", "cafe da manha", "cesta", "cesto"}, "cesta"},
	{[]string{"buquê", "buque", "rosa", "rosas", "girassol", "orquídea", "orquidea", "arranjo", "flor"}, "flores"},
	{[]string{"quadro", "moldura"}, "quadro"},
	{[]string{"caneca"}, "caneca"},
	{[]string{"chocolate", "bombom"}, "chocolate"},
	{[]string{"pelúcia", "pelucia", "ursinho", "urso"}, "pelúcia"},
	{[]string{"vinho", "espumante"}, "vinho"},
	{[]string{"presente", "lembrança", "lembranca", "mimo"}, "presente"},
}

// genericTerms are useless as search input on their own
var genericTerms = map[string]bool{
	"produto": true, "produtos": true, "item": true, "itens": true,
	"opções": true, "opcoes": true, "tudo": true, "catálogo": true,
	"catalogo": true, "coisas": true, "presentes": true,
}

// searchTermLimit caps how long a usable raw term may be
const searchTermLimit = 40

// SynthesizeSearchTerm fixes the model's catalog search input: terms that are
// empty, too long, generic, or off-catalog are rebuilt from the customer's own
// words via the keyword map. Returns empty only when nothing usable exists.
func SynthesizeSearchTerm(raw, userMessage, recentText string) string {
	trimmed := strings.TrimSpace(raw)
	normalized := normalizeText(trimmed)

	usable := trimmed != "" &&
		utf8.RuneCountInString(trimmed) <= searchTermLimit &&
		!genericTerms[normalized] &&
		containsAny(normalized, catalogKeywords)
	if usable {
		return trimmed
	}

	// Rebuild from the raw term first, then what the customer actually said
	for _, source := range []string{normalized, normalizeText(userMessage), normalizeText(recentText)} {
		if source == "" {
			continue
		}
		for _, mapping := range keywordCanonical {
			if containsAny(source, mapping.terms) {
				return mapping.canonical
			}
		}
	}

	// An off-catalog term may still be a category we do not know; keep it
	// rather than searching for nothing
	if trimmed != "" && !genericTerms[normalized] {
		if utf8.RuneCountInString(trimmed) > searchTermLimit {
			runes := []rune(trimmed)
			return strings.TrimSpace(string(runes[:searchTermLimit]))
		}
		return trimmed
	}

	return ""
}

// recentUserText joins the last few user messages for keyword scanning
func recentUserText(window []*models.Message) string {
	var parts []string
	count := 0
	for i := len(window) - 1; i >= 0 && count < 3; i-- {
		if window[i].Role == models.RoleUser {
			parts = append(parts, window[i].Content)
			count++
		}
	}
	return strings.Join(parts, " ")
}

func argString(args ToolArgs, key string) string {
	if value, ok := args[key].(string); ok {
		return strings.TrimSpace(value)
	}
	return ""
}
