package services

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/EncantoFlores/encanto-backend/internal/models"
)

// CheckoutState is how far the conversation got through
// {product, schedule, address, payment}
type CheckoutState string

// Checkout progression, derived from null fields only
const (
	CheckoutStateNone            CheckoutState = ""
	CheckoutStateProductSelected CheckoutState = "PRODUCT_SELECTED"
	CheckoutStateWaitingDate     CheckoutState = "WAITING_DATE"
	CheckoutStateWaitingAddress  CheckoutState = "WAITING_ADDRESS"
	CheckoutStateWaitingPayment  CheckoutState = "WAITING_PAYMENT"
	CheckoutStateReadyToFinalize CheckoutState = "READY_TO_FINALIZE"
)

// Delivery types
const (
	DeliveryTypeDelivery = "entrega"
	DeliveryTypePickup   = "retirada"
)

// CheckoutData is reconstructed from the transcript every turn. It is never
// persisted: the transcript is the single source of truth.
type CheckoutData struct {
	ProductName   string
	ProductPrice  float64
	DeliveryDate  string
	DeliveryTime  string
	DeliveryType  string
	Address       string
	PaymentMethod string
	Freight       float64
	Total         float64
}

var (
	productPriceRe = regexp.MustCompile(`([\p{L}][\p{L}0-9'&. ]{2,60}?)\s*[-–:]\s*R\$\s*([0-9]+(?:[.,][0-9]{1,2})?)`)
	priceRe        = regexp.MustCompile(`R\$\s*([0-9]+(?:\.[0-9]{3})*(?:,[0-9]{2})?|[0-9]+(?:[.,][0-9]{1,2})?)`)
	dateRe         = regexp.MustCompile(`\b(\d{1,2}/\d{1,2}(?:/\d{2,4})?)\b`)
	timeRe         = regexp.MustCompile(`\b\d{1,2}:\d{2}\b|\b\d{1,2}\s*h(?:s|rs)?\b`)
	cepRe          = regexp.MustCompile(`\b\d{5}-?\d{3}\b`)
	streetRe       = regexp.MustCompile(`(?i)\b(rua|av|avenida|travessa|alameda|rodovia|estrada|praça|praca)\b[^\n]*\d`)
)

var pickupPhrases = []string{
	"retirada", "retirar", "retiro na loja", "pego na loja", "busco na loja",
	"vou buscar na loja", "prefiro buscar",
}

// ExtractCheckoutState folds the transcript window into checkout data and a
// discrete state. Tool results are scanned newest-first for product, schedule
// and freight payloads; user messages newest-first for address and payment.
// Pure function: the same window always yields the same answer.
func ExtractCheckoutState(window []*models.Message) (CheckoutData, CheckoutState) {
	var data CheckoutData

	for i := len(window) - 1; i >= 0; i-- {
		msg := window[i]
		switch msg.Role {
		case models.RoleTool:
			switch msg.ToolName {
			case ToolSearchProducts, ToolAddComplement:
				if data.ProductName == "" {
					if name, price, ok := extractProductAndPrice(msg.Content); ok {
						data.ProductName = name
						data.ProductPrice = price
					}
				}
			case ToolDeliveryDates:
				if data.DeliveryDate == "" && indicatesAvailability(msg.Content) {
					data.DeliveryDate = firstMatch(dateRe, msg.Content)
					data.DeliveryTime = strings.TrimSpace(timeRe.FindString(msg.Content))
				}
			case ToolFreight:
				if data.Freight == 0 {
					if value, ok := extractPrice(msg.Content); ok {
						data.Freight = value
					}
				}
			}

		case models.RoleUser:
			if data.Address == "" {
				if isPickupMessage(msg.Content) {
					data.DeliveryType = DeliveryTypePickup
					data.Address = "Retirada na loja"
				} else if HasAddressShape(msg.Content) {
					data.DeliveryType = DeliveryTypeDelivery
					data.Address = strings.TrimSpace(msg.Content)
				}
			}
			if data.PaymentMethod == "" {
				data.PaymentMethod = MatchPaymentMethod(msg.Content)
			}
		}
	}

	if data.ProductPrice > 0 {
		data.Total = data.ProductPrice + data.Freight
	}

	return data, checkoutStateFor(data)
}

func checkoutStateFor(data CheckoutData) CheckoutState {
	switch {
	case data.ProductName == "":
		return CheckoutStateNone
	case data.DeliveryDate == "" && data.DeliveryTime == "":
		return CheckoutStateProductSelected
	case data.DeliveryDate == "" || data.DeliveryTime == "":
		return CheckoutStateWaitingDate
	case data.Address == "":
		return CheckoutStateWaitingAddress
	case data.PaymentMethod == "":
		return CheckoutStateWaitingPayment
	default:
		return CheckoutStateReadyToFinalize
	}
}

// HandoffReplyText is the literal reply sent when an order hands off to the team
const HandoffReplyText = "Pedido confirmado! 💐 Nossa equipe já recebeu tudo certinho e vai falar com você em instantes para combinar os últimos detalhes. Obrigada pela preferência!"

// CheckoutCoaching maps each state to the exact next step the model must take
func CheckoutCoaching(state CheckoutState, data CheckoutData) string {
	switch state {
	case CheckoutStateProductSelected:
		return fmt.Sprintf(`O cliente já tem produto em vista: %s (%s). Próximo passo: pergunte a data desejada de entrega e valide com a ferramenta %s antes de prometer qualquer dia.`,
			data.ProductName, FormatBRL(data.ProductPrice), ToolDeliveryDates)
	case CheckoutStateWaitingDate:
		return fmt.Sprintf(`A data de entrega está incompleta (data: %q, horário: %q). Confirme o que falta com a ferramenta %s antes de seguir.`,
			data.DeliveryDate, data.DeliveryTime, ToolDeliveryDates)
	case CheckoutStateWaitingAddress:
		return fmt.Sprintf(`Produto e data confirmados. Pergunte o endereço completo (rua, número e bairro) ou se o cliente prefere retirada na loja; com a cidade em mãos use %s para o frete.`,
			ToolFreight)
	case CheckoutStateWaitingPayment:
		return `Falta somente a forma de pagamento. Pergunte se será Pix, cartão ou dinheiro. Não repita perguntas já respondidas.`
	case CheckoutStateReadyToFinalize:
		return fmt.Sprintf(`Checkout completo. Apresente o resumo final (produto, valor, data, horário, endereço, pagamento, frete e total) e encerre com "Tudo certo? Posso confirmar seu pedido?". Quando o cliente confirmar, chame %s com o resumo completo e em seguida %s. Depois responda exatamente: %q`,
			ToolNotifyTeam, ToolBlockSession, HandoffReplyText)
	default:
		return ""
	}
}

// BuildHandoffSummary assembles the context block handed to the human team
// and saved as customer memory
func BuildHandoffSummary(data CheckoutData, customerName, customerPhone string) string {
	field := func(s string) string {
		if strings.TrimSpace(s) == "" {
			return "(não informado)"
		}
		return s
	}

	var b strings.Builder
	b.WriteString("📋 Resumo do pedido\n")
	fmt.Fprintf(&b, "Cliente: %s (%s)\n", field(customerName), field(customerPhone))
	if data.ProductName != "" {
		fmt.Fprintf(&b, "Produto: %s - %s\n", data.ProductName, FormatBRL(data.ProductPrice))
	} else {
		b.WriteString("Produto: (não informado)\n")
	}
	fmt.Fprintf(&b, "Entrega: %s %s (%s)\n", field(data.DeliveryDate), data.DeliveryTime, field(data.DeliveryType))
	fmt.Fprintf(&b, "Endereço: %s\n", field(data.Address))
	fmt.Fprintf(&b, "Pagamento: %s\n", field(data.PaymentMethod))
	if data.Freight > 0 {
		fmt.Fprintf(&b, "Frete: %s\n", FormatBRL(data.Freight))
	}
	if data.Total > 0 {
		fmt.Fprintf(&b, "Total: %s\n", FormatBRL(data.Total))
	}
	return strings.TrimRight(b.String(), "\n")
}

// CheckoutContextComplete is the completeness gate for finalizar_pedido: the
// context argument must show product+price, date, time, address or pickup,
// and a payment method all at once
func CheckoutContextComplete(context string) bool {
	if !priceRe.MatchString(context) {
		return false
	}
	if !dateRe.MatchString(context) {
		return false
	}
	if !timeRe.MatchString(context) {
		return false
	}
	if !HasAddressShape(context) && !isPickupMessage(context) {
		return false
	}
	return MatchPaymentMethod(context) != ""
}

// HasAddressShape reports street-plus-number or CEP shaped text
func HasAddressShape(text string) bool {
	if cepRe.MatchString(text) {
		return true
	}
	if streetRe.MatchString(text) {
		return true
	}
	normalized := normalizeText(text)
	return strings.Contains(normalized, "bairro") && strings.ContainsAny(text, "0123456789")
}

// MatchPaymentMethod returns the canonical payment label found in the text,
// or empty when none appears
func MatchPaymentMethod(text string) string {
	normalized := normalizeText(text)
	switch {
	case containsWord(normalized, "pix"):
		return "Pix"
	case strings.Contains(normalized, "cartão de crédito"), strings.Contains(normalized, "cartao de credito"),
		containsWord(normalized, "crédito"), containsWord(normalized, "credito"):
		return "Cartão de crédito"
	case strings.Contains(normalized, "cartão de débito"), strings.Contains(normalized, "cartao de debito"),
		containsWord(normalized, "débito"), containsWord(normalized, "debito"):
		return "Cartão de débito"
	case containsWord(normalized, "cartão"), containsWord(normalized, "cartao"):
		return "Cartão"
	case containsWord(normalized, "dinheiro"):
		return "Dinheiro"
	case containsWord(normalized, "boleto"):
		return "Boleto"
	default:
		return ""
	}
}

func isPickupMessage(text string) bool {
	return containsAny(normalizeText(text), pickupPhrases)
}

// indicatesAvailability guards against "indisponível" containing "disponível"
func indicatesAvailability(text string) bool {
	normalized := normalizeText(text)
	if strings.Contains(normalized, "indisponível") || strings.Contains(normalized, "indisponivel") ||
		strings.Contains(normalized, "não disponível") || strings.Contains(normalized, "nao disponivel") ||
		strings.Contains(normalized, "sem disponibilidade") {
		return false
	}
	return strings.Contains(normalized, "disponível") || strings.Contains(normalized, "disponivel") ||
		strings.Contains(normalized, "confirmad") || strings.Contains(normalized, "podemos entregar")
}

func extractProductAndPrice(text string) (string, float64, bool) {
	match := productPriceRe.FindStringSubmatch(text)
	if match == nil {
		return "", 0, false
	}
	name := strings.Trim(strings.TrimSpace(match[1]), ".")
	price, err := ParseBRL(match[2])
	if err != nil {
		return "", 0, false
	}
	return name, price, true
}

func extractPrice(text string) (float64, bool) {
	match := priceRe.FindStringSubmatch(text)
	if match == nil {
		return 0, false
	}
	value, err := ParseBRL(match[1])
	if err != nil {
		return 0, false
	}
	return value, true
}

func firstMatch(re *regexp.Regexp, text string) string {
	match := re.FindStringSubmatch(text)
	if len(match) > 1 {
		return match[1]
	}
	return ""
}

// ParseBRL reads "1.234,56", "189,90" and "189.90" as a float value
func ParseBRL(s string) (float64, error) {
	cleaned := strings.TrimSpace(s)
	if strings.Contains(cleaned, ",") {
		cleaned = strings.ReplaceAll(cleaned, ".", "")
		cleaned = strings.ReplaceAll(cleaned, ",", ".")
	}
	return strconv.ParseFloat(cleaned, 64)
}

// FormatBRL renders a value as "R$ 189,90"
func FormatBRL(value float64) string {
	return "R$ " + strings.ReplaceAll(fmt.Sprintf("%.2f", value), ".", ",")
}
