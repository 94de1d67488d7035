package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"regexp"
	"strconv"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// CatalogProduct is one entry of a catalog search result
type CatalogProduct struct {
	ID    string  `json:"id"`
	Name  string  `json:"nome"`
	Price float64 `json:"preco"`
}

// curatorRubric is the fixed ranking instruction. Low temperature, two picks.
const curatorRubric = `Você é o curador de produtos da Encanto Flores. Receberá uma lista numerada de produtos e a mensagem do cliente.
Escolha os DOIS produtos mais adequados seguindo as regras:
- Prefira cestas, flores e quadros a canecas, a menos que o cliente peça caneca.
- Prefira preços intermediários: nem o mais barato nem o mais caro, salvo pedido explícito.
- Varie os dois tipos entre si quando possível.
Responda SOMENTE com os dois números escolhidos separados por vírgula. Exemplo: 2,5`

var fullCatalogPhrases = []string{
	"tudo", "todas as opções", "todas as opcoes", "todos os produtos",
	"catálogo completo", "catalogo completo", "mostra tudo", "me mostra todas",
}

var digitsRe = regexp.MustCompile(`\d+`)

// ParseCatalogProducts decodes the machine-readable half of a search result.
// Accepts either {"produtos": [...]} or a bare array; returns nil when the
// payload has neither shape.
func ParseCatalogProducts(raw json.RawMessage) []CatalogProduct {
	if len(raw) == 0 {
		return nil
	}

	var wrapped struct {
		Products []CatalogProduct `json:"produtos"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil && len(wrapped.Products) > 0 {
		return wrapped.Products
	}

	var plain []CatalogProduct
	if err := json.Unmarshal(raw, &plain); err == nil {
		return plain
	}
	return nil
}

// Curate re-ranks a catalog result down to the two most relevant picks with
// one low-temperature reasoning call. Small result sets, explicit full-catalog
// requests, and any parse failure pass the original result through untouched:
// curation must never cost the turn.
func Curate(ctx context.Context, client ModelClient, result *ToolResult, userMessage, memorySummary string) string {
	original := result.Normalized()

	products := ParseCatalogProducts(result.Raw)
	if len(products) <= 2 {
		return original
	}
	if containsAny(normalizeText(userMessage), fullCatalogPhrases) {
		return original
	}
	if client == nil {
		return original
	}

	var listing strings.Builder
	for i, product := range products {
		fmt.Fprintf(&listing, "%d. %s - %s\n", i+1, product.Name, FormatBRL(product.Price))
	}

	prompt := fmt.Sprintf("Produtos encontrados:\n%s\nMensagem do cliente: %s", listing.String(), userMessage)
	if memorySummary != "" {
		prompt += "\nHistórico do cliente: " + memorySummary
	}

	resp, err := client.Complete(ctx, openai.ChatCompletionRequest{
		Model:       client.ModelName(false),
		Temperature: 0.1,
		MaxTokens:   16,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: curatorRubric},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		log.Printf("⚠️ Curadoria falhou, usando resultado original: %v", err)
		return original
	}
	if len(resp.Choices) == 0 {
		return original
	}

	first, second, ok := parseTwoPicks(resp.Choices[0].Message.Content, len(products))
	if !ok {
		return original
	}

	picks := []CatalogProduct{products[first], products[second]}
	var curated strings.Builder
	curated.WriteString("Opções selecionadas para o cliente:\n")
	for i, product := range picks {
		fmt.Fprintf(&curated, "%d. %s - %s (ID: %s)\n", i+1, product.Name, FormatBRL(product.Price), product.ID)
	}
	return strings.TrimRight(curated.String(), "\n")
}

// parseTwoPicks reads two distinct 1-based indices out of the model reply
func parseTwoPicks(reply string, count int) (int, int, bool) {
	var picks []int
	for _, token := range digitsRe.FindAllString(reply, -1) {
		index, err := strconv.Atoi(token)
		if err != nil || index < 1 || index > count {
			continue
		}
		zeroBased := index - 1
		if len(picks) > 0 && picks[0] == zeroBased {
			continue
		}
		picks = append(picks, zeroBased)
		if len(picks) == 2 {
			return picks[0], picks[1], true
		}
	}
	return 0, 0, false
}
