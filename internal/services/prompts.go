package services

import (
	"sort"
	"strings"
)

// Prompt names. BasePrompt opens every context; FallbackPrompt covers turns
// where no rule matched so the model never runs without topical guidance.
const (
	BasePrompt     = "identidade_flora"
	FallbackPrompt = "selecao_produtos"

	PromptCartEvent     = "evento_carrinho"
	PromptHumanTransfer = "atendimento_humano"
	PromptDelivery      = "entrega_e_frete"
	PromptClosing       = "fechamento_pedido"
	PromptPricing       = "precos_e_pagamento"
	PromptProducts      = "selecao_produtos"
	PromptCustomization = "personalizacao"
	PromptIndecision    = "ajuda_indecisao"
)

// Rule priorities: 0 = protocol, 1 = high-salience topic, 2 = supporting topic
const (
	priorityProtocol   = 0
	priorityCritical   = 1
	prioritySupporting = 2
)

// maxSelectedPrompts caps how many guideline fragments one turn may inject
const maxSelectedPrompts = 5

// PromptConfig holds one guideline prompt
type PromptConfig struct {
	Description string
	Text        string
}

// promptRule maps message patterns to a guideline prompt
type promptRule struct {
	patterns []string
	prompt   string
	priority int
}

// promptRules is evaluated in order against the lowercased message
var promptRules = []promptRule{
	{[]string{"carrinho", "adicionei no carrinho", "meu carrinho"}, PromptCartEvent, priorityProtocol},
	{[]string{"falar com atendente", "falar com uma pessoa", "atendimento humano", "falar com alguém", "falar com alguem", "falar com humano"}, PromptHumanTransfer, priorityProtocol},
	{[]string{"entrega", "entregam", "entregar", "frete", "prazo", "quando chega", "chega quando", "receber", "envio", "enviam"}, PromptDelivery, priorityCritical},
	{[]string{"fechar pedido", "finalizar", "confirmar pedido", "quero comprar", "vou levar", "pode fechar", "fechado"}, PromptClosing, priorityCritical},
	{[]string{"preço", "preco", "quanto custa", "quanto é", "quanto e", "valor", "custa", "r$", "barato", "caro", "desconto", "promoção", "promocao"}, PromptPricing, priorityCritical},
	{[]string{"cesta", "cesto", "flor", "flores", "buquê", "buque", "arranjo", "quadro", "caneca", "presente", "opções", "opcoes", "mostra", "catálogo", "catalogo", "chocolate", "café da manhã", "cafe da manha"}, PromptProducts, prioritySupporting},
	{[]string{"personalizar", "personalizado", "mudar", "trocar", "adicionar", "incluir", "tirar", "sem o", "com o", "escrever", "cartão com", "cartao com"}, PromptCustomization, prioritySupporting},
	{[]string{"não sei", "nao sei", "sugestão", "sugestao", "sugere", "me ajuda", "dúvida", "duvida", "indeciso", "indecisa", "o que você recomenda", "o que voce recomenda"}, PromptIndecision, prioritySupporting},
}

// GuidelinePrompts maps prompt names to their local text. The tool provider
// may serve newer versions of the same names; these are the fallback bodies.
var GuidelinePrompts = map[string]PromptConfig{
	BasePrompt: {
		Description: "Base persona and non-negotiable rules",
		Text: `Você é a Flora, assistente virtual da Encanto Flores, uma floricultura que vende cestas, flores, quadros e presentes pelo WhatsApp.
Regras inegociáveis:
- NUNCA invente preço, produto, prazo ou disponibilidade. Toda informação concreta vem das ferramentas.
- Se ainda não consultou a ferramenta, não prometa nada: consulte primeiro.
- Responda em português brasileiro, tom caloroso e direto, no máximo um emoji por resposta.
- Uma resposta única por mensagem do cliente, sem avisos de "aguarde" ou "vou verificar".`,
	},
	PromptCartEvent: {
		Description: "Customer sent a cart event",
		Text: `O cliente enviou um carrinho de compras. Não tente processar o carrinho: avise que a equipe vai assumir o pedido e confirme os itens com ele.`,
	},
	PromptHumanTransfer: {
		Description: "Customer asked for a human",
		Text: `O cliente pediu atendimento humano. Use a ferramenta notificar_equipe com o resumo da conversa e avise que alguém da equipe já vai falar com ele.`,
	},
	PromptDelivery: {
		Description: "Delivery windows and freight",
		Text: `Para qualquer pergunta de entrega: confirme a cidade e use calcular_frete; para datas use verificar_datas_entrega. Nunca prometa horário sem a ferramenta confirmar. Entregas saem de Belo Horizonte e região.`,
	},
	PromptClosing: {
		Description: "Closing an order",
		Text: `O cliente sinaliza fechamento. Recapitule produto e preço já confirmados, colete o que faltar (data, endereço, pagamento) um item por vez e use finalizar_pedido apenas com tudo confirmado.`,
	},
	PromptPricing: {
		Description: "Prices always from the catalog",
		Text: `Perguntas de preço exigem buscar_produtos. Cite somente valores retornados pela ferramenta, com o formato R$ 00,00. Se o produto não aparecer na busca, diga que vai confirmar com a equipe.`,
	},
	PromptProducts: {
		Description: "Product browsing and selection",
		Text: `Para mostrar produtos use buscar_produtos com um termo curto do catálogo (cesta, flores, buquê, quadro, caneca). Apresente no máximo duas opções por vez, com nome e preço exatos da ferramenta, e pergunte qual agrada mais.`,
	},
	PromptCustomization: {
		Description: "Customizing an item",
		Text: `Pedidos de personalização (trocar item, adicionar complemento, cartão com mensagem) usam adicionar_complemento depois que um produto já foi escolhido. Confirme o produto base antes de personalizar.`,
	},
	PromptIndecision: {
		Description: "Helping an undecided customer",
		Text: `Cliente indeciso: faça no máximo duas perguntas curtas (ocasião e faixa de preço) e então use buscar_produtos para sugerir duas opções concretas.`,
	},
}

// PromptText returns the local body for a prompt name, empty when unknown
func PromptText(name string) string {
	if cfg, ok := GuidelinePrompts[name]; ok {
		return cfg.Text
	}
	return ""
}

// PromptPriority returns the rule priority for a prompt name, or the
// supporting priority when the name has no rule (base prompt, fallback)
func PromptPriority(name string) int {
	for _, rule := range promptRules {
		if rule.prompt == name {
			return rule.priority
		}
	}
	return prioritySupporting
}

// SelectPrompts matches the message against the rule table and returns the
// guideline prompt names for this turn, base identity prompt first. The
// boolean reports whether any topical rule matched explicitly.
func SelectPrompts(userMessage string) ([]string, bool) {
	normalized := normalizeText(userMessage)

	// Small talk gets the persona only, so a "bom dia" never biases the
	// strategy toward tool calls
	if isPureGreeting(normalized) {
		return []string{BasePrompt}, false
	}

	type match struct {
		prompt   string
		priority int
	}
	var matches []match
	for _, rule := range promptRules {
		for _, pattern := range rule.patterns {
			if strings.Contains(normalized, pattern) {
				matches = append(matches, match{rule.prompt, rule.priority})
				break
			}
		}
	}

	if len(matches) == 0 {
		return []string{BasePrompt, FallbackPrompt}, false
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].priority < matches[j].priority
	})

	names := []string{BasePrompt}
	seen := map[string]bool{BasePrompt: true}
	for _, m := range matches {
		if seen[m.prompt] {
			continue
		}
		if len(names)-1 >= maxSelectedPrompts {
			break
		}
		seen[m.prompt] = true
		names = append(names, m.prompt)
	}
	return names, true
}

// greetingWords covers every token a pure-greeting message may contain
var greetingWords = map[string]bool{
	"oi": true, "oie": true, "olá": true, "ola": true, "opa": true,
	"bom": true, "boa": true, "dia": true, "tarde": true, "noite": true,
	"hey": true, "hello": true, "eai": true, "e": true, "aí": true, "ai": true,
	"tudo": true, "td": true, "bem": true, "blz": true, "beleza": true,
	"flora": true, "oii": true, "oiii": true,
}

// isPureGreeting expects normalized input
func isPureGreeting(normalized string) bool {
	if normalized == "" || len([]rune(normalized)) > 30 {
		return false
	}
	for _, word := range strings.Fields(normalized) {
		if !greetingWords[word] {
			return false
		}
	}
	return true
}

// normalizeText lowercases and strips punctuation so pattern matching sees
// "Olá!!" and "olá" the same way
func normalizeText(s string) string {
	lowered := strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	for _, r := range lowered {
		switch r {
		case '!', '?', '.', ',', ';', ':', '"', '\'', '(', ')', '[', ']', '*', '~':
			b.WriteRune(' ')
		default:
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
