package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectPrompts(t *testing.T) {
	t.Run("greeting gets persona only", func(t *testing.T) {
		names, explicit := SelectPrompts("Oi, tudo bem?")
		assert.Equal(t, []string{BasePrompt}, names)
		assert.False(t, explicit)
	})

	t.Run("greeting with shop name still counts as greeting", func(t *testing.T) {
		names, explicit := SelectPrompts("olá flora!!")
		assert.Equal(t, []string{BasePrompt}, names)
		assert.False(t, explicit)
	})

	t.Run("delivery question selects the delivery prompt", func(t *testing.T) {
		names, explicit := SelectPrompts("vocês entregam amanhã no Buritis?")
		assert.True(t, explicit)
		require.NotEmpty(t, names)
		assert.Equal(t, BasePrompt, names[0])
		assert.Contains(t, names, PromptDelivery)
	})

	t.Run("critical topics come before supporting ones", func(t *testing.T) {
		names, explicit := SelectPrompts("quanto custa a cesta de café da manhã?")
		assert.True(t, explicit)
		require.True(t, len(names) >= 3)
		assert.Equal(t, BasePrompt, names[0])
		assert.Equal(t, PromptPricing, names[1])
		assert.Contains(t, names, PromptProducts)
	})

	t.Run("no rule match falls back to product selection", func(t *testing.T) {
		names, explicit := SelectPrompts("me conta uma novidade da semana aí")
		assert.Equal(t, []string{BasePrompt, FallbackPrompt}, names)
		assert.False(t, explicit)
	})

	t.Run("selection is capped", func(t *testing.T) {
		msg := "carrinho: quero falar com atendente sobre entrega, finalizar com preço da cesta, personalizar e não sei decidir"
		names, explicit := SelectPrompts(msg)
		assert.True(t, explicit)
		assert.LessOrEqual(t, len(names), 1+maxSelectedPrompts)
		assert.Equal(t, BasePrompt, names[0])
	})

	t.Run("duplicate matches collapse to one prompt", func(t *testing.T) {
		names, _ := SelectPrompts("tem cesta, cesto ou buquê de flores?")
		count := 0
		for _, name := range names {
			if name == PromptProducts {
				count++
			}
		}
		assert.Equal(t, 1, count)
	})
}

func TestPromptText(t *testing.T) {
	assert.NotEmpty(t, PromptText(BasePrompt))
	assert.NotEmpty(t, PromptText(PromptDelivery))
	assert.Empty(t, PromptText("prompt_que_nao_existe"))
}

func TestNormalizeText(t *testing.T) {
	assert.Equal(t, "olá", normalizeText("  Olá!!!  "))
	assert.Equal(t, "quanto custa", normalizeText("QUANTO CUSTA?"))
	assert.Equal(t, "cesta de café", normalizeText("cesta,  de   café..."))
	assert.Equal(t, "", normalizeText("?!.,"))
}

func TestIsPureGreeting(t *testing.T) {
	assert.True(t, isPureGreeting(normalizeText("bom dia!")))
	assert.True(t, isPureGreeting(normalizeText("oi oi")))
	assert.False(t, isPureGreeting(normalizeText("bom dia, tem cesta?")))
	assert.False(t, isPureGreeting(""))
}
