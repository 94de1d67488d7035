package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsSensitiveTopic(t *testing.T) {
	assert.True(t, IsSensitiveTopic("qual a chave pix de vocês?"))
	assert.True(t, IsSensitiveTopic("me manda o pix aí"))
	assert.True(t, IsSensitiveTopic("preciso do CNPJ e dos dados bancários"))

	// Asking to PAY with pix is a normal checkout question
	assert.False(t, IsSensitiveTopic("posso pagar com pix?"))
	assert.False(t, IsSensitiveTopic("aceita pix ou cartão?"))
	assert.False(t, IsSensitiveTopic("quero uma cesta de flores"))
}

func TestIsVagueMessage(t *testing.T) {
	assert.True(t, IsVagueMessage("👍"))
	assert.True(t, IsVagueMessage("..."))
	assert.True(t, IsVagueMessage("k"))
	assert.True(t, IsVagueMessage(""))
	assert.True(t, IsVagueMessage("😊😊😊"))

	assert.False(t, IsVagueMessage("oi"))
	assert.False(t, IsVagueMessage("quero flores"))
	assert.False(t, IsVagueMessage("12/06"))
}
