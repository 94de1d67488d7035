package services

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitMessage(t *testing.T) {
	t.Run("short messages stay whole", func(t *testing.T) {
		chunks := splitMessage("Oi! Tudo bem?", 1500)
		assert.Equal(t, []string{"Oi! Tudo bem?"}, chunks)
	})

	t.Run("long messages split on friendly boundaries", func(t *testing.T) {
		message := strings.Repeat("Temos cestas lindas para todas as ocasiões. ", 10)
		chunks := splitMessage(message, 100)
		require.Greater(t, len(chunks), 1)
		for _, chunk := range chunks {
			assert.LessOrEqual(t, len([]rune(chunk)), 100)
			assert.NotEmpty(t, chunk)
			// Cutting on a space keeps every word intact
			assert.False(t, strings.HasPrefix(chunk, " "))
		}
		rejoined := strings.Join(chunks, " ")
		assert.Contains(t, rejoined, "cestas lindas")
	})

	t.Run("paragraph breaks win over mid sentence cuts", func(t *testing.T) {
		message := strings.Repeat("a", 80) + "\n" + strings.Repeat("b", 80)
		chunks := splitMessage(message, 100)
		require.Len(t, chunks, 2)
		assert.Equal(t, strings.Repeat("a", 80), chunks[0])
		assert.Equal(t, strings.Repeat("b", 80), chunks[1])
	})
}
