package memory

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractFacts(t *testing.T) {
	code := "```go\n" + strings.Repeat("fmt.Println(1)\n", 5) + "```"

	tests := []struct {
		name     string
		message  string
		response string
		want     []string
	}{
		{
			name:     "decision",
			response: "Usaremos PostgreSQL como base de datos principal.",
			want:     []string{"Usaremos PostgreSQL como base de datos principal."},
		},
		{
			name:     "decision too short",
			response: "Usaremos Go.",
			want:     nil,
		},
		{
			name:     "note prefix stripped",
			response: "Nota: el despliegue se hace los viernes.",
			want:     []string{"el despliegue se hace los viernes."},
		},
		{
			name:     "note case insensitive",
			response: "IMPORTANTE:   rotar las credenciales cada mes",
			want:     []string{"rotar las credenciales cada mes"},
		},
		{
			name:     "code block",
			message:  "¿Cómo imprimo en Go?",
			response: "Así:\n" + code,
			want:     []string{"Se compartió código relacionado con: ¿Cómo imprimo en Go?..."},
		},
		{
			name:     "short code block ignored",
			message:  "hola",
			response: "```x```",
			want:     nil,
		},
		{
			name:     "code summary truncates message",
			message:  strings.Repeat("á", 60),
			response: code,
			want:     []string{"Se compartió código relacionado con: " + strings.Repeat("á", 50) + "..."},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractFacts(tt.message, tt.response))
		})
	}
}

func TestStore_LearnFromConversation(t *testing.T) {
	s, _, _ := setupTestStore(t)
	ctx := context.Background()

	message := "¿Cómo configuro la memoria?"
	response := "Importante: revisar los límites de memoria antes del despliegue." + strings.Repeat(" relleno", 30)

	learned, err := s.LearnFromConversation(ctx, message, response)
	require.NoError(t, err)
	require.Len(t, learned, 2)

	summary := fmt.Sprintf("Usuario preguntó sobre \"%s...\" - Respuesta incluye %d caracteres", message, utf8.RuneCountInString(response))
	assert.Equal(t, summary, learned[1].Fact)
	assert.True(t, strings.HasPrefix(learned[0].Fact, "revisar los límites"))
	assert.Equal(t, 2, s.FactCount())
}

func TestStore_LearnFromConversation_Short(t *testing.T) {
	s, _, _ := setupTestStore(t)

	learned, err := s.LearnFromConversation(context.Background(), "hola", "¡Hola! ¿En qué te ayudo?")
	require.NoError(t, err)
	assert.Empty(t, learned)
	assert.Zero(t, s.FactCount())
}
