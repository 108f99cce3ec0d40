package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildRegistry(t *testing.T) {
	r := BuildRegistry(RegistryConfig{
		Ollama:   ProviderConfig{Endpoint: "http://ollama:11434"},
		LMStudio: ProviderConfig{Endpoint: "http://lmstudio:1234"},
		Groq:     ProviderConfig{APIKey: "gsk"},
		Retry:    RetryPolicy{MaxRetries: 2},
	})

	assert.Equal(t, []string{ProviderGroq, ProviderLMStudio, ProviderOllama, ProviderOpenAI}, r.Names())

	p, err := r.Get(ProviderOllama)
	require.NoError(t, err)
	retrying, ok := p.(*Retrying)
	require.True(t, ok)
	ollama, ok := retrying.Unwrap().(*OllamaProvider)
	require.True(t, ok)
	assert.Equal(t, "http://ollama:11434", ollama.Endpoint())

	p, err = r.Get(ProviderLMStudio)
	require.NoError(t, err)
	lm := p.(*Retrying).Unwrap().(*OpenAIProvider)
	assert.Equal(t, "http://lmstudio:1234/v1", lm.BaseURL())
}

func TestRegistry_Unknown(t *testing.T) {
	r := NewRegistry()
	_, err := r.Get("anthropic")
	assert.ErrorIs(t, err, ErrUnknownProvider)
	assert.Contains(t, err.Error(), "anthropic")
}

func TestRegistry_RegisterReplaces(t *testing.T) {
	r := NewRegistry()
	first := &fakeProvider{name: "x", reply: "1"}
	second := &fakeProvider{name: "x", reply: "2"}
	r.Register(first)
	r.Register(second)

	p, err := r.Get("x")
	require.NoError(t, err)
	assert.Same(t, second, p)
	assert.Equal(t, []string{"x"}, r.Names())
}
