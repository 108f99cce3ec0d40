package config

import (
	"github.com/RuFFyGTLP/TC/pkg/agent"
	"github.com/RuFFyGTLP/TC/pkg/chat"
	"github.com/RuFFyGTLP/TC/pkg/memory"
	"github.com/RuFFyGTLP/TC/pkg/rag"
)

// ToRegistryConfig converts the chat section to a provider registry configuration.
func (c *ChatConfig) ToRegistryConfig() chat.RegistryConfig {
	return chat.RegistryConfig{
		Ollama:   chat.ProviderConfig{Endpoint: c.Providers.Ollama.Endpoint},
		LMStudio: chat.ProviderConfig{Endpoint: c.Providers.LMStudio.Endpoint},
		OpenAI:   chat.ProviderConfig{APIKey: c.Providers.OpenAI.APIKey},
		Groq:     chat.ProviderConfig{APIKey: c.Providers.Groq.APIKey},
		Retry: chat.RetryPolicy{
			MaxRetries:        c.MaxRetries,
			RequestsPerSecond: c.RateLimit,
			Burst:             c.RateBurst,
		},
	}
}

// ToAgentConfig converts the chat section to an agent service configuration.
// The context budget comes from the RAG section.
func (c *Config) ToAgentConfig() agent.Config {
	out := agent.Config{
		DefaultProvider:  c.Chat.DefaultProvider,
		DefaultModel:     c.Chat.DefaultModel,
		Temperature:      c.Chat.Temperature,
		HistoryWindow:    c.Chat.HistoryLimit,
		MaxContextTokens: c.RAG.MaxContextTokens,
		RAGEnabled:       c.Chat.RAGEnabled,
		Learn:            c.Chat.Learn,
	}
	if len(c.Chat.Agents) > 0 {
		out.Agents = make(map[string]agent.Settings, len(c.Chat.Agents))
		for name, a := range c.Chat.Agents {
			out.Agents[name] = agent.Settings(a)
		}
	}
	return out
}

// ToMemoryConfig converts the memory section to store limits.
func (m *MemoryConfig) ToMemoryConfig() memory.Config {
	return memory.Config(*m)
}

// IndexOptions returns the document index options of the RAG section.
func (r *RAGConfig) IndexOptions() []rag.Option {
	return []rag.Option{
		rag.WithChunking(r.ChunkSize, r.ChunkOverlap),
		rag.WithContextTopK(r.ContextTopK),
	}
}

// ToDetectorConfig converts the models section to a detector configuration.
func (m *ModelsConfig) ToDetectorConfig() chat.DetectorConfig {
	return chat.DetectorConfig{
		Interval: m.RefreshInterval,
		Timeout:  m.DetectTimeout,
	}
}
