package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suPer8Hu/gopherchat-bot/internal/ai"
	"github.com/suPer8Hu/gopherchat-bot/internal/config"
)

func TestBuildCatalog_OpenAIOnly(t *testing.T) {
	c := buildCatalog(config.Config{DefaultModel: "gpt-4o"})

	assert.Len(t, c.Models(), len(ai.DefaultModels()))
	assert.Equal(t, "gpt-4o", c.DefaultModel())
	assert.False(t, c.IsModel("llama3:latest"))
}

func TestBuildCatalog_OptionalBackends(t *testing.T) {
	cfg := config.Config{
		DefaultModel:     "gpt-4o-mini",
		OpenRouterAPIKey: "key",
		OpenRouterModel:  "openrouter/auto",
		OllamaBaseURL:    "http://localhost:11434",
		OllamaModel:      "llama3:latest",
	}
	c := buildCatalog(cfg)

	m, ok := c.Model("openrouter/auto")
	require.True(t, ok)
	assert.Equal(t, "openrouter", m.Provider)
	m, ok = c.Model("llama3:latest")
	require.True(t, ok)
	assert.Equal(t, "ollama", m.Provider)
}

func TestBuildRegistry_EveryCatalogModelResolves(t *testing.T) {
	cfg := config.Config{
		DefaultModel:     "gpt-4o-mini",
		OpenRouterAPIKey: "key",
		OpenRouterModel:  "openrouter/auto",
		OllamaBaseURL:    "http://localhost:11434",
		OllamaModel:      "llama3:latest",
	}
	catalog := buildCatalog(cfg)
	reg := buildRegistry(cfg, ai.NewOpenAIClient("test-key", ""))

	for _, m := range catalog.Models() {
		p, info, err := reg.ForModel(context.Background(), catalog, m.ID)
		require.NoError(t, err, m.ID)
		assert.NotNil(t, p)
		assert.Equal(t, m.ID, info.ID)
	}
}
