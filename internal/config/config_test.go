package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seyyidi/ravenchat/internal/domain"
)

func TestLoadDefaults(t *testing.T) {
	// Defaults need a key for the gemini provider; point the loader at a
	// minimal config file instead of relying on files in the working dir.
	path := writeConfig(t, `
llm:
  api_key: test-key
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.Address())
	assert.Equal(t, ProviderGemini, cfg.LLM.Provider)
	assert.Equal(t, "gemini-1.5-flash", cfg.LLM.Model)
	assert.InDelta(t, 0.7, cfg.LLM.Temperature, 1e-9)
	assert.Equal(t, 2048, cfg.LLM.MaxTokens)
	assert.True(t, cfg.LLM.Stream)
	assert.Equal(t, 2000, cfg.RAG.ChunkSize)
	assert.Equal(t, 0, cfg.RAG.ChunkOverlap)
	assert.Equal(t, 100, cfg.Cache.MaxEntries)
	assert.Equal(t, 300, cfg.Cache.TTLSeconds)
	assert.Equal(t, "chat-pdf", cfg.Storage.Collection)
}

func TestProviderVariantFillsBaseURL(t *testing.T) {
	path := writeConfig(t, `
llm:
  provider: huggingface
  api_key: hf-key
  model: mistralai/Mistral-7B-Instruct-v0.2
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://router.huggingface.co/v1", cfg.LLM.BaseURL)
	// embedder inherits the provider, endpoint and key
	assert.Equal(t, ProviderHuggingFace, cfg.Embedder.Provider)
	assert.Equal(t, cfg.LLM.BaseURL, cfg.Embedder.BaseURL)
	assert.Equal(t, "hf-key", cfg.Embedder.APIKey)
}

func TestOllamaNeedsNoKey(t *testing.T) {
	path := writeConfig(t, `
llm:
  provider: ollama
  model: qwen2.5:7b
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:11434/v1", cfg.LLM.BaseURL)
}

func TestMissingAPIKeyRejectedEagerly(t *testing.T) {
	path := writeConfig(t, `
llm:
  provider: gemini
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrMissingAPIKey)
}

func TestUnknownProviderRejected(t *testing.T) {
	path := writeConfig(t, `
llm:
  provider: skynet
  api_key: k
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown llm provider")
}

func TestInvalidChunkingRejected(t *testing.T) {
	path := writeConfig(t, `
llm:
  provider: ollama
rag:
  chunk_size: 100
  chunk_overlap: 100
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chunk_overlap")
}

func writeConfig(t *testing.T, yaml string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0644))
	return path
}
