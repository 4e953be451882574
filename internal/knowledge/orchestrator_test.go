package knowledge

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/seyyidi/ravenchat/internal/config"
)

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Storage.Collection = "chat-pdf"
	cfg.LLM.Temperature = 0.7
	cfg.LLM.MaxTokens = 2048
	cfg.RAG.ChunkSize = 1500
	cfg.RAG.ChunkOverlap = 100
	return cfg
}

func TestQueryOptionsCarryGenerationSettings(t *testing.T) {
	o := &Orchestrator{cfg: testConfig()}

	opts := o.queryOptions(5)
	assert.Equal(t, 5, opts.TopK)
	assert.InDelta(t, 0.7, opts.Temperature, 1e-9)
	assert.Equal(t, 2048, opts.MaxTokens)
	assert.True(t, opts.ShowSources)
}

func TestIngestOptionsCarryChunkingAndCollection(t *testing.T) {
	o := &Orchestrator{cfg: testConfig()}

	opts := o.ingestOptions(map[string]any{MetadataKeyURL: "guide.pdf"})
	assert.Equal(t, 1500, opts.ChunkSize)
	assert.Equal(t, 100, opts.Overlap)
	assert.Equal(t, "chat-pdf", opts.Metadata[MetadataKeyCollection])
	assert.Equal(t, "guide.pdf", opts.Metadata[MetadataKeyURL])
}
