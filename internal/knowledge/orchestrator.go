// Package knowledge wraps the rago RAG engine behind the narrow surface the
// chat session needs: add a source, ask a question, stream the tokens.
package knowledge

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/liliang-cn/rago/v2/pkg/agent"
	ragoconfig "github.com/liliang-cn/rago/v2/pkg/config"
	ragodomain "github.com/liliang-cn/rago/v2/pkg/domain"
	"github.com/liliang-cn/rago/v2/pkg/providers"
	"github.com/liliang-cn/rago/v2/pkg/rag"
	"github.com/liliang-cn/rago/v2/pkg/rag/processor"
	ragstore "github.com/liliang-cn/rago/v2/pkg/rag/store"
	"go.uber.org/zap"

	"github.com/seyyidi/ravenchat/internal/config"
	"github.com/seyyidi/ravenchat/internal/domain"
)

// Metadata keys stored alongside ingested chunks.
const (
	MetadataKeyURL        = "url"
	MetadataKeyKind       = "kind"
	MetadataKeyFilename   = "filename"
	MetadataKeyCollection = "collection"
)

// Orchestrator owns the rago components backing one knowledge base: the
// embedder, the generator, the vector store, and the agent used for chat.
// It is not safe for concurrent ingestion and chat; callers serialize.
type Orchestrator struct {
	cfg    *config.Config
	logger *zap.Logger

	ragClient   *rag.Client
	embedder    ragodomain.EmbedderProvider
	generator   ragodomain.Generator
	processor   ragodomain.Processor
	sqliteStore *ragstore.SQLiteStore

	agentService *agent.Service

	httpClient *http.Client
}

// New builds the full rago stack under storageDir. The directory holds the
// vector store and agent session database; a temp dir keeps everything
// process-scoped.
func New(cfg *config.Config, storageDir string, logger *zap.Logger) (*Orchestrator, error) {
	dbPath := filepath.Join(storageDir, "vectors.db")

	ragoCfg := &ragoconfig.Config{
		Sqvect: ragoconfig.SqvectConfig{
			DBPath:    dbPath,
			IndexType: cfg.Storage.IndexType,
		},
		Chunker: ragoconfig.ChunkerConfig{
			ChunkSize: cfg.RAG.ChunkSize,
			Overlap:   cfg.RAG.ChunkOverlap,
		},
		Ingest: ragoconfig.IngestConfig{
			MetadataExtraction: ragoconfig.MetadataExtractionConfig{
				Enable: false,
			},
		},
	}

	factory := providers.NewFactory()
	ctx := context.Background()

	embedderCfg := &ragodomain.OpenAIProviderConfig{
		BaseURL:        cfg.Embedder.BaseURL,
		APIKey:         cfg.Embedder.APIKey,
		EmbeddingModel: cfg.Embedder.Model,
	}
	embedder, err := factory.CreateEmbedderProvider(ctx, embedderCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}

	llmCfg := &ragodomain.OpenAIProviderConfig{
		BaseURL:  cfg.LLM.BaseURL,
		APIKey:   cfg.LLM.APIKey,
		LLMModel: cfg.LLM.Model,
	}
	llmProvider, err := factory.CreateLLMProvider(ctx, llmCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM provider: %w", err)
	}

	ragClient, err := rag.NewClient(ragoCfg, embedder, llmProvider, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create RAG client: %w", err)
	}

	sqliteStore, err := ragstore.NewSQLiteStore(dbPath, cfg.Storage.IndexType)
	if err != nil {
		return nil, fmt.Errorf("failed to create sqlite store: %w", err)
	}

	documentStore := ragstore.NewDocumentStore(sqliteStore.GetSqvectStore())

	proc := processor.New(
		embedder,
		llmProvider,
		nil, // chunker - default
		sqliteStore,
		documentStore,
		ragoCfg,
		nil, // metadata extractor
		nil, // memory service
	)

	agentService, err := agent.NewService(
		llmProvider,
		nil,  // no MCP tools
		proc, // RAG-enabled agent
		filepath.Join(storageDir, "agent.db"),
		nil, // memory service
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create agent service: %w", err)
	}

	return &Orchestrator{
		cfg:          cfg,
		logger:       logger,
		ragClient:    ragClient,
		embedder:     embedder,
		generator:    llmProvider,
		processor:    proc,
		sqliteStore:  sqliteStore,
		agentService: agentService,
		httpClient:   http.DefaultClient,
	}, nil
}

func (o *Orchestrator) queryOptions(topK int) *rag.QueryOptions {
	return &rag.QueryOptions{
		TopK:        topK,
		Temperature: o.cfg.LLM.Temperature,
		MaxTokens:   o.cfg.LLM.MaxTokens,
		ShowSources: true,
	}
}

func (o *Orchestrator) ingestOptions(metadata map[string]any) *rag.IngestOptions {
	metadata[MetadataKeyCollection] = o.cfg.Storage.Collection
	return &rag.IngestOptions{
		ChunkSize: o.cfg.RAG.ChunkSize,
		Overlap:   o.cfg.RAG.ChunkOverlap,
		Metadata:  metadata,
	}
}

// AddFile ingests a local file. name is the user-facing file name recorded
// as the citation url for every chunk.
func (o *Orchestrator) AddFile(ctx context.Context, path, name string) error {
	metadata := map[string]any{
		MetadataKeyURL:      name,
		MetadataKeyKind:     domain.IngestKindPDF,
		MetadataKeyFilename: name,
	}
	resp, err := o.ragClient.IngestFile(ctx, path, o.ingestOptions(metadata))
	if err != nil {
		return err
	}
	o.logger.Info("ingested file",
		zap.String("name", name),
		zap.String("document_id", resp.DocumentID),
		zap.Int("chunks", resp.ChunkCount),
	)
	return nil
}

// AddLink fetches a web page and ingests its content, keyed by the url.
func (o *Orchestrator) AddLink(ctx context.Context, url string) error {
	return o.addRemote(ctx, url, domain.IngestKindLink)
}

// AddYouTube ingests a YouTube URL. Transcript extraction is the engine's
// concern; the watch page is fetched and handed over like any other link.
func (o *Orchestrator) AddYouTube(ctx context.Context, url string) error {
	return o.addRemote(ctx, url, domain.IngestKindYouTube)
}

func (o *Orchestrator) addRemote(ctx context.Context, url, kind string) error {
	body, err := o.fetch(ctx, url)
	if err != nil {
		return err
	}

	metadata := map[string]any{
		MetadataKeyURL:  url,
		MetadataKeyKind: kind,
	}
	resp, err := o.ragClient.IngestText(ctx, body, url, o.ingestOptions(metadata))
	if err != nil {
		return err
	}
	o.logger.Info("ingested remote source",
		zap.String("url", url),
		zap.String("kind", kind),
		zap.String("document_id", resp.DocumentID),
		zap.Int("chunks", resp.ChunkCount),
	)
	return nil
}

func (o *Orchestrator) fetch(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("invalid url %s: %w", url, err)
	}
	resp, err := o.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to fetch %s: status %d", url, resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		if mediaType, _, err := mime.ParseMediaType(ct); err == nil {
			if !strings.HasPrefix(mediaType, "text/") && mediaType != "application/xhtml+xml" {
				return "", fmt.Errorf("unsupported content type %s for %s", mediaType, url)
			}
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", url, err)
	}
	return string(body), nil
}

// Chat answers prompt from the knowledge base, pushing token deltas into
// emit while the call is in flight, and returns the final answer together
// with its citations. Implements the streaming bridge's Chatter.
func (o *Orchestrator) Chat(ctx context.Context, prompt string, emit func(token string) error) (*domain.ChatResult, error) {
	var answer string
	var err error
	if o.cfg.LLM.Stream {
		answer, err = o.chatStream(ctx, prompt, emit)
	} else {
		answer, err = o.chatBlocking(ctx, prompt)
	}
	if err != nil {
		return nil, err
	}

	citations, err := o.Search(ctx, prompt, o.cfg.RAG.TopK)
	if err != nil {
		// The answer already exists; a citation lookup failure should not
		// turn the whole invocation into an error.
		o.logger.Warn("citation lookup failed", zap.Error(err))
		citations = nil
	}

	return &domain.ChatResult{Answer: answer, Citations: citations}, nil
}

func (o *Orchestrator) chatStream(ctx context.Context, prompt string, emit func(string) error) (string, error) {
	eventCh, err := o.agentService.RunStream(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("agent stream failed: %w", err)
	}

	var b strings.Builder
	for event := range eventCh {
		switch event.Type {
		case "text":
			b.WriteString(event.Content)
			if err := emit(event.Content); err != nil {
				return b.String(), err
			}
		case "error":
			return b.String(), fmt.Errorf("agent error: %s", event.Content)
		case "done":
			return b.String(), nil
		}
	}
	return b.String(), nil
}

func (o *Orchestrator) chatBlocking(ctx context.Context, prompt string) (string, error) {
	result, err := o.agentService.Chat(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("agent chat failed: %w", err)
	}

	answer := ""
	if result.FinalResult != nil {
		switch v := result.FinalResult.(type) {
		case string:
			answer = v
		case map[string]interface{}:
			if content, ok := v["content"].(string); ok {
				answer = content
			} else if content, ok := v["answer"].(string); ok {
				answer = content
			} else {
				answer = fmt.Sprintf("%v", v)
			}
		default:
			answer = fmt.Sprintf("%v", v)
		}
	}
	return answer, nil
}

// Search retrieves the top matching chunks for a query and maps them onto
// citations.
func (o *Orchestrator) Search(ctx context.Context, query string, topK int) ([]domain.Citation, error) {
	resp, err := o.ragClient.Query(ctx, query, o.queryOptions(topK))
	if err != nil {
		return nil, err
	}

	citations := make([]domain.Citation, 0, len(resp.Sources))
	for _, src := range resp.Sources {
		c := domain.Citation{
			Text:     src.Content,
			Score:    src.Score,
			Document: src.DocumentID,
		}
		if src.Metadata != nil {
			if url, ok := src.Metadata[MetadataKeyURL].(string); ok {
				c.URL = url
			} else if filename, ok := src.Metadata[MetadataKeyFilename].(string); ok {
				c.URL = filename
			}
		}
		citations = append(citations, c)
	}

	return citations, nil
}

// Close closes the underlying stores
func (o *Orchestrator) Close() error {
	if o.sqliteStore != nil {
		return o.sqliteStore.Close()
	}
	return nil
}
