package config

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/seyyidi/ravenchat/internal/domain"
)

// Config holds all configuration for ravenchat
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Storage  StorageConfig  `mapstructure:"storage"`
	LLM      LLMConfig      `mapstructure:"llm"`
	Embedder EmbedderConfig `mapstructure:"embedder"`
	RAG      RAGConfig      `mapstructure:"rag"`
	Cache    CacheConfig    `mapstructure:"cache"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
	BaseURL string `mapstructure:"base_url"`
}

// DatabaseConfig holds session database configuration. An empty path means
// a per-process temporary directory, so transcripts do not survive restarts.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// StorageConfig holds vector store configuration
type StorageConfig struct {
	Dir        string `mapstructure:"dir"`
	Collection string `mapstructure:"collection"`
	IndexType  string `mapstructure:"index_type"`
}

// LLM providers
const (
	ProviderOpenAI      = "openai"
	ProviderGemini      = "gemini"
	ProviderHuggingFace = "huggingface"
	ProviderOllama      = "ollama"
)

// LLMConfig holds LLM provider configuration
type LLMConfig struct {
	Provider    string  `mapstructure:"provider"`
	BaseURL     string  `mapstructure:"base_url"`
	APIKey      string  `mapstructure:"api_key"`
	Model       string  `mapstructure:"model"`
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	Stream      bool    `mapstructure:"stream"`
}

// EmbedderConfig holds embedding provider configuration. Provider and APIKey
// default to the LLM settings when left empty.
type EmbedderConfig struct {
	Provider string `mapstructure:"provider"`
	BaseURL  string `mapstructure:"base_url"`
	APIKey   string `mapstructure:"api_key"`
	Model    string `mapstructure:"model"`
}

// RAGConfig holds chunking and retrieval configuration
type RAGConfig struct {
	ChunkSize    int `mapstructure:"chunk_size"`
	ChunkOverlap int `mapstructure:"chunk_overlap"`
	TopK         int `mapstructure:"top_k"`
}

// CacheConfig holds response cache configuration
type CacheConfig struct {
	MaxEntries int `mapstructure:"max_entries"`
	TTLSeconds int `mapstructure:"ttl_seconds"`
}

// providerDefaults maps each supported provider to its OpenAI-compatible
// endpoint and whether a key is mandatory.
var providerDefaults = map[string]struct {
	baseURL     string
	requiresKey bool
}{
	ProviderOpenAI:      {"https://api.openai.com/v1", true},
	ProviderGemini:      {"https://generativelanguage.googleapis.com/v1beta/openai", true},
	ProviderHuggingFace: {"https://router.huggingface.co/v1", true},
	ProviderOllama:      {"http://localhost:11434/v1", false},
}

// Load loads configuration from file and environment
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Read config file if specified
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Environment variables
	v.SetEnvPrefix("RAVENCHAT")
	v.AutomaticEnv()

	// Read config
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found, use defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.base_url", "http://localhost:8080")

	// Empty paths mean a temporary per-process workspace
	v.SetDefault("database.path", "")
	v.SetDefault("storage.dir", "")
	v.SetDefault("storage.collection", "chat-pdf")
	v.SetDefault("storage.index_type", "hnsw")

	v.SetDefault("llm.provider", ProviderGemini)
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.model", "gemini-1.5-flash")
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("llm.max_tokens", 2048)
	v.SetDefault("llm.stream", true)

	v.SetDefault("embedder.provider", "")
	v.SetDefault("embedder.base_url", "")
	v.SetDefault("embedder.api_key", "")
	v.SetDefault("embedder.model", "embedding-001")

	v.SetDefault("rag.chunk_size", 2000)
	v.SetDefault("rag.chunk_overlap", 0)
	v.SetDefault("rag.top_k", 5)

	v.SetDefault("cache.max_entries", 100)
	v.SetDefault("cache.ttl_seconds", 300)
}

// Validate checks the provider variant and fills in per-provider defaults.
// A missing API key for a provider that needs one is rejected here, before
// any model or embedding call is attempted.
func (c *Config) Validate() error {
	def, ok := providerDefaults[c.LLM.Provider]
	if !ok {
		return fmt.Errorf("unknown llm provider: %q", c.LLM.Provider)
	}
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = def.baseURL
	}
	if def.requiresKey && c.LLM.APIKey == "" {
		return fmt.Errorf("llm provider %s: %w", c.LLM.Provider, domain.ErrMissingAPIKey)
	}

	if c.Embedder.Provider == "" {
		c.Embedder.Provider = c.LLM.Provider
	}
	edef, ok := providerDefaults[c.Embedder.Provider]
	if !ok {
		return fmt.Errorf("unknown embedder provider: %q", c.Embedder.Provider)
	}
	if c.Embedder.BaseURL == "" {
		if c.Embedder.Provider == c.LLM.Provider {
			c.Embedder.BaseURL = c.LLM.BaseURL
		} else {
			c.Embedder.BaseURL = edef.baseURL
		}
	}
	if c.Embedder.APIKey == "" {
		c.Embedder.APIKey = c.LLM.APIKey
	}
	if edef.requiresKey && c.Embedder.APIKey == "" {
		return fmt.Errorf("embedder provider %s: %w", c.Embedder.Provider, domain.ErrMissingAPIKey)
	}

	if c.RAG.ChunkSize <= 0 {
		return fmt.Errorf("rag.chunk_size must be positive, got %d", c.RAG.ChunkSize)
	}
	if c.RAG.ChunkOverlap < 0 || c.RAG.ChunkOverlap >= c.RAG.ChunkSize {
		return fmt.Errorf("rag.chunk_overlap must be in [0, chunk_size), got %d", c.RAG.ChunkOverlap)
	}
	if c.Cache.MaxEntries <= 0 {
		return fmt.Errorf("cache.max_entries must be positive, got %d", c.Cache.MaxEntries)
	}
	if c.Cache.TTLSeconds <= 0 {
		return fmt.Errorf("cache.ttl_seconds must be positive, got %d", c.Cache.TTLSeconds)
	}

	return nil
}

// Address returns the server address
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
