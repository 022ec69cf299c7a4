package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
type OpenAIEmbedderConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	Dimension   int    `yaml:"dimension"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// GoogleEmbedderConfig holds configuration for the Gemini embedder.
type GoogleEmbedderConfig struct {
	APIKeyEnv string `yaml:"api_key_env"`
	Model     string `yaml:"model"`
	Dimension int    `yaml:"dimension"`
}

// HashingEmbedderConfig configures the local feature-hashing embedder.
type HashingEmbedderConfig struct {
	Dimension int `yaml:"dimension"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type          string                 `yaml:"type"`
	WordsPerChunk int                    `yaml:"words_per_chunk"`
	Hashing       *HashingEmbedderConfig `yaml:"hashing,omitempty"`
	OpenAI        *OpenAIEmbedderConfig  `yaml:"openai,omitempty"`
	Google        *GoogleEmbedderConfig  `yaml:"google,omitempty"`
}

// CompletionConfig selects the chat backend.
type CompletionConfig struct {
	Type        string   `yaml:"type"`
	Model       string   `yaml:"model"`
	Temperature *float64 `yaml:"temperature"`
	MaxTokens   int      `yaml:"max_tokens"`
	APIKeyEnv   string   `yaml:"api_key_env"`
	BaseURL     string   `yaml:"base_url"`
	Stop        []string `yaml:"stop,omitempty"`
	TimeoutSecs int      `yaml:"timeout_secs"`
}

// HNSWConfig tunes the graph index. Zero values pick defaults.
type HNSWConfig struct {
	M              int `yaml:"m"`
	EfConstruction int `yaml:"ef_construction"`
	EfSearch       int `yaml:"ef_search"`
}

// QdrantConfig contains connection details for a Qdrant collection.
type QdrantConfig struct {
	URL         string `yaml:"url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Collection  string `yaml:"collection"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// PGVectorConfig points at a PostgreSQL table with the vector extension.
type PGVectorConfig struct {
	DSNEnv string `yaml:"dsn_env"`
	Table  string `yaml:"table"`
}

// DefaultTemperature applies when the config file leaves temperature unset.
const DefaultTemperature = 0.3

// SamplingTemperature returns the configured temperature. An explicit zero is
// kept; only an absent value falls back to DefaultTemperature.
func (c CompletionConfig) SamplingTemperature() float64 {
	if c.Temperature == nil {
		return DefaultTemperature
	}
	return *c.Temperature
}

// IndexConfig selects the vector index implementation.
type IndexConfig struct {
	Type     string          `yaml:"type"`
	Path     string          `yaml:"path"`
	HNSW     HNSWConfig      `yaml:"hnsw"`
	Qdrant   *QdrantConfig   `yaml:"qdrant,omitempty"`
	PGVector *PGVectorConfig `yaml:"pgvector,omitempty"`
}

// CorpusConfig locates the text shards, embedding shards and manifest.
type CorpusConfig struct {
	TextDir       string `yaml:"text_dir"`
	EmbeddingsDir string `yaml:"embeddings_dir"`
	Manifest      string `yaml:"manifest"`
	BatchSize     int    `yaml:"batch_size"`
	Workers       int    `yaml:"workers"`
}

type RetrievalConfig struct {
	TopK int `yaml:"top_k"`
	// CacheSize bounds the resolved-document cache; a negative value disables it.
	CacheSize int `yaml:"cache_size"`
}

// DocumentCacheSize is CacheSize with the disabled case mapped to zero.
func (r RetrievalConfig) DocumentCacheSize() int { return max(r.CacheSize, 0) }

// RetryConfig is the completion backoff policy.
type RetryConfig struct {
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
	MaxAttempts int           `yaml:"max_attempts"`
}

type TranscriptsConfig struct {
	Path string `yaml:"path"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// SummarizerConfig controls the paper summary shown after grounding.
type SummarizerConfig struct {
	MaxSentences int `yaml:"max_sentences"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Embedder    EmbedderConfig    `yaml:"embedder"`
	Completion  CompletionConfig  `yaml:"completion"`
	Index       IndexConfig       `yaml:"index"`
	Corpus      CorpusConfig      `yaml:"corpus"`
	Retrieval   RetrievalConfig   `yaml:"retrieval"`
	Retry       RetryConfig       `yaml:"retry"`
	Transcripts TranscriptsConfig `yaml:"transcripts"`
	Summarizer  SummarizerConfig  `yaml:"summarizer"`
	Log         LogConfig         `yaml:"log"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return defaultConfig(), nil
		}
		return nil, err
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	applyConfigDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/paperqa/config.yaml.
// If neither exists, it writes defaults to ~/.config/paperqa/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate rejects unknown component types and unusable numeric settings.
func (c *AppConfig) Validate() error {
	var errs []error
	check := func(field, value string, allowed ...string) {
		for _, a := range allowed {
			if value == a {
				return
			}
		}
		errs = append(errs, fmt.Errorf("%s: unknown type %q", field, value))
	}
	check("embedder.type", c.Embedder.Type, "hashing", "openai", "google")
	check("completion.type", c.Completion.Type, "openai", "anthropic", "google")
	check("index.type", c.Index.Type, "flat", "hnsw", "qdrant", "pgvector")
	check("log.format", c.Log.Format, "text", "json")

	if c.Retrieval.TopK <= 0 {
		errs = append(errs, fmt.Errorf("retrieval.top_k must be positive, got %d", c.Retrieval.TopK))
	}
	if c.Retry.MaxAttempts <= 0 {
		errs = append(errs, fmt.Errorf("retry.max_attempts must be positive, got %d", c.Retry.MaxAttempts))
	}
	if c.Retry.BaseDelay < 0 || c.Retry.MaxDelay < c.Retry.BaseDelay {
		errs = append(errs, fmt.Errorf("retry delays must satisfy 0 <= base_delay <= max_delay, got %s and %s", c.Retry.BaseDelay, c.Retry.MaxDelay))
	}
	if t := c.Completion.SamplingTemperature(); t < 0 || t > 2 {
		errs = append(errs, fmt.Errorf("completion.temperature must be within [0, 2], got %g", t))
	}
	if c.Index.Type == "qdrant" && (c.Index.Qdrant == nil || c.Index.Qdrant.URL == "") {
		errs = append(errs, errors.New("index.qdrant.url is required for the qdrant index"))
	}
	if c.Index.Type == "pgvector" && (c.Index.PGVector == nil || c.Index.PGVector.DSNEnv == "") {
		errs = append(errs, errors.New("index.pgvector.dsn_env is required for the pgvector index"))
	}
	return errors.Join(errs...)
}

// APIKey reads the environment variable named by envName.
func APIKey(envName string) (string, error) {
	key := os.Getenv(envName)
	if key == "" {
		return "", fmt.Errorf("missing API key in env %s", envName)
	}
	return key, nil
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "paperqa", "config.yaml"), nil
}

func defaultConfig() *AppConfig {
	cfg := &AppConfig{
		Embedder:   EmbedderConfig{Type: "hashing"},
		Completion: CompletionConfig{Type: "openai"},
		Index:      IndexConfig{Type: "flat"},
	}
	applyConfigDefaults(cfg)
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = "hashing"
	}
	if cfg.Embedder.WordsPerChunk == 0 {
		cfg.Embedder.WordsPerChunk = 100
	}
	switch cfg.Embedder.Type {
	case "hashing":
		if cfg.Embedder.Hashing == nil {
			cfg.Embedder.Hashing = &HashingEmbedderConfig{}
		}
		if cfg.Embedder.Hashing.Dimension == 0 {
			cfg.Embedder.Hashing.Dimension = 384
		}
	case "openai":
		if cfg.Embedder.OpenAI == nil {
			cfg.Embedder.OpenAI = &OpenAIEmbedderConfig{}
		}
		if cfg.Embedder.OpenAI.APIKeyEnv == "" {
			cfg.Embedder.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
		}
		if cfg.Embedder.OpenAI.Model == "" {
			cfg.Embedder.OpenAI.Model = "text-embedding-3-small"
		}
		if cfg.Embedder.OpenAI.TimeoutSecs == 0 {
			cfg.Embedder.OpenAI.TimeoutSecs = 30
		}
	case "google":
		if cfg.Embedder.Google == nil {
			cfg.Embedder.Google = &GoogleEmbedderConfig{}
		}
		if cfg.Embedder.Google.APIKeyEnv == "" {
			cfg.Embedder.Google.APIKeyEnv = "GOOGLE_API_KEY"
		}
		if cfg.Embedder.Google.Model == "" {
			cfg.Embedder.Google.Model = "text-embedding-004"
		}
	}

	if cfg.Completion.Type == "" {
		cfg.Completion.Type = "openai"
	}
	if cfg.Completion.Temperature == nil {
		t := DefaultTemperature
		cfg.Completion.Temperature = &t
	}
	if cfg.Completion.TimeoutSecs == 0 {
		cfg.Completion.TimeoutSecs = 120
	}
	switch cfg.Completion.Type {
	case "openai":
		if cfg.Completion.Model == "" {
			cfg.Completion.Model = "gpt-3.5-turbo-16k"
		}
		if cfg.Completion.APIKeyEnv == "" {
			cfg.Completion.APIKeyEnv = "OPENAI_API_KEY"
		}
	case "anthropic":
		if cfg.Completion.Model == "" {
			cfg.Completion.Model = "claude-3-5-haiku-latest"
		}
		if cfg.Completion.APIKeyEnv == "" {
			cfg.Completion.APIKeyEnv = "ANTHROPIC_API_KEY"
		}
		if cfg.Completion.MaxTokens == 0 {
			cfg.Completion.MaxTokens = 1024
		}
	case "google":
		if cfg.Completion.Model == "" {
			cfg.Completion.Model = "gemini-1.5-flash"
		}
		if cfg.Completion.APIKeyEnv == "" {
			cfg.Completion.APIKeyEnv = "GOOGLE_API_KEY"
		}
	}

	if cfg.Index.Type == "" {
		cfg.Index.Type = "flat"
	}
	if cfg.Index.Path == "" {
		cfg.Index.Path = filepath.Join("agent_data", "index")
	}
	if cfg.Index.HNSW.EfSearch == 0 {
		cfg.Index.HNSW.EfSearch = 64
	}
	if cfg.Index.Qdrant != nil {
		if cfg.Index.Qdrant.Collection == "" {
			cfg.Index.Qdrant.Collection = "papers"
		}
		if cfg.Index.Qdrant.TimeoutSecs == 0 {
			cfg.Index.Qdrant.TimeoutSecs = 15
		}
	}
	if cfg.Index.PGVector != nil && cfg.Index.PGVector.Table == "" {
		cfg.Index.PGVector.Table = "paper_embeddings"
	}

	if cfg.Corpus.TextDir == "" {
		cfg.Corpus.TextDir = filepath.Join("agent_data", "cleaned_text")
	}
	if cfg.Corpus.EmbeddingsDir == "" {
		cfg.Corpus.EmbeddingsDir = filepath.Join("agent_data", "paper_embedding")
	}
	if cfg.Corpus.Manifest == "" {
		cfg.Corpus.Manifest = filepath.Join("agent_data", "embedding_idx_paper_file_name_map.json")
	}
	if cfg.Corpus.BatchSize == 0 {
		cfg.Corpus.BatchSize = 1000
	}

	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 5
	}
	if cfg.Retrieval.CacheSize == 0 {
		cfg.Retrieval.CacheSize = 256
	}

	if cfg.Retry.BaseDelay == 0 {
		cfg.Retry.BaseDelay = 2 * time.Second
	}
	if cfg.Retry.MaxDelay == 0 {
		cfg.Retry.MaxDelay = 10 * time.Second
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry.MaxAttempts = 10
	}

	if cfg.Transcripts.Path == "" {
		cfg.Transcripts.Path = filepath.Join("agent_data", "transcripts.db")
	}
	if cfg.Summarizer.MaxSentences == 0 {
		cfg.Summarizer.MaxSentences = 2
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}
