package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"paperqa/internal/config"
	"paperqa/internal/docstore"
	"paperqa/internal/domain"
	"paperqa/internal/embedding/google"
	"paperqa/internal/embedding/hashing"
	embopenai "paperqa/internal/embedding/openai"
	"paperqa/internal/llm/anthropic"
	llmgoogle "paperqa/internal/llm/google"
	llmopenai "paperqa/internal/llm/openai"
	"paperqa/internal/retrieval"
	"paperqa/internal/service"
	"paperqa/internal/session"
	"paperqa/internal/summarizer"
	"paperqa/internal/transcripts"
	"paperqa/internal/vectorindex"
	"paperqa/internal/vectorindex/pgvector"
	"paperqa/internal/vectorindex/qdrant"
)

// closers releases resources in reverse order of acquisition.
type closers []io.Closer

func (c *closers) add(cl io.Closer) { *c = append(*c, cl) }

func (c closers) Close() error {
	var errs []error
	for i := len(c) - 1; i >= 0; i-- {
		errs = append(errs, c[i].Close())
	}
	return errors.Join(errs...)
}

func newEmbedder(ctx context.Context, cfg *config.AppConfig) (domain.Embedder, error) {
	switch cfg.Embedder.Type {
	case "hashing":
		return hashing.NewEmbedder(cfg.Embedder.Hashing.Dimension), nil
	case "openai":
		oc := cfg.Embedder.OpenAI
		key, err := config.APIKey(oc.APIKeyEnv)
		if err != nil {
			return nil, err
		}
		return embopenai.NewClient(embopenai.Config{
			APIKey:     key,
			BaseURL:    oc.BaseURL,
			Model:      oc.Model,
			Dimension:  oc.Dimension,
			HTTPClient: &http.Client{Timeout: time.Duration(oc.TimeoutSecs) * time.Second},
		})
	case "google":
		gc := cfg.Embedder.Google
		key, err := config.APIKey(gc.APIKeyEnv)
		if err != nil {
			return nil, err
		}
		return google.NewClient(ctx, google.Config{APIKey: key, Model: gc.Model, Dimension: gc.Dimension})
	default:
		return nil, fmt.Errorf("unknown embedder: %s", cfg.Embedder.Type)
	}
}

func newCompletion(ctx context.Context, cfg *config.AppConfig, cl *closers) (domain.CompletionService, error) {
	cc := cfg.Completion
	key, err := config.APIKey(cc.APIKeyEnv)
	if err != nil {
		return nil, err
	}
	httpClient := &http.Client{Timeout: time.Duration(cc.TimeoutSecs) * time.Second}
	switch cc.Type {
	case "openai":
		return llmopenai.New(llmopenai.Config{
			APIKey:      key,
			BaseURL:     cc.BaseURL,
			Model:       cc.Model,
			Temperature: float32(cc.SamplingTemperature()),
			MaxTokens:   cc.MaxTokens,
			HTTPClient:  httpClient,
		})
	case "anthropic":
		return anthropic.New(anthropic.Config{
			APIKey:      key,
			BaseURL:     cc.BaseURL,
			Model:       cc.Model,
			Temperature: cc.SamplingTemperature(),
			MaxTokens:   int64(cc.MaxTokens),
			HTTPClient:  httpClient,
		})
	case "google":
		client, err := llmgoogle.New(ctx, llmgoogle.Config{
			APIKey:      key,
			Model:       cc.Model,
			Temperature: float32(cc.SamplingTemperature()),
			MaxTokens:   int32(cc.MaxTokens),
		})
		if err != nil {
			return nil, err
		}
		cl.add(client)
		return client, nil
	default:
		return nil, fmt.Errorf("unknown completion backend: %s", cc.Type)
	}
}

func localIndexConfig(cfg *config.AppConfig) vectorindex.Config {
	return vectorindex.Config{
		Strategy:       vectorindex.Strategy(cfg.Index.Type),
		M:              cfg.Index.HNSW.M,
		EfConstruction: cfg.Index.HNSW.EfConstruction,
		EfSearch:       cfg.Index.HNSW.EfSearch,
	}
}

func qdrantConfig(cfg *config.AppConfig) qdrant.Config {
	qc := cfg.Index.Qdrant
	return qdrant.Config{
		URL:        qc.URL,
		APIKey:     os.Getenv(qc.APIKeyEnv),
		Collection: qc.Collection,
		Timeout:    time.Duration(qc.TimeoutSecs) * time.Second,
	}
}

func pgvectorConfig(cfg *config.AppConfig) (pgvector.Config, error) {
	pc := cfg.Index.PGVector
	dsn := os.Getenv(pc.DSNEnv)
	if dsn == "" {
		return pgvector.Config{}, fmt.Errorf("missing PostgreSQL DSN in env %s", pc.DSNEnv)
	}
	return pgvector.Config{DSN: dsn, Table: pc.Table}, nil
}

// openIndex loads or connects to the configured index.
func openIndex(ctx context.Context, cfg *config.AppConfig, cl *closers) (vectorindex.Index, error) {
	switch cfg.Index.Type {
	case "flat", "hnsw":
		return vectorindex.Load(cfg.Index.Path)
	case "qdrant":
		return qdrant.Open(ctx, qdrantConfig(cfg))
	case "pgvector":
		pc, err := pgvectorConfig(cfg)
		if err != nil {
			return nil, err
		}
		idx, err := pgvector.Open(ctx, pc)
		if err != nil {
			return nil, err
		}
		cl.add(idx)
		return idx, nil
	default:
		return nil, fmt.Errorf("unknown index: %s", cfg.Index.Type)
	}
}

// newChat assembles the online pipeline. With a non-empty id the
// transcript is kept in the SQLite store under that id.
func newChat(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger, id string) (*service.Chat, io.Closer, error) {
	var cl closers
	fail := func(err error) (*service.Chat, io.Closer, error) {
		cl.Close()
		return nil, nil, err
	}

	emb, err := newEmbedder(ctx, cfg)
	if err != nil {
		return fail(err)
	}
	if c, ok := emb.(io.Closer); ok {
		cl.add(c)
	}
	idx, err := openIndex(ctx, cfg, &cl)
	if err != nil {
		return fail(err)
	}
	docs, err := docstore.Load(cfg.Corpus.Manifest, cfg.Corpus.TextDir, docstore.WithLogger(logger))
	if err != nil {
		return fail(err)
	}
	docs.CheckConsistency(idx.Len())

	pipeline, err := retrieval.New(emb, idx, docs,
		retrieval.WithTopK(cfg.Retrieval.TopK),
		retrieval.WithCacheSize(cfg.Retrieval.DocumentCacheSize()),
		retrieval.WithLogger(logger))
	if err != nil {
		return fail(err)
	}
	completion, err := newCompletion(ctx, cfg, &cl)
	if err != nil {
		return fail(err)
	}

	opts := []service.Option{
		service.WithLogger(logger),
		service.WithSummarizer(summarizer.NewFrequency(cfg.Summarizer.MaxSentences)),
		service.WithSessionOptions(
			session.WithBackoff(session.Backoff{
				BaseDelay:   cfg.Retry.BaseDelay,
				MaxDelay:    cfg.Retry.MaxDelay,
				MaxAttempts: cfg.Retry.MaxAttempts,
			}),
			session.WithStop(cfg.Completion.Stop...),
			session.WithLogger(logger),
		),
	}
	if id != "" {
		store, err := transcripts.Open(ctx, cfg.Transcripts.Path)
		if err != nil {
			return fail(err)
		}
		cl.add(store)
		opts = append(opts, service.WithStore(store, id))
	}

	chat := service.New(completion, pipeline, opts...)
	if err := chat.Resume(ctx); err != nil {
		return fail(err)
	}
	return chat, cl, nil
}
