// Package openai embeds text with the OpenAI embeddings API, or any server
// compatible with it.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/sashabaranov/go-openai"

	"paperqa/internal/embedding"
	llmopenai "paperqa/internal/llm/openai"
)

const DefaultModel = "text-embedding-3-small"

var knownDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	// Dimension requests shortened vectors from text-embedding-3 models and
	// is required for models not listed in knownDimensions.
	Dimension  int
	HTTPClient *http.Client
}

// Client implements domain.Embedder.
type Client struct {
	client    *openai.Client
	model     string
	dimension int
	shorten   bool
}

func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai embedder: missing API key")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	dim, known := knownDimensions[cfg.Model]
	shorten := cfg.Dimension > 0 && cfg.Dimension != dim
	if cfg.Dimension > 0 {
		dim = cfg.Dimension
	}
	if !known && dim == 0 {
		return nil, fmt.Errorf("openai embedder: dimension must be set for model %q", cfg.Model)
	}

	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	if cfg.HTTPClient != nil {
		oc.HTTPClient = cfg.HTTPClient
	}
	return &Client{
		client:    openai.NewClientWithConfig(oc),
		model:     cfg.Model,
		dimension: dim,
		shorten:   shorten && known,
	}, nil
}

func (c *Client) Name() string { return "openai" }

func (c *Client) Dimension() int { return c.dimension }

func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	req := openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(c.model),
	}
	if c.shorten {
		req.Dimensions = c.dimension
	}
	rsp, err := c.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, llmopenai.Classify("openai embeddings", err)
	}
	if len(rsp.Data) == 0 || len(rsp.Data[0].Embedding) == 0 {
		return nil, errors.New("no embedding returned")
	}
	vec := rsp.Data[0].Embedding
	if len(vec) != c.dimension {
		return nil, fmt.Errorf("openai embeddings: got dimension %d, expected %d", len(vec), c.dimension)
	}
	return embedding.Normalize(vec), nil
}
