// Package google embeds text with the Gemini embedding models.
package google

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	genaiopt "google.golang.org/api/option"

	"paperqa/internal/domain"
	"paperqa/internal/embedding"
	llmgoogle "paperqa/internal/llm/google"
)

const (
	DefaultModel     = "text-embedding-004"
	DefaultDimension = 768
)

type Config struct {
	APIKey    string
	Model     string
	Dimension int
	// Endpoint overrides the API host, mainly for tests.
	Endpoint string
}

// Client implements domain.Embedder.
type Client struct {
	client    *genai.Client
	model     *genai.EmbeddingModel
	name      string
	dimension int
}

var _ domain.Embedder = (*Client)(nil)

func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("google embedder: missing API key")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Dimension <= 0 {
		cfg.Dimension = DefaultDimension
	}
	opts := []genaiopt.ClientOption{genaiopt.WithAPIKey(cfg.APIKey)}
	if cfg.Endpoint != "" {
		opts = append(opts, genaiopt.WithEndpoint(cfg.Endpoint))
	}
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("google embedder: %w", err)
	}
	return &Client{
		client:    client,
		model:     client.EmbeddingModel(cfg.Model),
		name:      cfg.Model,
		dimension: cfg.Dimension,
	}, nil
}

func (c *Client) Name() string { return "google" }

func (c *Client) Dimension() int { return c.dimension }

func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	rsp, err := c.model.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, llmgoogle.Classify("google embed "+c.name, err)
	}
	if rsp == nil || rsp.Embedding == nil || len(rsp.Embedding.Values) == 0 {
		return nil, errors.New("no response from Google")
	}
	vec := rsp.Embedding.Values
	if len(vec) != c.dimension {
		return nil, fmt.Errorf("google embed: got dimension %d, expected %d", len(vec), c.dimension)
	}
	return embedding.Normalize(vec), nil
}

func (c *Client) Close() error { return c.client.Close() }
