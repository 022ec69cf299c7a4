// Package anthropic implements domain.CompletionService on the Anthropic
// Messages API.
package anthropic

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	anthropicopt "github.com/anthropics/anthropic-sdk-go/option"

	"paperqa/internal/domain"
)

const (
	DefaultModel     = "claude-3-5-haiku-latest"
	DefaultMaxTokens = 1024
)

type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	MaxTokens   int64
	HTTPClient  *http.Client
}

type Client struct {
	client      *anthropic.Client
	model       string
	temperature float64
	maxTokens   int64
}

func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("anthropic: missing API key")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	// Retries are driven by the session's backoff policy.
	opts := []anthropicopt.RequestOption{
		anthropicopt.WithAPIKey(cfg.APIKey),
		anthropicopt.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, anthropicopt.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, anthropicopt.WithHTTPClient(cfg.HTTPClient))
	}
	client := anthropic.NewClient(opts...)
	return &Client{
		client:      &client,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}, nil
}

// Complete sends the conversation; system messages become the request's
// system prompt since the Messages API only accepts user and assistant turns.
func (c *Client) Complete(ctx context.Context, messages []domain.ChatMessage, opts domain.CompletionOptions) (domain.ChatMessage, error) {
	req := anthropic.MessageNewParams{
		Model:         anthropic.Model(c.model),
		MaxTokens:     c.maxTokens,
		Temperature:   anthropic.Float(c.temperature),
		StopSequences: opts.Stop,
	}
	for _, m := range messages {
		switch m.Role {
		case domain.RoleSystem:
			req.System = append(req.System, anthropic.TextBlockParam{Text: m.Content})
		case domain.RoleAssistant:
			req.Messages = append(req.Messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			req.Messages = append(req.Messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}

	rsp, err := c.client.Messages.New(ctx, req)
	if err != nil {
		return domain.ChatMessage{}, classify("anthropic messages", err)
	}

	var b strings.Builder
	for _, content := range rsp.Content {
		if text, ok := content.AsAny().(anthropic.TextBlock); ok {
			b.WriteString(text.Text)
		}
	}
	if b.Len() == 0 {
		return domain.ChatMessage{}, domain.NewBackendError("anthropic messages", domain.KindPermanent, errors.New("no response from Anthropic"))
	}
	return domain.ChatMessage{Role: domain.RoleAssistant, Content: b.String()}, nil
}

func classify(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return domain.NewBackendError(op, domain.KindForStatus(apiErr.StatusCode), err)
	}
	var urlErr *url.Error
	var netErr net.Error
	if errors.As(err, &urlErr) || errors.As(err, &netErr) {
		return domain.NewBackendError(op, domain.KindConnection, err)
	}
	return domain.NewBackendError(op, domain.KindPermanent, err)
}
