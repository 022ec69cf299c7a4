// Package openai implements domain.CompletionService on the OpenAI chat
// completions API, or any server compatible with it.
package openai

import (
	"context"
	"errors"
	"math"
	"net"
	"net/http"
	"net/url"

	"github.com/sashabaranov/go-openai"

	"paperqa/internal/domain"
)

const (
	DefaultModel       = "gpt-3.5-turbo-16k"
	DefaultTemperature = 0.3
)

type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	MaxTokens   int
	HTTPClient  *http.Client
}

type Client struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
}

func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai: missing API key")
	}
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	if cfg.HTTPClient != nil {
		oc.HTTPClient = cfg.HTTPClient
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	return &Client{
		client:      openai.NewClientWithConfig(oc),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}, nil
}

func (c *Client) Complete(ctx context.Context, messages []domain.ChatMessage, opts domain.CompletionOptions) (domain.ChatMessage, error) {
	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    make([]openai.ChatCompletionMessage, 0, len(messages)),
		Temperature: requestTemperature(c.temperature),
		MaxTokens:   c.maxTokens,
		Stop:        opts.Stop,
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{Role: string(m.Role), Content: m.Content})
	}

	rsp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return domain.ChatMessage{}, Classify("openai chat completion", err)
	}
	if len(rsp.Choices) == 0 {
		return domain.ChatMessage{}, domain.NewBackendError("openai chat completion", domain.KindPermanent, errors.New("no response from OpenAI"))
	}
	return domain.ChatMessage{Role: domain.RoleAssistant, Content: rsp.Choices[0].Message.Content}, nil
}

// Classify wraps an error from the go-openai client in a domain.BackendError.
// Context cancellation is returned unchanged.
func Classify(op string, err error) error {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return domain.NewBackendError(op, domain.KindForStatus(apiErr.HTTPStatusCode), err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return domain.NewBackendError(op, domain.KindForStatus(reqErr.HTTPStatusCode), err)
	}
	var urlErr *url.Error
	var netErr net.Error
	if errors.As(err, &urlErr) || errors.As(err, &netErr) {
		return domain.NewBackendError(op, domain.KindConnection, err)
	}
	return domain.NewBackendError(op, domain.KindPermanent, err)
}

// requestTemperature keeps an explicit zero on the wire. The request field is
// omitempty, so a literal 0 would be dropped and the API default of 1 used.
func requestTemperature(t float32) float32 {
	if t == 0 {
		return math.SmallestNonzeroFloat32
	}
	return t
}
