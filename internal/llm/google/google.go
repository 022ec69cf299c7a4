// Package google is a Gemini completion backend.
package google

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	genaiopt "google.golang.org/api/option"

	"paperqa/internal/domain"
)

const DefaultModel = "gemini-1.5-flash"

type Config struct {
	APIKey      string
	Model       string
	Temperature float32
	MaxTokens   int32
	// Endpoint overrides the API host, mainly for tests.
	Endpoint string
}

type Client struct {
	client      *genai.Client
	model       string
	temperature float32
	maxTokens   int32
}

func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("google: missing API key")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	opts := []genaiopt.ClientOption{genaiopt.WithAPIKey(cfg.APIKey)}
	if cfg.Endpoint != "" {
		opts = append(opts, genaiopt.WithEndpoint(cfg.Endpoint))
	}
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("google: %w", err)
	}
	return &Client{client: client, model: cfg.Model, temperature: cfg.Temperature, maxTokens: cfg.MaxTokens}, nil
}

func (c *Client) Close() error { return c.client.Close() }

func (c *Client) Complete(ctx context.Context, messages []domain.ChatMessage, opts domain.CompletionOptions) (domain.ChatMessage, error) {
	system, history, last, err := splitMessages(messages)
	if err != nil {
		return domain.ChatMessage{}, err
	}

	// GenerativeModel carries per-request settings, so each call gets its own.
	model := c.client.GenerativeModel(c.model)
	model.SetTemperature(c.temperature)
	if c.maxTokens > 0 {
		model.SetMaxOutputTokens(c.maxTokens)
	}
	model.StopSequences = opts.Stop
	if system != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}
	cs := model.StartChat()
	cs.History = history

	rsp, err := cs.SendMessage(ctx, genai.Text(last))
	if err != nil {
		return domain.ChatMessage{}, Classify("google complete", err)
	}
	if len(rsp.Candidates) == 0 || rsp.Candidates[0].Content == nil || len(rsp.Candidates[0].Content.Parts) == 0 {
		return domain.ChatMessage{}, domain.NewBackendError("google complete", domain.KindPermanent, errors.New("no response from Google"))
	}
	var b strings.Builder
	for _, part := range rsp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	return domain.ChatMessage{Role: domain.RoleAssistant, Content: b.String()}, nil
}

// splitMessages maps a prompt onto Gemini's shape: a system instruction,
// the chat history, and the final user message sent on its own.
func splitMessages(messages []domain.ChatMessage) (string, []*genai.Content, string, error) {
	if len(messages) == 0 || messages[len(messages)-1].Role != domain.RoleUser {
		return "", nil, "", fmt.Errorf("%w: prompt must end with a user message", domain.ErrInvalidArgument)
	}
	var system []string
	var history []*genai.Content
	for _, m := range messages[:len(messages)-1] {
		switch m.Role {
		case domain.RoleSystem:
			system = append(system, m.Content)
		case domain.RoleAssistant:
			history = append(history, &genai.Content{Role: "model", Parts: []genai.Part{genai.Text(m.Content)}})
		default:
			history = append(history, &genai.Content{Role: "user", Parts: []genai.Part{genai.Text(m.Content)}})
		}
	}
	return strings.Join(system, "\n\n"), history, messages[len(messages)-1].Content, nil
}

// Classify maps a Gemini API failure onto a domain.BackendError. Context
// errors are returned as is.
func Classify(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		return domain.NewBackendError(op, domain.KindForStatus(gErr.Code), err)
	}
	var urlErr *url.Error
	var netErr net.Error
	if errors.As(err, &urlErr) || errors.As(err, &netErr) {
		return domain.NewBackendError(op, domain.KindConnection, err)
	}
	return domain.NewBackendError(op, domain.KindPermanent, err)
}
