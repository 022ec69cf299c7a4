// Package session runs single conversation turns: retrieval on a fresh
// topic, prompt assembly, and completion calls with exponential backoff.
// A Session keeps no conversation state; the caller owns the transcript.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"paperqa/internal/domain"
	"paperqa/internal/retrieval"
)

// Retriever finds the single document a fresh topic is grounded on.
type Retriever interface {
	Top(ctx context.Context, query string) (domain.Candidate, error)
}

type Session struct {
	completion domain.CompletionService
	retriever  Retriever
	backoff    Backoff
	sleep      SleepFunc
	opts       domain.CompletionOptions
	logger     *slog.Logger
}

type Option func(*Session)

func WithBackoff(b Backoff) Option { return func(s *Session) { s.backoff = b } }

// WithSleep replaces the wall-clock wait between attempts.
func WithSleep(fn SleepFunc) Option { return func(s *Session) { s.sleep = fn } }

// WithStop sets stop sequences forwarded on every completion call.
func WithStop(stop ...string) Option {
	return func(s *Session) { s.opts.Stop = append([]string(nil), stop...) }
}

func WithLogger(l *slog.Logger) Option { return func(s *Session) { s.logger = l } }

func New(completion domain.CompletionService, retriever Retriever, opts ...Option) *Session {
	s := &Session{
		completion: completion,
		retriever:  retriever,
		backoff:    DefaultBackoff(),
		sleep:      sleepContext,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.backoff.MaxAttempts < 1 {
		s.backoff.MaxAttempts = 1
	}
	return s
}

// Turn answers question and returns the reply with a new transcript holding
// two more messages: the question and the reply. The transcript passed in is
// never modified, and is returned as is when the turn fails.
func (s *Session) Turn(ctx context.Context, question string, transcript domain.Transcript, state domain.SessionState) (domain.ChatMessage, domain.Transcript, error) {
	user := domain.ChatMessage{Role: domain.RoleUser, Content: question}
	grounded := transcript

	switch state {
	case domain.Terminated:
		return domain.ChatMessage{}, transcript, fmt.Errorf("%w: conversation is terminated", domain.ErrInvalidState)
	case domain.Continuation:
		if !transcript.Grounded() {
			return domain.ChatMessage{}, transcript, fmt.Errorf("%w: continuation requires a grounded conversation; start a fresh topic", domain.ErrInvalidState)
		}
	case domain.FreshTopic:
		candidate, err := s.retriever.Top(ctx, question)
		if errors.Is(err, domain.ErrNoCandidates) {
			s.logger.Info("no paper found for question", "question", question)
			reply := domain.ChatMessage{Role: domain.RoleAssistant, Content: FallbackMessage}
			return reply, transcript.Append(user, reply), nil
		}
		if err != nil {
			return domain.ChatMessage{}, transcript, fmt.Errorf("retrieve: %w", err)
		}
		s.logger.Debug("grounding on paper",
			"doc_id", candidate.Document.DocumentID,
			"position", candidate.Position,
			"score", candidate.Score)
		grounded = domain.Transcript{
			System:   SystemPrompt(retrieval.GroundingText(candidate.Document)),
			Messages: transcript.Messages,
		}
	default:
		return domain.ChatMessage{}, transcript, fmt.Errorf("%w: unknown session state %d", domain.ErrInvalidArgument, int(state))
	}

	reply, err := s.complete(ctx, grounded.Prompt(user))
	if err != nil {
		return domain.ChatMessage{}, transcript, err
	}
	reply.Role = domain.RoleAssistant
	return reply, grounded.Append(user, reply), nil
}

func (s *Session) complete(ctx context.Context, messages []domain.ChatMessage) (domain.ChatMessage, error) {
	var lastErr error
	for attempt := 1; attempt <= s.backoff.MaxAttempts; attempt++ {
		reply, err := s.completion.Complete(ctx, messages, s.opts)
		if err == nil {
			return reply, nil
		}
		if !errors.Is(err, domain.ErrTransient) || ctx.Err() != nil {
			return domain.ChatMessage{}, fmt.Errorf("complete: %w", err)
		}
		lastErr = err
		if attempt == s.backoff.MaxAttempts {
			break
		}
		delay := s.backoff.Delay(attempt)
		s.logger.Warn("completion failed, retrying", "attempt", attempt, "delay", delay, "error", err)
		if err := s.sleep(ctx, delay); err != nil {
			return domain.ChatMessage{}, fmt.Errorf("complete: %w", err)
		}
	}
	return domain.ChatMessage{}, fmt.Errorf("%w after %d attempts: %w", domain.ErrRetriesExhausted, s.backoff.MaxAttempts, lastErr)
}
