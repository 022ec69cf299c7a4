// Package service owns the caller side of one conversation: the current
// transcript, the paper grounding the current topic and, optionally, a
// persistent transcript store. The CLI and the TUI both drive a Chat.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"paperqa/internal/domain"
	"paperqa/internal/session"
)

// TranscriptStore persists transcripts by session id.
type TranscriptStore interface {
	Load(ctx context.Context, id string) (domain.Transcript, error)
	Save(ctx context.Context, id string, tr domain.Transcript) error
}

// Summarizer shortens the abstract of the grounded paper.
type Summarizer interface {
	Summarize(text string) string
}

// Reply is the outcome of one question.
type Reply struct {
	Message domain.ChatMessage
	// Paper grounds the current topic; nil until a fresh topic found one.
	Paper    *domain.Candidate
	Summary  string
	Fallback bool
}

type Chat struct {
	mu         sync.Mutex
	session    *session.Session
	recorder   *recordingRetriever
	transcript domain.Transcript
	paper      *domain.Candidate
	summary    string

	store      TranscriptStore
	sessionID  string
	summarizer Summarizer
	logger     *slog.Logger
	sessOpts   []session.Option
}

type Option func(*Chat)

// WithStore saves the transcript under id after every answered question.
func WithStore(store TranscriptStore, id string) Option {
	return func(c *Chat) {
		c.store = store
		c.sessionID = id
	}
}

func WithSummarizer(s Summarizer) Option { return func(c *Chat) { c.summarizer = s } }

func WithLogger(l *slog.Logger) Option { return func(c *Chat) { c.logger = l } }

// WithSessionOptions configures the underlying session (backoff, stop
// sequences, logger).
func WithSessionOptions(opts ...session.Option) Option {
	return func(c *Chat) { c.sessOpts = append(c.sessOpts, opts...) }
}

func New(completion domain.CompletionService, retriever session.Retriever, opts ...Option) *Chat {
	c := &Chat{
		recorder: &recordingRetriever{next: retriever},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.session = session.New(completion, c.recorder, c.sessOpts...)
	return c
}

// Resume loads the stored transcript of the configured session. The
// grounding paper of a resumed conversation is unknown, but the transcript
// still carries its system prompt, so continuation works.
func (c *Chat) Resume(ctx context.Context) error {
	if c.store == nil {
		return nil
	}
	tr, err := c.store.Load(ctx, c.sessionID)
	if err != nil {
		return fmt.Errorf("resume session %s: %w", c.sessionID, err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transcript = tr
	c.paper = nil
	c.summary = ""
	c.logger.Info("resumed session", "session", c.sessionID, "messages", tr.Len())
	return nil
}

// NextState is Continuation once the conversation is grounded on a paper,
// FreshTopic before that.
func (c *Chat) NextState() domain.SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.transcript.Grounded() {
		return domain.FreshTopic
	}
	return domain.Continuation
}

func (c *Chat) Transcript() domain.Transcript {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transcript.Clone()
}

// Ask runs one turn. On error the conversation is left as it was.
func (c *Chat) Ask(ctx context.Context, question string, state domain.SessionState) (Reply, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.recorder.reset()
	msg, tr, err := c.session.Turn(ctx, question, c.transcript, state)
	if err != nil {
		return Reply{}, err
	}

	reply := Reply{Message: msg}
	if state == domain.FreshTopic {
		if cand, ok := c.recorder.found(); ok {
			c.paper = &cand
			c.summary = ""
			if c.summarizer != nil {
				c.summary = c.summarizer.Summarize(cand.Document.Abstract)
			}
		} else {
			reply.Fallback = true
		}
	}
	c.transcript = tr
	reply.Paper = c.paper
	reply.Summary = c.summary

	if c.store != nil {
		if err := c.store.Save(ctx, c.sessionID, tr); err != nil {
			// the turn itself succeeded; keep it in memory
			c.logger.Error("saving transcript failed", "session", c.sessionID, "error", err)
		}
	}
	return reply, nil
}

// recordingRetriever remembers the candidate of the last fresh topic.
type recordingRetriever struct {
	next session.Retriever
	cand *domain.Candidate
}

func (r *recordingRetriever) Top(ctx context.Context, query string) (domain.Candidate, error) {
	cand, err := r.next.Top(ctx, query)
	if err == nil {
		r.cand = &cand
	}
	return cand, err
}

func (r *recordingRetriever) reset() { r.cand = nil }

func (r *recordingRetriever) found() (domain.Candidate, bool) {
	if r.cand == nil {
		return domain.Candidate{}, false
	}
	return *r.cand, true
}
