package domain

import "context"

// DocumentRef points at a document inside a text shard.
type DocumentRef struct {
	DocumentID string
	ShardFile  string
}

// DocumentRecord is a resolved corpus document.
type DocumentRecord struct {
	DocumentRef
	Abstract string
	Body     string
}

// Match is a single nearest-neighbour hit: an index position and its score.
type Match struct {
	Position int
	Score    float64
}

// Candidate is a match resolved against the document store.
type Candidate struct {
	Match
	Document DocumentRecord
}

// Embedder converts free text into a normalized vector.
// Implementations must be deterministic for identical input.
type Embedder interface {
	Name() string
	Dimension() int
	Embed(ctx context.Context, text string) ([]float32, error)
}

// CompletionOptions are per-request generation settings.
type CompletionOptions struct {
	Stop []string
}

// CompletionService produces the next assistant message for a conversation.
// Transient failures must be reported as errors matching ErrTransient.
type CompletionService interface {
	Complete(ctx context.Context, messages []ChatMessage, opts CompletionOptions) (ChatMessage, error)
}
