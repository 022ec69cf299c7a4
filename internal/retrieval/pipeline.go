// Package retrieval turns a free-text question into ranked corpus documents:
// embed the query, search the vector index, resolve positions to documents.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"

	lru "github.com/hashicorp/golang-lru/v2"

	"paperqa/internal/domain"
)

const (
	DefaultTopK      = 5
	DefaultCacheSize = 256

	// GroundingSeparator sits between the abstract and the body of a
	// grounding document.
	GroundingSeparator = "\n[SEP]\n"
)

// Searcher is the part of a vector index the pipeline needs.
type Searcher interface {
	Search(ctx context.Context, query []float32, k int) ([]domain.Match, error)
}

// Resolver maps index positions to documents.
type Resolver interface {
	Resolve(pos int) (domain.DocumentRecord, bool)
}

type Pipeline struct {
	embedder domain.Embedder
	index    Searcher
	docs     Resolver
	topK     int
	cache    *lru.Cache[int, domain.DocumentRecord]
	logger   *slog.Logger
}

type options struct {
	topK      int
	cacheSize int
	logger    *slog.Logger
}

type Option func(*options)

// WithTopK sets how many matches Top considers.
func WithTopK(k int) Option { return func(o *options) { o.topK = k } }

// WithCacheSize bounds the resolved-document cache; 0 disables it.
func WithCacheSize(n int) Option { return func(o *options) { o.cacheSize = n } }

func WithLogger(l *slog.Logger) Option { return func(o *options) { o.logger = l } }

func New(embedder domain.Embedder, index Searcher, docs Resolver, opts ...Option) (*Pipeline, error) {
	o := options{topK: DefaultTopK, cacheSize: DefaultCacheSize, logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.topK <= 0 {
		return nil, fmt.Errorf("%w: top_k must be positive, got %d", domain.ErrInvalidArgument, o.topK)
	}
	p := &Pipeline{embedder: embedder, index: index, docs: docs, topK: o.topK, logger: o.logger}
	if o.cacheSize > 0 {
		cache, err := lru.New[int, domain.DocumentRecord](o.cacheSize)
		if err != nil {
			return nil, err
		}
		p.cache = cache
	}
	return p, nil
}

// Retrieve returns up to k candidates in index order. Positions the document
// store cannot resolve are dropped.
func (p *Pipeline) Retrieve(ctx context.Context, query string, k int) ([]domain.Candidate, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", domain.ErrInvalidArgument, k)
	}
	vec, err := p.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	matches, err := p.index.Search(ctx, vec, k)
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}

	candidates := make([]domain.Candidate, 0, len(matches))
	for _, m := range matches {
		doc, ok := p.resolve(m.Position)
		if !ok {
			p.logger.Debug("dropping unresolved match", "position", m.Position, "score", m.Score)
			continue
		}
		candidates = append(candidates, domain.Candidate{Match: m, Document: doc})
	}
	return candidates, nil
}

// Top returns the best candidate for query, or ErrNoCandidates.
func (p *Pipeline) Top(ctx context.Context, query string) (domain.Candidate, error) {
	candidates, err := p.Retrieve(ctx, query, p.topK)
	if err != nil {
		return domain.Candidate{}, err
	}
	if len(candidates) == 0 {
		return domain.Candidate{}, domain.ErrNoCandidates
	}
	return candidates[0], nil
}

func (p *Pipeline) resolve(pos int) (domain.DocumentRecord, bool) {
	if p.cache != nil {
		if doc, ok := p.cache.Get(pos); ok {
			return doc, true
		}
	}
	doc, ok := p.docs.Resolve(pos)
	if ok && p.cache != nil {
		p.cache.Add(pos, doc)
	}
	return doc, ok
}

// GroundingText is the text a conversation is grounded on.
func GroundingText(doc domain.DocumentRecord) string {
	return doc.Abstract + GroundingSeparator + doc.Body
}
