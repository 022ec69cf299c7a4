// Package vectorindex provides nearest-neighbour search over a fixed set of
// embedding vectors. Positions are the order in which vectors were supplied
// to Build and never change for the lifetime of a built index.
package vectorindex

import (
	"context"
	"fmt"

	"paperqa/internal/domain"
)

// Index is a read-only similarity index. Implementations are safe for
// concurrent Search calls.
type Index interface {
	// Search returns at most k matches ordered by descending dot-product
	// score, ties broken by ascending position.
	Search(ctx context.Context, query []float32, k int) ([]domain.Match, error)
	// Save persists the index so Load can reconstruct it.
	Save(dir string) error
	Len() int
	Dimension() int
}

// Strategy selects the in-process search structure.
type Strategy string

const (
	StrategyFlat Strategy = "flat"
	StrategyHNSW Strategy = "hnsw"
)

// Config controls index construction.
type Config struct {
	Strategy Strategy
	// Dimension is only consulted when no vectors are supplied.
	Dimension int

	// HNSW parameters; zero values pick defaults.
	M              int
	EfConstruction int
	EfSearch       int
}

// Build constructs an index over vectors. Vector i receives position i.
func Build(vectors [][]float32, cfg Config) (Index, error) {
	m, err := newMatrix(vectors, cfg.Dimension)
	if err != nil {
		return nil, err
	}
	switch cfg.Strategy {
	case StrategyFlat, "":
		return &flatIndex{m: m}, nil
	case StrategyHNSW:
		return buildGraph(m, cfg)
	default:
		return nil, fmt.Errorf("%w: unknown index strategy %q", domain.ErrInvalidArgument, cfg.Strategy)
	}
}

// ValidateQuery checks the arguments shared by every Search implementation.
func ValidateQuery(query []float32, k, dimension int) error {
	if k <= 0 {
		return fmt.Errorf("%w: k must be positive, got %d", domain.ErrInvalidArgument, k)
	}
	if dimension > 0 && len(query) != dimension {
		return fmt.Errorf("%w: query dimension %d does not match index dimension %d", domain.ErrInvalidArgument, len(query), dimension)
	}
	return nil
}
