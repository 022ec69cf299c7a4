package vectorindex

import (
	"context"

	"paperqa/internal/domain"
)

// flatIndex scores every vector against the query.
type flatIndex struct {
	m matrix
}

func (f *flatIndex) Len() int       { return f.m.len() }
func (f *flatIndex) Dimension() int { return f.m.dim }

func (f *flatIndex) Search(ctx context.Context, query []float32, k int) ([]domain.Match, error) {
	if err := ValidateQuery(query, k, f.m.dim); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n := f.m.len()
	if n == 0 {
		return []domain.Match{}, nil
	}
	top := newTopK(min(k, n))
	for i := 0; i < n; i++ {
		top.push(domain.Match{Position: i, Score: f.m.dot(i, query)})
	}
	return top.sorted(), nil
}

func (f *flatIndex) Save(dir string) error {
	return save(dir, meta{Strategy: StrategyFlat, Dimension: f.m.dim, Count: f.m.len()}, f.m, nil)
}
