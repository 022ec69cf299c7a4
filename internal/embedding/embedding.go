// Package embedding holds helpers shared by the embedder implementations in
// its subpackages.
package embedding

import (
	"context"
	"fmt"
	"math"

	"paperqa/internal/domain"
)

// Chunker splits a long text into pieces an embedder accepts.
type Chunker interface {
	Chunk(text string) []string
}

// EmbedChunked embeds each chunk of text and returns the L2-normalized mean.
// Blank text yields the zero vector of the embedder's dimension.
func EmbedChunked(ctx context.Context, e domain.Embedder, c Chunker, text string) ([]float32, error) {
	chunks := c.Chunk(text)
	if len(chunks) == 0 {
		return make([]float32, e.Dimension()), nil
	}
	var sum []float64
	for i, chunk := range chunks {
		vec, err := e.Embed(ctx, chunk)
		if err != nil {
			return nil, fmt.Errorf("embed chunk %d: %w", i, err)
		}
		if sum == nil {
			sum = make([]float64, len(vec))
		}
		if len(vec) != len(sum) {
			return nil, fmt.Errorf("embed chunk %d: dimension %d, expected %d", i, len(vec), len(sum))
		}
		for j, v := range vec {
			sum[j] += float64(v)
		}
	}
	out := make([]float32, len(sum))
	for j, v := range sum {
		out[j] = float32(v / float64(len(chunks)))
	}
	return Normalize(out), nil
}

// Normalize scales v to unit length in place and returns it. The zero vector
// is returned unchanged.
func Normalize(v []float32) []float32 {
	norm := 0.0
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if norm == 0 {
		return v
	}
	norm = math.Sqrt(norm)
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
	return v
}
