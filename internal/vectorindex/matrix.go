package vectorindex

import (
	"fmt"

	"paperqa/internal/domain"
)

// matrix stores vectors row-major in one contiguous slice.
type matrix struct {
	dim  int
	data []float32
}

func newMatrix(vectors [][]float32, dim int) (matrix, error) {
	if len(vectors) > 0 {
		dim = len(vectors[0])
	}
	if dim <= 0 && len(vectors) > 0 {
		return matrix{}, fmt.Errorf("%w: zero-length vectors", domain.ErrInvalidArgument)
	}
	data := make([]float32, 0, len(vectors)*dim)
	for i, v := range vectors {
		if len(v) != dim {
			return matrix{}, fmt.Errorf("%w: vector %d has dimension %d, expected %d", domain.ErrInvalidArgument, i, len(v), dim)
		}
		data = append(data, v...)
	}
	return matrix{dim: dim, data: data}, nil
}

func (m matrix) len() int {
	if m.dim == 0 {
		return 0
	}
	return len(m.data) / m.dim
}

func (m matrix) row(i int) []float32 {
	return m.data[i*m.dim : (i+1)*m.dim]
}

func (m matrix) dot(i int, q []float32) float64 {
	return dot(m.row(i), q)
}

func dot(a, b []float32) float64 {
	sum := 0.0
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
