package vectorindex

import (
	"container/heap"
	"sort"

	"paperqa/internal/domain"
)

// better orders matches by descending score, then ascending position.
func better(a, b domain.Match) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.Position < b.Position
}

// SortMatches puts matches into canonical result order.
func SortMatches(ms []domain.Match) {
	sort.Slice(ms, func(i, j int) bool { return better(ms[i], ms[j]) })
}

// topK keeps the k best matches seen so far. The heap root is the worst
// retained match.
type topK struct {
	k int
	h matchHeap
}

func newTopK(k int) *topK {
	return &topK{k: k, h: make(matchHeap, 0, k)}
}

func (t *topK) push(m domain.Match) {
	if len(t.h) < t.k {
		heap.Push(&t.h, m)
		return
	}
	if better(m, t.h[0]) {
		t.h[0] = m
		heap.Fix(&t.h, 0)
	}
}

func (t *topK) sorted() []domain.Match {
	out := make([]domain.Match, len(t.h))
	copy(out, t.h)
	SortMatches(out)
	return out
}

type matchHeap []domain.Match

func (h matchHeap) Len() int           { return len(h) }
func (h matchHeap) Less(i, j int) bool { return better(h[j], h[i]) }
func (h matchHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *matchHeap) Push(x any) { *h = append(*h, x.(domain.Match)) }

func (h *matchHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
