package vectorindex

import (
	"context"
	"fmt"
	"strconv"

	"github.com/liliang-cn/sqvect/v2/pkg/index"

	"paperqa/internal/domain"
)

const (
	defaultM              = 16
	defaultEfConstruction = 200
	defaultEfSearch       = 64
)

// graphIndex walks an HNSW graph for candidates and re-scores them with the
// exact dot product against the stored rows, so scores and tie order match
// flatIndex.
type graphIndex struct {
	m        matrix
	graph    *index.HNSW
	efSearch int
}

func (g *graphIndex) Len() int       { return g.m.len() }
func (g *graphIndex) Dimension() int { return g.m.dim }

func nodeID(pos int) string { return strconv.Itoa(pos) }

func newGraph(m, efConstruction int) *index.HNSW {
	return index.NewHNSW(m, efConstruction, index.DotProductDistance)
}

func buildGraph(m matrix, cfg Config) (*graphIndex, error) {
	links := cfg.M
	if links <= 0 {
		links = defaultM
	}
	efc := cfg.EfConstruction
	if efc <= 0 {
		efc = defaultEfConstruction
	}
	efs := cfg.EfSearch
	if efs <= 0 {
		efs = defaultEfSearch
	}

	graph := newGraph(links, efc)
	for pos := 0; pos < m.len(); pos++ {
		if err := graph.Insert(nodeID(pos), m.row(pos)); err != nil {
			return nil, fmt.Errorf("insert position %d: %w", pos, err)
		}
	}
	return &graphIndex{m: m, graph: graph, efSearch: efs}, nil
}

func (g *graphIndex) Search(ctx context.Context, query []float32, k int) ([]domain.Match, error) {
	if err := ValidateQuery(query, k, g.m.dim); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n := g.m.len()
	if n == 0 {
		return []domain.Match{}, nil
	}

	ef := max(g.efSearch, k)
	ids, _ := g.graph.Search(query, ef, ef)
	matches := make([]domain.Match, 0, len(ids))
	for _, id := range ids {
		pos, err := strconv.Atoi(id)
		if err != nil || pos < 0 || pos >= n {
			return nil, fmt.Errorf("graph returned unknown node %q", id)
		}
		matches = append(matches, domain.Match{Position: pos, Score: g.m.dot(pos, query)})
	}
	SortMatches(matches)
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

func (g *graphIndex) Save(dir string) error {
	md := meta{
		Strategy:  StrategyHNSW,
		Dimension: g.m.dim,
		Count:     g.m.len(),
		EfSearch:  g.efSearch,
	}
	return save(dir, md, g.m, g.graph)
}

// attachGraph checks a decoded graph against the vector rows it indexes and
// points every node at its row.
func attachGraph(graph *index.HNSW, m matrix, efSearch int) (*graphIndex, error) {
	n := m.len()
	if len(graph.Nodes) != n {
		return nil, fmt.Errorf("graph has %d nodes, expected %d", len(graph.Nodes), n)
	}
	if n == 0 {
		if graph.EntryPoint != "" {
			return nil, fmt.Errorf("empty graph has entry point %q", graph.EntryPoint)
		}
	} else if _, ok := graph.Nodes[graph.EntryPoint]; !ok {
		return nil, fmt.Errorf("entry point %q is not a node", graph.EntryPoint)
	}
	for id, node := range graph.Nodes {
		pos, err := strconv.Atoi(id)
		if err != nil || pos < 0 || pos >= n || node == nil || node.ID != id || node.Deleted {
			return nil, fmt.Errorf("invalid graph node %q", id)
		}
		if node.Level < 0 || len(node.Neighbors) != node.Level+1 {
			return nil, fmt.Errorf("node %q has %d neighbour layers at level %d", id, len(node.Neighbors), node.Level)
		}
		for _, layer := range node.Neighbors {
			for _, nb := range layer {
				if _, ok := graph.Nodes[nb]; !ok {
					return nil, fmt.Errorf("node %q links to unknown node %q", id, nb)
				}
			}
		}
		node.Vector = m.row(pos)
	}
	if efSearch <= 0 {
		efSearch = defaultEfSearch
	}
	return &graphIndex{m: m, graph: graph, efSearch: efSearch}, nil
}
