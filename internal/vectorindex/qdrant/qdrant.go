// Package qdrant serves vectorindex searches from a Qdrant collection over its
// REST API. Points are keyed by corpus position and scored with Dot distance.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"paperqa/internal/domain"
	"paperqa/internal/vectorindex"
)

const upsertBatch = 256

type Config struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
}

// Index is a minimal REST client bound to one collection.
type Index struct {
	url        string
	apiKey     string
	collection string
	dimension  int
	count      int
	client     *http.Client
}

var _ vectorindex.Index = (*Index)(nil)

func newIndex(cfg Config) *Index {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Index{
		url:        cfg.URL,
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		client:     &http.Client{Timeout: timeout},
	}
}

// Open attaches to an existing collection and reads its size and dimension.
func Open(ctx context.Context, cfg Config) (*Index, error) {
	idx := newIndex(cfg)
	var resp struct {
		Result struct {
			PointsCount int `json:"points_count"`
			Config      struct {
				Params struct {
					Vectors struct {
						Size int `json:"size"`
					} `json:"vectors"`
				} `json:"params"`
			} `json:"config"`
		} `json:"result"`
	}
	if err := idx.do(ctx, http.MethodGet, idx.collectionURL(""), nil, &resp); err != nil {
		return nil, fmt.Errorf("%w: qdrant collection %q: %v", domain.ErrIndexUnavailable, cfg.Collection, err)
	}
	idx.dimension = resp.Result.Config.Params.Vectors.Size
	idx.count = resp.Result.PointsCount
	return idx, nil
}

// Build recreates the collection and uploads vectors; vector i becomes point i.
func Build(ctx context.Context, cfg Config, vectors [][]float32) (*Index, error) {
	if len(vectors) == 0 {
		return nil, fmt.Errorf("%w: no vectors to upload", domain.ErrInvalidArgument)
	}
	idx := newIndex(cfg)
	idx.dimension = len(vectors[0])

	// Qdrant answers 404 for a missing collection; that is fine here.
	_ = idx.do(ctx, http.MethodDelete, idx.collectionURL(""), nil, nil)

	body := map[string]any{
		"vectors": map[string]any{
			"size":     idx.dimension,
			"distance": "Dot",
		},
	}
	if err := idx.do(ctx, http.MethodPut, idx.collectionURL(""), body, nil); err != nil {
		return nil, err
	}

	for start := 0; start < len(vectors); start += upsertBatch {
		end := min(start+upsertBatch, len(vectors))
		points := make([]map[string]any, 0, end-start)
		for pos := start; pos < end; pos++ {
			if len(vectors[pos]) != idx.dimension {
				return nil, fmt.Errorf("%w: vector %d has dimension %d, expected %d",
					domain.ErrInvalidArgument, pos, len(vectors[pos]), idx.dimension)
			}
			points = append(points, map[string]any{
				"id":      pos,
				"vector":  vectors[pos],
				"payload": map[string]any{"position": pos},
			})
		}
		if err := idx.do(ctx, http.MethodPut, idx.collectionURL("/points?wait=true"), map[string]any{"points": points}, nil); err != nil {
			return nil, err
		}
	}
	idx.count = len(vectors)
	return idx, nil
}

func (idx *Index) Len() int       { return idx.count }
func (idx *Index) Dimension() int { return idx.dimension }

// Save is a no-op: the collection is the persisted form.
func (idx *Index) Save(string) error { return nil }

// tieSlack extra points are requested so that equal scores straddling the
// k-th result are ordered by position here rather than by the server.
const tieSlack = 16

func (idx *Index) Search(ctx context.Context, query []float32, k int) ([]domain.Match, error) {
	if err := vectorindex.ValidateQuery(query, k, idx.dimension); err != nil {
		return nil, err
	}
	if idx.count == 0 {
		return []domain.Match{}, nil
	}
	req := map[string]any{
		"vector":       query,
		"limit":        k + tieSlack,
		"with_payload": false,
	}
	var resp struct {
		Result []struct {
			ID    uint64  `json:"id"`
			Score float64 `json:"score"`
		} `json:"result"`
	}
	if err := idx.do(ctx, http.MethodPost, idx.collectionURL("/points/search"), req, &resp); err != nil {
		return nil, err
	}
	matches := make([]domain.Match, 0, len(resp.Result))
	for _, r := range resp.Result {
		matches = append(matches, domain.Match{Position: int(r.ID), Score: r.Score})
	}
	vectorindex.SortMatches(matches)
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

func (idx *Index) collectionURL(suffix string) string {
	return fmt.Sprintf("%s/collections/%s%s", idx.url, idx.collection, suffix)
}

func (idx *Index) do(ctx context.Context, method, url string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if idx.apiKey != "" {
		req.Header.Set("api-key", idx.apiKey)
	}
	resp, err := idx.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("qdrant %s %s failed: %s", method, url, resp.Status)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
