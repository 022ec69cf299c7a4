package qdrant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paperqa/internal/domain"
)

// fakeQdrant implements the handful of endpoints the client touches.
type fakeQdrant struct {
	mu     sync.Mutex
	size   int
	points map[uint64][]float32
	apiKey string
	limits []int
}

func (f *fakeQdrant) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.apiKey != "" && r.Header.Get("api-key") != f.apiKey {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	path := strings.TrimPrefix(r.URL.Path, "/collections/papers")
	switch {
	case r.Method == http.MethodDelete && path == "":
		f.points = nil
		f.size = 0
	case r.Method == http.MethodPut && path == "":
		var body struct {
			Vectors struct {
				Size     int    `json:"size"`
				Distance string `json:"distance"`
			} `json:"vectors"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.Vectors.Distance != "Dot" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.size = body.Vectors.Size
		f.points = map[uint64][]float32{}
	case r.Method == http.MethodGet && path == "":
		if f.points == nil {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"result": map[string]any{
				"points_count": len(f.points),
				"config":       map[string]any{"params": map[string]any{"vectors": map[string]any{"size": f.size}}},
			},
		})
	case r.Method == http.MethodPut && path == "/points":
		var body struct {
			Points []struct {
				ID     uint64    `json:"id"`
				Vector []float32 `json:"vector"`
			} `json:"points"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		for _, p := range body.Points {
			f.points[p.ID] = p.Vector
		}
	case r.Method == http.MethodPost && path == "/points/search":
		var body struct {
			Vector []float32 `json:"vector"`
			Limit  int       `json:"limit"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.limits = append(f.limits, body.Limit)
		type hit struct {
			ID    uint64  `json:"id"`
			Score float64 `json:"score"`
		}
		var hits []hit
		for id, v := range f.points {
			var s float64
			for i := range v {
				s += float64(v[i]) * float64(body.Vector[i])
			}
			hits = append(hits, hit{id, s})
		}
		// Qdrant does not promise an order among equal scores.
		sort.Slice(hits, func(i, j int) bool {
			if hits[i].Score != hits[j].Score {
				return hits[i].Score > hits[j].Score
			}
			return hits[i].ID > hits[j].ID
		})
		if len(hits) > body.Limit {
			hits = hits[:body.Limit]
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"result": hits})
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func TestBuildOpenSearch(t *testing.T) {
	fake := &fakeQdrant{apiKey: "secret"}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	cfg := Config{URL: srv.URL, APIKey: "secret", Collection: "papers"}
	vectors := [][]float32{{0, 1}, {1, 0}, {1, 0}, {0.6, 0.8}}
	built, err := Build(context.Background(), cfg, vectors)
	require.NoError(t, err)
	assert.Equal(t, 4, built.Len())
	assert.Equal(t, 2, built.Dimension())
	assert.NoError(t, built.Save(t.TempDir()))

	idx, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, 4, idx.Len())
	assert.Equal(t, 2, idx.Dimension())

	got, err := idx.Search(context.Background(), []float32{1, 0}, 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []int{1, 2, 3}, []int{got[0].Position, got[1].Position, got[2].Position})
	assert.InDelta(t, 1.0, got[0].Score, 1e-6)
}

func TestSearchOrdersTiesAcrossTheCutoff(t *testing.T) {
	fake := &fakeQdrant{}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	vectors := [][]float32{{1, 0}, {1, 0}, {1, 0}, {1, 0}, {0, 1}}
	idx, err := Build(context.Background(), Config{URL: srv.URL, Collection: "papers"}, vectors)
	require.NoError(t, err)

	got, err := idx.Search(context.Background(), []float32{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, []int{0, 1}, []int{got[0].Position, got[1].Position})
	fake.mu.Lock()
	defer fake.mu.Unlock()
	require.NotEmpty(t, fake.limits)
	assert.Greater(t, fake.limits[len(fake.limits)-1], 2)
}

func TestSearchValidation(t *testing.T) {
	srv := httptest.NewServer(&fakeQdrant{})
	defer srv.Close()
	idx, err := Build(context.Background(), Config{URL: srv.URL, Collection: "papers"}, [][]float32{{1, 0}})
	require.NoError(t, err)

	_, err = idx.Search(context.Background(), []float32{1, 0}, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	_, err = idx.Search(context.Background(), []float32{1, 0, 0}, 1)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestOpenUnavailable(t *testing.T) {
	srv := httptest.NewServer(&fakeQdrant{})
	defer srv.Close()

	_, err := Open(context.Background(), Config{URL: srv.URL, Collection: "papers"})
	assert.ErrorIs(t, err, domain.ErrIndexUnavailable)

	srv.Close()
	_, err = Open(context.Background(), Config{URL: srv.URL, Collection: "papers"})
	assert.ErrorIs(t, err, domain.ErrIndexUnavailable)
}
