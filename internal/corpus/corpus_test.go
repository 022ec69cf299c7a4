package corpus

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paperqa/internal/docstore"
	"paperqa/internal/domain"
	"paperqa/internal/embedding/hashing"
	"paperqa/internal/retrieval"
	"paperqa/internal/vectorindex"
)

func readShard(t *testing.T, path string) map[string]json.RawMessage {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var out map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func TestShardWriterBatches(t *testing.T) {
	dir := t.TempDir()
	w, err := NewShardWriter(dir, "split_7", 2, 1)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.NoError(t, w.Add(fmt.Sprintf("PMC%d", i), []float32{float32(i)}))
	}
	assert.Equal(t, []string{"split_7_1.jsonl", "split_7_2.jsonl"}, w.Files())
	require.NoError(t, w.Close())
	assert.Equal(t, []string{"split_7_1.jsonl", "split_7_2.jsonl", "split_7_3.jsonl"}, w.Files())

	assert.Len(t, readShard(t, filepath.Join(dir, "split_7_1.jsonl")), 2)
	assert.Len(t, readShard(t, filepath.Join(dir, "split_7_3.jsonl")), 1)

	// Closing again with nothing pending writes nothing.
	require.NoError(t, w.Close())
	assert.Len(t, w.Files(), 3)
}

func TestShardWriterNeverOverwrites(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "x_5.jsonl"), []byte("keep\n"), 0o644))

	w, err := NewShardWriter(dir, "x", 1, 5)
	require.NoError(t, err)
	assert.Error(t, w.Add("a", 1))

	data, err := os.ReadFile(filepath.Join(dir, "x_5.jsonl"))
	require.NoError(t, err)
	assert.Equal(t, "keep\n", string(data))
}

func TestNewShardWriterValidation(t *testing.T) {
	_, err := NewShardWriter(t.TempDir(), "x", 0, 1)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	_, err = NewShardWriter(t.TempDir(), "", 1, 1)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestSourceShard(t *testing.T) {
	got, err := SourceShard("split_3_2.jsonl")
	require.NoError(t, err)
	assert.Equal(t, "split_3.jsonl", got)

	got, err = SourceShard("/tmp/emb/pubmed_a_b_10.jsonl")
	require.NoError(t, err)
	assert.Equal(t, "pubmed_a_b.jsonl", got)

	for _, bad := range []string{"split.jsonl", "_1.jsonl", "split_x.jsonl"} {
		_, err := SourceShard(bad)
		assert.ErrorIs(t, err, domain.ErrInvalidArgument, bad)
	}
}

func TestCollectEmbeddingsOrdering(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	write("split_b_1.jsonl", `{"PMC2": [0, 1], "PMC1": [1, 1]}`+"\n")
	write("split_a_1.jsonl", `{"PMC3": [1, 0]}`+"\n")
	write("split_a_2.jsonl", `{"PMC1": [0.5, 0.5]}`+"\n")
	write("notes.txt", "ignored")

	vectors, manifest, err := CollectEmbeddings(dir)
	require.NoError(t, err)
	assert.Equal(t, Manifest{
		{DocumentID: "PMC1", ShardFile: "split_a.jsonl"},
		{DocumentID: "PMC1", ShardFile: "split_b.jsonl"},
		{DocumentID: "PMC2", ShardFile: "split_b.jsonl"},
		{DocumentID: "PMC3", ShardFile: "split_a.jsonl"},
	}, manifest)
	assert.Equal(t, [][]float32{{0.5, 0.5}, {1, 1}, {0, 1}, {1, 0}}, vectors)

	write("split_c_1.jsonl", `{"PMC9": [1, 2, 3]}`+"\n")
	_, _, err = CollectEmbeddings(dir)
	assert.ErrorContains(t, err, "dimension")
}

func TestWriteManifestIsExclusive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifest.json")
	m := Manifest{{DocumentID: "PMC1", ShardFile: "split_a.jsonl"}, {DocumentID: "PMC2", ShardFile: "split_b.jsonl"}}

	written, err := WriteManifest(path, m)
	require.NoError(t, err)
	assert.True(t, written)

	var decoded map[string][]string
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, map[string][]string{"0": {"PMC1", "split_a.jsonl"}, "1": {"PMC2", "split_b.jsonl"}}, decoded)

	written, err = WriteManifest(path, Manifest{{DocumentID: "other"}})
	require.NoError(t, err)
	assert.False(t, written)
	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, data, after)
}

func TestSyncManifest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifest.json")
	m := Manifest{{DocumentID: "PMC1", ShardFile: "split_a.jsonl"}, {DocumentID: "PMC2", ShardFile: "split_b.jsonl"}}

	written, err := SyncManifest(path, m, false)
	require.NoError(t, err)
	assert.True(t, written)

	written, err = SyncManifest(path, m, false)
	require.NoError(t, err)
	assert.False(t, written)

	// a new document shifts every later position
	grown := Manifest{{DocumentID: "PMC0", ShardFile: "split_a.jsonl"}, m[0], m[1]}
	_, err = SyncManifest(path, grown, false)
	assert.ErrorIs(t, err, ErrManifestMismatch)
	kept, err := ReadManifest(path)
	require.NoError(t, err)
	assert.Equal(t, m, kept)

	written, err = SyncManifest(path, grown, true)
	require.NoError(t, err)
	assert.True(t, written)
	replaced, err := ReadManifest(path)
	require.NoError(t, err)
	assert.Equal(t, grown, replaced)
}

func TestReadManifestRejectsGaps(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifest.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"0": ["PMC1", "a.jsonl"], "2": ["PMC2", "a.jsonl"]}`), 0o644))
	_, err := ReadManifest(path)
	assert.Error(t, err)
}

func TestOfflinePipelineFeedsRetrieval(t *testing.T) {
	root := t.TempDir()
	textDir := filepath.Join(root, "texts")
	embDir := filepath.Join(root, "embeddings")
	require.NoError(t, os.MkdirAll(textDir, 0o755))

	shards := map[string]map[string]map[string]string{
		"split_1.jsonl": {
			"PMC100": {"abstract": "Chemokine receptors on lymphatic vessels direct leukocyte traffic and tumour metastasis.", "main_body": "body 100"},
			"PMC101": {"abstract": "Statin therapy lowers serum cholesterol and cardiovascular events in adults.", "main_body": "body 101"},
		},
		"split_2.jsonl": {
			"PMC200": {"abstract": "Insulin resistance in skeletal muscle precedes type 2 diabetes onset.", "main_body": "body 200"},
			"PMC201": {"abstract": "", "main_body": "a paper with no abstract"},
			"PMC202": {"abstract": "Gut microbiota composition shifts after broad spectrum antibiotic exposure.", "main_body": "body 202"},
		},
	}
	for name, docs := range shards {
		data, err := json.Marshal(docs)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(textDir, name), append(data, '\n'), 0o644))
	}

	emb := hashing.NewEmbedder(256)
	files, err := EmbedCorpus(context.Background(), textDir, embDir, emb, EmbedOptions{BatchSize: 2, Workers: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"split_1_1.jsonl", "split_2_1.jsonl", "split_2_2.jsonl"}, files)

	vectors, manifest, err := CollectEmbeddings(embDir)
	require.NoError(t, err)
	require.Len(t, vectors, 5)
	assert.Equal(t, "PMC100", manifest[0].DocumentID)
	assert.Equal(t, "split_1.jsonl", manifest[0].ShardFile)
	assert.Equal(t, make([]float32, 256), vectors[3], "empty abstract embeds to zero")

	manifestPath := filepath.Join(root, "manifest.json")
	_, err = WriteManifest(manifestPath, manifest)
	require.NoError(t, err)

	idx, err := vectorindex.Build(vectors, vectorindex.Config{Strategy: vectorindex.StrategyFlat})
	require.NoError(t, err)
	docs, err := docstore.Load(manifestPath, textDir)
	require.NoError(t, err)
	assert.True(t, docs.CheckConsistency(idx.Len()))

	pipeline, err := retrieval.New(emb, idx, docs)
	require.NoError(t, err)
	best, err := pipeline.Top(context.Background(), "which receptors guide leukocyte traffic in lymphatic vessels?")
	require.NoError(t, err)
	assert.Equal(t, "PMC100", best.Document.DocumentID)
	assert.Equal(t, "body 100", best.Document.Body)
}
