package docstore

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paperqa/internal/domain"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func fixture(t *testing.T) (manifest, shardDir string) {
	t.Helper()
	dir := t.TempDir()
	shardDir = filepath.Join(dir, "texts")
	require.NoError(t, os.MkdirAll(shardDir, 0o755))

	writeFile(t, filepath.Join(shardDir, "split_a.jsonl"),
		`{"PMC1": {"abstract": "aspirin lowers fever", "main_body": "full text one"}, "PMC2": {"abstract": "only abstract"}}`+"\n")
	writeFile(t, filepath.Join(shardDir, "split_b.jsonl"),
		`{"PMC3": {"main_body": "body without abstract"}}`+"\n"+
			`{"PMC4": {"abstract": "second line", "main_body": "later"}}`)

	manifest = filepath.Join(dir, "manifest.json")
	writeFile(t, manifest, `{
		"0": ["PMC1", "split_a.jsonl"],
		"1": ["PMC2", "split_a.jsonl"],
		"2": ["PMC3", "split_b.jsonl"],
		"3": ["PMC4", "split_b.jsonl"],
		"4": ["PMC9", "split_b.jsonl"],
		"5": ["PMC1", "missing.jsonl"],
		"6": ["PMC1", "../split_a.jsonl"]
	}`)
	return manifest, shardDir
}

func TestResolve(t *testing.T) {
	manifest, shardDir := fixture(t)
	s, err := Load(manifest, shardDir)
	require.NoError(t, err)
	assert.Equal(t, 7, s.Len())

	rec, ok := s.Resolve(0)
	require.True(t, ok)
	assert.Equal(t, domain.DocumentRecord{
		DocumentRef: domain.DocumentRef{DocumentID: "PMC1", ShardFile: "split_a.jsonl"},
		Abstract:    "aspirin lowers fever",
		Body:        "full text one",
	}, rec)

	rec, ok = s.Resolve(1)
	require.True(t, ok)
	assert.Equal(t, "only abstract", rec.Abstract)
	assert.Empty(t, rec.Body)

	rec, ok = s.Resolve(2)
	require.True(t, ok)
	assert.Empty(t, rec.Abstract)
	assert.Equal(t, "body without abstract", rec.Body)

	rec, ok = s.Resolve(3)
	require.True(t, ok)
	assert.Equal(t, "second line", rec.Abstract)
}

func TestResolveNotFound(t *testing.T) {
	manifest, shardDir := fixture(t)
	s, err := Load(manifest, shardDir)
	require.NoError(t, err)

	for _, pos := range []int{-1, 5, 6, 100} {
		_, ok := s.Resolve(pos)
		assert.False(t, ok, "position %d", pos)
	}
}

func TestResolveIDMissingFromShard(t *testing.T) {
	manifest, shardDir := fixture(t)
	s, err := Load(manifest, shardDir)
	require.NoError(t, err)

	rec, ok := s.Resolve(4)
	require.True(t, ok)
	assert.Equal(t, domain.DocumentRecord{
		DocumentRef: domain.DocumentRef{DocumentID: "PMC9", ShardFile: "split_b.jsonl"},
	}, rec)
}

func TestResolveIsIdempotentAndConcurrent(t *testing.T) {
	manifest, shardDir := fixture(t)
	s, err := Load(manifest, shardDir)
	require.NoError(t, err)

	want, ok := s.Resolve(3)
	require.True(t, ok)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, ok := s.Resolve(3)
			assert.True(t, ok)
			assert.Equal(t, want, got)
		}()
	}
	wg.Wait()
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "absent.json"), dir)
	assert.ErrorIs(t, err, domain.ErrIndexUnavailable)

	bad := filepath.Join(dir, "bad.json")
	for _, content := range []string{
		`not json`,
		`{"x": ["PMC1", "a.jsonl"]}`,
		`{"0": ["PMC1"]}`,
	} {
		writeFile(t, bad, content)
		_, err := Load(bad, dir)
		assert.ErrorIs(t, err, domain.ErrIndexUnavailable, content)
	}
}

func TestCheckConsistency(t *testing.T) {
	manifest, shardDir := fixture(t)
	s, err := Load(manifest, shardDir)
	require.NoError(t, err)

	assert.True(t, s.CheckConsistency(7))
	assert.False(t, s.CheckConsistency(8))

	ref, ok := s.Ref(2)
	require.True(t, ok)
	assert.Equal(t, "PMC3", ref.DocumentID)
}

func TestScanDocuments(t *testing.T) {
	_, shardDir := fixture(t)
	var ids []string
	err := ScanDocuments(filepath.Join(shardDir, "split_b.jsonl"), func(rec domain.DocumentRecord) error {
		ids = append(ids, rec.DocumentID)
		assert.Equal(t, "split_b.jsonl", rec.ShardFile)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"PMC3", "PMC4"}, ids)

	writeFile(t, filepath.Join(shardDir, "broken.jsonl"), "{\"PMC1\": {}}\n{oops\n")
	err = ScanDocuments(filepath.Join(shardDir, "broken.jsonl"), func(domain.DocumentRecord) error { return nil })
	assert.ErrorContains(t, err, "broken.jsonl:2")
}
