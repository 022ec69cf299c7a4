package corpus

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strconv"
	"strings"

	"paperqa/internal/docstore"
	"paperqa/internal/domain"
)

// Manifest lists the document behind every index position; entry i belongs
// to position i.
type Manifest []domain.DocumentRef

// MarshalJSON encodes {"<position>": ["<doc-id>", "<shard-file>"]}.
func (m Manifest) MarshalJSON() ([]byte, error) {
	out := make(map[string][2]string, len(m))
	for pos, ref := range m {
		out[strconv.Itoa(pos)] = [2]string{ref.DocumentID, ref.ShardFile}
	}
	return json.Marshal(out)
}

// ErrManifestMismatch reports a manifest on disk that assigns positions
// differently from the embeddings being indexed.
var ErrManifestMismatch = errors.New("manifest does not match the embedding shards")

// ReadManifest parses a manifest written by WriteManifest. Positions must run
// from 0 without gaps.
func ReadManifest(path string) (Manifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var entries map[string][2]string
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	m := make(Manifest, len(entries))
	seen := make([]bool, len(entries))
	for key, pair := range entries {
		pos, err := strconv.Atoi(key)
		if err != nil || pos < 0 || pos >= len(entries) || seen[pos] {
			return nil, fmt.Errorf("parse %s: invalid position %q", path, key)
		}
		seen[pos] = true
		m[pos] = domain.DocumentRef{DocumentID: pair[0], ShardFile: pair[1]}
	}
	return m, nil
}

// SyncManifest writes m to path. An existing manifest is kept when it equals
// m and rejected with ErrManifestMismatch otherwise; force replaces it.
func SyncManifest(path string, m Manifest, force bool) (written bool, err error) {
	if force {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return false, err
		}
	}
	written, err = WriteManifest(path, m)
	if err != nil || written {
		return written, err
	}
	existing, err := ReadManifest(path)
	if err != nil {
		return false, err
	}
	if !slices.Equal(existing, m) {
		return false, fmt.Errorf("%w: %s has %d positions, embeddings give %d", ErrManifestMismatch, path, len(existing), len(m))
	}
	return false, nil
}

// SourceShard maps an embedding shard name such as split_3_2.jsonl to the
// text shard it was computed from, split_3.jsonl.
func SourceShard(embeddingFile string) (string, error) {
	base := strings.TrimSuffix(filepath.Base(embeddingFile), shardExt)
	i := strings.LastIndexByte(base, '_')
	if i <= 0 {
		return "", fmt.Errorf("%w: embedding shard %q has no _<n> suffix", domain.ErrInvalidArgument, embeddingFile)
	}
	if _, err := strconv.Atoi(base[i+1:]); err != nil {
		return "", fmt.Errorf("%w: embedding shard %q has no _<n> suffix", domain.ErrInvalidArgument, embeddingFile)
	}
	return base[:i] + shardExt, nil
}

type record struct {
	ref    domain.DocumentRef
	vector []float32
}

// CollectEmbeddings reads every embedding shard in embDir and returns the
// vectors in index order together with the matching manifest. Order is
// lexicographic by (doc-id, source shard), so rebuilding from the same
// shards always assigns the same positions.
func CollectEmbeddings(embDir string) ([][]float32, Manifest, error) {
	files, err := listShards(embDir)
	if err != nil {
		return nil, nil, err
	}
	var records []record
	dim := -1
	for _, name := range files {
		source, err := SourceShard(name)
		if err != nil {
			return nil, nil, err
		}
		err = docstore.ScanShard(filepath.Join(embDir, name), func(id string, raw json.RawMessage) (bool, error) {
			var vec []float32
			if err := json.Unmarshal(raw, &vec); err != nil {
				return false, fmt.Errorf("%s: %s: %w", name, id, err)
			}
			if dim == -1 {
				dim = len(vec)
			}
			if len(vec) != dim || dim == 0 {
				return false, fmt.Errorf("%s: %s: dimension %d, expected %d", name, id, len(vec), dim)
			}
			records = append(records, record{
				ref:    domain.DocumentRef{DocumentID: id, ShardFile: source},
				vector: vec,
			})
			return true, nil
		})
		if err != nil {
			return nil, nil, err
		}
	}

	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i].ref, records[j].ref
		if a.DocumentID != b.DocumentID {
			return a.DocumentID < b.DocumentID
		}
		return a.ShardFile < b.ShardFile
	})
	vectors := make([][]float32, len(records))
	manifest := make(Manifest, len(records))
	for i, r := range records {
		vectors[i] = r.vector
		manifest[i] = r.ref
	}
	return vectors, manifest, nil
}

// WriteManifest creates path exclusively. An existing manifest is left in
// place and reported with written == false.
func WriteManifest(path string, m Manifest) (written bool, err error) {
	data, err := json.Marshal(m)
	if err != nil {
		return false, err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if errors.Is(err, os.ErrExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		f.Close()
		return false, err
	}
	return true, f.Close()
}
