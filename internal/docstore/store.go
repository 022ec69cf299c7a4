// Package docstore maps index positions to corpus documents through a
// manifest and reads document text from JSON-lines shard files on demand.
package docstore

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"paperqa/internal/domain"
)

// Store is immutable after Load and safe for concurrent use.
type Store struct {
	manifest map[int]domain.DocumentRef
	shardDir string
	logger   *slog.Logger
}

type Option func(*Store)

func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// Load reads the manifest, a JSON object of the form
// {"<position>": ["<doc-id>", "<shard-file>"]}. Shard files are resolved
// relative to shardDir.
func Load(manifestPath, shardDir string, opts ...Option) (*Store, error) {
	raw, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, fmt.Errorf("%w: read manifest: %v", domain.ErrIndexUnavailable, err)
	}
	manifest, err := parseManifest(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: manifest %s: %v", domain.ErrIndexUnavailable, manifestPath, err)
	}
	s := &Store{manifest: manifest, shardDir: shardDir, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func parseManifest(raw []byte) (map[int]domain.DocumentRef, error) {
	var entries map[string][]string
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, err
	}
	manifest := make(map[int]domain.DocumentRef, len(entries))
	for key, pair := range entries {
		pos, err := strconv.Atoi(key)
		if err != nil || pos < 0 {
			return nil, fmt.Errorf("invalid position %q", key)
		}
		if len(pair) != 2 {
			return nil, fmt.Errorf("position %d: expected [doc-id, shard], got %d fields", pos, len(pair))
		}
		manifest[pos] = domain.DocumentRef{DocumentID: pair[0], ShardFile: pair[1]}
	}
	return manifest, nil
}

func (s *Store) Len() int { return len(s.manifest) }

// Ref returns the manifest entry for pos without reading the shard.
func (s *Store) Ref(pos int) (domain.DocumentRef, bool) {
	ref, ok := s.manifest[pos]
	return ref, ok
}

// Resolve returns the document stored at pos. Unknown positions and
// unreadable shards report false. A document id missing from a readable shard
// resolves with empty abstract and body.
func (s *Store) Resolve(pos int) (domain.DocumentRecord, bool) {
	ref, ok := s.manifest[pos]
	if !ok {
		return domain.DocumentRecord{}, false
	}
	rec, err := s.readDocument(ref)
	if err != nil {
		s.logger.Warn("resolve document", "position", pos, "doc_id", ref.DocumentID, "shard", ref.ShardFile, "error", err)
		return domain.DocumentRecord{}, false
	}
	return rec, true
}

// CheckConsistency logs a warning when the manifest does not cover exactly
// indexSize positions and reports whether the sizes agree.
func (s *Store) CheckConsistency(indexSize int) bool {
	if len(s.manifest) == indexSize {
		return true
	}
	s.logger.Warn("manifest and index sizes differ", "manifest", len(s.manifest), "index", indexSize)
	return false
}

type shardDocument struct {
	Abstract string `json:"abstract"`
	MainBody string `json:"main_body"`
}

func (s *Store) readDocument(ref domain.DocumentRef) (domain.DocumentRecord, error) {
	if !filepath.IsLocal(ref.ShardFile) {
		return domain.DocumentRecord{}, fmt.Errorf("shard path %q escapes the shard directory", ref.ShardFile)
	}
	rec := domain.DocumentRecord{DocumentRef: ref}
	err := ScanShard(filepath.Join(s.shardDir, ref.ShardFile), func(id string, raw json.RawMessage) (bool, error) {
		if id != ref.DocumentID {
			return true, nil
		}
		var doc shardDocument
		if err := json.Unmarshal(raw, &doc); err != nil {
			return false, fmt.Errorf("decode document: %w", err)
		}
		rec.Abstract, rec.Body = doc.Abstract, doc.MainBody
		return false, nil
	})
	if err != nil {
		return domain.DocumentRecord{}, err
	}
	return rec, nil
}

// ScanShard calls fn for every entry of a JSON-lines shard, in file order and
// sorted by id within a line. fn returns false to stop early.
func ScanShard(path string, fn func(id string, raw json.RawMessage) (bool, error)) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	r := bufio.NewReader(f)
	for lineNo := 1; ; lineNo++ {
		line, readErr := r.ReadBytes('\n')
		if line = bytes.TrimSpace(line); len(line) > 0 {
			var entries map[string]json.RawMessage
			if err := json.Unmarshal(line, &entries); err != nil {
				return fmt.Errorf("%s:%d: %w", filepath.Base(path), lineNo, err)
			}
			ids := make([]string, 0, len(entries))
			for id := range entries {
				ids = append(ids, id)
			}
			sort.Strings(ids)
			for _, id := range ids {
				more, err := fn(id, entries[id])
				if err != nil || !more {
					return err
				}
			}
		}
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			return readErr
		}
	}
}

// ScanDocuments is ScanShard for text shards, decoding each document.
func ScanDocuments(path string, fn func(rec domain.DocumentRecord) error) error {
	shard := filepath.Base(path)
	return ScanShard(path, func(id string, raw json.RawMessage) (bool, error) {
		var doc shardDocument
		if err := json.Unmarshal(raw, &doc); err != nil {
			return false, fmt.Errorf("%s: document %s: %w", shard, id, err)
		}
		rec := domain.DocumentRecord{
			DocumentRef: domain.DocumentRef{DocumentID: id, ShardFile: shard},
			Abstract:    doc.Abstract,
			Body:        doc.MainBody,
		}
		return true, fn(rec)
	})
}
