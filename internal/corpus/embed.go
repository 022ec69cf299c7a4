// Package corpus holds the offline jobs that turn text shards into embedding
// shards and embedding shards into an ordered index input plus manifest.
package corpus

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"paperqa/internal/chunker"
	"paperqa/internal/docstore"
	"paperqa/internal/domain"
	"paperqa/internal/embedding"
)

const (
	DefaultBatchSize = 1000
	shardExt         = ".jsonl"
)

type EmbedOptions struct {
	// BatchSize is the number of documents per embedding shard.
	BatchSize int
	// Workers bounds how many text shards are embedded at once.
	Workers int
	Chunker embedding.Chunker
	Logger  *slog.Logger
}

func (o *EmbedOptions) applyDefaults() {
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.Workers <= 0 {
		o.Workers = runtime.NumCPU()
	}
	if o.Chunker == nil {
		o.Chunker = chunker.NewWordChunker(chunker.DefaultWordsPerChunk, 0)
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// EmbedCorpus embeds the abstract of every document in the *.jsonl text
// shards under textDir and writes embedding shards to outDir. The embedding
// shards for text shard <base>.jsonl are <base>_1.jsonl, <base>_2.jsonl and
// so on. It returns the written file names, sorted.
func EmbedCorpus(ctx context.Context, textDir, outDir string, e domain.Embedder, opts EmbedOptions) ([]string, error) {
	opts.applyDefaults()
	shards, err := listShards(textDir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, err
	}

	var (
		mu      sync.Mutex
		written []string
	)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)
	for _, shard := range shards {
		g.Go(func() error {
			files, err := embedShard(ctx, filepath.Join(textDir, shard), outDir, e, opts)
			if err != nil {
				return fmt.Errorf("embed %s: %w", shard, err)
			}
			mu.Lock()
			written = append(written, files...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	sort.Strings(written)
	return written, nil
}

func embedShard(ctx context.Context, path, outDir string, e domain.Embedder, opts EmbedOptions) ([]string, error) {
	base := strings.TrimSuffix(filepath.Base(path), shardExt)
	w, err := NewShardWriter(outDir, base, opts.BatchSize, 1)
	if err != nil {
		return nil, err
	}
	count := 0
	err = docstore.ScanDocuments(path, func(rec domain.DocumentRecord) error {
		vec, err := embedding.EmbedChunked(ctx, e, opts.Chunker, rec.Abstract)
		if err != nil {
			return fmt.Errorf("document %s: %w", rec.DocumentID, err)
		}
		count++
		if count%100 == 0 {
			opts.Logger.Info("embedding progress", "shard", filepath.Base(path), "documents", count)
		}
		return w.Add(rec.DocumentID, vec)
	})
	if err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	opts.Logger.Info("embedded shard", "shard", filepath.Base(path), "documents", count, "files", len(w.Files()))
	return w.Files(), nil
}

func listShards(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var shards []string
	for _, entry := range entries {
		if entry.Type().IsRegular() && strings.HasSuffix(entry.Name(), shardExt) {
			shards = append(shards, entry.Name())
		}
	}
	sort.Strings(shards)
	return shards, nil
}
