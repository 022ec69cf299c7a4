package corpus

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"paperqa/internal/domain"
)

// ShardWriter batches keyed records into numbered JSON-lines files named
// <prefix>_<counter>.jsonl. Each flush writes the pending batch as one JSON
// object on one line and advances the counter. A ShardWriter is not safe for
// concurrent use; give each producer its own.
type ShardWriter struct {
	dir       string
	prefix    string
	batchSize int
	counter   int
	pending   map[string]any
	files     []string
}

func NewShardWriter(dir, prefix string, batchSize, startCounter int) (*ShardWriter, error) {
	if batchSize <= 0 {
		return nil, fmt.Errorf("%w: batch size must be positive, got %d", domain.ErrInvalidArgument, batchSize)
	}
	if prefix == "" {
		return nil, fmt.Errorf("%w: empty shard prefix", domain.ErrInvalidArgument)
	}
	return &ShardWriter{
		dir:       dir,
		prefix:    prefix,
		batchSize: batchSize,
		counter:   startCounter,
		pending:   make(map[string]any, batchSize),
	}, nil
}

// Add queues a record and flushes once batchSize distinct ids are pending.
func (w *ShardWriter) Add(id string, value any) error {
	w.pending[id] = value
	if len(w.pending) >= w.batchSize {
		return w.Flush()
	}
	return nil
}

// Flush writes any pending records to the next shard file.
// Existing files are never overwritten.
func (w *ShardWriter) Flush() error {
	if len(w.pending) == 0 {
		return nil
	}
	data, err := json.Marshal(w.pending)
	if err != nil {
		return fmt.Errorf("encode shard: %w", err)
	}
	name := fmt.Sprintf("%s_%d.jsonl", w.prefix, w.counter)
	f, err := os.OpenFile(filepath.Join(w.dir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("create shard: %w", err)
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		f.Close()
		return fmt.Errorf("write shard %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close shard %s: %w", name, err)
	}
	w.files = append(w.files, name)
	w.counter++
	w.pending = make(map[string]any, w.batchSize)
	return nil
}

// Close flushes the remainder.
func (w *ShardWriter) Close() error { return w.Flush() }

// Files lists the shard files written so far, in order.
func (w *ShardWriter) Files() []string { return append([]string(nil), w.files...) }
