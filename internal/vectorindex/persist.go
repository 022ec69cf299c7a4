package vectorindex

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"hash/crc32"
	"math"
	"os"
	"path/filepath"

	"github.com/liliang-cn/sqvect/v2/pkg/index"

	"paperqa/internal/domain"
)

const (
	metaFile    = "index.json"
	vectorsFile = "vectors.bin"
	graphFile   = "hnsw.gob"

	formatVersion = 2
)

type meta struct {
	FormatVersion int      `json:"format_version"`
	Strategy      Strategy `json:"strategy"`
	Dimension     int      `json:"dimension"`
	Count         int      `json:"count"`
	EfSearch      int      `json:"ef_search,omitempty"`
	Checksum      uint32   `json:"checksum"`
}

// Load reconstructs an index written by Save. Any missing or inconsistent
// file is reported as domain.ErrIndexUnavailable.
func Load(dir string) (Index, error) {
	raw, err := os.ReadFile(filepath.Join(dir, metaFile))
	if err != nil {
		return nil, unavailable(dir, err)
	}
	var md meta
	if err := json.Unmarshal(raw, &md); err != nil {
		return nil, unavailable(dir, err)
	}
	if md.FormatVersion != formatVersion {
		return nil, unavailable(dir, fmt.Errorf("unsupported format version %d", md.FormatVersion))
	}
	if md.Dimension < 0 || md.Count < 0 {
		return nil, unavailable(dir, errors.New("negative dimension or count"))
	}

	vecBytes, err := os.ReadFile(filepath.Join(dir, vectorsFile))
	if err != nil {
		return nil, unavailable(dir, err)
	}
	crc := crc32.NewIEEE()
	_, _ = crc.Write(vecBytes)
	m, err := decodeMatrix(vecBytes, md.Dimension, md.Count)
	if err != nil {
		return nil, unavailable(dir, err)
	}

	switch md.Strategy {
	case StrategyFlat:
		if crc.Sum32() != md.Checksum {
			return nil, unavailable(dir, errors.New("checksum mismatch"))
		}
		return &flatIndex{m: m}, nil
	case StrategyHNSW:
		graphBytes, err := os.ReadFile(filepath.Join(dir, graphFile))
		if err != nil {
			return nil, unavailable(dir, err)
		}
		_, _ = crc.Write(graphBytes)
		if crc.Sum32() != md.Checksum {
			return nil, unavailable(dir, errors.New("checksum mismatch"))
		}
		if err := checkGraphHeader(graphBytes, md.Count); err != nil {
			return nil, unavailable(dir, err)
		}
		graph := newGraph(defaultM, defaultEfConstruction)
		if err := graph.Load(bytes.NewReader(graphBytes)); err != nil {
			return nil, unavailable(dir, fmt.Errorf("decode graph: %w", err))
		}
		g, err := attachGraph(graph, m, md.EfSearch)
		if err != nil {
			return nil, unavailable(dir, err)
		}
		return g, nil
	default:
		return nil, unavailable(dir, fmt.Errorf("unknown strategy %q", md.Strategy))
	}
}

func unavailable(dir string, err error) error {
	return fmt.Errorf("%w: load %s: %v", domain.ErrIndexUnavailable, dir, err)
}

func save(dir string, md meta, m matrix, graph *index.HNSW) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	vecBytes := encodeFloats(nil, m.data)
	crc := crc32.NewIEEE()
	_, _ = crc.Write(vecBytes)
	if err := os.WriteFile(filepath.Join(dir, vectorsFile), vecBytes, 0o644); err != nil {
		return err
	}
	if graph != nil {
		var buf bytes.Buffer
		if err := graph.Save(&buf); err != nil {
			return fmt.Errorf("encode graph: %w", err)
		}
		_, _ = crc.Write(buf.Bytes())
		if err := os.WriteFile(filepath.Join(dir, graphFile), buf.Bytes(), 0o644); err != nil {
			return err
		}
	}
	md.FormatVersion = formatVersion
	md.Checksum = crc.Sum32()
	data, err := json.MarshalIndent(md, "", "  ")
	if err != nil {
		return err
	}
	// metadata goes last so a partially written directory fails to load
	return os.WriteFile(filepath.Join(dir, metaFile), data, 0o644)
}

// checkGraphHeader reads the parameters HNSW.Save writes ahead of the nodes
// and rejects a node count that disagrees with the vector rows before the
// graph decoder sizes its node map from it.
func checkGraphHeader(data []byte, count int) error {
	dec := gob.NewDecoder(bytes.NewReader(data))
	var (
		links, efc, nodes int
		entry             string
	)
	for _, v := range []any{&links, &efc, &entry, &nodes} {
		if err := dec.Decode(v); err != nil {
			return fmt.Errorf("decode graph header: %w", err)
		}
	}
	if links <= 0 || nodes != count {
		return fmt.Errorf("graph header declares %d nodes with M=%d, expected %d nodes", nodes, links, count)
	}
	return nil
}

func encodeFloats(buf []byte, vals []float32) []byte {
	for _, v := range vals {
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(v))
	}
	return buf
}

// decodeMatrix bounds dim and count by the data length before multiplying
// them, so a forged header cannot overflow the size computation.
func decodeMatrix(data []byte, dim, count int) (matrix, error) {
	floats := len(data) / 4
	switch {
	case len(data)%4 != 0:
		return matrix{}, fmt.Errorf("vector data is %d bytes, not a multiple of 4", len(data))
	case dim == 0 && count > 0:
		return matrix{}, fmt.Errorf("count %d with zero dimension", count)
	case dim > 0 && count > floats/dim:
		return matrix{}, fmt.Errorf("count %d of dimension %d exceeds %d stored values", count, dim, floats)
	case dim*count != floats:
		return matrix{}, fmt.Errorf("vector data holds %d values, expected %d", floats, dim*count)
	}
	vals := make([]float32, floats)
	for i := range vals {
		vals[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return matrix{dim: dim, data: vals}, nil
}
