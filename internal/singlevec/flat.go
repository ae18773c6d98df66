package singlevec

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"doodledoc/internal/errs"
)

// FlatIndex is the default C2 backend: a dense row-major float32 matrix
// held fully in memory, searched by exhaustive scan.
//
// Removal policy: RemoveByDocID marks rows with a tombstone so search
// results are correct immediately, without blocking on a rewrite. Save
// performs the actual compaction, so the on-disk layout (which has no room
// for a tombstone flag; see spec's metadata.json shape) never contains a
// removed row and insertion indices are not guaranteed stable across a
// save/load cycle for surviving rows that followed a removed one.
type FlatIndex struct {
	mu        sync.RWMutex
	dim       int
	vectors   [][]float32
	metadata  []Record
	tombstone []bool
}

// NewFlatIndex constructs an empty flat index.
func NewFlatIndex() *FlatIndex {
	return &FlatIndex{}
}

func (f *FlatIndex) Dimension() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.dim
}

func (f *FlatIndex) Size() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	n := 0
	for _, t := range f.tombstone {
		if !t {
			n++
		}
	}
	return n
}

func (f *FlatIndex) Add(_ context.Context, vectors [][]float32, metadata []Record) error {
	if len(vectors) != len(metadata) {
		return &errs.InputError{Msg: "vectors and metadata length mismatch"}
	}
	if len(vectors) == 0 {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.dim == 0 {
		f.dim = len(vectors[0])
	}
	for _, v := range vectors {
		if len(v) != f.dim {
			return &errs.DimensionMismatchError{Expected: f.dim, Got: len(v)}
		}
	}
	for i, v := range vectors {
		cp := make([]float32, len(v))
		copy(cp, v)
		f.vectors = append(f.vectors, cp)
		f.metadata = append(f.metadata, metadata[i])
		f.tombstone = append(f.tombstone, false)
	}
	return nil
}

func (f *FlatIndex) Search(_ context.Context, q []float32, k int) ([]Hit, error) {
	if k <= 0 {
		return nil, nil
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.dim != 0 && len(q) != f.dim {
		return nil, &errs.QueryError{Msg: "query vector dimension mismatch"}
	}

	type scored struct {
		idx   int
		score float64
	}
	candidates := make([]scored, 0, len(f.vectors))
	for i, v := range f.vectors {
		if f.tombstone[i] {
			continue
		}
		candidates = append(candidates, scored{idx: i, score: dot(q, v)})
	}
	sort.SliceStable(candidates, func(a, b int) bool {
		if candidates[a].score != candidates[b].score {
			return candidates[a].score > candidates[b].score
		}
		return candidates[a].idx < candidates[b].idx
	})
	if k > len(candidates) {
		k = len(candidates)
	}
	out := make([]Hit, k)
	for i := 0; i < k; i++ {
		out[i] = Hit{Record: f.metadata[candidates[i].idx], Score: candidates[i].score}
	}
	return out, nil
}

func (f *FlatIndex) RemoveByDocID(_ context.Context, docID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, m := range f.metadata {
		if m.DocID == docID {
			f.tombstone[i] = true
		}
	}
	return nil
}

func dot(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// onDiskMeta mirrors the persisted metadata.json record shape.
type onDiskMeta struct {
	DocID   string `json:"doc_id"`
	PageNum int    `json:"page_num"`
	Region  string `json:"region"`
}

func (f *FlatIndex) Save(dir string) error {
	f.mu.Lock()
	liveVecs := make([][]float32, 0, len(f.vectors))
	liveMeta := make([]onDiskMeta, 0, len(f.metadata))
	for i, v := range f.vectors {
		if f.tombstone[i] {
			continue
		}
		liveVecs = append(liveVecs, v)
		liveMeta = append(liveMeta, onDiskMeta{
			DocID:   f.metadata[i].DocID,
			PageNum: f.metadata[i].PageNum,
			Region:  string(f.metadata[i].Region),
		})
	}
	dim := f.dim
	f.mu.Unlock()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	vecPath := filepath.Join(dir, "vectors.bin")
	if err := writeAtomic(vecPath, func(w *os.File) error {
		return writeVectors(w, liveVecs, dim)
	}); err != nil {
		return err
	}

	metaPath := filepath.Join(dir, "metadata.json")
	body, err := json.Marshal(liveMeta)
	if err != nil {
		return err
	}
	return writeAtomic(metaPath, func(w *os.File) error {
		_, err := w.Write(body)
		return err
	})
}

func (f *FlatIndex) Load(dir string) error {
	metaPath := filepath.Join(dir, "metadata.json")
	body, err := os.ReadFile(metaPath)
	if err != nil {
		return err
	}
	var onDisk []onDiskMeta
	if err := json.Unmarshal(body, &onDisk); err != nil {
		return err
	}

	vecPath := filepath.Join(dir, "vectors.bin")
	raw, err := os.ReadFile(vecPath)
	if err != nil {
		return err
	}
	n := len(onDisk)
	dim := 0
	if n > 0 {
		if len(raw)%n != 0 {
			return &errs.InputError{Msg: "vectors.bin size not divisible by row count"}
		}
		rowBytes := len(raw) / n
		dim = rowBytes / 4
	}

	vectors := make([][]float32, n)
	metadata := make([]Record, n)
	tombstone := make([]bool, n)
	off := 0
	for i := 0; i < n; i++ {
		row := make([]float32, dim)
		for j := 0; j < dim; j++ {
			bits := binary.LittleEndian.Uint32(raw[off : off+4])
			row[j] = float32FromBits(bits)
			off += 4
		}
		vectors[i] = row
		metadata[i] = Record{DocID: onDisk[i].DocID, PageNum: onDisk[i].PageNum, Region: recordRegion(onDisk[i].Region)}
	}

	f.mu.Lock()
	f.dim = dim
	f.vectors = vectors
	f.metadata = metadata
	f.tombstone = tombstone
	f.mu.Unlock()
	return nil
}

func writeVectors(w *os.File, vectors [][]float32, dim int) error {
	buf := make([]byte, dim*4)
	for _, v := range vectors {
		for j, x := range v {
			binary.LittleEndian.PutUint32(buf[j*4:j*4+4], float32Bits(x))
		}
		if _, err := w.Write(buf); err != nil {
			return err
		}
	}
	return nil
}

// writeAtomic writes via a temp file in the same directory and renames it
// into place, so a crash never leaves a half-written vectors.bin/metadata.json.
func writeAtomic(path string, write func(*os.File) error) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}
