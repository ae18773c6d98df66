package textindex

import (
	"context"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"doodledoc/internal/errs"
)

const (
	bm25K1 = 1.5
	bm25B  = 0.75
)

// BM25Index is the default C4 backend: tokenized corpus held in memory,
// statistics rebuilt on demand by Build.
type BM25Index struct {
	mu sync.RWMutex

	docs      []Entry
	tokens    [][]string
	tombstone []bool

	built    bool
	docFreq  map[string]int // term -> number of documents containing it
	avgLen   float64
	termFreq []map[string]int // per-doc term counts, parallel to docs
}

// NewBM25Index constructs an empty index.
func NewBM25Index() *BM25Index {
	return &BM25Index{docFreq: map[string]int{}}
}

func tokenize(text string) []string {
	fields := strings.Fields(strings.ToLower(text))
	return fields
}

func (b *BM25Index) Add(text string, metadata Entry) {
	toks := tokenize(text)
	if len(toks) == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.docs = append(b.docs, metadata)
	b.tokens = append(b.tokens, toks)
	b.tombstone = append(b.tombstone, false)
	b.built = false
}

func (b *BM25Index) Build() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rebuildLocked()
}

func (b *BM25Index) rebuildLocked() {
	n := len(b.docs)
	b.docFreq = map[string]int{}
	b.termFreq = make([]map[string]int, n)
	var totalLen int
	liveCount := 0
	for i, toks := range b.tokens {
		tf := map[string]int{}
		for _, tok := range toks {
			tf[tok]++
		}
		b.termFreq[i] = tf
		if b.tombstone[i] {
			continue
		}
		liveCount++
		totalLen += len(toks)
		for term := range tf {
			b.docFreq[term]++
		}
	}
	if liveCount > 0 {
		b.avgLen = float64(totalLen) / float64(liveCount)
	} else {
		b.avgLen = 0
	}
	b.built = true
}

func (b *BM25Index) idf(term string) float64 {
	n := 0
	for _, t := range b.tombstone {
		if !t {
			n++
		}
	}
	df := b.docFreq[term]
	if df == 0 || n == 0 {
		return 0
	}
	// standard Robertson-Sparck-Jones IDF, floored at 0 to keep scores
	// non-negative as required.
	idf := math.Log((float64(n)-float64(df)+0.5)/(float64(df)+0.5) + 1)
	if idf < 0 {
		return 0
	}
	return idf
}

func (b *BM25Index) Search(_ context.Context, query string, k int) ([]Hit, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.built {
		return nil, &errs.QueryError{Msg: "BM25 index searched before Build"}
	}
	if k <= 0 {
		return nil, nil
	}
	qTerms := tokenize(query)
	if len(qTerms) == 0 {
		return nil, nil
	}

	type scored struct {
		idx   int
		score float64
	}
	candidates := make([]scored, 0, len(b.docs))
	for i := range b.docs {
		if b.tombstone[i] {
			continue
		}
		docLen := len(b.tokens[i])
		var score float64
		for _, term := range qTerms {
			tf := b.termFreq[i][term]
			if tf == 0 {
				continue
			}
			idf := b.idf(term)
			if idf == 0 {
				continue
			}
			num := idf * float64(tf) * (bm25K1 + 1)
			denom := float64(tf) + bm25K1*(1-bm25B+bm25B*float64(docLen)/maxf(b.avgLen, 1e-9))
			score += num / denom
		}
		if score > 0 {
			candidates = append(candidates, scored{idx: i, score: score})
		}
	}
	sort.SliceStable(candidates, func(a, c int) bool {
		if candidates[a].score != candidates[c].score {
			return candidates[a].score > candidates[c].score
		}
		return candidates[a].idx < candidates[c].idx
	})
	if k > len(candidates) {
		k = len(candidates)
	}
	out := make([]Hit, k)
	for i := 0; i < k; i++ {
		out[i] = Hit{Entry: b.docs[candidates[i].idx], Score: candidates[i].score}
	}
	return out, nil
}

func (b *BM25Index) RemoveByDocID(docID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, d := range b.docs {
		if d.DocID == docID {
			b.tombstone[i] = true
		}
	}
	b.built = false
}

func (b *BM25Index) Size() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := 0
	for _, t := range b.tombstone {
		if !t {
			n++
		}
	}
	return n
}

// onDiskCorpus mirrors the persisted bm25/bm25.json shape: the tokenized
// corpus plus its metadata list, from which statistics are rebuilt on Load.
type onDiskCorpus struct {
	Entries []Entry    `json:"entries"`
	Tokens  [][]string `json:"tokens"`
}

func (b *BM25Index) Save(dir string) error {
	b.mu.RLock()
	liveEntries := make([]Entry, 0, len(b.docs))
	liveTokens := make([][]string, 0, len(b.docs))
	for i := range b.docs {
		if b.tombstone[i] {
			continue
		}
		liveEntries = append(liveEntries, b.docs[i])
		liveTokens = append(liveTokens, b.tokens[i])
	}
	b.mu.RUnlock()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	body, err := json.Marshal(onDiskCorpus{Entries: liveEntries, Tokens: liveTokens})
	if err != nil {
		return err
	}
	path := filepath.Join(dir, "bm25.json")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, body, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func (b *BM25Index) Load(dir string) error {
	body, err := os.ReadFile(filepath.Join(dir, "bm25.json"))
	if err != nil {
		return err
	}
	var onDisk onDiskCorpus
	if err := json.Unmarshal(body, &onDisk); err != nil {
		return err
	}
	b.mu.Lock()
	b.docs = onDisk.Entries
	b.tokens = onDisk.Tokens
	b.tombstone = make([]bool, len(b.docs))
	b.rebuildLocked()
	b.mu.Unlock()
	return nil
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
