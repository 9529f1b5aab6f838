package pdq

import (
	"sort"

	"hma/internal/core/signal"
	"hma/internal/core/signal/codec"
)

const numChunks = 16

// Index is a multi-index hash over 16 16-bit chunks
// Any hash within distance d of a query shares at least one chunk within d/16 bits,
// so probing every chunk value at that radius finds all candidates
type Index struct {
	threshold int
	hashes    []Hash
	ids       [][]int64
	pos       map[Hash]int
	chunks    [numChunks]map[uint16][]int32
}

// NewIndex returns an empty index that matches at threshold
func NewIndex(threshold int) *Index {
	ix := &Index{threshold: threshold, pos: map[Hash]int{}}
	for i := range ix.chunks {
		ix.chunks[i] = map[uint16][]int32{}
	}
	return ix
}

// Add implements signal.Index
func (ix *Index) Add(s string, id int64) error {
	h, ok := ParseHash(s)
	if !ok {
		return signal.Invalid(Name, "want %d hex chars", HexLen)
	}
	ix.add(h, id)
	return nil
}

func (ix *Index) add(h Hash, id int64) {
	if p, ok := ix.pos[h]; ok {
		for _, existing := range ix.ids[p] {
			if existing == id {
				return
			}
		}
		ix.ids[p] = append(ix.ids[p], id)
		return
	}
	p := len(ix.hashes)
	ix.hashes = append(ix.hashes, h)
	ix.ids = append(ix.ids, []int64{id})
	ix.pos[h] = p
	for c := 0; c < numChunks; c++ {
		v := h.Chunk(c)
		ix.chunks[c][v] = append(ix.chunks[c][v], int32(p))
	}
}

// Len implements signal.Index
func (ix *Index) Len() int {
	n := 0
	for _, ids := range ix.ids {
		n += len(ids)
	}
	return n
}

// Query implements signal.Index at the index threshold
func (ix *Index) Query(s string) ([]signal.Match, error) {
	return ix.QueryThreshold(s, float64(ix.threshold))
}

// QueryThreshold implements signal.ThresholdIndex
func (ix *Index) QueryThreshold(s string, t float64) ([]signal.Match, error) {
	q, ok := ParseHash(s)
	if !ok {
		return nil, signal.Invalid(Name, "want %d hex chars", HexLen)
	}
	if t < 0 {
		return nil, nil
	}
	d := int(t)
	radius := d / numChunks
	var cands []int32
	if radius <= 1 {
		cands = ix.probe(q, radius)
	} else {
		cands = ix.all()
	}
	var out []signal.Match
	for _, p := range cands {
		dist := q.Distance(ix.hashes[p])
		if dist > d {
			continue
		}
		for _, id := range ix.ids[p] {
			out = append(out, signal.Match{ID: id, Distance: float64(dist)})
		}
	}
	sortMatches(out)
	return out, nil
}

// QueryTopK implements signal.TopKIndex with a linear scan
func (ix *Index) QueryTopK(s string, k int) ([]signal.Match, error) {
	q, ok := ParseHash(s)
	if !ok {
		return nil, signal.Invalid(Name, "want %d hex chars", HexLen)
	}
	if k <= 0 {
		return nil, nil
	}
	out := make([]signal.Match, 0, len(ix.hashes))
	for p, h := range ix.hashes {
		dist := float64(q.Distance(h))
		for _, id := range ix.ids[p] {
			out = append(out, signal.Match{ID: id, Distance: dist})
		}
	}
	sortMatches(out)
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

func (ix *Index) all() []int32 {
	out := make([]int32, len(ix.hashes))
	for i := range out {
		out[i] = int32(i)
	}
	return out
}

// probe collects candidate positions whose chunk lies within radius bits of the query chunk
func (ix *Index) probe(q Hash, radius int) []int32 {
	seen := map[int32]struct{}{}
	var out []int32
	visit := func(c int, v uint16) {
		for _, p := range ix.chunks[c][v] {
			if _, dup := seen[p]; dup {
				continue
			}
			seen[p] = struct{}{}
			out = append(out, p)
		}
	}
	for c := 0; c < numChunks; c++ {
		v := q.Chunk(c)
		visit(c, v)
		if radius >= 1 {
			for b := 0; b < 16; b++ {
				visit(c, v^(1<<b))
			}
		}
	}
	return out
}

func sortMatches(m []signal.Match) {
	sort.SliceStable(m, func(i, j int) bool {
		if m[i].Distance != m[j].Distance {
			return m[i].Distance < m[j].Distance
		}
		return m[i].ID < m[j].ID
	})
}

// MarshalBinary implements signal.Index
func (ix *Index) MarshalBinary() ([]byte, error) {
	var w codec.Writer
	w.Uvarint(uint64(ix.threshold))
	w.Uvarint(uint64(len(ix.hashes)))
	for p, h := range ix.hashes {
		w.Raw(h[:])
		w.Uvarint(uint64(len(ix.ids[p])))
		for _, id := range ix.ids[p] {
			w.Varint(id)
		}
	}
	return codec.Encode(Name, w.Out())
}

// LoadIndex rebuilds an index from MarshalBinary output
func LoadIndex(blob []byte) (*Index, error) {
	payload, err := codec.DecodeFor(Name, blob)
	if err != nil {
		return nil, err
	}
	r := codec.NewReader(payload)
	ix := NewIndex(int(r.Uvarint()))
	n := r.Uvarint()
	for i := uint64(0); i < n && r.Err() == nil; i++ {
		var h Hash
		copy(h[:], r.Raw(32))
		m := r.Uvarint()
		for j := uint64(0); j < m && r.Err() == nil; j++ {
			ix.add(h, r.Varint())
		}
	}
	if !r.Done() {
		return nil, codec.ErrCorrupt
	}
	return ix, nil
}
