package text

import (
	"sort"
	"strconv"

	"hma/internal/core/normalize"
	"hma/internal/core/signal"
	"hma/internal/core/signal/codec"
)

type entry struct {
	projected string
	ids       []int64
}

// LinearIndex scans every stored text. Entries are kept in their matching projection
type LinearIndex struct {
	pct     float64
	entries []entry
	pos     map[string]int
}

// NewLinearIndex returns an empty index matching within pct percent
func NewLinearIndex(pct float64) *LinearIndex {
	return &LinearIndex{pct: pct, pos: map[string]int{}}
}

// Add implements signal.Index
func (ix *LinearIndex) Add(s string, id int64) error {
	ix.add(normalize.ForMatching(s), id)
	return nil
}

func (ix *LinearIndex) add(p string, id int64) {
	if i, ok := ix.pos[p]; ok {
		for _, existing := range ix.entries[i].ids {
			if existing == id {
				return
			}
		}
		ix.entries[i].ids = append(ix.entries[i].ids, id)
		return
	}
	ix.pos[p] = len(ix.entries)
	ix.entries = append(ix.entries, entry{projected: p, ids: []int64{id}})
}

// Len implements signal.Index
func (ix *LinearIndex) Len() int {
	n := 0
	for _, e := range ix.entries {
		n += len(e.ids)
	}
	return n
}

// Query implements signal.Index
func (ix *LinearIndex) Query(s string) ([]signal.Match, error) {
	return ix.QueryThreshold(s, ix.pct)
}

// QueryThreshold matches within pct percent of the query length
func (ix *LinearIndex) QueryThreshold(s string, pct float64) ([]signal.Match, error) {
	if pct <= 0 || pct > 100 {
		return nil, signal.Invalid(RawTextName, "threshold must be in (0, 100]")
	}
	q := normalize.ForMatching(s)
	var out []signal.Match
	for _, e := range ix.entries {
		d, ok := distance(q, e.projected, pct)
		if !ok {
			continue
		}
		for _, id := range e.ids {
			out = append(out, signal.Match{ID: id, Distance: float64(d)})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Distance != out[j].Distance {
			return out[i].Distance < out[j].Distance
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// MarshalBinary implements signal.Index
func (ix *LinearIndex) MarshalBinary() ([]byte, error) {
	var w codec.Writer
	w.String(formatPct(ix.pct))
	w.Uvarint(uint64(len(ix.entries)))
	for _, e := range ix.entries {
		w.String(e.projected)
		w.Uvarint(uint64(len(e.ids)))
		for _, id := range e.ids {
			w.Varint(id)
		}
	}
	return codec.Encode(RawTextName, w.Out())
}

// LoadLinearIndex rebuilds an index written by MarshalBinary
func LoadLinearIndex(blob []byte) (*LinearIndex, error) {
	payload, err := codec.DecodeFor(RawTextName, blob)
	if err != nil {
		return nil, err
	}
	r := codec.NewReader(payload)
	pct, ok := parsePct(r.String())
	if !ok {
		return nil, codec.ErrCorrupt
	}
	ix := NewLinearIndex(pct)
	n := r.Uvarint()
	for i := uint64(0); i < n && r.Err() == nil; i++ {
		p := r.String()
		m := r.Uvarint()
		for j := uint64(0); j < m && r.Err() == nil; j++ {
			ix.add(p, r.Varint())
		}
	}
	if !r.Done() {
		return nil, codec.ErrCorrupt
	}
	return ix, nil
}

func formatPct(p float64) string { return strconv.FormatFloat(p, 'g', -1, 64) }

func parsePct(s string) (float64, bool) {
	p, err := strconv.ParseFloat(s, 64)
	return p, err == nil && p > 0 && p <= 100
}

var _ signal.ThresholdIndex = (*LinearIndex)(nil)
