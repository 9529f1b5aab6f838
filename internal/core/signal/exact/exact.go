// Package exact is a hash-map index for signal types that only match on equality
package exact

import (
	"sort"

	"hma/internal/core/signal"
	"hma/internal/core/signal/codec"
)

// Index maps canonical signal strings to payload ids
type Index struct {
	name    string
	entries map[string][]int64
}

// NewIndex returns an empty index whose blobs are tagged with signalType
func NewIndex(signalType string) *Index {
	return &Index{name: signalType, entries: map[string][]int64{}}
}

// Add implements signal.Index. s must already be canonical
func (ix *Index) Add(s string, id int64) error {
	for _, existing := range ix.entries[s] {
		if existing == id {
			return nil
		}
	}
	ix.entries[s] = append(ix.entries[s], id)
	return nil
}

// Query implements signal.Index. Every hit has distance 0
func (ix *Index) Query(s string) ([]signal.Match, error) {
	ids := ix.entries[s]
	if len(ids) == 0 {
		return nil, nil
	}
	out := make([]signal.Match, 0, len(ids))
	for _, id := range ids {
		out = append(out, signal.Match{ID: id})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Len implements signal.Index
func (ix *Index) Len() int {
	n := 0
	for _, ids := range ix.entries {
		n += len(ids)
	}
	return n
}

// MarshalBinary writes entries in key order so equal indices give equal blobs
func (ix *Index) MarshalBinary() ([]byte, error) {
	keys := make([]string, 0, len(ix.entries))
	for k := range ix.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var w codec.Writer
	w.Uvarint(uint64(len(keys)))
	for _, k := range keys {
		w.String(k)
		ids := ix.entries[k]
		w.Uvarint(uint64(len(ids)))
		for _, id := range ids {
			w.Varint(id)
		}
	}
	return codec.Encode(ix.name, w.Out())
}

// Load rebuilds an index written by MarshalBinary for signalType
func Load(signalType string, blob []byte) (*Index, error) {
	payload, err := codec.DecodeFor(signalType, blob)
	if err != nil {
		return nil, err
	}
	r := codec.NewReader(payload)
	ix := NewIndex(signalType)
	n := r.Uvarint()
	for i := uint64(0); i < n && r.Err() == nil; i++ {
		k := r.String()
		m := r.Uvarint()
		for j := uint64(0); j < m && r.Err() == nil; j++ {
			_ = ix.Add(k, r.Varint())
		}
	}
	if !r.Done() {
		return nil, codec.ErrCorrupt
	}
	return ix, nil
}
