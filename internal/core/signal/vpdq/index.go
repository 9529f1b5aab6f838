package vpdq

import (
	"sort"

	"hma/internal/core/signal"
	"hma/internal/core/signal/codec"
	"hma/internal/core/signal/pdq"
)

type video struct {
	frames []pdq.Hash
	ids    []int64
}

// Index finds candidate videos through a frame-level PDQ index, then scores them by frame-set similarity
type Index struct {
	videos []video
	pos    map[string]int
	frames *pdq.Index
}

// NewIndex returns an empty video index
func NewIndex() *Index {
	return &Index{pos: map[string]int{}, frames: pdq.NewIndex(FrameThreshold)}
}

func frameKey(frames []pdq.Hash) string {
	b := make([]byte, 0, len(frames)*32)
	for _, f := range frames {
		b = append(b, f[:]...)
	}
	return string(b)
}

// Add implements signal.Index
func (ix *Index) Add(s string, id int64) error {
	frames, err := Parse(s)
	if err != nil {
		return err
	}
	ix.add(prepare(frames), id)
	return nil
}

func (ix *Index) add(frames []pdq.Hash, id int64) {
	key := frameKey(frames)
	if p, ok := ix.pos[key]; ok {
		for _, existing := range ix.videos[p].ids {
			if existing == id {
				return
			}
		}
		ix.videos[p].ids = append(ix.videos[p].ids, id)
		return
	}
	p := len(ix.videos)
	ix.videos = append(ix.videos, video{frames: frames, ids: []int64{id}})
	ix.pos[key] = p
	for _, f := range frames {
		_ = ix.frames.Add(f.String(), int64(p))
	}
}

// Len implements signal.Index
func (ix *Index) Len() int {
	n := 0
	for _, v := range ix.videos {
		n += len(v.ids)
	}
	return n
}

// Query implements signal.Index at the confident match percentage
func (ix *Index) Query(s string) ([]signal.Match, error) {
	return ix.QueryThreshold(s, ConfidentDistance)
}

// QueryThreshold returns videos whose distance, 100 minus best match percent, is within t
func (ix *Index) QueryThreshold(s string, t float64) ([]signal.Match, error) {
	frames, err := Parse(s)
	if err != nil {
		return nil, err
	}
	query := prepare(frames)
	cands := map[int64]struct{}{}
	for _, f := range query {
		hits, err := ix.frames.Query(f.String())
		if err != nil {
			return nil, err
		}
		for _, h := range hits {
			cands[h.ID] = struct{}{}
		}
	}
	var out []signal.Match
	for p := range cands {
		v := ix.videos[p]
		q, c := similarity(query, v.frames, FrameThreshold)
		best := q
		if c > best {
			best = c
		}
		dist := 100 - best
		if dist > t {
			continue
		}
		for _, id := range v.ids {
			out = append(out, signal.Match{ID: id, Distance: dist})
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

// MarshalBinary implements signal.Index. The frame index is rebuilt on load
func (ix *Index) MarshalBinary() ([]byte, error) {
	var w codec.Writer
	w.Uvarint(uint64(len(ix.videos)))
	for _, v := range ix.videos {
		w.Uvarint(uint64(len(v.frames)))
		for _, f := range v.frames {
			w.Raw(f[:])
		}
		w.Uvarint(uint64(len(v.ids)))
		for _, id := range v.ids {
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
	ix := NewIndex()
	n := r.Uvarint()
	for i := uint64(0); i < n && r.Err() == nil; i++ {
		nf := r.Uvarint()
		frames := make([]pdq.Hash, 0, min(nf, 4096))
		for j := uint64(0); j < nf && r.Err() == nil; j++ {
			var h pdq.Hash
			copy(h[:], r.Raw(32))
			frames = append(frames, h)
		}
		ni := r.Uvarint()
		for j := uint64(0); j < ni && r.Err() == nil; j++ {
			ix.add(frames, r.Varint())
		}
	}
	if !r.Done() {
		return nil, codec.ErrCorrupt
	}
	return ix, nil
}

var _ signal.ThresholdIndex = (*Index)(nil)
