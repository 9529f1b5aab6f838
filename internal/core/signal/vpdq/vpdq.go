// Package vpdq is the video PDQ frame-set signal type
package vpdq

import (
	"bytes"
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"

	"hma/internal/core/signal"
	"hma/internal/core/signal/pdq"
)

// Name is the registered signal type name
const Name = "vpdq"

const (
	// FrameThreshold is the hamming distance at which two frames match
	FrameThreshold = pdq.Threshold
	// MinQuality drops frames below this quality before comparing
	MinQuality = 50
	// MatchPercent is the share of frames that must match for a video match
	MatchPercent = 80.0
	// ConfidentDistance is 100 - MatchPercent
	ConfidentDistance = 100 - MatchPercent
)

// Frame is one hashed video frame
type Frame struct {
	Number    int
	Quality   int
	Hash      pdq.Hash
	Timestamp float64
}

type wireFrame struct {
	Quality   *int     `json:"quality"`
	Hash      string   `json:"hash"`
	Timestamp *float64 `json:"timestamp"`
}

// Parse decodes a signal string into frames ordered by frame number
func Parse(s string) ([]Frame, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	var raw map[string]wireFrame
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return nil, signal.Invalid(Name, "not a frame map: %v", err)
	}
	frames := make([]Frame, 0, len(raw))
	for key, wf := range raw {
		n, err := strconv.Atoi(key)
		if err != nil || n < 0 {
			return nil, signal.Invalid(Name, "invalid frame number %q", key)
		}
		if wf.Quality == nil || *wf.Quality < 0 || *wf.Quality > 100 {
			return nil, signal.Invalid(Name, "frame %d: invalid quality", n)
		}
		if len(wf.Hash) != pdq.HexLen || strings.ToLower(wf.Hash) != wf.Hash {
			return nil, signal.Invalid(Name, "frame %d: invalid hash", n)
		}
		h, ok := pdq.ParseHash(wf.Hash)
		if !ok {
			return nil, signal.Invalid(Name, "frame %d: invalid hash", n)
		}
		ts := 0.0
		if wf.Timestamp != nil {
			ts = math.Round(*wf.Timestamp*1000) / 1000
		}
		frames = append(frames, Frame{Number: n, Quality: *wf.Quality, Hash: h, Timestamp: ts})
	}
	sort.Slice(frames, func(i, j int) bool { return frames[i].Number < frames[j].Number })
	for i := 1; i < len(frames); i++ {
		if frames[i].Number == frames[i-1].Number {
			return nil, signal.Invalid(Name, "duplicate frame %d", frames[i].Number)
		}
	}
	return frames, nil
}

// Format writes frames as a JSON object keyed by frame number, in frame order
func Format(frames []Frame) string {
	var b bytes.Buffer
	b.WriteByte('{')
	for i, f := range frames {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(strconv.Quote(strconv.Itoa(f.Number)))
		b.WriteString(`: {"quality": `)
		b.WriteString(strconv.Itoa(f.Quality))
		b.WriteString(`, "hash": "`)
		b.WriteString(f.Hash.String())
		b.WriteString(`", "timestamp": `)
		b.WriteString(strconv.FormatFloat(f.Timestamp, 'f', -1, 64))
		b.WriteByte('}')
	}
	b.WriteByte('}')
	return b.String()
}

// prepare drops low quality frames then duplicate hashes
func prepare(frames []Frame) []pdq.Hash {
	seen := make(map[pdq.Hash]struct{}, len(frames))
	out := make([]pdq.Hash, 0, len(frames))
	for _, f := range frames {
		if f.Quality < MinQuality {
			continue
		}
		if _, dup := seen[f.Hash]; dup {
			continue
		}
		seen[f.Hash] = struct{}{}
		out = append(out, f.Hash)
	}
	return out
}

func matchedIn(a, b []pdq.Hash, threshold int) int {
	n := 0
	for _, x := range a {
		for _, y := range b {
			if x.Distance(y) <= threshold {
				n++
				break
			}
		}
	}
	return n
}

// similarity returns the percentage of query frames found in target and vice versa
func similarity(query, target []pdq.Hash, threshold int) (float64, float64) {
	if len(query) == 0 || len(target) == 0 {
		return 0, 0
	}
	q := float64(matchedIn(query, target, threshold)) * 100 / float64(len(query))
	c := float64(matchedIn(target, query, threshold)) * 100 / float64(len(target))
	return q, c
}

// Type implements signal.SignalType
type Type struct{}

// New returns the vPDQ signal type
func New() Type { return Type{} }

func (Type) Name() string           { return Name }
func (Type) ContentTypes() []string { return []string{signal.ContentVideo} }

// Validate checks every frame and re-emits the canonical frame-ordered form
func (Type) Validate(s string) (string, error) {
	frames, err := Parse(s)
	if err != nil {
		return "", err
	}
	return Format(frames), nil
}

// Compare matches when either side has at least threshold percent of its frames in the other
// Distance is 100 minus the larger percentage
func (Type) Compare(a, b string, threshold float64) (signal.Comparison, error) {
	fa, err := Parse(a)
	if err != nil {
		return signal.Comparison{}, err
	}
	fb, err := Parse(b)
	if err != nil {
		return signal.Comparison{}, err
	}
	pct := MatchPercent
	if threshold > 0 {
		pct = 100 - threshold
	}
	q, c := similarity(prepare(fa), prepare(fb), FrameThreshold)
	best := math.Max(q, c)
	return signal.Comparison{Match: best >= pct, Distance: 100 - best}, nil
}

func (Type) NewIndex() signal.Index { return NewIndex() }

func (Type) LoadIndex(data []byte) (signal.Index, error) { return LoadIndex(data) }

func (Type) ConfidentThreshold() float64 { return ConfidentDistance }

func (Type) RandomSignal() string {
	frames := make([]Frame, 0, 8)
	for i := 0; i < 8; i++ {
		frames = append(frames, Frame{Number: i, Quality: 100, Hash: pdq.Random(), Timestamp: float64(i)})
	}
	return Format(frames)
}

// Examples returns every PDQ example as consecutive frames one second apart
func (Type) Examples() []string {
	exs := pdq.New().Examples()
	frames := make([]Frame, 0, len(exs))
	for i, ex := range exs {
		h, _ := pdq.ParseHash(ex)
		frames = append(frames, Frame{Number: i, Quality: 100, Hash: h, Timestamp: float64(i)})
	}
	return []string{Format(frames)}
}

var (
	_ signal.SignalType      = Type{}
	_ signal.Thresholded     = Type{}
	_ signal.RandomGenerator = Type{}
)
