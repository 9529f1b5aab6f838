// Package pdq is the 256-bit PDQ photo hash signal type
package pdq

import (
	"context"
	"strings"

	"hma/internal/core/pdqhash"
	"hma/internal/core/signal"
)

// Name is the registered signal type name
const Name = "pdq"

const (
	// Threshold is the default and confident match distance
	Threshold = 31
	// MinQuality is the lowest hasher quality that produces a signal
	MinQuality = 50
)

// Type implements signal.SignalType
type Type struct{}

// New returns the PDQ signal type
func New() Type { return Type{} }

func (Type) Name() string           { return Name }
func (Type) ContentTypes() []string { return []string{signal.ContentPhoto} }

// Validate accepts 64 hex chars in any case and returns lower case
func (Type) Validate(s string) (string, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if _, ok := ParseHash(s); !ok {
		return "", signal.Invalid(Name, "want %d hex chars", HexLen)
	}
	return s, nil
}

// Compare returns the hamming distance and whether it is within threshold
func (t Type) Compare(a, b string, threshold float64) (signal.Comparison, error) {
	ha, ok := ParseHash(strings.ToLower(a))
	if !ok {
		return signal.Comparison{}, signal.Invalid(Name, "want %d hex chars", HexLen)
	}
	hb, ok := ParseHash(strings.ToLower(b))
	if !ok {
		return signal.Comparison{}, signal.Invalid(Name, "want %d hex chars", HexLen)
	}
	if threshold <= 0 {
		threshold = Threshold
	}
	d := ha.Distance(hb)
	return signal.Comparison{Match: float64(d) <= threshold, Distance: float64(d)}, nil
}

func (Type) NewIndex() signal.Index { return NewIndex(Threshold) }

func (Type) LoadIndex(data []byte) (signal.Index, error) { return LoadIndex(data) }

func (Type) ConfidentThreshold() float64 { return Threshold }

func (Type) RandomSignal() string { return Random().String() }

// HashBytes decodes an image and hashes it. Low quality images yield ""
func (Type) HashBytes(ctx context.Context, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	res, err := pdqhash.FromBytes(data)
	if err != nil {
		return "", signal.Invalid(Name, "%v", err)
	}
	if res.Quality < MinQuality {
		return "", nil
	}
	return Hash(res.Hash).String(), nil
}

// Examples returns known-good hashes
func (Type) Examples() []string {
	return []string{
		"acecf3355e3125c8e24e2f30e0d4ec4f8482b878b3c34cdbdf063278db275992",
		"8fb70f36e1c4181e82fde7d0f80138430e1e31f07b628e31ccbb687e87e1f307",
		"36b4665bca0c91f6aecb8948e3381e57e509ae7210e3cd1bd768288e56a95af9",
		"e875634b9df48df5bd7f1695c796287e8a0ec0603c0c478170fc9d0f81ea60f4",
		"42869d32fff9b14c100759e17b7c204628f97efca264c007f5e9bdfc004f2a73",
		"f8f8f0cee0f4a84f06370a22038f63f0b36e2ed596621e1d33e6b39c4e9c9b22",
	}
}

var (
	_ signal.SignalType     = Type{}
	_ signal.Thresholded    = Type{}
	_ signal.BytesHasher    = Type{}
	_ signal.TopKIndex      = (*Index)(nil)
	_ signal.ThresholdIndex = (*Index)(nil)
)
