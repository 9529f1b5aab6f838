// Package md5 provides the md5 and video_md5 exact-digest signal types
package md5

import (
	"context"
	stdmd5 "crypto/md5"
	"crypto/rand"
	"encoding/hex"
	"strings"

	"hma/internal/core/signal"
	"hma/internal/core/signal/exact"
)

// Signal type names
const (
	PhotoName = "md5"
	VideoName = "video_md5"
)

const hexLen = 32

// Type is an md5 digest signal bound to one content type
type Type struct {
	name    string
	content string
}

// Photo returns the photo md5 signal type
func Photo() Type { return Type{name: PhotoName, content: signal.ContentPhoto} }

// Video returns the video md5 signal type
func Video() Type { return Type{name: VideoName, content: signal.ContentVideo} }

func (t Type) Name() string           { return t.name }
func (t Type) ContentTypes() []string { return []string{t.content} }

// Validate accepts 32 hex chars in any case and returns lower case
func (t Type) Validate(s string) (string, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) != hexLen {
		return "", signal.Invalid(t.name, "want %d hex chars", hexLen)
	}
	if _, err := hex.DecodeString(s); err != nil {
		return "", signal.Invalid(t.name, "want %d hex chars", hexLen)
	}
	return s, nil
}

// Compare is exact equality; threshold is ignored
func (t Type) Compare(a, b string, _ float64) (signal.Comparison, error) {
	ca, err := t.Validate(a)
	if err != nil {
		return signal.Comparison{}, err
	}
	cb, err := t.Validate(b)
	if err != nil {
		return signal.Comparison{}, err
	}
	if ca == cb {
		return signal.Comparison{Match: true}, nil
	}
	return signal.Comparison{Distance: 1}, nil
}

func (t Type) NewIndex() signal.Index { return exact.NewIndex(t.name) }

func (t Type) LoadIndex(data []byte) (signal.Index, error) { return exact.Load(t.name, data) }

// HashBytes digests the raw bytes
func (t Type) HashBytes(_ context.Context, data []byte) (string, error) {
	sum := stdmd5.Sum(data)
	return hex.EncodeToString(sum[:]), nil
}

func (t Type) RandomSignal() string {
	var b [16]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

func (t Type) Examples() []string {
	if t.name == VideoName {
		return []string{"d35c785545392755e6eee4e5fd9d6afe", "f1d3ff8443297732862df21dc4e57262"}
	}
	return []string{"b1a2c3d4e5f60718293a4b5c6d7e8f90", "d41d8cd98f00b204e9800998ecf8427e"}
}

var (
	_ signal.SignalType  = Type{}
	_ signal.BytesHasher = Type{}
)
