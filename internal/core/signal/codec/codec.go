// Package codec wraps serialized indices in a versioned, zstd-compressed envelope
package codec

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
)

const version = 1

var magic = []byte("HMAI")

// ErrCorrupt is returned for blobs that do not carry a valid envelope
var ErrCorrupt = errors.New("codec: corrupt index blob")

var (
	enc, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	dec, _ = zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
)

// Encode frames payload for signalType
// layout: magic | version u8 | name len u8 | name | zstd(payload)
func Encode(signalType string, payload []byte) ([]byte, error) {
	if len(signalType) == 0 || len(signalType) > 255 {
		return nil, fmt.Errorf("codec: bad signal type name %q", signalType)
	}
	var buf bytes.Buffer
	buf.Grow(len(magic) + 2 + len(signalType) + len(payload)/2)
	buf.Write(magic)
	buf.WriteByte(version)
	buf.WriteByte(byte(len(signalType)))
	buf.WriteString(signalType)
	return enc.EncodeAll(payload, buf.Bytes()), nil
}

// Decode validates the envelope and returns the signal type and raw payload
func Decode(blob []byte) (string, []byte, error) {
	hdr := len(magic) + 2
	if len(blob) < hdr || !bytes.Equal(blob[:len(magic)], magic) {
		return "", nil, ErrCorrupt
	}
	if v := blob[len(magic)]; v != version {
		return "", nil, fmt.Errorf("codec: unsupported version %d", v)
	}
	n := int(blob[len(magic)+1])
	if len(blob) < hdr+n {
		return "", nil, ErrCorrupt
	}
	name := string(blob[hdr : hdr+n])
	payload, err := dec.DecodeAll(blob[hdr+n:], nil)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return name, payload, nil
}

// DecodeFor decodes and checks that the blob belongs to signalType
func DecodeFor(signalType string, blob []byte) ([]byte, error) {
	name, payload, err := Decode(blob)
	if err != nil {
		return nil, err
	}
	if name != signalType {
		return nil, fmt.Errorf("codec: blob is for %q, want %q", name, signalType)
	}
	return payload, nil
}

// Writer appends uvarint-framed fields to a payload
type Writer struct{ buf []byte }

// Uvarint appends v
func (w *Writer) Uvarint(v uint64) { w.buf = binary.AppendUvarint(w.buf, v) }

// Varint appends a signed v
func (w *Writer) Varint(v int64) { w.buf = binary.AppendVarint(w.buf, v) }

// Bytes appends a length-prefixed byte string
func (w *Writer) Bytes(b []byte) {
	w.Uvarint(uint64(len(b)))
	w.buf = append(w.buf, b...)
}

// String appends a length-prefixed string
func (w *Writer) String(s string) {
	w.Uvarint(uint64(len(s)))
	w.buf = append(w.buf, s...)
}

// Raw appends b without a length prefix
func (w *Writer) Raw(b []byte) { w.buf = append(w.buf, b...) }

// Out returns the accumulated payload
func (w *Writer) Out() []byte { return w.buf }

// Reader consumes fields written by Writer
type Reader struct {
	buf []byte
	err error
}

// NewReader reads from b
func NewReader(b []byte) *Reader { return &Reader{buf: b} }

// Err returns the first decode error
func (r *Reader) Err() error { return r.err }

// Uvarint reads an unsigned varint
func (r *Reader) Uvarint() uint64 {
	if r.err != nil {
		return 0
	}
	v, n := binary.Uvarint(r.buf)
	if n <= 0 {
		r.err = ErrCorrupt
		return 0
	}
	r.buf = r.buf[n:]
	return v
}

// Varint reads a signed varint
func (r *Reader) Varint() int64 {
	if r.err != nil {
		return 0
	}
	v, n := binary.Varint(r.buf)
	if n <= 0 {
		r.err = ErrCorrupt
		return 0
	}
	r.buf = r.buf[n:]
	return v
}

// Raw reads exactly n bytes
func (r *Reader) Raw(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || n > len(r.buf) {
		r.err = ErrCorrupt
		return nil
	}
	out := r.buf[:n]
	r.buf = r.buf[n:]
	return out
}

// Bytes reads a length-prefixed byte string
func (r *Reader) Bytes() []byte {
	n := r.Uvarint()
	if n > uint64(len(r.buf)) {
		r.err = ErrCorrupt
		return nil
	}
	return r.Raw(int(n))
}

// String reads a length-prefixed string
func (r *Reader) String() string { return string(r.Bytes()) }

// Done reports whether every byte was consumed without error
func (r *Reader) Done() bool { return r.err == nil && len(r.buf) == 0 }
