package pdq

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"math/bits"
)

// Hash is a 256-bit PDQ hash, big-endian as it appears in hex
type Hash [32]byte

// HexLen is the length of a canonical hash string
const HexLen = 64

// ParseHash decodes a 64 char hex string. Upper case input is accepted
func ParseHash(s string) (Hash, bool) {
	var h Hash
	if len(s) != HexLen {
		return h, false
	}
	if _, err := hex.Decode(h[:], []byte(s)); err != nil {
		return h, false
	}
	return h, true
}

// String returns lower case hex
func (h Hash) String() string { return hex.EncodeToString(h[:]) }

// Distance is the hamming distance between h and o
func (h Hash) Distance(o Hash) int {
	d := 0
	for i := 0; i < 32; i += 8 {
		a := binary.BigEndian.Uint64(h[i:])
		b := binary.BigEndian.Uint64(o[i:])
		d += bits.OnesCount64(a ^ b)
	}
	return d
}

// Chunk returns the i-th 16-bit word, 0 being most significant
func (h Hash) Chunk(i int) uint16 {
	return uint16(h[2*i])<<8 | uint16(h[2*i+1])
}

// SetBit sets bit k where bit 0 is the least significant bit of the last word
func (h *Hash) SetBit(k int) {
	w := (k & 255) >> 4
	b := k & 15
	idx := (15 - w) * 2
	if b >= 8 {
		h[idx] |= 1 << (b - 8)
	} else {
		h[idx+1] |= 1 << b
	}
}

// FlipBits returns a copy of h with the given bits flipped
func (h Hash) FlipBits(ks ...int) Hash {
	out := h
	for _, k := range ks {
		w := (k & 255) >> 4
		b := k & 15
		idx := (15 - w) * 2
		if b >= 8 {
			out[idx] ^= 1 << (b - 8)
		} else {
			out[idx+1] ^= 1 << b
		}
	}
	return out
}

// Random returns a uniformly random hash
func Random() Hash {
	var h Hash
	_, _ = rand.Read(h[:])
	return h
}
