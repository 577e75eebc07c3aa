package engine

import (
	"crypto/hmac"
	"crypto/sha256"
	"fmt"
)

// ByteGenerator streams cryptographically derived bytes for one
// (serverSeed, clientSeed, nonce) triple. Each 32-byte round is
// HMAC-SHA256(serverSeed, "clientSeed:nonce:round"); the round counter
// increments as bytes are consumed, so games that need many draws in a
// single bet (plinko rows, mines placement) read further into the same
// deterministic stream instead of touching a new nonce.
type ByteGenerator struct {
	serverSeed string
	clientSeed string
	nonce      uint64
	round      uint64
	pos        int
	buffer     [sha256.Size]byte
}

// NewByteGenerator positions a generator at the given byte cursor within
// the stream for (serverSeed, clientSeed, nonce).
func NewByteGenerator(serverSeed, clientSeed string, nonce, cursor uint64) *ByteGenerator {
	bg := &ByteGenerator{
		serverSeed: serverSeed,
		clientSeed: clientSeed,
		nonce:      nonce,
		round:      cursor / sha256.Size,
		pos:        int(cursor % sha256.Size),
	}
	bg.fill()
	return bg
}

// Next returns the next byte of the stream.
func (bg *ByteGenerator) Next() byte {
	if bg.pos >= sha256.Size {
		bg.round++
		bg.pos = 0
		bg.fill()
	}
	b := bg.buffer[bg.pos]
	bg.pos++
	return b
}

// NextFloat consumes four bytes and maps them to a uniform float in [0, 1).
// The fixed-width prefix keeps every draw reproducible to the exact bit
// from the disclosed seed material.
func (bg *ByteGenerator) NextFloat() float64 {
	var f float64
	div := 1.0
	for i := 0; i < 4; i++ {
		div *= 256.0
		f += float64(bg.Next()) / div
	}
	return f
}

func (bg *ByteGenerator) fill() {
	h := hmac.New(sha256.New, []byte(bg.serverSeed))
	fmt.Fprintf(h, "%s:%d:%d", bg.clientSeed, bg.nonce, bg.round)
	copy(bg.buffer[:], h.Sum(nil))
}

// Floats derives count uniform floats starting at the given cursor.
func Floats(serverSeed, clientSeed string, nonce, cursor uint64, count int) []float64 {
	return FloatsInto(nil, serverSeed, clientSeed, nonce, cursor, count)
}

// FloatsInto is Floats writing into dst when it is large enough, avoiding
// an allocation on hot settlement paths.
func FloatsInto(dst []float64, serverSeed, clientSeed string, nonce, cursor uint64, count int) []float64 {
	if len(dst) < count {
		dst = make([]float64, count)
	}
	bg := NewByteGenerator(serverSeed, clientSeed, nonce, cursor)
	for i := 0; i < count; i++ {
		dst[i] = bg.NextFloat()
	}
	return dst[:count]
}
