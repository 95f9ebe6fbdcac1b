package hdc

import (
	"crypto/sha256"
	"encoding/binary"

	"golang.org/x/text/unicode/norm"
)

// seedDomain versions the name-to-seed derivation. Changing it changes
// every atom vector.
const seedDomain = "hyperlore/atom/v1"

// tieScope is the reserved scope for strategy-internal vectors.
const tieScope = "hyperlore.internal"

// stream is a splitmix64 generator. It is a value type seeded per call, so
// no generator state outlives one CreateFromName.
type stream struct {
	state uint64
}

// newStream derives the seed from SHA-256(domain 0x00 tag 0x00 scope 0x00 NFC(name)).
// The tag separates strategies and sizes so "Bob" in a 8192-bit space and
// "Bob" in a 16-element set space do not share a seed.
func newStream(tag, scope, name string) *stream {
	h := sha256.New()
	h.Write([]byte(seedDomain))
	h.Write([]byte{0x00})
	h.Write([]byte(tag))
	h.Write([]byte{0x00})
	h.Write([]byte(scope))
	h.Write([]byte{0x00})
	h.Write([]byte(norm.NFC.String(name)))
	sum := h.Sum(nil)
	return &stream{state: binary.BigEndian.Uint64(sum[:8])}
}

func (s *stream) next() uint64 {
	s.state += 0x9e3779b97f4a7c15
	return mix64(s.state)
}

// mix64 is the splitmix64 finaliser. Sparse sampling ranks elements by it.
func mix64(z uint64) uint64 {
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}
