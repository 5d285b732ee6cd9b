// Package rng implements the deterministic RNG service: a single
// master seed expands into an unbounded family of independent, reproducible
// streams keyed by an arbitrary string.
package rng

import (
	"math/rand/v2"

	"github.com/cespare/xxhash/v2"
)

// Service derives per-key streams from one master seed. It is immutable
// after construction and safe for concurrent use: RNG derivation touches no
// shared state, it is a pure function of (masterSeed, key).
type Service struct {
	masterSeed uint64
}

// New constructs a Service from a master seed.
func New(masterSeed uint64) *Service {
	return &Service{masterSeed: masterSeed}
}

// MasterSeed returns the seed the service was constructed with, so callers
// can record it for provenance (e.g. LabeledAnomaly.GenerationSeed).
func (s *Service) MasterSeed() uint64 { return s.masterSeed }

// StreamFor derives a byte-identical, independent *rand.Rand for the given
// key. The same (masterSeed, key) pair always yields the same sequence,
// across runs and platforms, because the seed derivation is a pure hash and
// math/rand/v2's ChaCha8 source has a fixed, portable byte sequence.
func (s *Service) StreamFor(key string) *rand.Rand {
	seed1, seed2 := deriveSeeds(s.masterSeed, key)
	return rand.New(rand.NewChaCha8(expand32(seed1, seed2)))
}

// deriveSeeds mixes the master seed and the key into two independent 64-bit
// words using xxhash with two different seed offsets, giving the ChaCha8
// source its full 256-bit key without correlating the two halves.
func deriveSeeds(masterSeed uint64, key string) (uint64, uint64) {
	h1 := xxhash.NewWithSeed(masterSeed)
	h1.WriteString(key)
	h1.WriteString("#a")
	seed1 := h1.Sum64()

	h2 := xxhash.NewWithSeed(masterSeed ^ 0x9E3779B97F4A7C15)
	h2.WriteString(key)
	h2.WriteString("#b")
	seed2 := h2.Sum64()

	return seed1, seed2
}

// expand32 stretches two 64-bit words into the 32-byte ChaCha8 key by
// hashing four distinct (seed, index) pairs.
func expand32(seed1, seed2 uint64) [32]byte {
	var out [32]byte
	words := [4]uint64{}
	h := xxhash.NewWithSeed(seed1)
	h.WriteString("expand")
	words[0] = h.Sum64()
	h2 := xxhash.NewWithSeed(seed2)
	h2.WriteString("expand")
	words[1] = h2.Sum64()
	h3 := xxhash.NewWithSeed(seed1 ^ seed2)
	h3.WriteString("expand2")
	words[2] = h3.Sum64()
	h4 := xxhash.NewWithSeed(seed1 + seed2)
	h4.WriteString("expand3")
	words[3] = h4.Sum64()

	for i, w := range words {
		for b := 0; b < 8; b++ {
			out[i*8+b] = byte(w >> (8 * b))
		}
	}
	return out
}
