// Package hdc implements the hyperdimensional vector algebra that every
// fact, query and proof is encoded with.
//
// A Strategy is one interchangeable algebra. Four are provided:
//
//   - dense:  fixed-width bit vectors, XOR bind, majority bundle
//   - sparse: small sets of 64-bit integers, pairwise XOR bind with
//     min-hash sampling, Jaccard similarity
//   - metric: byte vectors, XOR bind, rounded mean bundle, L1 similarity
//   - exact:  lossless bitset polynomials over a session-local atom table
//
// Vectors are opaque outside this package. Only the strategy that produced
// a vector may interpret it; handing a vector to another strategy (or to an
// exact strategy owned by another session) is a MismatchError.
//
// DETERMINISM:
//
// CreateFromName is a pure function of (strategy, size, scope, name) for
// the dense, sparse and metric strategies: SHA-256 over a domain tag, the
// scope and the NFC-normalised name seeds a splitmix64 stream. There is no
// process-wide generator. The exact strategy is deterministic per session:
// the same sequence of creations yields the same appearance indexes.
//
// THRESHOLDS:
//
// Unrelated vectors do not score 0 under every algebra (dense sits at 0.5,
// metric at 2/3). Every consumer reads bands from Strategy.Profile instead
// of hardcoding similarity constants.
package hdc
