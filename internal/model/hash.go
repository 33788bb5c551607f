// Package model holds the data types shared by every stage of the
// collision search: the truncated hash, the hasher/database request
// envelope, and the final collision (or cycle) result.
package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/phagara/shabang/internal/digest"
)

// Size is the storage width of a Hash, in bytes. Truncation never
// shrinks the array itself, only how many of its leading bytes are
// semantically meaningful.
const Size = digest.HashSize

// Hash is a fixed 32-byte digest. Under a truncation width k, only the
// first TrimLen(k) bytes carry meaning (with the final byte masked to
// its top k%8 bits); everything past that MUST be zero.
type Hash [Size]byte

// String renders the full 32-byte array as uppercase hex, matching the
// original tool's "printHash" formatting.
func (h Hash) String() string {
	return fmt.Sprintf("%X", h[:])
}

// Bytes returns the effective ℓ-byte prefix for a given bit length,
// the slice that stores/transport layers actually key on.
func (h Hash) Bytes(bitlen uint) []byte {
	return h[:TrimLen(bitlen)]
}

// TrimLen returns ℓ = ⌈bitlen/8⌉, the number of leading bytes that are
// semantically meaningful under a given truncation width.
func TrimLen(bitlen uint) int {
	return int((bitlen + 7) / 8)
}

// ValidateBitlen enforces the 1 <= bitlen <= 256 domain from the CLI
// contract.
func ValidateBitlen(bitlen uint) error {
	if bitlen < 1 || bitlen > 256 {
		return fmt.Errorf("bit length %d out of range (1..256)", bitlen)
	}
	return nil
}

// Truncate masks h down to its effective k-bit prefix: the final
// partial byte (if k isn't a multiple of 8) keeps only its top k%8
// bits, and every byte past ⌈k/8⌉ is zeroed. The result still occupies
// the full 32-byte array, per the data model's storage convention.
func Truncate(h Hash, bitlen uint) Hash {
	out := h
	n := TrimLen(bitlen)
	if rem := bitlen % 8; rem != 0 {
		out[n-1] &= 0xFF << (8 - rem)
	}
	for i := n; i < Size; i++ {
		out[i] = 0
	}
	return out
}

// Next computes f(prev) = Truncate(SHA256(first bitlen bits of prev), bitlen),
// the one-step iteration of the collision search.
func Next(prev Hash, bitlen uint) (Hash, error) {
	sum, err := digest.SumBits(prev[:], bitlen)
	if err != nil {
		return Hash{}, fmt.Errorf("hasher: %w", err)
	}
	return Truncate(Hash(sum), bitlen), nil
}

// FromSeed computes x0 = Truncate(SHA256(seed), bitlen). The seed is
// hashed as a whole byte string of arbitrary length (it isn't itself a
// truncated hash, and spec.md §6 places no length bound on --seed), so
// this goes through crypto/sha256 directly rather than the
// bit-oriented digest package: SumBits' single-block design caps it at
// 32 input bytes, and a byte-aligned message has no use for bit
// granularity anyway.
func FromSeed(seed []byte, bitlen uint) (Hash, error) {
	sum := sha256.Sum256(seed)
	return Truncate(Hash(sum), bitlen), nil
}

// HashPair is an ordered (preimage, image) mapping: image =
// Truncate(H(preimage)).
type HashPair struct {
	Preimage Hash
	Image    Hash
}

// RequestKind tags a Request as a durable write or a confirmation read.
type RequestKind uint8

const (
	// Write asks the DB stage to durably record Pair.
	Write RequestKind = iota
	// Read asks the DB stage to look up Pair.Image and confirm whether
	// it's a true collision.
	Read
)

func (k RequestKind) String() string {
	if k == Read {
		return "READ"
	}
	return "WRITE"
}

// Request is the envelope the hasher stage pushes onto the request
// queue and the DB stage drains.
type Request struct {
	Kind RequestKind
	Pair HashPair
}

// Result is the confirmed outcome of a search: two preimages that
// share a common image, and how many DB queries it took to confirm it.
// PreimageA == PreimageB signals a cycle rather than a genuine
// collision; see Result.IsCycle.
type Result struct {
	PreimageA Hash
	PreimageB Hash
	Image     Hash
	Queries   uint64
}

// IsCycle reports whether the two preimages are identical on their
// effective bitlen-bit prefix, meaning the iteration re-entered a prior
// point rather than two distinct inputs colliding.
func (r Result) IsCycle(bitlen uint) bool {
	n := TrimLen(bitlen)
	for i := 0; i < n; i++ {
		if r.PreimageA[i] != r.PreimageB[i] {
			return false
		}
	}
	return true
}

// HexKey is a convenience for logging/debugging a truncated key.
func HexKey(h Hash, bitlen uint) string {
	return hex.EncodeToString(h.Bytes(bitlen))
}
