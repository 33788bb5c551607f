// Package bloomfilter adapts a probabilistic set-membership filter to
// the add/test interface the hasher stage consults. The filter itself
// is treated as an external collaborator: no false negatives, a
// bounded false-positive rate, nothing else. The real membership
// structure comes from github.com/bits-and-blooms/bloom/v3; this
// package only adds the construction guardrails and the footprint
// estimate the driver prints on startup.
package bloomfilter

import (
	"fmt"
	"math"

	"github.com/bits-and-blooms/bloom/v3"
)

// Filter is the probabilistic membership interface the hasher stage
// consults: no false negatives, a bounded false-positive rate.
// *BloomFilter is the production implementation; tests substitute a
// hand-written fake (e.g. one that always reports a hit) to check the
// hasher stage's READ emission independently of actual bloom-filter
// statistics.
type Filter interface {
	// Add records key as present.
	Add(key []byte)
	// Test reports whether key is possibly present. A false return is
	// authoritative (no false negatives); a true return may be a
	// false positive and must be confirmed against the durable store.
	Test(key []byte) bool
}

// BloomFilter is the production Filter, backed by
// github.com/bits-and-blooms/bloom/v3.
type BloomFilter struct {
	bf *bloom.BloomFilter
}

// New builds a filter sized for expectedElems entries at the given
// target false-positive probability.
func New(expectedElems uint64, falsePositiveProb float64) (*BloomFilter, error) {
	if expectedElems < 1 {
		return nil, fmt.Errorf("bloomfilter: expected element count must be >= 1, got %d", expectedElems)
	}
	if falsePositiveProb <= 0 || falsePositiveProb >= 1 {
		return nil, fmt.Errorf("bloomfilter: false-positive probability must be in (0,1), got %v", falsePositiveProb)
	}
	return &BloomFilter{bf: bloom.NewWithEstimates(uint(expectedElems), falsePositiveProb)}, nil
}

func (f *BloomFilter) Add(key []byte) {
	f.bf.Add(key)
}

func (f *BloomFilter) Test(key []byte) bool {
	return f.bf.Test(key)
}

// FootprintBytes estimates the filter's bit-array memory footprint
// using the standard optimal-sizing formula (m = -n*ln(p)/ln(2)^2,
// rounded up to whole bytes). It's independent of the backing
// library's own internals, so it stays accurate even if the library's
// actual rounding (to the next power of two, etc.) differs slightly —
// it's a reporting estimate, not a promise about any field layout.
func FootprintBytes(expectedElems uint64, falsePositiveProb float64) uint64 {
	m := -float64(expectedElems) * math.Log(falsePositiveProb) / (math.Ln2 * math.Ln2)
	return uint64(math.Ceil(m / 8))
}
