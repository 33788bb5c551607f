// Package hasher implements the hasher stage: it drives the iterated
// map f(x) = truncate_k(H(x)), consults the probabilistic filter, and
// emits write/read requests to the database stage.
package hasher

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/phagara/shabang/internal/bloomfilter"
	"github.com/phagara/shabang/internal/model"
	"github.com/phagara/shabang/internal/ring"
	"github.com/phagara/shabang/internal/stageerr"
)

// backoffInterval is the interruptible sleep used when a push fails
// because the downstream queue is full.
const backoffInterval = 1 * time.Millisecond

// Stage iterates f, starting from a caller-supplied x0, pushing
// Requests onto reqQueue and publishing its final hash count onto
// countQueue on exit. hashes is atomic so the driver's progress
// reporting can poll a live count from another goroutine while Run is
// still iterating, without the stage exposing a lock.
type Stage struct {
	bitlen     uint
	filter     bloomfilter.Filter
	reqQueue   *ring.SPSC[model.Request]
	countQueue *ring.SPSC[uint64]
	hashes     atomic.Uint64
}

// New creates a hasher stage. filter, reqQueue and countQueue are
// non-owning references: the driver allocates and frees them, and only
// this stage mutates/reads the filter while the search runs. filter is
// the bloomfilter.Filter interface rather than the concrete
// *bloomfilter.BloomFilter so tests can substitute a hand-written fake
// (e.g. one that always reports a hit) without depending on actual
// bloom-filter statistics.
func New(bitlen uint, filter bloomfilter.Filter, reqQueue *ring.SPSC[model.Request], countQueue *ring.SPSC[uint64]) *Stage {
	return &Stage{
		bitlen:     bitlen,
		filter:     filter,
		reqQueue:   reqQueue,
		countQueue: countQueue,
	}
}

// Run iterates f starting from x0 until ctx is cancelled, then
// publishes the number of hashes processed and returns. The only error
// it can return is a fatal digest failure (HasherInternalError);
// cancellation is not an error.
func (s *Stage) Run(ctx context.Context, x0 model.Hash) error {
	prev := x0

	for {
		select {
		case <-ctx.Done():
			s.publishFinal()
			return nil
		default:
		}

		img, err := model.Next(prev, s.bitlen)
		if err != nil {
			return stageerr.New(stageerr.HasherInternalError, err)
		}

		key := img.Bytes(s.bitlen)

		if s.filter.Test(key) {
			req := model.Request{Kind: model.Read, Pair: model.HashPair{Preimage: prev, Image: img}}
			if !s.pushInterruptible(ctx, req) {
				s.publishFinal()
				return nil
			}
		}

		// WRITE always follows READ for the same iteration: the DB
		// stage must never see an uncommitted image it's about to
		// read, and a hash cannot collide against its own
		// just-emitted mapping.
		writeReq := model.Request{Kind: model.Write, Pair: model.HashPair{Preimage: prev, Image: img}}
		if !s.pushInterruptible(ctx, writeReq) {
			s.publishFinal()
			return nil
		}

		s.filter.Add(key)
		prev = img
		s.hashes.Add(1)
	}
}

// Count returns a live snapshot of the number of hashes processed so
// far. Safe to call from any goroutine while Run is active; used by
// the driver's progress reporting to compute a hashes/sec rate.
func (s *Stage) Count() uint64 {
	return s.hashes.Load()
}

// pushInterruptible retries Push with a 1ms backoff until it succeeds
// or ctx is cancelled. It returns false if cancelled mid-retry.
func (s *Stage) pushInterruptible(ctx context.Context, req model.Request) bool {
	for {
		if s.reqQueue.Push(req) {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(backoffInterval):
		}
	}
}

// publishFinal pushes the final hash count with interruption disabled:
// shutdown must make progress even if the driver is momentarily slow
// to drain the 1-slot result queue, so this busy-retries unconditionally.
func (s *Stage) publishFinal() {
	hashes := s.hashes.Load()
	for !s.countQueue.Push(hashes) {
		time.Sleep(backoffInterval)
	}
}
