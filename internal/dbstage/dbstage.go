// Package dbstage implements the database stage: it drains the
// request queue, coalesces writes into atomic batches, flushes before
// every read (read-after-write ordering), and confirms collisions
// against the durable store.
package dbstage

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/phagara/shabang/internal/model"
	"github.com/phagara/shabang/internal/ring"
	"github.com/phagara/shabang/internal/stageerr"
	"github.com/phagara/shabang/internal/store"
)

const (
	// idleBackoff is the interruptible sleep used when the request
	// queue has nothing to drain.
	idleBackoff = 1 * time.Millisecond
	// resultBackoff paces the busy retry used to publish the
	// confirmed result; it always succeeds eventually since the
	// result queue has exactly one reader (the driver).
	resultBackoff = 1 * time.Millisecond
)

// Stage consumes Requests from reqQueue, maintains the durable store,
// and publishes a confirmed Result onto resultQueue when it finds one.
// queries is atomic so the driver's progress reporting can poll a
// live count from another goroutine while Run is still draining.
type Stage struct {
	bitlen      uint
	store       store.KV
	reqQueue    *ring.SPSC[model.Request]
	resultQueue *ring.SPSC[model.Result]
	queries     atomic.Uint64
}

// New creates a DB stage. st and reqQueue are non-owning references:
// the driver opens/closes the store, and only this stage touches it
// while the search runs. st is the store.KV interface rather than the
// concrete *store.Store so tests can substitute a hand-written fake
// (NotFound-always, or a batch that fails to commit) without a real
// bbolt file.
func New(bitlen uint, st store.KV, reqQueue *ring.SPSC[model.Request], resultQueue *ring.SPSC[model.Result]) *Stage {
	return &Stage{
		bitlen:      bitlen,
		store:       st,
		reqQueue:    reqQueue,
		resultQueue: resultQueue,
	}
}

// Count returns a live snapshot of the number of confirming DB
// queries served so far. Safe to call from any goroutine while Run is
// active.
func (s *Stage) Count() uint64 {
	return s.queries.Load()
}

// Run drains requests until it confirms a collision (publishes a
// Result and returns nil) or hits a fatal store/protocol error. ctx is
// checked once per drained batch, giving the driver a way to force an
// early exit even without a discovery (e.g. a hasher init failure
// surfaced before one); the stage otherwise runs to completion on its
// own.
func (s *Stage) Run(ctx context.Context) error {
	batch := s.store.NewBatch()
	var pending []model.Request

	for {
		pending = pending[:0]
		if !s.reqQueue.DrainInto(&pending) {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(idleBackoff):
			}
			continue
		}

		for _, req := range pending {
			switch req.Kind {
			case model.Write:
				batch.Put(req.Pair.Image.Bytes(s.bitlen), req.Pair.Preimage.Bytes(s.bitlen))

			case model.Read:
				// Read-after-write barrier: any WRITE the hasher
				// enqueued earlier must be durable before this Get
				// observes the store.
				if !batch.Empty() {
					if err := batch.Commit(); err != nil {
						return err
					}
				}

				queries := s.queries.Add(1)
				val, found, err := s.store.Get(req.Pair.Image.Bytes(s.bitlen))
				if err != nil {
					return err
				}
				if found {
					var preimageFound model.Hash
					copy(preimageFound[:], val)
					result := model.Result{
						PreimageA: preimageFound,
						PreimageB: req.Pair.Preimage,
						Image:     req.Pair.Image,
						Queries:   queries,
					}
					s.publishResult(result)
					return nil
				}
				// Not found: a bloom false positive. Keep going.

			default:
				return stageerr.New(stageerr.InvalidRequest,
					fmt.Errorf("dbstage: unrecognised request kind %v", req.Kind))
			}
		}

		// A burst of pure WRITEs must not sit uncommitted forever:
		// flush so a later filter hit always sees it.
		if !batch.Empty() {
			if err := batch.Commit(); err != nil {
				return err
			}
		}

		select {
		case <-ctx.Done():
			return nil
		default:
		}
	}
}

// publishResult busy-retries the push until it succeeds. The result
// queue has exactly one reader (the driver), so this always makes
// progress; the stage is not cancelled externally during normal
// operation, so there's no cancellation path to race against here.
func (s *Stage) publishResult(r model.Result) {
	for !s.resultQueue.Push(r) {
		time.Sleep(resultBackoff)
	}
}
