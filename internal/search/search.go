// Package search wires the hasher stage, the database stage, and the
// two transports that connect them into a complete collision search,
// and owns the durable store's lifecycle end to end.
package search

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/schollz/progressbar/v3"

	"github.com/phagara/shabang/internal/bloomfilter"
	"github.com/phagara/shabang/internal/dbstage"
	"github.com/phagara/shabang/internal/hasher"
	"github.com/phagara/shabang/internal/model"
	"github.com/phagara/shabang/internal/ring"
	"github.com/phagara/shabang/internal/stageerr"
	"github.com/phagara/shabang/internal/store"
)

// progressInterval is how often the spinner's description is refreshed
// from the stages' live counters.
const progressInterval = 50 * time.Millisecond

// Config holds everything a single run needs: the domain parameters
// (seed, bit length) and the tuning knobs for the queues and the
// probabilistic filter.
type Config struct {
	Seed      []byte
	Bitlen    uint
	BatchSize int
	BloomSize uint64
	BloomProb float64
	DBPath    string
	Quiet     bool
}

// validate checks every field the CLI can't already guarantee via its
// own flag types, returning an OptionError for the first violation.
func (c Config) validate() error {
	if err := model.ValidateBitlen(c.Bitlen); err != nil {
		return stageerr.New(stageerr.OptionError, err)
	}
	if c.BatchSize < 1 {
		return stageerr.New(stageerr.OptionError, fmt.Errorf("batch size must be >= 1, got %d", c.BatchSize))
	}
	if c.BloomSize < 1 {
		return stageerr.New(stageerr.OptionError, fmt.Errorf("bloom size must be >= 1, got %d", c.BloomSize))
	}
	if c.BloomProb <= 0 || c.BloomProb >= 1 {
		return stageerr.New(stageerr.OptionError, fmt.Errorf("bloom false-positive probability must be in (0,1), got %v", c.BloomProb))
	}
	if c.DBPath == "" {
		return stageerr.New(stageerr.OptionError, fmt.Errorf("db path must not be empty"))
	}
	return nil
}

// Outcome is the result of a completed search: the confirmed pair of
// preimages, whether they form a genuine collision or a revisited
// cycle point, and how much work it took.
type Outcome struct {
	Result      model.Result
	Cycle       bool
	HashesTried uint64
	X0          model.Hash
	FilterBytes uint64
}

// Run performs one complete collision search: it opens (and, on
// return, destroys) the durable store, starts the hasher and database
// stages, waits for the database stage to confirm a result, then
// cancels the hasher and collects its final hash count.
//
// Run returns once a result is confirmed or a stage hits a fatal
// error. ctx reaches both stages: cancelling it stops the database
// stage at its next check and the hasher with it, and if no result was
// confirmed by then Run returns an error.
func Run(ctx context.Context, cfg Config) (*Outcome, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	defer func() { _ = st.Close() }()

	filter, err := bloomfilter.New(cfg.BloomSize, cfg.BloomProb)
	if err != nil {
		return nil, stageerr.New(stageerr.FilterInitError, err)
	}

	x0, err := model.FromSeed(cfg.Seed, cfg.Bitlen)
	if err != nil {
		return nil, stageerr.New(stageerr.HasherInternalError, err)
	}

	reqQueue := ring.New[model.Request](cfg.BatchSize)
	resultQueue := ring.New[model.Result](1)
	countQueue := ring.New[uint64](1)

	hasherStage := hasher.New(cfg.Bitlen, filter, reqQueue, countQueue)
	dbStage := dbstage.New(cfg.Bitlen, st, reqQueue, resultQueue)

	spinner := newSpinner(!cfg.Quiet)
	stats := &liveStats{cfg: cfg, hasher: hasherStage, db: dbStage, startTime: time.Now()}
	spinner.Describe(stats.String())

	stopProgress := make(chan struct{})
	progressDone := make(chan struct{})
	go func() {
		defer close(progressDone)
		ticker := time.NewTicker(progressInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stopProgress:
				return
			case <-ticker.C:
				spinner.Describe(stats.String())
			}
		}
	}()

	hasherCtx, cancelHasher := context.WithCancel(ctx)
	defer cancelHasher()

	hasherDone := make(chan error, 1)
	go func() { hasherDone <- hasherStage.Run(hasherCtx, x0) }()

	dbErr := dbStage.Run(ctx)

	close(stopProgress)
	<-progressDone

	if dbErr != nil {
		cancelHasher()
		<-hasherDone
		spinner.Finish()
		return nil, dbErr
	}

	result, ok := resultQueue.Pop()
	if !ok {
		cancelHasher()
		<-hasherDone
		spinner.Finish()
		return nil, stageerr.New(stageerr.HasherInternalError,
			fmt.Errorf("search: database stage exited without a result"))
	}

	cancelHasher()
	if err := <-hasherDone; err != nil {
		spinner.Finish()
		return nil, err
	}

	hashesTried, _ := countQueue.Pop()

	outcome := &Outcome{
		Result:      result,
		Cycle:       result.IsCycle(cfg.Bitlen),
		HashesTried: hashesTried,
		X0:          x0,
		FilterBytes: bloomfilter.FootprintBytes(cfg.BloomSize, cfg.BloomProb),
	}

	spinner.Finish()
	if !cfg.Quiet {
		fmt.Fprintln(os.Stderr, "✔ "+finalLine(outcome))
	}
	return outcome, nil
}

// spinner is a thin enabled/disabled wrapper around progressbar's
// spinner mode, folded in from the teacher's standalone progress
// package: every method is a no-op when bar is nil.
type spinner struct {
	bar *progressbar.ProgressBar
}

func newSpinner(enabled bool) *spinner {
	if !enabled {
		return &spinner{}
	}
	return &spinner{bar: progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionThrottle(progressInterval),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetElapsedTime(false),
	)}
}

func (s *spinner) Describe(text string) {
	if s.bar != nil {
		s.bar.Describe(text)
	}
}

func (s *spinner) Finish() {
	if s.bar != nil {
		_ = s.bar.Finish()
	}
}

// liveStats renders the spinner's description from the hasher and
// database stages' atomic counters. Both Count() methods are safe to
// poll from this goroutine while the stages' own Run loops are still
// executing.
type liveStats struct {
	cfg       Config
	hasher    *hasher.Stage
	db        *dbstage.Stage
	startTime time.Time
}

func (s *liveStats) String() string {
	elapsed := time.Since(s.startTime).Seconds()
	hashes := s.hasher.Count()
	queries := s.db.Count()

	var hashRate, queryRate float64
	if elapsed > 0 {
		hashRate = float64(hashes) / elapsed
		queryRate = float64(queries) / elapsed
	}

	return fmt.Sprintf("bitlen=%d bloom~%s | %s hashes (%s/s) | %s queries (%s/s)",
		s.cfg.Bitlen, humanize.Bytes(bloomfilter.FootprintBytes(s.cfg.BloomSize, s.cfg.BloomProb)),
		humanize.Comma(int64(hashes)), humanize.Comma(int64(hashRate)),
		humanize.Comma(int64(queries)), humanize.Comma(int64(queryRate)))
}

// finalLine is the one-line summary printed to stderr once a result is
// confirmed, matching the teacher's "✔ "-prefixed finish message.
func finalLine(o *Outcome) string {
	kind := "collision"
	if o.Cycle {
		kind = "cycle"
	}
	return fmt.Sprintf("%s found (%s hashes computed): %s and %s both map to %s",
		kind, humanize.Comma(int64(o.HashesTried)), o.Result.PreimageA, o.Result.PreimageB, o.Result.Image)
}
