package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/phagara/shabang/internal/search"
)

func defaultDBPath() string {
	return filepath.Join(os.TempDir(), fmt.Sprintf("shabang-%d.db", os.Getpid()))
}

var (
	version = "dev"
	commit  = "none"
)

func main() {
	os.Exit(run())
}

func run() int {
	var cfg search.Config
	var seed string
	var helpRequested bool

	root := &cobra.Command{
		Use:     "shabang",
		Short:   "Find a hash collision in a truncated SHA-256 iteration",
		Version: version + " (" + commit + ")",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.Seed = []byte(seed)
			return runSearch(cmd, cfg)
		},
	}

	root.Flags().StringVar(&seed, "seed", "the quick brown fox jumps over the lazy dog", "starting value to hash (hashed once to produce x0)")
	root.Flags().UintVar(&cfg.Bitlen, "bitlen", 32, "truncation width in bits (1-256)")
	root.Flags().IntVar(&cfg.BatchSize, "batch-size", 10_000, "request queue capacity, rounded up to a power of two; the hasher backs off while it is full")
	root.Flags().Uint64Var(&cfg.BloomSize, "bloom-size", 10_000_000, "expected number of distinct hashes, used to size the probabilistic filter")
	root.Flags().Float64Var(&cfg.BloomProb, "bloom-prob", 0.0001, "target false-positive rate for the probabilistic filter")
	root.Flags().StringVar(&cfg.DBPath, "db-path", defaultDBPath(), "path for the durable store created (and destroyed) during the run")
	root.Flags().BoolVar(&cfg.Quiet, "quiet", false, "suppress the progress spinner")

	// The source's option parser prints usage and exits 1 on --help,
	// unlike cobra's default exit-0 convention; preserve that here.
	defaultHelp := root.HelpFunc()
	root.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		helpRequested = true
		defaultHelp(cmd, args)
	})

	if err := root.Execute(); err != nil {
		// Every fatal kind (OptionError, FilterInitError, StoreOpenError,
		// StoreWriteError, StoreReadError, InvalidRequest,
		// HasherInternalError) exits 1; only a confirmed discovery exits 0.
		return 1
	}
	if helpRequested {
		return 1
	}
	return 0
}

func runSearch(cmd *cobra.Command, cfg search.Config) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	outcome, err := search.Run(ctx, cfg)
	if err != nil {
		return err
	}

	fmt.Printf("bloom filter: ~%s\n", humanize.Bytes(outcome.FilterBytes))
	fmt.Printf("x0: %s\n", outcome.X0)

	kind := "Collision"
	if outcome.Cycle {
		kind = "Cycle"
	}
	fmt.Printf("%s found (%s hashes computed, %d confirming DB %s)\n",
		kind, humanize.Comma(int64(outcome.HashesTried)), outcome.Result.Queries, plural(outcome.Result.Queries, "query", "queries"))
	fmt.Printf("  %s -> %s\n", outcome.Result.PreimageA, outcome.Result.Image)
	fmt.Printf("  %s -> %s\n", outcome.Result.PreimageB, outcome.Result.Image)
	return nil
}

func plural(n uint64, singular, pluralForm string) string {
	if n == 1 {
		return singular
	}
	return pluralForm
}
