// Package config defines the configuration model for a bronze run. It is
// intentionally small, explicit, and dependency-free: the whole surface fits
// in one struct populated from flags, with environment-variable fallbacks for
// the tuning knobs only (12-factor style).
package config

import (
	"os"
	"strconv"
	"time"
)

// Defaults for the tuning knobs. They are sized for the full CourtListener
// opinions dump (tens of GiB compressed) on a single machine.
const (
	DefaultRowsPerShard = 2_000_000
	DefaultBlockMB      = 128
	DefaultSummaryEvery = 25
	DefaultTimeout      = 60 * time.Second
)

// Config describes one bronze run.
type Config struct {
	// URL of the compressed CSV resource. Required.
	URL string

	// OutDir is the shard output directory, created if absent. Required.
	OutDir string

	// RowsPerShard is the shard rollover threshold.
	RowsPerShard int64

	// BlockMB is the raw CSV read block size per batch, in MiB.
	BlockMB int

	// Verbosity: 0=warnings only, 1=info, 2=debug.
	Verbosity int

	// SummaryEvery is the full-summary cadence in batches.
	SummaryEvery int

	// Timeout bounds connection setup (not the streaming body read).
	Timeout time.Duration

	// Overlap enables decode/write overlap via a bounded channel. Off by
	// default; the single pull loop is easier to reason about and the network
	// is usually the bottleneck anyway.
	Overlap bool

	// Job labels metrics for this run (e.g. the dump date).
	Job string
}

// Default returns a Config with all tuning knobs at their defaults,
// applying BRONZE_* environment overrides where present.
func Default() Config {
	return Config{
		RowsPerShard: int64(getenvInt("BRONZE_ROWS_PER_SHARD", DefaultRowsPerShard)),
		BlockMB:      getenvInt("BRONZE_BLOCK_MB", DefaultBlockMB),
		SummaryEvery: getenvInt("BRONZE_SUMMARY_EVERY", DefaultSummaryEvery),
		Timeout:      DefaultTimeout,
		Job:          "bronze",
	}
}

// BlockSize returns the read block size in bytes.
func (c Config) BlockSize() int64 {
	return int64(c.BlockMB) << 20
}

// getenvInt reads an int from environment, returning def when unset/invalid.
func getenvInt(k string, def int) int {
	if s := os.Getenv(k); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return def
}
