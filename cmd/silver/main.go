// Command silver consolidates the parquet shards of a bronze run into a
// single in-memory table and prints the summary used to sanity-check the data
// before ML feature preparation. It is deliberately simple bulk loading: no
// streaming discipline, the whole run is held in memory.
//
// Example:
//
//	silver -bronze-dir=data/bronze/opinions/2025-09-04 -sample-size=10000 -v
package main

import (
	"flag"
	"fmt"
	"io/fs"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/parquet-go/parquet-go"

	"bronze/internal/shard"
)

// sampleSeed keeps -sample-size runs reproducible.
const sampleSeed = 42

var verbosity int

func infof(format string, a ...any) {
	if verbosity >= 1 {
		log.Printf(format, a...)
	}
}

func main() {
	var (
		bronzeDir  string
		sampleSize int
	)
	flag.StringVar(&bronzeDir, "bronze-dir", "", "path to bronze parquet shards (required)")
	flag.IntVar(&sampleSize, "sample-size", 0, "process only a sample of rows, for testing")
	flag.IntVar(&verbosity, "v", 0, "verbosity: 0=warnings, 1=info, 2=debug")
	flag.Parse()

	if bronzeDir == "" {
		fmt.Fprintln(os.Stderr, "silver: -bronze-dir is required")
		os.Exit(2)
	}

	infof("starting silver layer processing")
	start := time.Now()

	rows, files, err := loadBronze(bronzeDir)
	if err != nil {
		log.Fatalf("silver: %v", err)
	}
	infof("loaded %s rows from %d shard file(s)", humanize.Comma(int64(len(rows))), files)

	if sampleSize > 0 && sampleSize < len(rows) {
		rows = sampleRows(rows, sampleSize)
		infof("sampled %s rows for testing", humanize.Comma(int64(len(rows))))
	}

	st := textLengthStats(rows)

	banner := strings.Repeat("=", 60)
	log.Println(banner)
	log.Println("SILVER PROCESSING SUMMARY")
	log.Println(banner)
	log.Printf("total rows processed: %s", humanize.Comma(int64(len(rows))))
	log.Printf("columns: %s", strings.Join(shard.NeededCols, ", "))
	log.Printf("estimated text size: %s", humanize.IBytes(uint64(st.totalBytes)))
	if st.n > 0 {
		log.Printf("text length (runes): min=%d median=%d mean=%.1f max=%d over %d non-null rows",
			st.min, st.median, st.mean, st.max, st.n)
	}
	log.Printf("elapsed: %s", time.Since(start).Truncate(time.Millisecond))
	log.Println(banner)
}

// loadBronze reads every parquet file under dir (recursively) into one slice,
// preserving shard order via the lexicographically sortable file names.
func loadBronze(dir string) ([]shard.Row, int, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(path, ".parquet") {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, 0, fmt.Errorf("scan %s: %w", dir, err)
	}
	if len(paths) == 0 {
		return nil, 0, fmt.Errorf("no parquet files found in %s", dir)
	}
	sort.Strings(paths)

	var rows []shard.Row
	for _, p := range paths {
		part, err := parquet.ReadFile[shard.Row](p)
		if err != nil {
			return nil, 0, fmt.Errorf("read %s: %w", p, err)
		}
		infof("shard %s: %d rows", filepath.Base(p), len(part))
		rows = append(rows, part...)
	}
	return rows, len(paths), nil
}

// sampleRows returns n rows drawn without replacement, deterministically.
func sampleRows(rows []shard.Row, n int) []shard.Row {
	r := rand.New(rand.NewSource(sampleSeed))
	idx := r.Perm(len(rows))[:n]
	sort.Ints(idx)
	out := make([]shard.Row, 0, n)
	for _, i := range idx {
		out = append(out, rows[i])
	}
	return out
}

type lengthStats struct {
	n          int
	min        int
	max        int
	median     int
	mean       float64
	totalBytes int64
}

// textLengthStats summarizes plain-text lengths (in runes) over non-null rows.
func textLengthStats(rows []shard.Row) lengthStats {
	var st lengthStats
	lengths := make([]int, 0, len(rows))
	for _, r := range rows {
		if r.PlainText == nil {
			continue
		}
		st.totalBytes += int64(len(*r.PlainText))
		lengths = append(lengths, len([]rune(*r.PlainText)))
	}
	st.n = len(lengths)
	if st.n == 0 {
		return st
	}
	sort.Ints(lengths)
	st.min = lengths[0]
	st.max = lengths[st.n-1]
	st.median = lengths[st.n/2]
	var sum int64
	for _, l := range lengths {
		sum += int64(l)
	}
	st.mean = float64(sum) / float64(st.n)
	return st
}
