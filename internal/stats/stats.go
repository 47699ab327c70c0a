// Package stats accumulates counters and per-batch timing for one bronze run
// and renders the periodic and final human-readable summaries.
//
// A Run is owned exclusively by the pipeline driver and mutated only from the
// single processing loop; it is never shared between runs, so concurrent runs
// (e.g., in tests) stay isolated. The collector is a passive observer: it
// performs no data mutation and never returns an error.
package stats

import (
	"log"
	"time"

	"github.com/dustin/go-humanize"
)

// DefaultSummaryEvery is the full-summary cadence in batches.
const DefaultSummaryEvery = 25

// BatchTiming records how long one batch spent waiting on input (network +
// decompression + decode) and being processed (transform + write).
type BatchTiming struct {
	Wait    time.Duration
	Process time.Duration
}

// Elapsed is the batch's total wall time.
func (t BatchTiming) Elapsed() time.Duration { return t.Wait + t.Process }

// Run is the mutable aggregate for one bronze run.
type Run struct {
	RowsSeen       int64 // rows decoded, pre-filter
	RowsKept       int64 // rows surviving the filter (== rows written)
	BatchesSeen    int64
	BatchesWritten int64
	BatchesSkipped int64
	RowErrors      int64 // soft-dropped malformed rows
	ShardsClosed   int64
	BytesStreamed  int64 // decompressed bytes pulled from the source
	BytesOriginal  int64 // pre-normalization text bytes of surviving rows
	BytesSaved     int64 // normalization savings

	// ConnectSetup is the time spent establishing the connection, the
	// decompressor, and the header validation before the first batch.
	ConnectSetup time.Duration

	// BatchTimes holds per-batch timings in decode order.
	BatchTimes []BatchTiming

	start time.Time
}

// NewRun returns a Run with the wall clock started.
func NewRun() *Run {
	return &Run{start: time.Now()}
}

// RetentionRate returns retained/seen as a percentage in [0,100].
// Zero when no rows were decoded.
func (r *Run) RetentionRate() float64 {
	if r.RowsSeen == 0 {
		return 0
	}
	return 100 * float64(r.RowsKept) / float64(r.RowsSeen)
}

// SpaceSavingPct returns saved/streamed as a percentage in [0,100].
// Zero when no bytes were streamed.
func (r *Run) SpaceSavingPct() float64 {
	if r.BytesStreamed == 0 {
		return 0
	}
	return 100 * float64(r.BytesSaved) / float64(r.BytesStreamed)
}

// Throughput returns surviving rows per second over the whole run so far.
func (r *Run) Throughput() float64 {
	secs := time.Since(r.start).Seconds()
	if secs <= 0 {
		return 0
	}
	return float64(r.RowsKept) / secs
}

// BatchTimeStats returns min/max/mean/total over per-batch elapsed times.
// All zero when no batches were observed.
func (r *Run) BatchTimeStats() (min, max, mean, total time.Duration) {
	if len(r.BatchTimes) == 0 {
		return
	}
	min = r.BatchTimes[0].Elapsed()
	for _, t := range r.BatchTimes {
		e := t.Elapsed()
		total += e
		if e < min {
			min = e
		}
		if e > max {
			max = e
		}
	}
	mean = total / time.Duration(len(r.BatchTimes))
	return
}

// LogBatch emits the one-line per-batch record.
func (r *Run) LogBatch(kept int, t BatchTiming) {
	log.Printf("batch=%d elapsed=%s wait=%s kept=%d total_kept=%d",
		len(r.BatchTimes),
		t.Elapsed().Truncate(time.Millisecond),
		t.Wait.Truncate(time.Millisecond),
		kept,
		r.RowsKept,
	)
}

// LogSummary emits the full multi-line summary block.
func (r *Run) LogSummary() {
	min, max, mean, total := r.BatchTimeStats()
	log.Printf(
		"summary: batches=%d written=%d skipped=%d rows_seen=%d rows_kept=%d parse_errors=%d shards=%d",
		r.BatchesSeen, r.BatchesWritten, r.BatchesSkipped,
		r.RowsSeen, r.RowsKept, r.RowErrors, r.ShardsClosed,
	)
	log.Printf(
		"summary: batch_time min=%s max=%s mean=%s total=%s connect_setup=%s",
		min.Truncate(time.Millisecond),
		max.Truncate(time.Millisecond),
		mean.Truncate(time.Millisecond),
		total.Truncate(time.Millisecond),
		r.ConnectSetup.Truncate(time.Millisecond),
	)
	log.Printf(
		"summary: streamed=%s text=%s saved=%s (%.2f%%) retention=%.2f%% throughput=%.0f rows/s",
		humanize.IBytes(uint64(r.BytesStreamed)),
		humanize.IBytes(uint64(r.BytesOriginal)),
		humanize.IBytes(uint64(r.BytesSaved)),
		r.SpaceSavingPct(),
		r.RetentionRate(),
		r.Throughput(),
	)
}
