// Package main wires the bronze conversion end-to-end: a streaming HTTP
// download is decompressed, decoded into columnar batches, filtered and
// whitespace-normalized, and persisted as parquet shards, with run statistics
// observed per batch.
//
// The pipeline is a single synchronous pull loop: each stage blocks its caller
// until it can produce the next batch or signal end-of-stream, so peak memory
// stays around one decoded block plus one shard row group. The optional
// overlap mode moves decode+transform into a second goroutine behind a bounded
// channel; batches are never reordered and the shard accounting still advances
// one completed batch at a time.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"bronze/internal/config"
	"bronze/internal/datasource/httpds"
	"bronze/internal/metrics"
	csvparser "bronze/internal/parser/csv"
	"bronze/internal/shard"
	"bronze/internal/stats"
	"bronze/internal/transformer"
)

// textColumn is the field the whole pipeline exists to clean up.
const textColumn = "plain_text"

// rowErrorSamples bounds how many malformed-row warnings are logged verbatim.
const rowErrorSamples = 3

// decoded carries one transformed batch from the decode stage to the write
// stage, together with the measurements the stats collector needs.
type decoded struct {
	out       transformer.Outcome
	wait      time.Duration
	bytesRead int64
	rowErrs   int64
}

// runBronze executes one streaming conversion run.
//
// Fatal errors are transport/decompression failures, a header missing needed
// columns, and shard open/write/close failures. Malformed rows and empty or
// fully-filtered batches are soft: they are counted, logged, and skipped.
// The currently open shard is closed exactly once on every exit path.
func runBronze(ctx context.Context, cfg config.Config, run *stats.Run) (err error) {
	setup := time.Now()

	client := httpds.NewClient(httpds.Config{Timeout: cfg.Timeout})
	body, oerr := client.OpenDecompressed(ctx, cfg.URL)
	metrics.RecordStep(cfg.Job, "connect", oerr, time.Since(setup))
	if oerr != nil {
		return oerr
	}
	defer body.Close()

	var rowErrLogged int
	reader, rerr := csvparser.NewBatchReader(body, csvparser.Options{
		NeededCols: shard.NeededCols,
		LazyQuotes: true,
		BlockSize:  cfg.BlockSize(),
		OnRowError: func(line int, err error) {
			rowErrLogged++
			if rowErrLogged <= rowErrorSamples {
				log.Printf("warn: %v", err)
			}
			if rowErrLogged == rowErrorSamples+1 {
				log.Printf("warn: additional malformed-row warnings suppressed")
			}
		},
	})
	if rerr != nil {
		return rerr
	}
	run.ConnectSetup = time.Since(setup)
	infof("source open: url=%s setup=%s", cfg.URL, run.ConnectSetup.Truncate(time.Millisecond))

	writer, werr := shard.NewWriter(cfg.OutDir, cfg.RowsPerShard)
	if werr != nil {
		return werr
	}
	writer.OnShardClosed = func(path string, rows int64, sum uint64) {
		run.ShardsClosed++
		metrics.RecordShard(cfg.Job)
		infof("shard closed: %s rows=%d xxh3=%016x", path, rows, sum)
	}
	// The open shard must be finalized on every exit path, including error
	// paths; a partially filled final shard is valid output.
	defer func() {
		if cerr := writer.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	if cfg.Overlap {
		return runOverlapped(ctx, cfg, run, reader, writer)
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		waitStart := time.Now()
		b, nerr := reader.Next()
		wait := time.Since(waitStart)
		if errors.Is(nerr, io.EOF) {
			break
		}
		if nerr != nil {
			return fmt.Errorf("decode: %w", nerr)
		}

		procStart := time.Now()
		out := transformer.NormalizeBatch(b, textColumn)
		var serr error
		if out.Kind == transformer.Kept {
			serr = writer.Write(out.Batch)
		}
		proc := time.Since(procStart)

		observeBatch(cfg, run, out, stats.BatchTiming{Wait: wait, Process: proc},
			reader.BytesRead(), reader.RowErrors())
		if serr != nil {
			return serr
		}
	}
	return nil
}

// runOverlapped overlaps decode+transform with shard writing. The channel is
// bounded so memory stays around two blocks; the single consumer preserves
// batch order and remains the only mutator of the stats aggregate.
func runOverlapped(ctx context.Context, cfg config.Config, run *stats.Run,
	reader *csvparser.BatchReader, writer *shard.Writer) error {

	g, gctx := errgroup.WithContext(ctx)
	ch := make(chan decoded, 2)

	g.Go(func() error {
		defer close(ch)
		for {
			waitStart := time.Now()
			b, err := reader.Next()
			wait := time.Since(waitStart)
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("decode: %w", err)
			}

			d := decoded{
				out:       transformer.NormalizeBatch(b, textColumn),
				wait:      wait,
				bytesRead: reader.BytesRead(),
				rowErrs:   reader.RowErrors(),
			}
			select {
			case ch <- d:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
	})

	g.Go(func() error {
		for d := range ch {
			procStart := time.Now()
			var serr error
			if d.out.Kind == transformer.Kept {
				serr = writer.Write(d.out.Batch)
			}
			proc := time.Since(procStart)

			observeBatch(cfg, run, d.out, stats.BatchTiming{Wait: d.wait, Process: proc},
				d.bytesRead, d.rowErrs)
			if serr != nil {
				return serr
			}
		}
		return nil
	})

	return g.Wait()
}

// observeBatch folds one batch outcome into the run aggregate, forwards the
// counters to the metrics backend, and emits the per-batch or periodic
// summary line.
func observeBatch(cfg config.Config, run *stats.Run, out transformer.Outcome,
	t stats.BatchTiming, bytesRead, rowErrs int64) {

	run.BatchesSeen++
	run.RowsSeen += int64(out.RowsSeen)
	run.RowsKept += int64(out.RowsKept)
	run.BytesOriginal += out.OriginalBytes
	run.BytesSaved += out.BytesSaved
	run.BytesStreamed = bytesRead
	run.RowErrors = rowErrs
	run.BatchTimes = append(run.BatchTimes, t)

	metrics.RecordBatches(cfg.Job, 1)
	metrics.RecordRows(cfg.Job, "seen", int64(out.RowsSeen))
	metrics.RecordRows(cfg.Job, "kept", int64(out.RowsKept))
	metrics.RecordRows(cfg.Job, "filtered", int64(out.RowsSeen-out.RowsKept))

	if out.Kind == transformer.Kept {
		run.BatchesWritten++
	} else {
		run.BatchesSkipped++
		debugf("batch=%d skipped (%s) rows_seen=%d", run.BatchesSeen-1, out.Kind, out.RowsSeen)
	}

	if run.BatchesSeen%int64(cfg.SummaryEvery) == 0 {
		if cfg.Verbosity >= 1 {
			run.LogSummary()
		}
		return
	}
	if cfg.Verbosity >= 1 {
		run.LogBatch(out.RowsKept, t)
	}
}
