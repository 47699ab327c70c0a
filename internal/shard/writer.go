// Package shard persists normalized opinion batches as a flat directory of
// parquet files, rolling over to a new file at a fixed row threshold.
//
// Lifecycle per shard: created empty when the writer opens it or rolls over,
// finalized exactly once when its row quota fills or the run ends, never
// reopened afterward. A rollover defers opening the next file until a row
// actually arrives, so an evenly divisible run does not leave an empty
// trailing shard behind.
package shard

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/parquet-go/parquet-go"
	"github.com/zeebo/xxh3"

	"bronze/internal/parser/csv"
)

// DefaultRowsPerShard matches the upstream dump cadence: about 2M opinions per
// shard keeps individual files in the low-gigabyte range.
const DefaultRowsPerShard = 2_000_000

// NeededCols is the projected column set, in shard schema order.
var NeededCols = []string{
	"plain_text",
	"id",
	"author_id",
	"author_str",
	"type",
	"date_created",
	"per_curiam",
}

// Row is one opinion record in a shard. All columns are optional strings;
// nil round-trips as a parquet null.
type Row struct {
	PlainText   *string `parquet:"plain_text,optional,zstd"`
	ID          *string `parquet:"id,optional,zstd"`
	AuthorID    *string `parquet:"author_id,optional,zstd"`
	AuthorStr   *string `parquet:"author_str,optional,zstd"`
	Type        *string `parquet:"type,optional,zstd"`
	DateCreated *string `parquet:"date_created,optional,zstd"`
	PerCuriam   *string `parquet:"per_curiam,optional,zstd"`
}

// Path returns the shard file path for index i under dir. Names are
// zero-padded so lexicographic order equals creation order and shards can be
// discovered without reading metadata.
func Path(dir string, i int) string {
	return filepath.Join(dir, fmt.Sprintf("part-%05d.parquet", i))
}

// Writer accumulates batches into shard files. It exclusively owns the
// currently open file handle; Close must run on every exit path so the last
// shard is finalized and independently readable.
type Writer struct {
	dir          string
	rowsPerShard int64

	shardIndex  int
	rowsInShard int64
	totalRows   int64

	f  *os.File
	h  *xxh3.Hasher
	pw *parquet.GenericWriter[Row]

	closed bool

	// OnShardClosed, when set, observes each finalized shard. sum is the xxh3
	// digest of the file's bytes. Must not be nil-checked by callers; the
	// writer checks.
	OnShardClosed func(path string, rows int64, sum uint64)
}

// NewWriter creates dir if absent and opens shard 0.
func NewWriter(dir string, rowsPerShard int64) (*Writer, error) {
	if rowsPerShard <= 0 {
		rowsPerShard = DefaultRowsPerShard
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("shard: create dir %s: %w", dir, err)
	}
	w := &Writer{dir: dir, rowsPerShard: rowsPerShard}
	if err := w.open(); err != nil {
		return nil, err
	}
	return w, nil
}

// ShardIndex returns the index of the currently open (or next) shard.
func (w *Writer) ShardIndex() int { return w.shardIndex }

// TotalRows returns the run-wide count of rows written across all shards.
func (w *Writer) TotalRows() int64 { return w.totalRows }

// Write appends the batch's rows in order, splitting across the shard
// boundary so that every shard except the last holds exactly rowsPerShard
// rows. Row order is preserved: shard N only ever holds rows decoded before
// any row in shard N+1.
func (w *Writer) Write(b *csv.Batch) error {
	if w.closed {
		return fmt.Errorf("shard: writer is closed")
	}

	rows := toRows(b)
	for len(rows) > 0 {
		if w.pw == nil {
			// Deferred from the previous rollover.
			if err := w.open(); err != nil {
				return err
			}
		}

		space := w.rowsPerShard - w.rowsInShard
		chunk := int64(len(rows))
		if chunk > space {
			chunk = space
		}

		n, err := w.pw.Write(rows[:chunk])
		if err != nil {
			return fmt.Errorf("shard: write %s: %w", Path(w.dir, w.shardIndex), err)
		}
		w.rowsInShard += int64(n)
		w.totalRows += int64(n)
		rows = rows[chunk:]

		if w.rowsInShard >= w.rowsPerShard {
			if err := w.roll(); err != nil {
				return err
			}
		}
	}
	return nil
}

// Close finalizes the currently open shard, if any. It is idempotent and must
// be invoked on every exit path, including error paths; a partially filled
// final shard is valid output.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if w.pw == nil {
		return nil
	}
	return w.closeCurrent()
}

func (w *Writer) open() error {
	path := Path(w.dir, w.shardIndex)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("shard: create %s: %w", path, err)
	}
	w.f = f
	w.h = xxh3.New()
	w.pw = parquet.NewGenericWriter[Row](io.MultiWriter(f, w.h))
	w.rowsInShard = 0
	return nil
}

// roll finalizes the current shard and advances the index. Opening the next
// file is deferred to the next Write so the run never ends on an empty shard.
func (w *Writer) roll() error {
	if err := w.closeCurrent(); err != nil {
		return err
	}
	w.shardIndex++
	return nil
}

// closeCurrent flushes the parquet footer, syncs, and closes the file, then
// reports the finalized shard. The shard is independently readable once this
// returns.
func (w *Writer) closeCurrent() error {
	path := Path(w.dir, w.shardIndex)
	rows := w.rowsInShard

	if err := w.pw.Close(); err != nil {
		_ = w.f.Close()
		w.pw, w.f = nil, nil
		return fmt.Errorf("shard: finalize %s: %w", path, err)
	}
	if err := w.f.Close(); err != nil {
		w.pw, w.f = nil, nil
		return fmt.Errorf("shard: close %s: %w", path, err)
	}

	sum := w.h.Sum64()
	w.pw, w.f, w.h = nil, nil, nil

	if w.OnShardClosed != nil {
		w.OnShardClosed(path, rows, sum)
	}
	return nil
}

// toRows maps a batch onto the fixed shard schema by column name. Columns
// missing from the batch become null; cell pointers are shared with the batch.
func toRows(b *csv.Batch) []Row {
	cols := [7][]*string{
		b.Col("plain_text"),
		b.Col("id"),
		b.Col("author_id"),
		b.Col("author_str"),
		b.Col("type"),
		b.Col("date_created"),
		b.Col("per_curiam"),
	}

	rows := make([]Row, b.Rows())
	for i := range rows {
		rows[i] = Row{
			PlainText:   cell(cols[0], i),
			ID:          cell(cols[1], i),
			AuthorID:    cell(cols[2], i),
			AuthorStr:   cell(cols[3], i),
			Type:        cell(cols[4], i),
			DateCreated: cell(cols[5], i),
			PerCuriam:   cell(cols[6], i),
		}
	}
	return rows
}

func cell(col []*string, i int) *string {
	if col == nil || i >= len(col) {
		return nil
	}
	return col[i]
}
