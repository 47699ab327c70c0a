// Package csv provides incremental, bounded-memory CSV decoding for the
// bronze converter.
//
// BatchReader consumes a byte stream (typically a decompressing network
// reader) and produces columnar batches sized by raw input volume rather than
// row count, so memory stays proportional to the configured block size even
// when rows vary wildly in width (court opinions range from a few bytes to
// megabytes of plain text).
//
// Behavior:
//   - The header row is read once at construction, canonicalized, and checked
//     against the needed column set; a missing column fails the whole run
//     immediately, before any data row is touched.
//   - Column projection happens at decode time: only needed columns are
//     materialized, everything else is dropped before a batch exists.
//   - Per-row errors are soft: they are reported via OnRowError(line, err) and
//     the stream continues at the next record.
//   - Memory stays bounded; no full-file buffering.
package csv

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// DefaultBlockSize is the raw input volume decoded per batch. It is a tuning
// knob trading memory for per-batch overhead, not a correctness parameter.
const DefaultBlockSize = 128 << 20 // 128 MiB

// Options configures a BatchReader.
type Options struct {
	// NeededCols is the exact set of columns required downstream, in output
	// order. Required.
	NeededCols []string

	// Comma is the field delimiter. Default ','.
	Comma rune

	// LazyQuotes tolerates stray quotes inside unquoted fields, mirroring the
	// escape-character leniency of the upstream dump format.
	LazyQuotes bool

	// BlockSize is the raw byte volume consumed per batch.
	// Default DefaultBlockSize.
	BlockSize int64

	// OnRowError receives recoverable row errors (soft-drop). May be nil.
	OnRowError func(line int, err error)
}

// BatchReader decodes a CSV stream into a lazy, finite, non-restartable
// sequence of batches. It is pull-based: Next blocks until a full block of
// input has been decoded or the stream ends.
type BatchReader struct {
	cr       *csv.Reader
	count    *countingReader
	names    []string
	colIx    []int // dest → source column index
	srcWidth int
	block    int64
	line     int // 1-based physical record number; header is record 1
	rowErrs  int64
	onRowErr func(line int, err error)
	done     bool
}

// NewBatchReader reads and validates the header, then returns a reader
// positioned at the first data row.
//
// The header check is fail-fast: if any needed column is missing the source is
// malformed for our purposes and the returned error is a *SchemaError.
func NewBatchReader(r io.Reader, opt Options) (*BatchReader, error) {
	if len(opt.NeededCols) == 0 {
		return nil, fmt.Errorf("csv: NeededCols must not be empty")
	}
	if opt.Comma == 0 {
		opt.Comma = ','
	}
	if opt.BlockSize <= 0 {
		opt.BlockSize = DefaultBlockSize
	}

	count := &countingReader{r: r}
	cr := csv.NewReader(count)
	cr.Comma = opt.Comma
	cr.ReuseRecord = true
	cr.LazyQuotes = opt.LazyQuotes
	// Width is enforced after reading rows; multi-line quoted fields are
	// handled by encoding/csv itself.
	cr.FieldsPerRecord = -1

	hdr, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("csv: read header: %w", err)
	}

	canonical := make([]string, len(hdr))
	srcToIdx := make(map[string]int, len(hdr))
	for i, h := range hdr {
		c := CanonicalizeHeader(h)
		canonical[i] = c
		srcToIdx[c] = i
	}

	colIx := make([]int, len(opt.NeededCols))
	var missing []string
	for t, name := range opt.NeededCols {
		si, ok := srcToIdx[name]
		if !ok {
			colIx[t] = -1
			missing = append(missing, name)
			continue
		}
		colIx[t] = si
	}
	if len(missing) > 0 {
		return nil, &SchemaError{Missing: missing, Header: canonical}
	}

	return &BatchReader{
		cr:       cr,
		count:    count,
		names:    append([]string(nil), opt.NeededCols...),
		colIx:    colIx,
		srcWidth: len(hdr),
		block:    opt.BlockSize,
		line:     1,
		onRowErr: opt.OnRowError,
	}, nil
}

// Names returns the output schema, identical across all batches of the run.
func (br *BatchReader) Names() []string { return br.names }

// BytesRead returns the cumulative raw bytes consumed from the underlying
// stream (decompressed volume when reading through a decompressor).
func (br *BatchReader) BytesRead() int64 { return br.count.n }

// RowErrors returns the number of rows soft-dropped due to parse errors.
func (br *BatchReader) RowErrors() int64 { return br.rowErrs }

// Next returns the next batch, accumulating rows until at least BlockSize raw
// bytes have been consumed since the batch started. It returns io.EOF after
// the final batch; a batch and io.EOF are never returned together.
func (br *BatchReader) Next() (*Batch, error) {
	if br.done {
		return nil, io.EOF
	}

	start := br.count.n
	b := NewBatch(br.names)

	for br.count.n-start < br.block {
		rec, err := br.cr.Read()
		if err == io.EOF {
			br.done = true
			break
		}
		br.line++
		if err != nil {
			// Row-local CSV damage is recoverable: encoding/csv resumes at the
			// next record. Anything else (transport, decompression) is fatal.
			var pe *csv.ParseError
			if !errors.As(err, &pe) {
				br.done = true
				return nil, err
			}
			br.softDrop(&ParseError{Line: br.line, Err: err})
			continue
		}
		if len(rec) != br.srcWidth {
			br.softDrop(&ParseError{
				Line: br.line,
				Err:  fmt.Errorf("incorrect number of fields: expected %d, got %d", br.srcWidth, len(rec)),
			})
			continue
		}

		row := make([]*string, len(br.colIx))
		for t, si := range br.colIx {
			v := rec[si]
			if v == "" {
				continue // NULL
			}
			// ReuseRecord shares the backing buffer between reads; copy out.
			s := strings.Clone(v)
			row[t] = &s
		}
		b.Append(row)
	}

	if b.Rows() == 0 && br.done {
		return nil, io.EOF
	}
	return b, nil
}

func (br *BatchReader) softDrop(err *ParseError) {
	br.rowErrs++
	if br.onRowErr != nil {
		br.onRowErr(err.Line, err)
	}
}

// countingReader counts bytes handed to the csv decoder. The count runs a
// little ahead of the decoder's record boundary because of internal buffering;
// for block sizing and throughput stats that is close enough.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
