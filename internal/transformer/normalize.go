// Package transformer converts raw opinion batches into normalized batches
// ready for shard writing.
//
// The transform is pure and batch-local: it never inspects or affects any
// other batch, so the shard writer's per-batch row accounting stays exact.
// Batch outcomes are a tagged result rather than errors; the common "nothing
// survived" cases are ordinary values the driver logs and skips.
package transformer

import (
	"regexp"
	"strings"

	"bronze/internal/parser/csv"
)

// Kind tags the outcome of transforming one batch.
type Kind int

const (
	// Kept means the batch survived with at least one row.
	Kept Kind = iota
	// SkippedEmpty means the input batch had zero rows.
	SkippedEmpty
	// SkippedNoTextColumn means the text field is absent from the batch schema.
	SkippedNoTextColumn
	// SkippedAllFiltered means every row had a null or empty text field.
	SkippedAllFiltered
)

func (k Kind) String() string {
	switch k {
	case Kept:
		return "kept"
	case SkippedEmpty:
		return "skipped_empty"
	case SkippedNoTextColumn:
		return "skipped_no_text_column"
	case SkippedAllFiltered:
		return "skipped_all_filtered"
	default:
		return "unknown"
	}
}

// Outcome is the result of transforming one batch. Batch is non-nil only when
// Kind == Kept.
type Outcome struct {
	Kind  Kind
	Batch *csv.Batch

	// RowsSeen is the input batch row count; RowsKept the surviving count.
	RowsSeen int
	RowsKept int

	// OriginalBytes is the summed UTF-8 length of the surviving rows' text
	// before normalization; BytesSaved is the reduction achieved by collapsing
	// whitespace. Never negative.
	OriginalBytes int64
	BytesSaved    int64
}

// wsRun matches every maximal run of whitespace, including newlines inside
// multi-line opinion text.
var wsRun = regexp.MustCompile(`\s+`)

// NormalizeText collapses each whitespace run to a single ASCII space and
// strips leading/trailing whitespace. Idempotent: normalizing an already
// normalized value returns it unchanged.
func NormalizeText(s string) string {
	return strings.TrimSpace(wsRun.ReplaceAllString(s, " "))
}

// NormalizeBatch filters out rows whose text field is null or empty, then
// normalizes whitespace in the text column of the survivors.
//
// The returned batch shares untouched columns' cells with the input; the text
// column is replaced with freshly normalized values at its original position.
func NormalizeBatch(b *csv.Batch, textCol string) Outcome {
	out := Outcome{RowsSeen: b.Rows()}

	ti := b.ColIndex(textCol)
	if ti < 0 {
		out.Kind = SkippedNoTextColumn
		return out
	}
	if b.Rows() == 0 {
		out.Kind = SkippedEmpty
		return out
	}

	// Validity mask: keep iff text is non-null and non-empty.
	text := b.Cols[ti]
	keep := make([]bool, len(text))
	kept := 0
	for i, v := range text {
		if v != nil && *v != "" {
			keep[i] = true
			kept++
		}
	}
	if kept == 0 {
		out.Kind = SkippedAllFiltered
		return out
	}

	filtered := b.Select(keep)

	// Normalize the text column in place on the filtered copy and measure the
	// byte-level size reduction.
	fcol := filtered.Cols[ti]
	var origBytes, normBytes int64
	for i, v := range fcol {
		origBytes += int64(len(*v))
		n := NormalizeText(*v)
		normBytes += int64(len(n))
		fcol[i] = &n
	}

	out.Kind = Kept
	out.Batch = filtered
	out.RowsKept = kept
	out.OriginalBytes = origBytes
	out.BytesSaved = origBytes - normBytes
	return out
}
