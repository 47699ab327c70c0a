package csv

// Batch is an ordered, columnar chunk of rows with a fixed schema of named
// string columns. A nil cell is a NULL (the decoder maps empty CSV fields to
// nil, mirroring the source convention that empty means absent).
//
// Invariant: all columns have equal length; the schema (Names) is identical
// across every batch of a run.
type Batch struct {
	Names []string
	Cols  [][]*string
}

// NewBatch returns an empty batch with the given column schema.
func NewBatch(names []string) *Batch {
	cols := make([][]*string, len(names))
	return &Batch{Names: names, Cols: cols}
}

// Rows returns the number of rows in the batch.
func (b *Batch) Rows() int {
	if len(b.Cols) == 0 {
		return 0
	}
	return len(b.Cols[0])
}

// ColIndex returns the position of the named column, or -1 when absent.
func (b *Batch) ColIndex(name string) int {
	for i, n := range b.Names {
		if n == name {
			return i
		}
	}
	return -1
}

// Col returns the named column's cells, or nil when the column is absent.
func (b *Batch) Col(name string) []*string {
	if i := b.ColIndex(name); i >= 0 {
		return b.Cols[i]
	}
	return nil
}

// Append adds one row. The row must be aligned to Names; extra cells are
// ignored, missing cells become NULL.
func (b *Batch) Append(row []*string) {
	for i := range b.Cols {
		var v *string
		if i < len(row) {
			v = row[i]
		}
		b.Cols[i] = append(b.Cols[i], v)
	}
}

// Select returns a new batch containing only the rows where keep[i] is true.
// The schema is shared; cell pointers are shared (cells are immutable strings).
func (b *Batch) Select(keep []bool) *Batch {
	out := NewBatch(b.Names)
	n := 0
	for _, k := range keep {
		if k {
			n++
		}
	}
	for i := range b.Cols {
		col := make([]*string, 0, n)
		for r, k := range keep {
			if k {
				col = append(col, b.Cols[i][r])
			}
		}
		out.Cols[i] = col
	}
	return out
}
