package csv

import (
	"fmt"
	"strings"
)

// SchemaError reports a source whose header row is missing one or more of the
// required columns. It is raised before any data row is processed (fail-fast);
// a run that sees it produces zero shards.
type SchemaError struct {
	// Missing lists the required column names absent from the header,
	// in required-column order.
	Missing []string

	// Header is the canonicalized header actually observed.
	Header []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("csv: header missing required columns: %s (header: %s)",
		strings.Join(e.Missing, ", "), strings.Join(e.Header, ","))
}

// ParseError reports a malformed record (unbalanced quotes, wrong column
// count). It is row-local and recoverable: the decoder skips the record and
// resynchronizes at the next one, so a ParseError never aborts the run.
type ParseError struct {
	Line int
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("csv: line %d: %v", e.Line, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }
