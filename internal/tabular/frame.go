// Package tabular reads small delimited text tables into string columns.
package tabular

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

// Frame is a parsed delimited file. Header names are kept byte for byte, including any
// surrounding whitespace.
type Frame struct {
	df    dataframe.DataFrame
	names []string
	rows  int
}

// DuplicateHeaderError reports a header name that occurs more than once.
type DuplicateHeaderError struct {
	Name string
}

func (e *DuplicateHeaderError) Error() string {
	return fmt.Sprintf("duplicate header %q", e.Name)
}

// IsDuplicateHeader reports whether err carries a DuplicateHeaderError and returns it.
func IsDuplicateHeader(err error) (*DuplicateHeaderError, bool) {
	var dup *DuplicateHeaderError
	if errors.As(err, &dup) {
		return dup, true
	}
	return nil, false
}

// ReadFile opens path and parses it with the given delimiter. A missing or unreadable file
// is returned as the *os.PathError from os.Open so callers can classify it.
func ReadFile(path string, delim rune) (*Frame, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	frame, err := Read(f, delim)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return frame, nil
}

// Read parses r. An empty input yields a frame without columns; a header-only input yields
// a frame with columns and zero rows. A header naming the same column twice is rejected.
func Read(r io.Reader, delim rune) (*Frame, error) {
	cr := csv.NewReader(r)
	cr.Comma = delim
	cr.ReuseRecord = false

	records, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return &Frame{}, nil
	}
	names := append([]string(nil), records[0]...)
	seen := make(map[string]struct{}, len(names))
	for _, n := range names {
		if _, dup := seen[n]; dup {
			return nil, &DuplicateHeaderError{Name: n}
		}
		seen[n] = struct{}{}
	}
	if len(records) == 1 {
		return &Frame{names: names}, nil
	}

	df := dataframe.LoadRecords(records,
		dataframe.HasHeader(true),
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String),
		dataframe.NaNValues(nil),
	)
	if df.Err != nil {
		return nil, df.Err
	}
	return &Frame{df: df, names: names, rows: df.Nrow()}, nil
}

// Names returns the header in file order.
func (f *Frame) Names() []string {
	return f.names
}

// Has reports whether a column with exactly this name exists.
func (f *Frame) Has(name string) bool {
	for _, n := range f.names {
		if n == name {
			return true
		}
	}
	return false
}

// Rows is the number of data rows.
func (f *Frame) Rows() int {
	return f.rows
}

// Col returns the raw string values of the named column, or nil when it is absent.
func (f *Frame) Col(name string) []string {
	for i, n := range f.names {
		if n == name {
			return f.ColAt(i)
		}
	}
	return nil
}

// ColAt returns the raw string values of the i-th column. Columns are addressed by position
// because the dataframe may rename blank headers.
func (f *Frame) ColAt(i int) []string {
	if i < 0 || i >= len(f.names) {
		return nil
	}
	if f.rows == 0 {
		return []string{}
	}
	return f.df.Col(f.df.Names()[i]).Records()
}
