package methylation

import (
	"errors"
	"fmt"
	"os"

	"methylexplorer/internal/tabular"
)

// SchemaError reports a table whose header lacks a required column, or names a column
// twice when Duplicate is set.
type SchemaError struct {
	Path      string
	Header    string
	Duplicate bool
}

func (e *SchemaError) Error() string {
	if e.Duplicate {
		return fmt.Sprintf("header in %s not correct, %q appears more than once", e.Path, e.Header)
	}
	return fmt.Sprintf("header in %s not correct, should contain %q", e.Path, e.Header)
}

// SourceNotFoundError reports a data source that is absent or unreadable.
type SourceNotFoundError struct {
	Path string
	Err  error
}

func (e *SourceNotFoundError) Error() string {
	return fmt.Sprintf("file: %s not found or incorrect permissions", e.Path)
}

func (e *SourceNotFoundError) Unwrap() error {
	return e.Err
}

// BarcodeError reports a sample file whose name cannot be attributed to a group. Barcode is
// empty when the file name holds no barcode at all.
type BarcodeError struct {
	File    string
	Barcode string
}

func (e *BarcodeError) Error() string {
	if e.Barcode == "" {
		return fmt.Sprintf("sample file %s: no barcode in file name", e.File)
	}
	return fmt.Sprintf("sample file %s: barcode %s not in group table", e.File, e.Barcode)
}

// classifyReadError turns open/stat failures into SourceNotFoundError, repeated headers
// into SchemaError, and passes other errors through.
func classifyReadError(path string, err error) error {
	if err == nil {
		return nil
	}
	if dup, ok := tabular.IsDuplicateHeader(err); ok {
		return &SchemaError{Path: path, Header: dup.Name, Duplicate: true}
	}
	var pathErr *os.PathError
	if errors.As(err, &pathErr) || errors.Is(err, os.ErrNotExist) || errors.Is(err, os.ErrPermission) {
		return &SourceNotFoundError{Path: path, Err: err}
	}
	return err
}
