package methylation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"methylexplorer/internal/tabular"
)

// SampleSuffix selects the per-sample files in the data folder. The files are tab
// separated despite the extension.
const SampleSuffix = "methylatie_ALL.csv"

// SampleColumns are the columns every sample file must provide.
var SampleColumns = []string{ColChr, ColStart, ColEnd, ColFrac, ColValid}

// DefaultBarcodePattern takes the first run of digits in the file name.
var DefaultBarcodePattern = regexp.MustCompile(`\d+`)

type IngestOptions struct {
	// BarcodePattern finds the barcode in a file name. When it has a capture group the
	// first group is the barcode, otherwise the whole match.
	BarcodePattern *regexp.Regexp
	// Workers bounds how many files are parsed at once.
	Workers int
}

func (o IngestOptions) withDefaults() IngestOptions {
	if o.BarcodePattern == nil {
		o.BarcodePattern = DefaultBarcodePattern
	}
	if o.Workers < 1 {
		o.Workers = 1
	}
	return o
}

// Ingest reads every sample file in dir, stamps its rows with the group resolved from the
// file name, and unions them. Files are combined in lexicographic name order; rows keep
// their order within a file. A folder without sample files gives an empty table.
func Ingest(ctx context.Context, dir string, catalog *GroupCatalog, opts IngestOptions) (*Table, error) {
	opts = opts.withDefaults()

	names, err := SampleFiles(dir)
	if err != nil {
		return nil, err
	}

	labels := make([]string, len(names))
	for i, name := range names {
		barcode, ok := ExtractBarcode(name, opts.BarcodePattern)
		if !ok {
			return nil, &BarcodeError{File: name}
		}
		entry, ok := catalog.Lookup(barcode)
		if !ok {
			return nil, &BarcodeError{File: name, Barcode: barcode}
		}
		labels[i] = entry.Label
	}

	parts := make([][]Record, len(names))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)
	for i, name := range names {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			records, err := ReadSample(filepath.Join(dir, name))
			if err != nil {
				return err
			}
			for j := range records {
				records[j].Group = labels[i]
			}
			parts[i] = records
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	total := 0
	for _, p := range parts {
		total += len(p)
	}
	combined := make([]Record, 0, total)
	for _, p := range parts {
		combined = append(combined, p...)
	}
	return NewTable(combined, false), nil
}

// SampleFiles lists the regular files in dir whose name ends with SampleSuffix, sorted.
func SampleFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, classifyReadError(dir, err)
	}
	var names []string
	for _, e := range entries {
		if !strings.HasSuffix(e.Name(), SampleSuffix) {
			continue
		}
		info, err := os.Stat(filepath.Join(dir, e.Name()))
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// ExtractBarcode applies pattern to a file name.
func ExtractBarcode(name string, pattern *regexp.Regexp) (string, bool) {
	if pattern == nil {
		pattern = DefaultBarcodePattern
	}
	m := pattern.FindStringSubmatch(name)
	if m == nil {
		return "", false
	}
	if len(m) > 1 {
		return m[1], m[1] != ""
	}
	return m[0], m[0] != ""
}

// NormalizeChromosome drops everything from the first underscore: "chr1_random" is "chr1".
func NormalizeChromosome(chr string) string {
	if i := strings.IndexByte(chr, '_'); i >= 0 {
		return chr[:i]
	}
	return chr
}

// ReadSample parses one tab separated sample file. Group is left empty.
func ReadSample(path string) ([]Record, error) {
	frame, err := tabular.ReadFile(path, '\t')
	if err != nil {
		return nil, classifyReadError(path, err)
	}
	for _, col := range SampleColumns {
		if !frame.Has(col) {
			return nil, &SchemaError{Path: path, Header: col}
		}
	}

	chr := frame.Col(ColChr)
	starts := frame.Col(ColStart)
	ends := frame.Col(ColEnd)
	fracs := frame.Col(ColFrac)
	valids := frame.Col(ColValid)

	records := make([]Record, frame.Rows())
	for i := range records {
		start, err := parseInt(starts[i])
		if err != nil {
			return nil, fmt.Errorf("%s row %d: start: %w", path, i+1, err)
		}
		end, err := parseInt(ends[i])
		if err != nil {
			return nil, fmt.Errorf("%s row %d: end: %w", path, i+1, err)
		}
		frac, err := strconv.ParseFloat(strings.TrimSpace(fracs[i]), 64)
		if err != nil {
			return nil, fmt.Errorf("%s row %d: frac: %w", path, i+1, err)
		}
		valid, err := parseInt(valids[i])
		if err != nil {
			return nil, fmt.Errorf("%s row %d: valid: %w", path, i+1, err)
		}
		records[i] = Record{
			Chr:   NormalizeChromosome(strings.TrimSpace(chr[i])),
			Start: start,
			End:   end,
			Frac:  frac,
			Valid: valid,
		}
	}
	return records, nil
}

// parseInt accepts integers written as floats ("12.0"), which some exporters produce.
// Fractional and non-finite values are rejected.
func parseInt(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) || math.Abs(f) > maxExactInt {
		return 0, fmt.Errorf("%q is not an integer", s)
	}
	return int64(f), nil
}

// maxExactInt is the largest magnitude up to which every integer is exact in a float64.
const maxExactInt = 1 << 53

// Fingerprint summarises the sample files of dir by name, size and modification time. It
// changes whenever a sample file is added, removed or rewritten.
func Fingerprint(dir string) (string, error) {
	names, err := SampleFiles(dir)
	if err != nil {
		return "", err
	}
	h := sha256.New()
	for _, name := range names {
		info, err := os.Stat(filepath.Join(dir, name))
		if err != nil {
			return "", classifyReadError(filepath.Join(dir, name), err)
		}
		fmt.Fprintf(h, "%s\x00%d\x00%d\n", name, info.Size(), info.ModTime().UnixNano())
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
