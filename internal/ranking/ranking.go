// Package ranking builds the gene variation table offline and reads it back for the API.
package ranking

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	"methylexplorer/internal/filter"
	"methylexplorer/internal/methylation"
	"methylexplorer/internal/summary"
	"methylexplorer/internal/tabular"
)

// Header of the variation file.
const (
	GeneHeader  = "gene"
	ScoreHeader = "Methylation variation"
)

// ErrVariationUnavailable means the variation file has not been produced yet.
var ErrVariationUnavailable = errors.New("no gene variation file found, run the rank command")

type region struct {
	chr        string
	start, end int64
}

// Attribute assigns methylation points to genes. Each distinct promoter interval is matched
// once against the table, and the matching rows are stamped once for every gene whose
// promoter lies inside that interval.
func Attribute(catalog *methylation.AnnotationCatalog, t *methylation.Table) *methylation.Table {
	done := make(map[region]struct{})
	var out []methylation.Record

	for _, e := range catalog.Entries() {
		key := region{chr: e.Chr, start: e.Start, end: e.End}
		if _, ok := done[key]; ok {
			continue
		}
		done[key] = struct{}{}

		genes := catalog.GenesWithin(e.Chr, e.Start, e.End)
		if len(genes) == 0 {
			continue
		}
		inside := filter.ByRange(&e.Start, &e.End, filter.ByChromosome([]string{e.Chr}, t))
		for _, gene := range genes {
			for _, r := range inside.Records {
				r.Gene = gene
				out = append(out, r)
			}
		}
	}
	return methylation.NewTable(out, true)
}

// Build attributes points to genes and ranks the genes by variation.
func Build(catalog *methylation.AnnotationCatalog, t *methylation.Table) []summary.GeneVariation {
	return summary.Rank(summary.VariationByGene(Attribute(catalog, t)))
}

// WriteCSV writes the ranking to path. Genes without a score get an empty cell.
func WriteCSV(path string, v []summary.GeneVariation) error {
	genes := make([]string, len(v))
	scores := make([]string, len(v))
	for i, g := range v {
		genes[i] = g.Gene
		if g.Score != nil {
			scores[i] = strconv.FormatFloat(*g.Score, 'g', -1, 64)
		}
	}
	df := dataframe.New(
		series.New(genes, series.String, GeneHeader),
		series.New(scores, series.String, ScoreHeader),
	)
	if df.Err != nil {
		return df.Err
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := df.WriteCSV(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

// LoadVariation reads a ranking written by WriteCSV. Rows without a score are dropped. A
// missing file yields ErrVariationUnavailable.
func LoadVariation(path string) ([]summary.GeneVariation, error) {
	frame, err := tabular.ReadFile(path, ',')
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", path, ErrVariationUnavailable)
		}
		return nil, err
	}
	if len(frame.Names()) < 2 {
		return nil, &methylation.SchemaError{Path: path, Header: ScoreHeader}
	}

	genes, scores := frame.ColAt(0), frame.ColAt(1)
	out := make([]summary.GeneVariation, 0, frame.Rows())
	for i := 0; i < frame.Rows(); i++ {
		raw := strings.TrimSpace(scores[i])
		if raw == "" || genes[i] == "" {
			continue
		}
		score, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("%s row %d: %w", path, i+1, err)
		}
		out = append(out, summary.GeneVariation{Gene: genes[i], Score: &score})
	}
	return out, nil
}
