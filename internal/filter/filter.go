// Package filter narrows a combined methylation table. Every filter is pure: it returns a new
// table and leaves its input untouched. An empty filter argument means "no filter requested"
// and returns the input as is.
package filter

import (
	"errors"
	"strconv"
	"strings"

	"methylexplorer/internal/methylation"
)

// ErrNoAnnotations is returned when genes are requested but no annotation catalog is loaded.
var ErrNoAnnotations = errors.New("no genes available")

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}

func keep(t *methylation.Table, pred func(methylation.Record) bool) *methylation.Table {
	out := make([]methylation.Record, 0, t.Len())
	for _, r := range t.Records {
		if pred(r) {
			out = append(out, r)
		}
	}
	return methylation.NewTable(out, t.HasGene)
}

// ByChromosome keeps rows whose chromosome is in chromosomes.
func ByChromosome(chromosomes []string, t *methylation.Table) *methylation.Table {
	if len(chromosomes) == 0 {
		return t
	}
	set := toSet(chromosomes)
	return keep(t, func(r methylation.Record) bool {
		_, ok := set[r.Chr]
		return ok
	})
}

// ByGroup keeps rows whose group label is in groups.
func ByGroup(groups []string, t *methylation.Table) *methylation.Table {
	if len(groups) == 0 {
		return t
	}
	set := toSet(groups)
	return keep(t, func(r methylation.Record) bool {
		_, ok := set[r.Group]
		return ok
	})
}

// ByRange keeps rows with start >= min and end <= max, both bounds inclusive. A nil bound
// leaves that side open; with both nil the input is returned.
func ByRange(min, max *int64, t *methylation.Table) *methylation.Table {
	if min == nil && max == nil {
		return t
	}
	return keep(t, func(r methylation.Record) bool {
		if min != nil && r.Start < *min {
			return false
		}
		if max != nil && r.End > *max {
			return false
		}
		return true
	})
}

// ByGenes keeps rows that fall inside a promoter of one of genes and stamps them with that
// gene. Each promoter is matched separately and the results are concatenated in annotation
// order, so a row inside two promoters appears twice with different gene names. When no
// gene is found in the catalog the result is empty but still carries the gene column.
func ByGenes(genes []string, t *methylation.Table, catalog *methylation.AnnotationCatalog) (*methylation.Table, error) {
	if len(genes) == 0 {
		return t, nil
	}
	if catalog == nil {
		return nil, ErrNoAnnotations
	}

	var out []methylation.Record
	for _, e := range catalog.Select(genes) {
		for _, r := range t.Records {
			if r.Chr != e.Chr || r.Start < e.Start || r.End > e.End {
				continue
			}
			r.Gene = e.Gene
			out = append(out, r)
		}
	}
	return methylation.NewTable(out, true), nil
}

// Params is one filter request. Min and Max are optional; zero is a real bound.
type Params struct {
	Genes       []string
	Chromosomes []string
	Groups      []string
	Min         *int64
	Max         *int64
}

// Apply runs the filters in a fixed order: genes, chromosomes, groups, range. Before the
// range filter the requested bounds are clamped to the envelope of what is left: the
// effective min is max(Min, smallest start) and the effective max is min(Max, largest
// end), with an unset bound taking the envelope value.
func Apply(p Params, t *methylation.Table, catalog *methylation.AnnotationCatalog) (*methylation.Table, error) {
	out, err := ByGenes(p.Genes, t, catalog)
	if err != nil {
		return nil, err
	}
	out = ByChromosome(p.Chromosomes, out)
	out = ByGroup(p.Groups, out)

	if p.Min == nil && p.Max == nil {
		return out, nil
	}
	lo, hi, ok := out.Envelope()
	if !ok {
		return out, nil
	}
	if p.Min != nil && *p.Min > lo {
		lo = *p.Min
	}
	if p.Max != nil && *p.Max < hi {
		hi = *p.Max
	}
	return ByRange(&lo, &hi, out), nil
}

// Key renders the parameters as a cache key. Order inside each list is kept because it
// decides the row order of the result.
func (p Params) Key() string {
	var b strings.Builder
	writeList := func(name string, values []string) {
		b.WriteString(name)
		b.WriteByte('=')
		for i, v := range values {
			if i > 0 {
				b.WriteByte(0x1f)
			}
			b.WriteString(v)
		}
		b.WriteByte(0x1e)
	}
	writeBound := func(name string, v *int64) {
		b.WriteString(name)
		b.WriteByte('=')
		if v != nil {
			b.WriteString(strconv.FormatInt(*v, 10))
		} else {
			b.WriteByte('-')
		}
		b.WriteByte(0x1e)
	}
	writeList("genes", p.Genes)
	writeList("chr", p.Chromosomes)
	writeList("group", p.Groups)
	writeBound("min", p.Min)
	writeBound("max", p.Max)
	return b.String()
}
