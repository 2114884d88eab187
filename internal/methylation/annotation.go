package methylation

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/biogo/store/interval"

	"methylexplorer/internal/tabular"
)

// AnnotationEntry is a promoter interval of one gene.
type AnnotationEntry struct {
	Chr   string `json:"chromosome"`
	Start int64  `json:"start"`
	End   int64  `json:"end"`
	Gene  string `json:"gene_name"`
}

// AnnotationCatalog keeps every promoter row in file order, duplicates included, and an
// interval tree per chromosome for containment queries.
type AnnotationCatalog struct {
	entries []AnnotationEntry
	trees   map[string]*interval.IntTree
}

// promoter adapts an entry to the interval tree. The tree works on half-open ranges, so an
// inclusive promoter [start, end] is stored as [start, end+1).
type promoter struct {
	start, end int
	uid        uintptr
}

func (p promoter) Overlap(b interval.IntRange) bool {
	return p.end+1 > b.Start && p.start < b.End
}

func (p promoter) ID() uintptr {
	return p.uid
}

func (p promoter) Range() interval.IntRange {
	return interval.IntRange{Start: p.start, End: p.end + 1}
}

// window is an inclusive query range.
type window struct {
	start, end int
}

func (w window) Overlap(b interval.IntRange) bool {
	return b.Start <= w.end && b.End > w.start
}

// LoadAnnotations reads the comma separated promoter table at path. The first four columns
// are chromosome, start, end and gene name.
func LoadAnnotations(path string) (*AnnotationCatalog, error) {
	frame, err := tabular.ReadFile(path, ',')
	if err != nil {
		return nil, classifyReadError(path, err)
	}
	if len(frame.Names()) < 4 {
		return nil, &SchemaError{Path: path, Header: "chromosome,start,end,gene_name"}
	}

	chr, starts, ends, genes := frame.ColAt(0), frame.ColAt(1), frame.ColAt(2), frame.ColAt(3)
	entries := make([]AnnotationEntry, 0, frame.Rows())
	for i := 0; i < frame.Rows(); i++ {
		start, err := strconv.ParseInt(strings.TrimSpace(starts[i]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%s row %d: start: %w", path, i+1, err)
		}
		end, err := strconv.ParseInt(strings.TrimSpace(ends[i]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%s row %d: end: %w", path, i+1, err)
		}
		entries = append(entries, AnnotationEntry{
			Chr:   strings.TrimSpace(chr[i]),
			Start: start,
			End:   end,
			Gene:  strings.TrimSpace(genes[i]),
		})
	}
	return NewAnnotationCatalog(entries), nil
}

// NewAnnotationCatalog indexes entries. Inverted intervals stay in the entry list but are
// left out of the tree.
func NewAnnotationCatalog(entries []AnnotationEntry) *AnnotationCatalog {
	c := &AnnotationCatalog{
		entries: append([]AnnotationEntry(nil), entries...),
		trees:   make(map[string]*interval.IntTree),
	}
	for i, e := range c.entries {
		if e.Start > e.End {
			continue
		}
		tree, ok := c.trees[e.Chr]
		if !ok {
			tree = &interval.IntTree{}
			c.trees[e.Chr] = tree
		}
		p := promoter{start: int(e.Start), end: int(e.End), uid: uintptr(i)}
		if err := tree.Insert(p, true); err != nil {
			continue
		}
	}
	for _, tree := range c.trees {
		tree.AdjustRanges()
	}
	return c
}

func (c *AnnotationCatalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.entries)
}

// Entries returns the rows in file order.
func (c *AnnotationCatalog) Entries() []AnnotationEntry {
	if c == nil {
		return nil
	}
	return append([]AnnotationEntry(nil), c.entries...)
}

// Select returns the entries whose gene is in genes, in file order. A gene with several
// promoters yields several entries.
func (c *AnnotationCatalog) Select(genes []string) []AnnotationEntry {
	if c == nil || len(genes) == 0 {
		return nil
	}
	want := make(map[string]struct{}, len(genes))
	for _, g := range genes {
		want[g] = struct{}{}
	}
	var out []AnnotationEntry
	for _, e := range c.entries {
		if _, ok := want[e.Gene]; ok {
			out = append(out, e)
		}
	}
	return out
}

// GenesWithin returns the distinct genes whose promoter lies inside [start, end] on chr,
// in file order.
func (c *AnnotationCatalog) GenesWithin(chr string, start, end int64) []string {
	if c == nil || start > end {
		return nil
	}
	tree, ok := c.trees[chr]
	if !ok {
		return nil
	}
	hits := tree.Get(window{start: int(start), end: int(end)})
	ids := make([]int, 0, len(hits))
	for _, h := range hits {
		ids = append(ids, int(h.ID()))
	}
	sort.Ints(ids)

	seen := make(map[string]struct{})
	var genes []string
	for _, id := range ids {
		e := c.entries[id]
		if e.Start < start || e.End > end {
			continue
		}
		if _, dup := seen[e.Gene]; dup {
			continue
		}
		seen[e.Gene] = struct{}{}
		genes = append(genes, e.Gene)
	}
	return genes
}

// Genes returns the distinct gene names, sorted.
func (c *AnnotationCatalog) Genes() []string {
	if c == nil {
		return []string{}
	}
	seen := make(map[string]struct{}, len(c.entries))
	genes := make([]string, 0, len(c.entries))
	for _, e := range c.entries {
		if _, ok := seen[e.Gene]; ok {
			continue
		}
		seen[e.Gene] = struct{}{}
		genes = append(genes, e.Gene)
	}
	sort.Strings(genes)
	return genes
}
