// Package methylation holds the combined methylation table and the loaders that build it:
// the group catalog, the sample ingestor and the promoter annotation catalog.
package methylation

// Column names of the combined table.
const (
	ColChr   = "chr"
	ColStart = "start"
	ColEnd   = "end"
	ColFrac  = "frac"
	ColValid = "valid"
	ColGroup = "group_name"
	ColGene  = "gene_name"
)

// BaseColumns is the column set every combined table carries, empty or not.
var BaseColumns = []string{ColChr, ColStart, ColEnd, ColFrac, ColValid, ColGroup}

// Record is one methylation point. Group is assigned at ingestion; Gene is only set by
// gene filtering.
type Record struct {
	Chr   string
	Start int64
	End   int64
	Frac  float64
	Valid int64
	Group string
	Gene  string
}

// Table is an immutable set of records. Filters return new tables and never modify the
// records of their input.
type Table struct {
	Records []Record
	HasGene bool
}

// NewTable wraps records. A nil slice is replaced by an empty one.
func NewTable(records []Record, hasGene bool) *Table {
	if records == nil {
		records = []Record{}
	}
	return &Table{Records: records, HasGene: hasGene}
}

// Empty returns a table with no rows.
func Empty(hasGene bool) *Table {
	return NewTable(nil, hasGene)
}

func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Records)
}

// Columns returns the column set in output order.
func (t *Table) Columns() []string {
	cols := append([]string(nil), BaseColumns...)
	if t != nil && t.HasGene {
		cols = append(cols, ColGene)
	}
	return cols
}

// Data returns the rows in Columns order, ready for JSON encoding.
func (t *Table) Data() [][]interface{} {
	data := make([][]interface{}, 0, t.Len())
	if t == nil {
		return data
	}
	for _, r := range t.Records {
		row := []interface{}{r.Chr, r.Start, r.End, r.Frac, r.Valid, r.Group}
		if t.HasGene {
			row = append(row, r.Gene)
		}
		data = append(data, row)
	}
	return data
}

// Envelope returns the smallest start and the largest end in the table. ok is false for an
// empty table.
func (t *Table) Envelope() (minStart, maxEnd int64, ok bool) {
	if t.Len() == 0 {
		return 0, 0, false
	}
	minStart, maxEnd = t.Records[0].Start, t.Records[0].End
	for _, r := range t.Records[1:] {
		if r.Start < minStart {
			minStart = r.Start
		}
		if r.End > maxEnd {
			maxEnd = r.End
		}
	}
	return minStart, maxEnd, true
}

// GroupLabels returns the distinct group labels in order of first appearance.
func (t *Table) GroupLabels() []string {
	seen := make(map[string]struct{})
	labels := []string{}
	if t == nil {
		return labels
	}
	for _, r := range t.Records {
		if _, ok := seen[r.Group]; ok {
			continue
		}
		seen[r.Group] = struct{}{}
		labels = append(labels, r.Group)
	}
	return labels
}
