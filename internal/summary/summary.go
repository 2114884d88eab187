// Package summary aggregates a filtered methylation table for presentation: point counts per
// group and the positional variation of genes.
package summary

import (
	"sort"

	"gonum.org/v1/gonum/stat"

	"methylexplorer/internal/methylation"
)

type GroupCount struct {
	Group string `json:"group_name"`
	Count int    `json:"n_methylations"`
}

// CountByGroup counts rows per group. Every label in base is reported, with 0 when the table
// holds none of its rows; labels found only in the table follow in order of appearance. The
// counts always add up to the table length.
func CountByGroup(t *methylation.Table, base []string) []GroupCount {
	counts := make(map[string]int)
	for _, r := range t.Records {
		counts[r.Group]++
	}

	out := make([]GroupCount, 0, len(base)+len(counts))
	seen := make(map[string]struct{}, len(base))
	for _, label := range base {
		if _, dup := seen[label]; dup {
			continue
		}
		seen[label] = struct{}{}
		out = append(out, GroupCount{Group: label, Count: counts[label]})
	}
	for _, label := range t.GroupLabels() {
		if _, ok := seen[label]; ok {
			continue
		}
		seen[label] = struct{}{}
		out = append(out, GroupCount{Group: label, Count: counts[label]})
	}
	return out
}

// GeneVariation is the spread of a gene's methylation points. Score is nil when the gene has
// fewer than two points.
type GeneVariation struct {
	Gene   string   `json:"gene"`
	Score  *float64 `json:"methylation_variation"`
	Points int      `json:"points"`
}

// VariationByGene rescales every start position to [0, 1] with the minimum and maximum start
// of the whole table, then takes the sample standard deviation of the rescaled positions per
// gene. When all starts are equal every rescaled position is 0. Rows without a gene are
// ignored; genes are reported in order of first appearance.
func VariationByGene(t *methylation.Table) []GeneVariation {
	if t.Len() == 0 {
		return []GeneVariation{}
	}

	lo, hi := t.Records[0].Start, t.Records[0].Start
	for _, r := range t.Records[1:] {
		if r.Start < lo {
			lo = r.Start
		}
		if r.Start > hi {
			hi = r.Start
		}
	}
	span := float64(hi - lo)

	var order []string
	positions := make(map[string][]float64)
	for _, r := range t.Records {
		if r.Gene == "" {
			continue
		}
		norm := 0.0
		if span > 0 {
			norm = float64(r.Start-lo) / span
		}
		if _, ok := positions[r.Gene]; !ok {
			order = append(order, r.Gene)
		}
		positions[r.Gene] = append(positions[r.Gene], norm)
	}

	out := make([]GeneVariation, 0, len(order))
	for _, gene := range order {
		x := positions[gene]
		v := GeneVariation{Gene: gene, Points: len(x)}
		if len(x) >= 2 {
			sd := stat.StdDev(x, nil)
			v.Score = &sd
		}
		out = append(out, v)
	}
	return out
}

// Rank sorts by score, highest first, with genes without a score last. The input is not
// modified.
func Rank(v []GeneVariation) []GeneVariation {
	out := append([]GeneVariation(nil), v...)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].Score, out[j].Score
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return *a > *b
		}
	})
	return out
}

// Head returns at most n entries. A negative n returns everything.
func Head(v []GeneVariation, n int) []GeneVariation {
	if n < 0 || n >= len(v) {
		return v
	}
	return v[:n]
}
