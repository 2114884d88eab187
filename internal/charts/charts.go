// Package charts prepares the data each plot of the dashboard consumes. Rendering itself
// belongs to the front end.
package charts

import (
	"context"
	"errors"
	"sort"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"methylexplorer/internal/methylation"
	"methylexplorer/internal/summary"
)

// DefaultBins is the number of histogram bins of the density plot.
const DefaultBins = 50

// ErrNoData is returned for an empty table: there is nothing to plot.
var ErrNoData = errors.New("data missing")

type ScatterPoint struct {
	Start int64  `json:"start"`
	Chr   string `json:"chr"`
	Group string `json:"group_name"`
}

// Density is a histogram of start positions for one group. Dividers has one more element
// than Counts; all groups share the same dividers.
type Density struct {
	Group    string    `json:"group_name"`
	Dividers []float64 `json:"dividers"`
	Counts   []float64 `json:"counts"`
}

type Payload struct {
	Bar     []summary.GroupCount `json:"bar"`
	Density []Density            `json:"density"`
	// Scatter is nil unless requested; it is slow to draw for whole genomes.
	Scatter []ScatterPoint `json:"scatter,omitempty"`
}

// Build computes the chart data for t. Group counts are computed first and double as the bar
// payload; the density and scatter payloads are then prepared concurrently and joined.
func Build(ctx context.Context, t *methylation.Table, base []string, wantScatter bool, bins int) (*Payload, error) {
	if t.Len() == 0 {
		return nil, ErrNoData
	}
	if bins < 1 {
		bins = DefaultBins
	}

	counts := summary.CountByGroup(t, base)
	p := &Payload{Bar: counts}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		d, err := densities(gctx, t, counts, bins)
		if err != nil {
			return err
		}
		p.Density = d
		return nil
	})
	if wantScatter {
		g.Go(func() error {
			p.Scatter = scatter(t)
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return p, nil
}

func scatter(t *methylation.Table) []ScatterPoint {
	points := make([]ScatterPoint, len(t.Records))
	for i, r := range t.Records {
		points[i] = ScatterPoint{Start: r.Start, Chr: r.Chr, Group: r.Group}
	}
	return points
}

func densities(ctx context.Context, t *methylation.Table, counts []summary.GroupCount, bins int) ([]Density, error) {
	byGroup := make(map[string][]float64)
	lo, hi := float64(t.Records[0].Start), float64(t.Records[0].Start)
	for _, r := range t.Records {
		x := float64(r.Start)
		byGroup[r.Group] = append(byGroup[r.Group], x)
		if x < lo {
			lo = x
		}
		if x > hi {
			hi = x
		}
	}

	// stat.Histogram needs every value strictly below the last divider.
	dividers := make([]float64, bins+1)
	floats.Span(dividers, lo, hi+1)

	out := make([]Density, 0, len(counts))
	for _, c := range counts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		x := byGroup[c.Group]
		if len(x) == 0 {
			continue
		}
		sort.Float64s(x)
		out = append(out, Density{
			Group:    c.Group,
			Dividers: dividers,
			Counts:   stat.Histogram(nil, dividers, x, nil),
		})
	}
	return out, nil
}
