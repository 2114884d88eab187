// Package dataset owns the process-wide data: the group catalog, the combined table, the
// annotation catalog and the gene variation ranking. It is built once at startup and handed
// to every consumer; it reloads only when the sample folder changes.
package dataset

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"methylexplorer/internal/config"
	"methylexplorer/internal/filter"
	"methylexplorer/internal/logger"
	"methylexplorer/internal/methylation"
	"methylexplorer/internal/metrics"
	"methylexplorer/internal/ranking"
	"methylexplorer/internal/summary"
)

// Snapshot is one consistent view of the loaded data. It is never modified after it has been
// published; a reload publishes a new one.
type Snapshot struct {
	Groups      *methylation.GroupCatalog
	Table       *methylation.Table
	Annotations *methylation.AnnotationCatalog // nil when the annotation file is unavailable
	Variation   []summary.GeneVariation        // nil when the variation file is unavailable
	Fingerprint string
	LoadedAt    time.Time
}

// Sink receives every freshly loaded table, e.g. the DuckDB mirror.
type Sink interface {
	Replace(ctx context.Context, t *methylation.Table, base []string) error
}

type Context struct {
	paths   config.Paths
	opts    methylation.IngestOptions
	log     *logger.Logger
	metrics *metrics.Metrics
	cache   *cache.Cache
	sink    Sink

	reloadMu sync.Mutex
	failed   string // fingerprint of the last folder state that failed to load
	mu       sync.RWMutex
	snap     *Snapshot
}

type Option func(*Context)

func WithSink(s Sink) Option {
	return func(c *Context) { c.sink = s }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Context) { c.metrics = m }
}

// New loads everything named in settings. A missing or malformed group table or sample
// folder is fatal; a missing annotation or variation file only disables the features that
// need it.
func New(ctx context.Context, settings *config.Settings, log *logger.Logger, opts ...Option) (*Context, error) {
	pattern, err := regexp.Compile(settings.Samples.BarcodePattern)
	if err != nil {
		return nil, fmt.Errorf("barcode pattern: %w", err)
	}
	ttl := settings.Cache.TTL
	if ttl <= 0 {
		ttl = cache.NoExpiration
	}

	c := &Context{
		paths: settings.Paths,
		opts: methylation.IngestOptions{
			BarcodePattern: pattern,
			Workers:        settings.Samples.Workers,
		},
		log:   log,
		cache: cache.New(ttl, 2*ttl),
	}
	for _, opt := range opts {
		opt(c)
	}

	snap, err := c.load(ctx)
	if err != nil {
		return nil, err
	}
	c.snap = snap
	return c, nil
}

func (c *Context) load(ctx context.Context) (*Snapshot, error) {
	started := time.Now()

	fingerprint, err := methylation.Fingerprint(c.paths.DataFolder)
	if err != nil {
		c.ingestFailed()
		return nil, err
	}

	groups, err := methylation.OpenGroupCatalog(c.paths.GroupData)
	if err != nil {
		c.ingestFailed()
		return nil, fmt.Errorf("load groups: %w", err)
	}

	table, err := methylation.Ingest(ctx, c.paths.DataFolder, groups, c.opts)
	if err != nil {
		c.ingestFailed()
		return nil, fmt.Errorf("ingest samples: %w", err)
	}

	annotations, err := methylation.LoadAnnotations(c.paths.AnnotatedBed)
	if err != nil {
		c.log.Warn("annotation catalog unavailable, gene filtering disabled", "path", c.paths.AnnotatedBed, "error", err)
		annotations = nil
	}

	variation, err := ranking.LoadVariation(c.paths.TopGenes)
	if err != nil {
		c.log.Warn("gene variation unavailable", "path", c.paths.TopGenes, "error", err)
		variation = nil
	}

	if c.sink != nil {
		if err := c.sink.Replace(ctx, table, groups.Labels()); err != nil {
			c.log.Error("failed to mirror methylation table", "error", err)
		}
	}

	elapsed := time.Since(started)
	if c.metrics != nil {
		c.metrics.IngestedRows.Set(float64(table.Len()))
		c.metrics.IngestDuration.Observe(elapsed.Seconds())
		if files, err := methylation.SampleFiles(c.paths.DataFolder); err == nil {
			c.metrics.SampleFiles.Set(float64(len(files)))
		}
	}
	c.log.Info("methylation data loaded",
		"rows", table.Len(),
		"groups", len(groups.Labels()),
		"annotations", annotations.Len(),
		"elapsed", elapsed.String(),
	)

	return &Snapshot{
		Groups:      groups,
		Table:       table,
		Annotations: annotations,
		Variation:   variation,
		Fingerprint: fingerprint,
		LoadedAt:    time.Now(),
	}, nil
}

func (c *Context) ingestFailed() {
	if c.metrics != nil {
		c.metrics.IngestErrors.Inc()
	}
}

// Snapshot returns the current view.
func (c *Context) Snapshot() *Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap
}

// Refresh reloads the data when the sample folder has changed since the last load and
// drops every memoised filter result. It reports whether a reload happened. On failure
// the previous snapshot stays in place and the same folder state is not retried.
func (c *Context) Refresh(ctx context.Context) (bool, error) {
	c.reloadMu.Lock()
	defer c.reloadMu.Unlock()

	fingerprint, err := methylation.Fingerprint(c.paths.DataFolder)
	if err != nil {
		return false, err
	}
	if fingerprint == c.Snapshot().Fingerprint {
		c.failed = ""
		return false, nil
	}
	if fingerprint == c.failed {
		return false, nil
	}

	c.log.Info("sample folder changed, reloading", "folder", c.paths.DataFolder)
	snap, err := c.load(ctx)
	if err != nil {
		c.failed = fingerprint
		return false, err
	}
	c.failed = ""

	c.mu.Lock()
	c.snap = snap
	c.mu.Unlock()
	c.cache.Flush()
	return true, nil
}

// Filter applies p to the current table. Results are memoised per exact parameter tuple
// and snapshot.
func (c *Context) Filter(ctx context.Context, p filter.Params) (*methylation.Table, *Snapshot, error) {
	if _, err := c.Refresh(ctx); err != nil {
		c.log.Warn("refresh failed, serving previous data", "error", err)
	}
	snap := c.Snapshot()

	key := snap.Fingerprint + "|" + p.Key()
	if cached, ok := c.cache.Get(key); ok {
		c.countFilter("hit")
		return cached.(*methylation.Table), snap, nil
	}
	c.countFilter("miss")

	out, err := filter.Apply(p, snap.Table, snap.Annotations)
	if err != nil {
		return nil, snap, err
	}
	c.cache.SetDefault(key, out)
	return out, snap, nil
}

func (c *Context) countFilter(outcome string) {
	if c.metrics != nil {
		c.metrics.FilterRequests.WithLabelValues(outcome).Inc()
	}
}

// Variation returns the precomputed ranking, or ranking.ErrVariationUnavailable. The file
// is looked up again when it was missing at load time, so a ranking produced after startup
// is picked up.
func (c *Context) Variation() ([]summary.GeneVariation, error) {
	snap := c.Snapshot()
	if snap.Variation != nil {
		return snap.Variation, nil
	}
	v, err := ranking.LoadVariation(c.paths.TopGenes)
	if err != nil {
		if errors.Is(err, ranking.ErrVariationUnavailable) {
			return nil, ranking.ErrVariationUnavailable
		}
		return nil, err
	}
	c.mu.Lock()
	if c.snap == snap {
		next := *snap
		next.Variation = v
		c.snap = &next
	}
	c.mu.Unlock()
	return v, nil
}
