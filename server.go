package main

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"methylexplorer/internal/charts"
	"methylexplorer/internal/dataset"
	"methylexplorer/internal/filter"
	"methylexplorer/internal/logger"
	"methylexplorer/internal/metrics"
	"methylexplorer/internal/ranking"
	"methylexplorer/internal/store"
	"methylexplorer/internal/summary"
)

const (
	defaultLimit = 10000
	defaultTopN  = 10
)

type server struct {
	data    *dataset.Context
	store   *store.Store
	metrics *metrics.Metrics
	log     *logger.Logger
}

func newRouter(s *server) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestIDMiddleware(), s.accessLogMiddleware())

	// Disable CORS policy
	router.Use(cors.Default())

	router.GET("/healthcheck", healthCheckHandler)
	router.GET("/groups", s.getGroupsHandler)
	router.GET("/genes", s.getGenesHandler)

	router.GET("/methylation", s.getMethylationHandler)
	router.GET("/methylation/counts", s.getCountsHandler)
	router.GET("/charts", s.getChartsHandler)

	router.GET("/points", s.getPointsHandler)
	router.GET("/points/counts", s.getPointCountsHandler)

	router.GET("/gene_variation", s.getGeneVariationHandler)
	router.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	return router
}

// ------------------------------------------------------------------
// Basic Utility & Middleware
// ------------------------------------------------------------------

func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Writer.Header().Set("X-Request-ID", id)
		c.Next()
	}
}

func (s *server) accessLogMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		s.metrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
		s.log.Debug("request",
			"request_id", c.GetString("request_id"),
			"method", c.Request.Method,
			"route", route,
			"status", status,
			"elapsed", time.Since(started).String(),
		)
	}
}

func healthCheckHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// respondError maps pipeline errors to status codes. Missing optional data sources are
// reported as unavailable, not as server failures.
func (s *server) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, filter.ErrNoAnnotations), errors.Is(err, ranking.ErrVariationUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	case errors.Is(err, charts.ErrNoData):
		c.JSON(http.StatusNotFound, gin.H{"error": "No methylation found for these filters!"})
	default:
		s.log.Error("request failed", "request_id", c.GetString("request_id"), "path", c.Request.URL.Path, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// queryList collects a list parameter given either repeated (?chr=a&chr=b) or comma
// separated (?chr=a,b).
func queryList(c *gin.Context, name string) []string {
	var out []string
	for _, raw := range c.QueryArray(name) {
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// queryBound parses an optional integer parameter. Absent or empty means unset.
func queryBound(c *gin.Context, name string) (*int64, error) {
	raw, ok := c.GetQuery(name)
	if !ok || strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return nil, errors.New("parameter '" + name + "' must be an integer")
	}
	return &v, nil
}

func parseFilterParams(c *gin.Context) (filter.Params, error) {
	p := filter.Params{
		Genes:       queryList(c, "genes"),
		Chromosomes: queryList(c, "chr"),
		Groups:      queryList(c, "group"),
	}
	var err error
	if p.Min, err = queryBound(c, "min"); err != nil {
		return p, err
	}
	if p.Max, err = queryBound(c, "max"); err != nil {
		return p, err
	}
	return p, nil
}

func queryInt(c *gin.Context, name string, def int) int {
	if raw := c.Query(name); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v >= 0 {
			return v
		}
	}
	return def
}

// ------------------------------------------------------------------
// Catalog handlers
// ------------------------------------------------------------------

func (s *server) getGroupsHandler(c *gin.Context) {
	snap := s.data.Snapshot()
	c.JSON(http.StatusOK, gin.H{"groups": snap.Groups.Entries()})
}

func (s *server) getGenesHandler(c *gin.Context) {
	snap := s.data.Snapshot()
	if snap.Annotations == nil {
		s.respondError(c, filter.ErrNoAnnotations)
		return
	}
	c.JSON(http.StatusOK, gin.H{"genes": snap.Annotations.Genes()})
}

// ------------------------------------------------------------------
// getMethylationHandler
// ------------------------------------------------------------------
//
// Returns the filtered combined table. Filters: genes, chr, group (lists) and min, max
// (optional integers). Paged with page/limit, limit at most 10000.
func (s *server) getMethylationHandler(c *gin.Context) {
	p, err := parseFilterParams(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	page := queryInt(c, "page", 0)
	limit := queryInt(c, "limit", defaultLimit)
	if limit <= 0 || limit > defaultLimit {
		limit = defaultLimit
	}

	table, _, err := s.data.Filter(c.Request.Context(), p)
	if err != nil {
		s.respondError(c, err)
		return
	}

	data := table.Data()
	offset := len(data)
	if page <= (math.MaxInt-limit)/limit && page*limit < offset {
		offset = page * limit
	}
	end := offset + limit
	if end > len(data) {
		end = len(data)
	}

	c.JSON(http.StatusOK, gin.H{
		"headers":    table.Columns(),
		"data":       data[offset:end],
		"totalCount": table.Len(),
	})
}

func (s *server) getCountsHandler(c *gin.Context) {
	p, err := parseFilterParams(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	table, snap, err := s.data.Filter(c.Request.Context(), p)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"counts": summary.CountByGroup(table, snap.Groups.Labels())})
}

// getChartsHandler returns the data of the bar, density and scatter plots. The scatter is
// only built when asked for (scatter=true) or when genes narrow the table down.
func (s *server) getChartsHandler(c *gin.Context) {
	p, err := parseFilterParams(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	wantScatter := c.Query("scatter") == "true" || len(p.Genes) > 0
	bins := queryInt(c, "bins", charts.DefaultBins)

	table, snap, err := s.data.Filter(c.Request.Context(), p)
	if err != nil {
		s.respondError(c, err)
		return
	}

	payload, err := charts.Build(c.Request.Context(), table, snap.Groups.Labels(), wantScatter, bins)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, payload)
}

// ------------------------------------------------------------------
// DuckDB-backed handlers
// ------------------------------------------------------------------

func (s *server) getPointsHandler(c *gin.Context) {
	page := queryInt(c, "page", 0)
	limit := queryInt(c, "limit", store.MaxPageSize)

	result, err := s.store.Page(c.Request.Context(), page, limit)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *server) getPointCountsHandler(c *gin.Context) {
	counts, err := s.store.GroupCounts(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"counts": counts})
}

// ------------------------------------------------------------------
// getGeneVariationHandler
// ------------------------------------------------------------------
//
// Endpoint: /gene_variation?top_n=10
//
// Returns the genes with the highest positional variation, as computed by the rank
// command.
func (s *server) getGeneVariationHandler(c *gin.Context) {
	topN := defaultTopN
	if raw := c.Query("top_n"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Parameter 'top_n' must be a positive integer"})
			return
		}
		topN = v
	}

	variation, err := s.data.Variation()
	if err != nil {
		s.respondError(c, err)
		return
	}
	top := summary.Head(variation, topN)
	c.JSON(http.StatusOK, gin.H{"gene_variation": top, "total": len(variation)})
}
