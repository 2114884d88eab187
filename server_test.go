package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"methylexplorer/internal/config"
	"methylexplorer/internal/dataset"
	"methylexplorer/internal/logger"
	"methylexplorer/internal/metrics"
	"methylexplorer/internal/store"
)

const sampleHeader = "chr\tstart\tend\tfrac\tvalid\n"

func setupTestServer(t *testing.T, withAnnotations bool) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	root := t.TempDir()
	samples := filepath.Join(root, "samples")
	require.NoError(t, os.Mkdir(samples, 0o755))
	write := func(path, body string) {
		require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	}
	write(filepath.Join(root, "groups.csv"), "barcode, description\n1,treated\n2,treated\n3,control\n")
	write(filepath.Join(samples, "sample_001_methylatie_ALL.csv"), sampleHeader+
		"chr1\t10\t11\t1\t5\n"+
		"chr1\t50\t51\t1\t5\n")
	write(filepath.Join(samples, "sample_002_methylatie_ALL.csv"), sampleHeader+
		"chr2_alt\t20\t21\t0.5\t5\n")
	if withAnnotations {
		write(filepath.Join(root, "promoters.csv"), "chromosome,start,end,gene_name\nchr1,0,40,GENE1\nchr1,0,60,GENE2\n")
	}

	settings := &config.Settings{}
	settings.Paths = config.Paths{
		GroupData:    filepath.Join(root, "groups.csv"),
		DataFolder:   samples,
		AnnotatedBed: filepath.Join(root, "promoters.csv"),
		TopGenes:     filepath.Join(root, "gene_variation.csv"),
	}
	settings.Cache.TTL = time.Minute
	settings.Samples.BarcodePattern = `\d+`
	settings.Samples.Workers = 2

	st, err := store.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	m := metrics.New()
	log := logger.Nop()
	data, err := dataset.New(context.Background(), settings, log, dataset.WithSink(st), dataset.WithMetrics(m))
	require.NoError(t, err)

	return newRouter(&server{data: data, store: st, metrics: m, log: log})
}

func get(t *testing.T, router *gin.Engine, target string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	body := map[string]interface{}{}
	if w.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	}
	return w, body
}

func TestHealthCheck(t *testing.T) {
	router := setupTestServer(t, false)
	w, body := get(t, router, "/healthcheck")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", body["status"])
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestMethylationFilters(t *testing.T) {
	router := setupTestServer(t, true)

	w, body := get(t, router, "/methylation")
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 3, body["totalCount"])
	assert.Equal(t, []interface{}{"chr", "start", "end", "frac", "valid", "group_name"}, body["headers"])

	w, body = get(t, router, "/methylation?chr=chr2")
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, body["totalCount"])
	row := body["data"].([]interface{})[0].([]interface{})
	assert.Equal(t, "chr2", row[0])
	assert.Equal(t, "treated2", row[5])

	w, body = get(t, router, "/methylation?group=treated1&min=0&max=30")
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, body["totalCount"])

	w, body = get(t, router, "/methylation?genes=GENE1,GENE2")
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 3, body["totalCount"])
	assert.Contains(t, body["headers"], "gene_name")

	w, body = get(t, router, "/methylation?limit=1&page=1")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["data"], 1)
	assert.EqualValues(t, 3, body["totalCount"])
}

func TestMethylationBadBound(t *testing.T) {
	router := setupTestServer(t, false)
	w, body := get(t, router, "/methylation?min=abc")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, body["error"], "min")
}

func TestGenesWithoutAnnotations(t *testing.T) {
	router := setupTestServer(t, false)

	w, body := get(t, router, "/methylation?genes=GENE1")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "no genes available", body["error"])

	w, _ = get(t, router, "/genes")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestCountsIncludeEmptyGroups(t *testing.T) {
	router := setupTestServer(t, false)

	w, body := get(t, router, "/methylation/counts?chr=chr1")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []interface{}{
		map[string]interface{}{"group_name": "treated1", "n_methylations": float64(2)},
		map[string]interface{}{"group_name": "treated2", "n_methylations": float64(0)},
		map[string]interface{}{"group_name": "control1", "n_methylations": float64(0)},
	}, body["counts"])
}

func TestChartsEmptyResult(t *testing.T) {
	router := setupTestServer(t, false)

	w, _ := get(t, router, "/charts?chr=chrX")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, body := get(t, router, "/charts?scatter=true")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["bar"], 3)
	assert.Len(t, body["scatter"], 3)
}

func TestPointsFromStore(t *testing.T) {
	router := setupTestServer(t, false)

	w, body := get(t, router, "/points?limit=2")
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 3, body["totalCount"])
	assert.Len(t, body["data"], 2)

	w, body = get(t, router, "/points/counts")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["counts"], 3)
}

func TestPagingBeyondLastPage(t *testing.T) {
	router := setupTestServer(t, false)

	for _, target := range []string{
		"/methylation?page=922337203685478&limit=10000",
		"/points?page=922337203685478&limit=10000",
		"/methylation?page=5&limit=2",
		"/points?page=5&limit=2",
	} {
		w, body := get(t, router, target)
		require.Equal(t, http.StatusOK, w.Code, target)
		assert.Empty(t, body["data"], target)
		assert.EqualValues(t, 3, body["totalCount"], target)
	}
}

func TestGeneVariationUnavailable(t *testing.T) {
	router := setupTestServer(t, true)

	w, _ := get(t, router, "/gene_variation")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w, _ = get(t, router, "/gene_variation?top_n=0")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	router := setupTestServer(t, false)
	get(t, router, "/healthcheck")

	w, _ := get(t, router, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "methylexplorer_ingested_rows 3")
	assert.Contains(t, w.Body.String(), "methylexplorer_http_requests_total")
}
