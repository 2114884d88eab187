package methylation

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleHeader = "chr\tstart\tend\tfrac\tvalid\n"

func treatedCatalog() *GroupCatalog {
	return NewGroupCatalog(Disambiguate([]string{"treated", "treated"}, []string{"1", "2"}))
}

func TestIngestStampsGroupFromBarcode(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "sample_001_methylatie_ALL.csv", sampleHeader+
		"chr1_random\t10\t11\t0.5\t12\n"+
		"chr2\t20\t21\t1\t3\n")

	table, err := Ingest(context.Background(), dir, treatedCatalog(), IngestOptions{})
	require.NoError(t, err)
	require.Equal(t, 2, table.Len())

	assert.Equal(t, Record{Chr: "chr1", Start: 10, End: 11, Frac: 0.5, Valid: 12, Group: "treated1"}, table.Records[0])
	assert.Equal(t, Record{Chr: "chr2", Start: 20, End: 21, Frac: 1, Valid: 3, Group: "treated1"}, table.Records[1])
	assert.False(t, table.HasGene)
}

func TestIngestUnionsInFileNameOrder(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "b2_methylatie_ALL.csv", sampleHeader+"chr1\t5\t6\t0\t1\nchr1\t7\t8\t0\t1\n")
	writeFile(t, dir, "a1_methylatie_ALL.csv", sampleHeader+"chr3\t1\t2\t0\t1\n")
	writeFile(t, dir, "notes.txt", "ignored")
	writeFile(t, dir, "c3_methylatie_ALL.csv.bak", "ignored")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "d4_methylatie_ALL.csv"), 0o755))

	table, err := Ingest(context.Background(), dir, treatedCatalog(), IngestOptions{Workers: 4})
	require.NoError(t, err)
	require.Equal(t, 3, table.Len())

	assert.Equal(t, "treated1", table.Records[0].Group)
	assert.Equal(t, "chr3", table.Records[0].Chr)
	assert.Equal(t, int64(5), table.Records[1].Start)
	assert.Equal(t, int64(7), table.Records[2].Start)
	assert.Equal(t, "treated2", table.Records[2].Group)
}

func TestIngestEmptyDirectoryKeepsColumns(t *testing.T) {
	t.Parallel()

	table, err := Ingest(context.Background(), t.TempDir(), treatedCatalog(), IngestOptions{})
	require.NoError(t, err)

	assert.Equal(t, 0, table.Len())
	assert.NotNil(t, table.Records)
	assert.Equal(t, []string{"chr", "start", "end", "frac", "valid", "group_name"}, table.Columns())
}

func TestIngestMissingDirectory(t *testing.T) {
	t.Parallel()

	_, err := Ingest(context.Background(), filepath.Join(t.TempDir(), "gone"), treatedCatalog(), IngestOptions{})
	var notFound *SourceNotFoundError
	require.True(t, errors.As(err, &notFound), "got %v", err)
}

func TestIngestRejectsUnattributableFiles(t *testing.T) {
	t.Parallel()

	t.Run("no digits", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "sample_methylatie_ALL.csv", sampleHeader)

		_, err := Ingest(context.Background(), dir, treatedCatalog(), IngestOptions{})
		var barcodeErr *BarcodeError
		require.True(t, errors.As(err, &barcodeErr), "got %v", err)
		assert.Empty(t, barcodeErr.Barcode)
	})

	t.Run("unknown barcode", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "sample_9_methylatie_ALL.csv", sampleHeader)

		_, err := Ingest(context.Background(), dir, treatedCatalog(), IngestOptions{})
		var barcodeErr *BarcodeError
		require.True(t, errors.As(err, &barcodeErr), "got %v", err)
		assert.Equal(t, "9", barcodeErr.Barcode)
	})
}

func TestIngestBadSampleHeader(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "s1_methylatie_ALL.csv", "chrom\tstart\tend\tfrac\tvalid\nchr1\t1\t2\t0\t1\n")

	_, err := Ingest(context.Background(), dir, treatedCatalog(), IngestOptions{})
	var schemaErr *SchemaError
	require.True(t, errors.As(err, &schemaErr), "got %v", err)
	assert.Equal(t, "chr", schemaErr.Header)
}

func TestReadSampleIntegerColumns(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeFile(t, dir, "ok_methylatie_ALL.csv", sampleHeader+"chr1\t12.0\t13\t0.5\t4.0\n")
	records, err := ReadSample(path)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, int64(12), records[0].Start)
	assert.Equal(t, int64(4), records[0].Valid)

	for _, value := range []string{"12.7", "NaN", "Inf", "-Inf", "1e300", "x"} {
		path := writeFile(t, dir, "bad_methylatie_ALL.csv", sampleHeader+"chr1\t"+value+"\t13\t0.5\t4\n")
		_, err := ReadSample(path)
		require.Error(t, err, value)
		assert.Contains(t, err.Error(), "row 1: start", value)
	}
}

func TestExtractBarcode(t *testing.T) {
	t.Parallel()

	dated := regexp.MustCompile(`barcode(\d+)`)
	tests := []struct {
		name    string
		pattern *regexp.Regexp
		want    string
		ok      bool
	}{
		{"sample_001_methylatie_ALL.csv", nil, "001", true},
		{"20240101_barcode07_methylatie_ALL.csv", nil, "20240101", true},
		{"20240101_barcode07_methylatie_ALL.csv", dated, "07", true},
		{"methylatie_ALL.csv", nil, "", false},
	}
	for _, tt := range tests {
		got, ok := ExtractBarcode(tt.name, tt.pattern)
		assert.Equal(t, tt.ok, ok, tt.name)
		assert.Equal(t, tt.want, got, tt.name)
	}
}

func TestFingerprintTracksChanges(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "s1_methylatie_ALL.csv", sampleHeader)

	first, err := Fingerprint(dir)
	require.NoError(t, err)
	again, err := Fingerprint(dir)
	require.NoError(t, err)
	assert.Equal(t, first, again)

	writeFile(t, dir, "s2_methylatie_ALL.csv", sampleHeader)
	changed, err := Fingerprint(dir)
	require.NoError(t, err)
	assert.NotEqual(t, first, changed)
}
