package tabular

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadKeepsHeaderWhitespace(t *testing.T) {
	f, err := Read(strings.NewReader("barcode, description\n1, treated\n2,control\n"), ',')
	require.NoError(t, err)

	assert.Equal(t, []string{"barcode", " description"}, f.Names())
	assert.True(t, f.Has(" description"))
	assert.False(t, f.Has("description"))
	assert.Equal(t, 2, f.Rows())
	assert.Equal(t, []string{" treated", "control"}, f.Col(" description"))
	assert.Equal(t, []string{"1", "2"}, f.ColAt(0))
}

func TestReadHeaderOnly(t *testing.T) {
	f, err := Read(strings.NewReader("chr\tstart\tend\n"), '\t')
	require.NoError(t, err)

	assert.Equal(t, 0, f.Rows())
	assert.Equal(t, []string{}, f.Col("start"))
	assert.Nil(t, f.Col("missing"))
}

func TestReadEmpty(t *testing.T) {
	f, err := Read(strings.NewReader(""), ',')
	require.NoError(t, err)
	assert.Empty(t, f.Names())
	assert.Equal(t, 0, f.Rows())
}

func TestReadRaggedRows(t *testing.T) {
	_, err := Read(strings.NewReader("a,b\n1\n"), ',')
	require.Error(t, err)
}

func TestReadFileMissing(t *testing.T) {
	_, err := ReadFile(filepath.Join(t.TempDir(), "missing.csv"), ',')
	require.Error(t, err)
	assert.True(t, os.IsNotExist(err))
}

func TestReadRejectsDuplicateHeaders(t *testing.T) {
	for _, body := range []string{
		"barcode, description,barcode\n",
		"barcode, description,barcode\n1,treated,1\n",
	} {
		_, err := Read(strings.NewReader(body), ',')
		dup, ok := IsDuplicateHeader(err)
		require.True(t, ok, "got %v", err)
		assert.Equal(t, "barcode", dup.Name)
	}
}

func TestReadBlankHeaderKeepsFileNames(t *testing.T) {
	f, err := Read(strings.NewReader("chr,,gene\nchr1,x,A\n"), ',')
	require.NoError(t, err)

	assert.Equal(t, []string{"chr", "", "gene"}, f.Names())
	assert.Equal(t, []string{"x"}, f.ColAt(1))
	assert.Equal(t, []string{"A"}, f.Col("gene"))
}
