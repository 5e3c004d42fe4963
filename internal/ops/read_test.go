package ops

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cytops/cytops/pkg/core"
)

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestReadTable_CSVWithHeader(t *testing.T) {
	path := writeTempFile(t, "data.csv", "product,sales\n1,12.5\n2,0\n")

	tbl, err := ReadTable(path, FormatCSV, ReadOptions{Header: true})
	require.NoError(t, err)

	assert.Equal(t, []string{"product", "sales"}, tbl.Columns())
	assert.Equal(t, 2, tbl.Len())
	assert.Equal(t, "12.5", tbl.MustCell(0, "sales"))
}

func TestReadTable_TSVHeaderless(t *testing.T) {
	path := writeTempFile(t, "data.tsv", "1\tx\n2\ty\n")

	tbl, err := ReadTable(path, FormatTSV, ReadOptions{Columns: []string{"id", "name"}})
	require.NoError(t, err)

	assert.Equal(t, 2, tbl.Len())
	assert.Equal(t, "y", tbl.MustCell(1, "name"))
}

func TestReadTable_HeaderlessNeedsColumns(t *testing.T) {
	path := writeTempFile(t, "data.csv", "1,2\n")

	_, err := ReadTable(path, FormatCSV, ReadOptions{})
	assert.ErrorContains(t, err, "explicit columns")
}

func TestReadTable_JSON(t *testing.T) {
	path := writeTempFile(t, "data.json", `[{"b": 2, "a": "x"}, {"a": "y"}]`)

	tbl, err := ReadTable(path, FormatJSON, ReadOptions{})
	require.NoError(t, err)

	// Columns are the sorted union of keys.
	assert.Equal(t, []string{"a", "b"}, tbl.Columns())
	assert.Equal(t, "2", tbl.MustCell(0, "b"))
	assert.Equal(t, "", tbl.MustCell(1, "b"))
}

func TestReadTable_YAML(t *testing.T) {
	path := writeTempFile(t, "data.yaml", "- name: one\n  n: 1\n- name: two\n  n: 2\n")

	tbl, err := ReadTable(path, FormatYAML, ReadOptions{})
	require.NoError(t, err)

	assert.Equal(t, 2, tbl.Len())
	assert.Equal(t, "two", tbl.MustCell(1, "name"))
}

func TestReadTable_UnsupportedFormat(t *testing.T) {
	_, err := ReadTable("whatever", "xml", ReadOptions{})

	var formatErr *UnsupportedFormatError
	require.ErrorAs(t, err, &formatErr)
	assert.Equal(t, "xml", formatErr.Format)
	assert.Equal(t, "xml is not supported", formatErr.Error())
}

func TestReadTable_MissingFile(t *testing.T) {
	_, err := ReadTable(filepath.Join(t.TempDir(), "absent.csv"), FormatCSV, ReadOptions{Header: true})
	assert.Error(t, err)
}

func TestReadEvents(t *testing.T) {
	// Two raw event rows in the fixed 23-column layout.
	row := make([]string, len(core.EventColumns))
	for i := range row {
		row[i] = "0"
	}
	content := ""
	for range 2 {
		content += joinTab(row) + "\n"
	}
	path := writeTempFile(t, "events.tsv", content)

	tbl, err := ReadEvents(path, FormatTSV, core.EventColumns)
	require.NoError(t, err)

	assert.Equal(t, 2, tbl.Len())
	assert.Equal(t, core.EventColumns, tbl.Columns())
}

func TestReadEvents_RejectsNonDelimited(t *testing.T) {
	_, err := ReadEvents("events.parquet", FormatParquet, core.EventColumns)

	var formatErr *UnsupportedFormatError
	assert.ErrorAs(t, err, &formatErr)
}

func joinTab(cells []string) string {
	out := ""
	for i, c := range cells {
		if i > 0 {
			out += "\t"
		}
		out += c
	}
	return out
}
