// Package ops provides the base read and write operations of the
// pipeline. Each operation dispatches on a data format name; parquet is
// not handled here, it goes through the warehouse adapter.
package ops

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/cytops/cytops/internal/table"
)

// Formats understood by ReadTable and WriteTable.
const (
	FormatCSV  = "csv"
	FormatTSV  = "tsv"
	FormatJSON = "json"
	FormatYAML = "yaml"
	FormatTXT  = "txt"
	// FormatParquet is recognized by the pipeline but served by the
	// warehouse adapter, not by this package.
	FormatParquet = "parquet"
)

// UnsupportedFormatError is returned when a format has no read or write
// strategy.
type UnsupportedFormatError struct {
	Format string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("%s is not supported", e.Format)
}

// ReadOptions controls how tabular files are read.
type ReadOptions struct {
	// Header indicates the first record carries column names.
	Header bool
	// Columns supplies column names for headerless files. Required when
	// Header is false.
	Columns []string
}

// ReadTable reads a tabular file in the given format.
func ReadTable(path, format string, opts ReadOptions) (*table.Table, error) {
	switch format {
	case FormatCSV:
		return readDelimited(path, ',', opts)
	case FormatTSV:
		return readDelimited(path, '\t', opts)
	case FormatJSON:
		return readJSON(path)
	case FormatYAML:
		return readYAML(path)
	default:
		return nil, &UnsupportedFormatError{Format: format}
	}
}

func readDelimited(path string, delim rune, opts ReadOptions) (*table.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.Comma = delim
	r.LazyQuotes = true

	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if len(records) == 0 {
		if !opts.Header && len(opts.Columns) > 0 {
			return table.New(opts.Columns...), nil
		}
		return nil, fmt.Errorf("reading %s: empty file", path)
	}

	var columns []string
	var rows [][]string
	if opts.Header {
		columns = records[0]
		rows = records[1:]
	} else {
		if len(opts.Columns) == 0 {
			return nil, fmt.Errorf("reading %s: headerless file needs explicit columns", path)
		}
		columns = opts.Columns
		rows = records
	}

	t := table.New(columns...)
	for i, rec := range rows {
		if err := t.AppendRow(rec...); err != nil {
			return nil, fmt.Errorf("reading %s record %d: %w", path, i+1, err)
		}
	}
	return t, nil
}

// readJSON reads an array of flat objects into a table. Column order is
// the sorted union of keys; missing keys become empty cells.
func readJSON(path string) (*table.Table, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var objects []map[string]any
	if err := json.Unmarshal(raw, &objects); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return objectsToTable(objects)
}

// readYAML reads a sequence of flat mappings into a table.
func readYAML(path string) (*table.Table, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var objects []map[string]any
	if err := yaml.Unmarshal(raw, &objects); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return objectsToTable(objects)
}

func objectsToTable(objects []map[string]any) (*table.Table, error) {
	keys := make(map[string]struct{})
	for _, obj := range objects {
		for k := range obj {
			keys[k] = struct{}{}
		}
	}
	columns := make([]string, 0, len(keys))
	for k := range keys {
		columns = append(columns, k)
	}
	sort.Strings(columns)

	t := table.New(columns...)
	for _, obj := range objects {
		cells := make([]string, len(columns))
		for i, c := range columns {
			if v, ok := obj[c]; ok && v != nil {
				cells[i] = fmt.Sprintf("%v", v)
			}
		}
		if err := t.AppendRow(cells...); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// ReadEvents reads a raw event log file and applies the fixed event
// schema. The raw Criteo export is a headerless TSV.
func ReadEvents(path, format string, columns []string) (*table.Table, error) {
	switch format {
	case FormatTSV, FormatCSV:
		return ReadTable(path, format, ReadOptions{Header: false, Columns: columns})
	default:
		return nil, &UnsupportedFormatError{Format: format}
	}
}
