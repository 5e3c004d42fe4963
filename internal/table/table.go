// Package table provides a minimal in-memory table of string cells.
// It is the unit of data exchanged between pipeline operations; typed
// access is provided by per-column accessors.
package table

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Table holds rows of string cells under an ordered set of column names.
type Table struct {
	columns []string
	index   map[string]int
	rows    [][]string
}

// New creates an empty table with the given columns.
func New(columns ...string) *Table {
	idx := make(map[string]int, len(columns))
	for i, c := range columns {
		idx[c] = i
	}
	return &Table{
		columns: append([]string(nil), columns...),
		index:   idx,
	}
}

// Columns returns the ordered column names.
func (t *Table) Columns() []string {
	return append([]string(nil), t.columns...)
}

// HasColumn reports whether the table has the named column.
func (t *Table) HasColumn(name string) bool {
	_, ok := t.index[name]
	return ok
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.rows)
}

// AppendRow appends a row. The number of cells must match the number of
// columns.
func (t *Table) AppendRow(cells ...string) error {
	if len(cells) != len(t.columns) {
		return fmt.Errorf("row has %d cells, table has %d columns", len(cells), len(t.columns))
	}
	t.rows = append(t.rows, append([]string(nil), cells...))
	return nil
}

// Row returns the cells of row i.
func (t *Table) Row(i int) []string {
	return append([]string(nil), t.rows[i]...)
}

// Cell returns the value at row i, named column. Returns an error for an
// unknown column.
func (t *Table) Cell(i int, column string) (string, error) {
	j, ok := t.index[column]
	if !ok {
		return "", fmt.Errorf("unknown column %q", column)
	}
	return t.rows[i][j], nil
}

// MustCell is Cell without the error return; it panics on an unknown
// column. Intended for columns the caller has already verified.
func (t *Table) MustCell(i int, column string) string {
	v, err := t.Cell(i, column)
	if err != nil {
		panic(err)
	}
	return v
}

// SetCell overwrites the value at row i, named column.
func (t *Table) SetCell(i int, column, value string) error {
	j, ok := t.index[column]
	if !ok {
		return fmt.Errorf("unknown column %q", column)
	}
	t.rows[i][j] = value
	return nil
}

// Float returns the cell at row i parsed as a float64.
func (t *Table) Float(i int, column string) (float64, error) {
	v, err := t.Cell(i, column)
	if err != nil {
		return 0, err
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0, fmt.Errorf("column %q row %d: %w", column, i, err)
	}
	return f, nil
}

// Int returns the cell at row i parsed as an int64.
func (t *Table) Int(i int, column string) (int64, error) {
	v, err := t.Cell(i, column)
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("column %q row %d: %w", column, i, err)
	}
	return n, nil
}

// Column returns all values of the named column in row order.
func (t *Table) Column(name string) ([]string, error) {
	j, ok := t.index[name]
	if !ok {
		return nil, fmt.Errorf("unknown column %q", name)
	}
	out := make([]string, len(t.rows))
	for i, row := range t.rows {
		out[i] = row[j]
	}
	return out, nil
}

// AddColumn appends a new column filled with the given values. The value
// count must match the row count; an empty table gains rows.
func (t *Table) AddColumn(name string, values []string) error {
	if _, exists := t.index[name]; exists {
		return fmt.Errorf("column %q already exists", name)
	}
	if len(t.rows) > 0 && len(values) != len(t.rows) {
		return fmt.Errorf("column %q has %d values, table has %d rows", name, len(values), len(t.rows))
	}
	t.index[name] = len(t.columns)
	t.columns = append(t.columns, name)
	if len(t.rows) == 0 {
		for _, v := range values {
			t.rows = append(t.rows, []string{v})
		}
		return nil
	}
	for i := range t.rows {
		t.rows[i] = append(t.rows[i], values[i])
	}
	return nil
}

// Select returns a new table with only the named columns, preserving row
// order.
func (t *Table) Select(columns ...string) (*Table, error) {
	idxs := make([]int, len(columns))
	for i, c := range columns {
		j, ok := t.index[c]
		if !ok {
			return nil, fmt.Errorf("unknown column %q", c)
		}
		idxs[i] = j
	}
	out := New(columns...)
	for _, row := range t.rows {
		cells := make([]string, len(idxs))
		for i, j := range idxs {
			cells[i] = row[j]
		}
		out.rows = append(out.rows, cells)
	}
	return out, nil
}

// Filter returns a new table containing only rows for which keep returns
// true. The row index passed to keep refers to the original table.
func (t *Table) Filter(keep func(i int) bool) *Table {
	out := New(t.columns...)
	for i, row := range t.rows {
		if keep(i) {
			out.rows = append(out.rows, append([]string(nil), row...))
		}
	}
	return out
}

// SortBy sorts rows in place by the named column, lexicographically.
func (t *Table) SortBy(column string) error {
	j, ok := t.index[column]
	if !ok {
		return fmt.Errorf("unknown column %q", column)
	}
	sort.SliceStable(t.rows, func(a, b int) bool {
		return t.rows[a][j] < t.rows[b][j]
	})
	return nil
}

// DistinctRows returns a new table with duplicate rows removed, keeping
// the first occurrence.
func (t *Table) DistinctRows() *Table {
	out := New(t.columns...)
	seen := make(map[string]struct{}, len(t.rows))
	for _, row := range t.rows {
		key := strings.Join(row, "\x1f")
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out.rows = append(out.rows, append([]string(nil), row...))
	}
	return out
}

// Distinct returns the distinct values of the named column, in first-seen
// order.
func (t *Table) Distinct(column string) ([]string, error) {
	values, err := t.Column(column)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(values))
	var out []string
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out, nil
}

// Clone returns a deep copy of the table.
func (t *Table) Clone() *Table {
	out := New(t.columns...)
	for _, row := range t.rows {
		out.rows = append(out.rows, append([]string(nil), row...))
	}
	return out
}
