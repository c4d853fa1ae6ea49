// Package dataset provides the in-memory tabular type shared by every
// pipeline stage.
package dataset

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Table is an ordered set of named numeric columns.
//
// Tables are never modified in place by this package: every transformation
// returns a new Table. Rows of the result may share backing arrays with the
// receiver only where documented.
type Table struct {
	Columns []string
	Rows    [][]float64

	index map[string]int
}

// MissingColumnsError reports column names a caller required but a table
// does not have.
type MissingColumnsError struct {
	Missing []string
}

func (e *MissingColumnsError) Error() string {
	return fmt.Sprintf("missing columns: %s", strings.Join(e.Missing, ", "))
}

// New creates a table, checking that column names are unique and that every
// row has one value per column.
func New(columns []string, rows [][]float64) (*Table, error) {
	t := &Table{Columns: columns, Rows: rows}
	if err := t.buildIndex(); err != nil {
		return nil, err
	}
	for i, row := range rows {
		if len(row) != len(columns) {
			return nil, fmt.Errorf("row %d has %d values, expected %d", i, len(row), len(columns))
		}
	}
	return t, nil
}

// Empty returns a table with the given header and no rows.
func Empty(columns []string) *Table {
	t := &Table{Columns: columns, Rows: [][]float64{}}
	_ = t.buildIndex()
	return t
}

func (t *Table) buildIndex() error {
	t.index = make(map[string]int, len(t.Columns))
	for i, name := range t.Columns {
		if _, dup := t.index[name]; dup {
			return fmt.Errorf("duplicate column %q", name)
		}
		t.index[name] = i
	}
	return nil
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.Rows)
}

// Index returns the position of the named column.
func (t *Table) Index(name string) (int, bool) {
	if t.index == nil {
		_ = t.buildIndex()
	}
	i, ok := t.index[name]
	return i, ok
}

// Has reports whether the named column exists.
func (t *Table) Has(name string) bool {
	_, ok := t.Index(name)
	return ok
}

// Missing returns, sorted and deduplicated, the names not present in the
// table.
func (t *Table) Missing(names ...string) []string {
	var missing []string
	seen := make(map[string]bool)
	for _, name := range names {
		if !t.Has(name) && !seen[name] {
			seen[name] = true
			missing = append(missing, name)
		}
	}
	sort.Strings(missing)
	return missing
}

// Column returns a copy of the named column's values.
func (t *Table) Column(name string) ([]float64, error) {
	i, ok := t.Index(name)
	if !ok {
		return nil, &MissingColumnsError{Missing: []string{name}}
	}
	out := make([]float64, len(t.Rows))
	for r, row := range t.Rows {
		out[r] = row[i]
	}
	return out, nil
}

// Select returns a new table holding exactly the named columns in the given
// order. It fails with a *MissingColumnsError listing every absent name.
func (t *Table) Select(names ...string) (*Table, error) {
	if missing := t.Missing(names...); len(missing) > 0 {
		return nil, &MissingColumnsError{Missing: missing}
	}

	positions := make([]int, len(names))
	for j, name := range names {
		positions[j], _ = t.Index(name)
	}

	rows := make([][]float64, len(t.Rows))
	for r, row := range t.Rows {
		out := make([]float64, len(positions))
		for j, p := range positions {
			out[j] = row[p]
		}
		rows[r] = out
	}
	return New(append([]string(nil), names...), rows)
}

// Drop returns a new table without the named columns. Unknown names are
// ignored.
func (t *Table) Drop(names ...string) *Table {
	skip := make(map[string]bool, len(names))
	for _, name := range names {
		skip[name] = true
	}

	var keep []string
	for _, name := range t.Columns {
		if !skip[name] {
			keep = append(keep, name)
		}
	}

	out, _ := t.Select(keep...)
	return out
}

// WithColumns returns a new table with the given columns appended after the
// existing ones. Each values slice must have one entry per row.
func (t *Table) WithColumns(names []string, values ...[]float64) (*Table, error) {
	if len(names) != len(values) {
		return nil, errors.New("column names and values differ in length")
	}
	for j, v := range values {
		if len(v) != len(t.Rows) {
			return nil, fmt.Errorf("column %q has %d values, table has %d rows", names[j], len(v), len(t.Rows))
		}
	}

	columns := make([]string, 0, len(t.Columns)+len(names))
	columns = append(columns, t.Columns...)
	columns = append(columns, names...)

	rows := make([][]float64, len(t.Rows))
	for r, row := range t.Rows {
		out := make([]float64, 0, len(columns))
		out = append(out, row...)
		for _, v := range values {
			out = append(out, v[r])
		}
		rows[r] = out
	}
	return New(columns, rows)
}

// Head returns a table with at most the first n rows. n <= 0 returns every
// row. Rows are shared with the receiver.
func (t *Table) Head(n int) *Table {
	if n <= 0 || n >= len(t.Rows) {
		n = len(t.Rows)
	}
	out := &Table{Columns: t.Columns, Rows: t.Rows[:n]}
	_ = out.buildIndex()
	return out
}

// Matrix returns the rows for direct numeric use. The slice is shared with
// the table and must not be modified.
func (t *Table) Matrix() [][]float64 {
	return t.Rows
}

// ColumnsWithPrefix returns, in table order, every column whose name starts
// with prefix.
func (t *Table) ColumnsWithPrefix(prefix string) []string {
	var out []string
	for _, name := range t.Columns {
		if strings.HasPrefix(name, prefix) {
			out = append(out, name)
		}
	}
	return out
}
