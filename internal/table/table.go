// Package table holds tabular source data in memory with column alias
// resolution.
package table

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/opendate-cli/internal/fetcher"
)

// ErrMissingColumns is wrapped by errors for unresolvable required columns.
var ErrMissingColumns = eris.New("table: missing required columns")

// Table is an immutable rows-by-named-columns collection.
type Table struct {
	Columns []string
	Rows    [][]string

	index map[string]int
}

// New builds a table. Column lookups are case-insensitive; the first
// occurrence of a duplicated header wins.
func New(columns []string, rows [][]string) *Table {
	idx := make(map[string]int, len(columns))
	for i, c := range columns {
		k := strings.ToLower(strings.TrimSpace(c))
		if _, dup := idx[k]; !dup {
			idx[k] = i
		}
	}
	return &Table{Columns: columns, Rows: rows, index: idx}
}

// Len returns the number of data rows.
func (t *Table) Len() int { return len(t.Rows) }

// Col returns the index of a column.
func (t *Table) Col(name string) (int, bool) {
	i, ok := t.index[strings.ToLower(strings.TrimSpace(name))]
	return i, ok
}

// Resolve returns the index of the first alias present in the table.
func (t *Table) Resolve(aliases ...string) (int, bool) {
	for _, a := range aliases {
		if i, ok := t.Col(a); ok {
			return i, true
		}
	}
	return -1, false
}

// Value returns the trimmed cell at row r, column c, or "" when the row is
// short or c is negative.
func (t *Table) Value(r, c int) string {
	if c < 0 || r < 0 || r >= len(t.Rows) || c >= len(t.Rows[r]) {
		return ""
	}
	return strings.TrimSpace(t.Rows[r][c])
}

// Record returns row r as a column-name map.
func (t *Table) Record(r int) map[string]string {
	out := make(map[string]string, len(t.Columns))
	for i, c := range t.Columns {
		out[c] = t.Value(r, i)
	}
	return out
}

// Load reads a CSV or XLSX file from any location the fetcher understands.
func Load(ctx context.Context, f *fetcher.Fetcher, loc, sheet string) (*Table, error) {
	p, err := f.Local(ctx, loc)
	if err != nil {
		return nil, err
	}
	return LoadFile(ctx, p, sheet)
}

// LoadFile reads a local CSV or XLSX file.
func LoadFile(ctx context.Context, path, sheet string) (*Table, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		header, rows, err := fetcher.ReadXLSX(path, sheet)
		if err != nil {
			return nil, err
		}
		return New(header, rows), nil
	default:
		fh, err := os.Open(path)
		if err != nil {
			return nil, eris.Wrapf(err, "table: open %s", path)
		}
		defer fh.Close() //nolint:errcheck
		t, err := ReadCSV(ctx, fh)
		if err != nil {
			return nil, eris.Wrapf(err, "table: read %s", path)
		}
		return t, nil
	}
}
