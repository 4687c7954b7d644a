package table

import (
	"context"
	"encoding/csv"
	"io"

	"github.com/rotisserie/eris"

	"github.com/sells-group/opendate-cli/internal/fetcher"
)

// ReadCSV reads a whole CSV stream with a header row.
func ReadCSV(ctx context.Context, r io.Reader) (*Table, error) {
	headerCh, rowCh, errCh := fetcher.StreamCSV(ctx, r)

	header, ok := <-headerCh
	if !ok {
		return nil, <-errCh
	}
	var rows [][]string
	for row := range rowCh {
		rows = append(rows, row)
	}
	if err := <-errCh; err != nil {
		return nil, err
	}
	return New(header, rows), nil
}

// WriteCSV writes the header and rows of t to w.
func WriteCSV(w io.Writer, t *Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Columns); err != nil {
		return eris.Wrap(err, "table: write header")
	}
	if err := cw.WriteAll(t.Rows); err != nil {
		return eris.Wrap(err, "table: write rows")
	}
	return nil
}
