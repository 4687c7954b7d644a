package export

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// XLSXSink writes an enriched workbook with a single sheet.
type XLSXSink struct {
	Path  string
	Sheet string
}

// Write implements Sink. The year column is written as a number.
func (s XLSXSink) Write(ctx context.Context, run Run) error {
	if len(run.Entities) != len(run.Results) {
		return eris.Errorf("export: %d entities but %d results", len(run.Entities), len(run.Results))
	}
	name := s.Sheet
	if name == "" {
		name = "opening_dates"
	}

	f := xlsx.NewFile()
	sheet, err := f.AddSheet(name)
	if err != nil {
		return eris.Wrapf(err, "export: add sheet %q", name)
	}

	hdr := sheet.AddRow()
	for _, c := range header(run) {
		hdr.AddCell().SetString(c)
	}
	yearCol := len(run.Columns) + 1
	for i := range run.Results {
		if i%1000 == 0 && ctx.Err() != nil {
			return ctx.Err()
		}
		row := sheet.AddRow()
		for j, v := range record(run, i) {
			cell := row.AddCell()
			if j == yearCol && run.Results[i].Year != nil {
				cell.SetInt(*run.Results[i].Year)
				continue
			}
			cell.SetString(v)
		}
	}
	return eris.Wrapf(f.Save(s.Path), "export: save %s", s.Path)
}
