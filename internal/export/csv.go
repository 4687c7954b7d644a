package export

import (
	"context"
	"encoding/csv"
	"io"
	"os"

	"github.com/rotisserie/eris"
)

// CSVSink writes an enriched CSV to W, or to Path when W is nil.
type CSVSink struct {
	Path string
	W    io.Writer
}

// Write implements Sink.
func (s CSVSink) Write(ctx context.Context, run Run) error {
	if len(run.Entities) != len(run.Results) {
		return eris.Errorf("export: %d entities but %d results", len(run.Entities), len(run.Results))
	}
	w := s.W
	if w == nil {
		f, err := os.Create(s.Path)
		if err != nil {
			return eris.Wrapf(err, "export: create %s", s.Path)
		}
		defer f.Close() //nolint:errcheck
		w = f
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(header(run)); err != nil {
		return eris.Wrap(err, "export: write csv header")
	}
	for i := range run.Results {
		if i%1000 == 0 && ctx.Err() != nil {
			return ctx.Err()
		}
		if err := cw.Write(record(run, i)); err != nil {
			return eris.Wrapf(err, "export: write csv row %d", i)
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "export: flush csv")
}
