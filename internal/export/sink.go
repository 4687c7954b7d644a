// Package export writes resolved opening dates back out alongside the input
// rows.
package export

import (
	"context"
	"strconv"

	"github.com/sells-group/opendate-cli/internal/model"
)

// Output column names appended to the input columns.
const (
	ColDate       = "openingDate"
	ColYear       = "openingDateYear"
	ColSource     = "openingDateSource"
	ColConfidence = "openingDateConfidence"
)

// OutputColumns are appended in this order.
var OutputColumns = []string{ColDate, ColYear, ColSource, ColConfidence}

// Run is a finished batch ready for output. Entities and Results are
// index-aligned.
type Run struct {
	RunID    string
	Columns  []string
	Entities []model.Entity
	Results  []model.ResolvedDate
}

// Sink consumes a finished run.
type Sink interface {
	Write(ctx context.Context, run Run) error
}

// Multi writes to every sink in order and stops at the first error.
type Multi []Sink

// Write implements Sink.
func (m Multi) Write(ctx context.Context, run Run) error {
	for _, s := range m {
		if err := s.Write(ctx, run); err != nil {
			return err
		}
	}
	return nil
}

// header returns the input columns followed by the output columns.
func header(run Run) []string {
	out := make([]string, 0, len(run.Columns)+len(OutputColumns))
	out = append(out, run.Columns...)
	return append(out, OutputColumns...)
}

// record renders row i. Unresolved entities get empty output cells.
func record(run Run, i int) []string {
	out := make([]string, 0, len(run.Columns)+len(OutputColumns))
	e := run.Entities[i]
	for _, c := range run.Columns {
		out = append(out, e.Row[c])
	}
	r := run.Results[i]
	if !r.Resolved() {
		return append(out, "", "", "", "")
	}
	return append(out, r.Date.String(), strconv.Itoa(*r.Year), r.Source, string(r.Tier))
}
