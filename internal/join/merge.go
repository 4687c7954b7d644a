package join

import (
	"strconv"

	"github.com/sells-group/opendate-cli/internal/table"
)

// Merge renders matches as a table: left columns, right columns prefixed
// with rightPrefix, then the score columns.
func Merge(left, right *table.Table, matches []Match, rightPrefix string) *table.Table {
	cols := make([]string, 0, len(left.Columns)+len(right.Columns)+3)
	cols = append(cols, left.Columns...)
	for _, c := range right.Columns {
		cols = append(cols, rightPrefix+c)
	}
	cols = append(cols, "match_confidence", "confidence_level", "match_ambiguous")

	rows := make([][]string, 0, len(matches))
	for _, m := range matches {
		row := make([]string, 0, len(cols))
		for i := range left.Columns {
			row = append(row, left.Value(m.Left, i))
		}
		for i := range right.Columns {
			row = append(row, right.Value(m.Right, i))
		}
		row = append(row,
			strconv.FormatFloat(m.Confidence, 'f', 4, 64),
			m.Label(),
			strconv.FormatBool(m.Ambiguous),
		)
		rows = append(rows, row)
	}
	return table.New(cols, rows)
}
