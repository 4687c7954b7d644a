// Package join links records across tables by equality of normalized column
// values, scoring each pair by the fraction of compared columns that agree.
package join

import (
	"fmt"
	"sort"

	"github.com/rotisserie/eris"

	"github.com/sells-group/opendate-cli/internal/table"
)

// ColumnPair compares column Left of the left table with column Right of the
// right table. Normalize defaults to NormalizeText.
type ColumnPair struct {
	Name      string
	Left      string
	Right     string
	Normalize func(string) string
}

func (p ColumnPair) normalize(s string) string {
	if p.Normalize != nil {
		return p.Normalize(s)
	}
	return NormalizeText(s)
}

// Match is one scored left/right row pairing.
type Match struct {
	Left       int      `json:"left"`
	Right      int      `json:"right"`
	Matched    int      `json:"matched"`
	Total      int      `json:"total"`
	Confidence float64  `json:"confidence"`
	Columns    []string `json:"columns"`
	// Ambiguous is set when another right row ties this one for the best
	// score of its left row.
	Ambiguous bool `json:"ambiguous"`
}

// Label renders the score as "matched/total".
func (m Match) Label() string {
	return fmt.Sprintf("%d/%d", m.Matched, m.Total)
}

// Options filters join output.
type Options struct {
	// MinMatched drops pairs agreeing on fewer columns. Values below 1 are
	// treated as 1.
	MinMatched int
	// BestOnly keeps only the top-scoring pairs of each left row (all of
	// them when tied).
	BestOnly bool
}

// Index is an inverted index over the right-hand table. It is read-only
// after construction and safe for concurrent use.
type Index struct {
	right    *table.Table
	pairs    []ColumnPair
	postings []map[string][]int
}

// NewIndex indexes right on the Right column of every pair.
func NewIndex(right *table.Table, pairs []ColumnPair) (*Index, error) {
	if len(pairs) == 0 {
		return nil, eris.New("join: no column pairs")
	}
	ix := &Index{right: right, pairs: pairs, postings: make([]map[string][]int, len(pairs))}
	for i, p := range pairs {
		col, ok := right.Col(p.Right)
		if !ok {
			return nil, eris.Wrapf(table.ErrMissingColumns, "join: right table has no column %q for %s", p.Right, p.Name)
		}
		post := make(map[string][]int)
		for r := 0; r < right.Len(); r++ {
			if v := p.normalize(right.Value(r, col)); v != "" {
				post[v] = append(post[v], r)
			}
		}
		ix.postings[i] = post
	}
	return ix, nil
}

// Pairs returns the compared columns.
func (ix *Index) Pairs() []ColumnPair { return ix.pairs }

// Right returns the indexed table.
func (ix *Index) Right() *table.Table { return ix.right }

// Lookup scores right rows against raw left values, one per pair in order.
// Empty values never match. Results are sorted by descending score then
// right row.
func (ix *Index) Lookup(values []string, opts Options) []Match {
	minMatched := max(opts.MinMatched, 1)
	counts := make(map[int][]string)
	for i, p := range ix.pairs {
		if i >= len(values) {
			break
		}
		v := p.normalize(values[i])
		if v == "" {
			continue
		}
		for _, r := range ix.postings[i][v] {
			counts[r] = append(counts[r], p.Name)
		}
	}

	total := len(ix.pairs)
	out := make([]Match, 0, len(counts))
	for r, cols := range counts {
		if len(cols) < minMatched {
			continue
		}
		out = append(out, Match{
			Right:      r,
			Matched:    len(cols),
			Total:      total,
			Confidence: float64(len(cols)) / float64(total),
			Columns:    cols,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Matched != out[j].Matched {
			return out[i].Matched > out[j].Matched
		}
		return out[i].Right < out[j].Right
	})

	if len(out) > 1 && out[0].Matched == out[1].Matched {
		for i := range out {
			if out[i].Matched != out[0].Matched {
				break
			}
			out[i].Ambiguous = true
		}
	}
	if opts.BestOnly {
		n := 1
		for n < len(out) && out[n].Matched == out[0].Matched {
			n++
		}
		out = out[:min(n, len(out))]
	}
	return out
}

// Join matches every row of left against right. Pairs tied for a left
// row's best score are all kept and flagged Ambiguous. Output is ordered by
// left row, then score, then right row.
func Join(left, right *table.Table, pairs []ColumnPair, opts Options) ([]Match, error) {
	ix, err := NewIndex(right, pairs)
	if err != nil {
		return nil, err
	}
	cols := make([]int, len(pairs))
	for i, p := range pairs {
		c, ok := left.Col(p.Left)
		if !ok {
			return nil, eris.Wrapf(table.ErrMissingColumns, "join: left table has no column %q for %s", p.Left, p.Name)
		}
		cols[i] = c
	}

	var out []Match
	values := make([]string, len(pairs))
	for r := 0; r < left.Len(); r++ {
		for i, c := range cols {
			values[i] = left.Value(r, c)
		}
		for _, m := range ix.Lookup(values, opts) {
			m.Left = r
			out = append(out, m)
		}
	}
	return out, nil
}
