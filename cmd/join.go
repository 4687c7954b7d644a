package main

import (
	"context"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/opendate-cli/internal/join"
	"github.com/sells-group/opendate-cli/internal/table"
)

var (
	joinLeft       string
	joinRight      string
	joinOn         []string
	joinPostcode   []string
	joinOutput     string
	joinMinMatched int
	joinBestOnly   bool
	joinPrefix     string
)

var joinCmd = &cobra.Command{
	Use:   "join",
	Short: "Fuzzy-join two tables on normalized column values",
	Long: `Pairs rows of --left and --right that agree on at least --min-matched of
the --on columns after normalization (case, accents, punctuation).

Example:
  opendate join --left pois.csv --right listings.csv \
    --on name=list_entry_name --on postcode=postcode --postcode postcode \
    --min-matched 2 --best-only --output joined.csv`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runJoin(cmd.Context())
	},
}

func runJoin(ctx context.Context) error {
	if joinLeft == "" || joinRight == "" {
		return eris.New("join: --left and --right are required")
	}
	pairs, err := parseJoinPairs(joinOn, joinPostcode)
	if err != nil {
		return err
	}

	f := newFetcher(cfg)
	left, err := table.Load(ctx, f, joinLeft, "")
	if err != nil {
		return eris.Wrap(err, "join: load left")
	}
	right, err := table.Load(ctx, f, joinRight, "")
	if err != nil {
		return eris.Wrap(err, "join: load right")
	}

	matches, err := join.Join(left, right, pairs, join.Options{
		MinMatched: joinMinMatched,
		BestOnly:   joinBestOnly,
	})
	if err != nil {
		return err
	}
	merged := join.Merge(left, right, matches, joinPrefix)

	w := os.Stdout
	if joinOutput != "" {
		fh, err := os.Create(joinOutput)
		if err != nil {
			return eris.Wrapf(err, "join: create %s", joinOutput)
		}
		defer fh.Close() //nolint:errcheck
		w = fh
	}
	if err := table.WriteCSV(w, merged); err != nil {
		return eris.Wrap(err, "join: write output")
	}

	zap.L().Info("join complete",
		zap.Int("left_rows", left.Len()),
		zap.Int("right_rows", right.Len()),
		zap.Int("matches", len(matches)),
	)
	return nil
}

// parseJoinPairs turns "left=right" specs into column pairs. A bare name
// compares the same column on both sides. Pairs named in postcodes compare
// with postcode normalization.
func parseJoinPairs(specs, postcodes []string) ([]join.ColumnPair, error) {
	if len(specs) == 0 {
		return nil, eris.New("join: at least one --on pair is required")
	}
	pairs := make([]join.ColumnPair, 0, len(specs))
	for _, s := range specs {
		l, r, ok := strings.Cut(s, "=")
		if !ok {
			r = l
		}
		l, r = strings.TrimSpace(l), strings.TrimSpace(r)
		if l == "" || r == "" {
			return nil, eris.Errorf("join: malformed --on %q, want left=right", s)
		}
		p := join.ColumnPair{Name: l, Left: l, Right: r}
		if contains(postcodes, l) {
			p.Normalize = join.NormalizePostcode
		}
		pairs = append(pairs, p)
	}
	return pairs, nil
}

func init() {
	fl := joinCmd.Flags()
	fl.StringVar(&joinLeft, "left", "", "left table (CSV or XLSX)")
	fl.StringVar(&joinRight, "right", "", "right table (CSV or XLSX)")
	fl.StringArrayVar(&joinOn, "on", nil, "column pair left=right (repeatable)")
	fl.StringSliceVar(&joinPostcode, "postcode", nil, "left columns compared as postcodes")
	fl.StringVar(&joinOutput, "output", "", "output CSV (default stdout)")
	fl.IntVar(&joinMinMatched, "min-matched", 1, "minimum agreeing columns per pair")
	fl.BoolVar(&joinBestOnly, "best-only", false, "keep only the best-scoring pairs per left row")
	fl.StringVar(&joinPrefix, "right-prefix", "right_", "prefix for right-hand columns")
	rootCmd.AddCommand(joinCmd)
}
