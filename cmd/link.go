package main

import (
	"context"
	"os"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/opendate-cli/internal/batch"
	"github.com/sells-group/opendate-cli/internal/geospatial"
	"github.com/sells-group/opendate-cli/internal/table"
)

// Columns appended by the link command.
const (
	colLinkedReference = "UPRN"
	colLinkedDistance  = "uprn_distance_m"
)

var (
	linkInput       string
	linkReferences  string
	linkOutput      string
	linkMaxDistance float64
)

var linkCmd = &cobra.Command{
	Use:   "link",
	Short: "Attach the nearest property reference to each coordinate row",
	Long: `Projects each row's latitude/longitude to the British National Grid and
attaches the nearest reference point within --max-distance metres.

Example:
  opendate link --input pois.csv --references uprn_points.shp --output linked.csv`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runLink(cmd.Context())
	},
}

func runLink(ctx context.Context) error {
	if linkInput == "" {
		return eris.New("link: --input is required")
	}
	refs := linkReferences
	if refs == "" {
		refs = cfg.Spatial.ReferencesPath
	}
	bound := linkMaxDistance
	if bound <= 0 {
		bound = cfg.Spatial.MaxDistance
	}

	f := newFetcher(cfg)
	in, err := table.Load(ctx, f, linkInput, "")
	if err != nil {
		return eris.Wrap(err, "link: load input")
	}
	m, err := loadMatcher(ctx, f, refs, bound)
	if err != nil {
		return eris.Wrap(err, "link: load references")
	}

	out, linked, err := linkTable(in, m)
	if err != nil {
		return err
	}

	w := os.Stdout
	if linkOutput != "" {
		fh, err := os.Create(linkOutput)
		if err != nil {
			return eris.Wrapf(err, "link: create %s", linkOutput)
		}
		defer fh.Close() //nolint:errcheck
		w = fh
	}
	if err := table.WriteCSV(w, out); err != nil {
		return eris.Wrap(err, "link: write output")
	}
	zap.L().Info("link complete",
		zap.Int("rows", in.Len()),
		zap.Int("linked", linked),
		zap.Int("references", m.Len()),
		zap.Float64("max_distance_m", bound),
	)
	return nil
}

// linkTable copies in with the nearest reference and its distance appended.
// Rows without coordinates or without a reference in range get blanks.
func linkTable(in *table.Table, m *geospatial.Matcher) (*table.Table, int, error) {
	cols, _, err := batch.Validate(in, nil)
	if err != nil {
		return nil, 0, err
	}
	if !cols.Has(batch.FieldLat) || !cols.Has(batch.FieldLon) {
		return nil, 0, eris.New("link: input has no latitude/longitude columns")
	}

	header := append(append([]string(nil), in.Columns...), colLinkedReference, colLinkedDistance)
	rows := make([][]string, in.Len())
	linked := 0
	entities := batch.EntitiesFrom(in, cols)
	for i := range in.Rows {
		row := make([]string, len(in.Columns), len(header))
		for c := range in.Columns {
			row[c] = in.Value(i, c)
		}
		ref, dist := "", ""
		if e := entities[i]; e.Coordinates != nil {
			match, ok, err := m.NearestLatLon(e.Coordinates.Lat, e.Coordinates.Lon)
			if err != nil {
				return nil, 0, eris.Wrapf(err, "link: row %d", i+1)
			}
			if ok {
				ref = match.ID
				dist = strconv.FormatFloat(match.Distance, 'f', 2, 64)
				linked++
			}
		}
		rows[i] = append(row, ref, dist)
	}
	return table.New(header, rows), linked, nil
}

func init() {
	fl := linkCmd.Flags()
	fl.StringVar(&linkInput, "input", "", "input CSV or XLSX with lat/lon columns")
	fl.StringVar(&linkReferences, "references", "", "reference points (.shp, CSV or XLSX; default from config)")
	fl.StringVar(&linkOutput, "output", "", "output CSV (default stdout)")
	fl.Float64Var(&linkMaxDistance, "max-distance", 0, "match bound in metres (default from config)")
	rootCmd.AddCommand(linkCmd)
}
