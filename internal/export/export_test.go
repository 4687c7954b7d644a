package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/opendate-cli/internal/fetcher"
	"github.com/sells-group/opendate-cli/internal/model"
	"github.com/sells-group/opendate-cli/internal/store"
)

func sampleRun() Run {
	d := model.ExactDay(2001, 3, 14)
	y := 2001
	return Run{
		RunID:   "run-1",
		Columns: []string{"id", "name"},
		Entities: []model.Entity{
			{ID: "1", Name: "Cafe", Row: map[string]string{"id": "1", "name": "Cafe"}, Coordinates: &model.LatLon{Lat: 51.5, Lon: -0.1}},
			{ID: "2", Name: "Pub", Row: map[string]string{"id": "2", "name": "Pub"}},
		},
		Results: []model.ResolvedDate{
			{
				EntityID: "1", Date: &d, Year: &y, Source: model.SourceBusinessRegistry, Tier: model.TierHigh,
				AttemptedSources: []string{model.SourceBusinessRegistry},
				Attempts: []model.Attempt{{Source: model.SourceBusinessRegistry, Outcome: model.OutcomeHit,
					Candidate: &model.CandidateDate{Date: d, Source: model.SourceBusinessRegistry, MatchConfidence: 1}}},
			},
			{
				EntityID: "2", AttemptedSources: []string{model.SourceBusinessRegistry},
				Attempts: []model.Attempt{{Source: model.SourceBusinessRegistry, Outcome: model.OutcomeMiss}},
			},
		},
	}
}

func TestCSVSink(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, CSVSink{W: &buf}.Write(context.Background(), sampleRun()))

	recs, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, []string{"id", "name", "openingDate", "openingDateYear", "openingDateSource", "openingDateConfidence"}, recs[0])
	assert.Equal(t, []string{"1", "Cafe", "2001-03-14", "2001", "business_registry", "high"}, recs[1])
	assert.Equal(t, []string{"2", "Pub", "", "", "", ""}, recs[2])
}

func TestCSVSinkMismatch(t *testing.T) {
	run := sampleRun()
	run.Results = run.Results[:1]
	var buf bytes.Buffer
	assert.Error(t, CSVSink{W: &buf}.Write(context.Background(), run))
}

func TestXLSXSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.xlsx")
	require.NoError(t, XLSXSink{Path: path}.Write(context.Background(), sampleRun()))

	header, rows, err := fetcher.ReadXLSX(path, "opening_dates")
	require.NoError(t, err)
	assert.Equal(t, ColConfidence, header[len(header)-1])
	require.Len(t, rows, 2)
	assert.Equal(t, "2001-03-14", rows[0][2])
	assert.Equal(t, "2001", rows[0][3])
	assert.Equal(t, "high", rows[0][5])
}

func TestStoreSink(t *testing.T) {
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	fixed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	sink := Multi{StoreSink{Store: st, Now: func() time.Time { return fixed }}}
	require.NoError(t, sink.Write(context.Background(), sampleRun()))

	rows, err := st.ListResolutions(context.Background(), "run-1")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.True(t, rows[0].Primary)
	assert.NotEmpty(t, rows[0].Geometry)
	assert.False(t, rows[1].Primary)
}
