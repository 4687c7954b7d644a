package provider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/opendate-cli/internal/geospatial"
	"github.com/sells-group/opendate-cli/internal/model"
	"github.com/sells-group/opendate-cli/internal/table"
	"github.com/sells-group/opendate-cli/pkg/wikidata"
)

func TestRegistry(t *testing.T) {
	hit := Func{Source: "b", Fn: func(context.Context, model.Entity) (*model.CandidateDate, error) { return nil, nil }}
	r := NewRegistry(hit, Func{Source: "a"})

	assert.Equal(t, []string{"a", "b"}, r.List())
	assert.NotNil(t, r.Get("b"))
	assert.Nil(t, r.Get("c"))
}

func TestExactKeyBusinessRegistry(t *testing.T) {
	tbl := table.New(
		[]string{"CompanyNumber", "IncorporationDate", "UPRN"},
		[][]string{
			{"01234567", "2001-03-14", "100023336956"},
			{"07654321", "15/06/1998", "100023336956.0"},
			{"09999999", "not a date", "200"},
			{"08888888", "2010-01-01", ""},
		},
	)
	p, err := NewExactKey(BusinessRegistrySpec(), tbl, nil)
	require.NoError(t, err)

	stats := p.Stats()
	assert.Equal(t, 4, stats.Rows)
	assert.Equal(t, 1, stats.Indexed)
	assert.Equal(t, 1, stats.MissingKey)
	assert.Equal(t, 1, stats.UnusableDate)
	assert.Equal(t, 1, stats.DuplicateKeys)

	c, err := p.Produce(context.Background(), model.Entity{ID: "e1", PropertyReference: "100023336956"})
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, model.ExactDay(1998, 6, 15), c.Date, "earliest duplicate wins")
	assert.Equal(t, "07654321", c.ExternalReferenceID)
	assert.Equal(t, model.SourceBusinessRegistry, c.Source)
	assert.InDelta(t, 1.0, c.MatchConfidence, 1e-9)

	c, err = p.Produce(context.Background(), model.Entity{ID: "e2"})
	require.NoError(t, err)
	assert.Nil(t, c, "no reference means no lookup")
}

func TestExactKeyMissingColumns(t *testing.T) {
	tbl := table.New([]string{"UPRN", "notes"}, nil)

	_, err := NewExactKey(PlanningRegistrySpec(), tbl, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, table.ErrMissingColumns)

	_, err = NewExactKey(CadastralAgeSpec(), tbl, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, table.ErrMissingColumns)
	assert.Contains(t, err.Error(), "need one of")
}

func TestExactKeyColumnOverride(t *testing.T) {
	tbl := table.New([]string{"prop_id", "done_on"}, [][]string{{"42", "2015-09-01"}})

	p, err := NewExactKey(PlanningRegistrySpec(), tbl, map[string][]string{
		FieldReference: {"prop_id"},
		FieldDate:      {"done_on"},
	})
	require.NoError(t, err)
	c := p.Lookup("42")
	require.NotNil(t, c)
	assert.Equal(t, model.ExactDay(2015, 9, 1), c.Date)
}

func TestCadastralAgeYearOnly(t *testing.T) {
	tbl := table.New(
		[]string{"uprn", "building_age_period"},
		[][]string{
			{"1", "1930-1939"},
			{"2", "before 1900"},
			{"3", "1990s"},
		},
	)
	p, err := NewExactKey(CadastralAgeSpec(), tbl, nil)
	require.NoError(t, err)

	c := p.Lookup("1")
	require.NotNil(t, c)
	assert.Equal(t, model.YearOnly(1930), c.Date)
	assert.Equal(t, model.PrecisionYearOnly, c.Precision())

	assert.Nil(t, p.Lookup("2"), "open-ended period has no start year")
	require.NotNil(t, p.Lookup("3"))
	assert.Equal(t, 1990, p.Lookup("3").Date.Year)
}

func TestExactKeyAlphanumericReference(t *testing.T) {
	tbl := table.New(
		[]string{"UPRN", "building_age_period"},
		[][]string{
			{"UPRN123", "1980-1989"},
			{"nan", "1990-1999"},
		},
	)
	p, err := NewExactKey(CadastralAgeSpec(), tbl, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, p.Stats().Indexed)
	assert.Equal(t, 1, p.Stats().MissingKey, "null-like placeholders are not keys")

	for _, ref := range []string{"UPRN123", " uprn123 "} {
		c, err := p.Produce(context.Background(), model.Entity{ID: "e", PropertyReference: ref})
		require.NoError(t, err)
		require.NotNil(t, c, ref)
		assert.Equal(t, model.YearOnly(1980), c.Date)
		assert.Equal(t, model.SourceCadastralAge, c.Source)
	}
}

func TestRefinementRegistryAgeBand(t *testing.T) {
	tbl := table.New(
		[]string{"LMK_KEY", "UPRN", "CONSTRUCTION_AGE_BAND"},
		[][]string{{"lmk-1", "77", "England and Wales: 1967-1975"}},
	)
	p, err := NewExactKey(RefinementRegistrySpec(), tbl, nil)
	require.NoError(t, err)

	c := p.Lookup("77")
	require.NotNil(t, c)
	assert.Equal(t, model.YearOnly(1967), c.Date)
	assert.Equal(t, "lmk-1", c.ExternalReferenceID)
}

func TestHeritageRegistryAlwaysYearOnly(t *testing.T) {
	tbl := table.New(
		[]string{"ListEntry", "UPRN", "construction_date", "description"},
		[][]string{
			{"1001", "10", "1753-06-07", ""},
			{"1002", "11", "", "House. Built c.1820, remodelled 1795 and 1890."},
			{"1003", "12", "", "No dates recorded."},
		},
	)
	p, err := NewExactKey(HeritageRegistrySpec(), tbl, nil)
	require.NoError(t, err)

	assert.Equal(t, model.YearOnly(1753), p.Lookup("10").Date)
	assert.Equal(t, model.YearOnly(1795), p.Lookup("11").Date)
	assert.Nil(t, p.Lookup("12"))
}

func TestSpecFor(t *testing.T) {
	for _, s := range model.DefaultPriority {
		_, ok := SpecFor(s)
		switch s {
		case model.SourceKnowledgeGraph, model.SourceTransactionRegistry:
			assert.False(t, ok, s)
		default:
			assert.True(t, ok, s)
		}
	}
}

func TestTransactionFirstSale(t *testing.T) {
	tbl := table.New(
		[]string{"transaction_unique_identifier", "date_of_transfer", "postcode", "SAON", "PAON", "Street"},
		[][]string{
			{"{T2}", "2005-07-01 00:00", "SW1A 2AA", "", "10", "Downing Street"},
			{"{T1}", "1996-02-20 00:00", "sw1a2aa", "", "10", "DOWNING STREET"},
			{"{T3}", "2001-01-01 00:00", "", "", "12", "Nowhere Road"},
		},
	)
	p, err := NewTransaction(tbl, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, p.Stats().Indexed)
	assert.Equal(t, 1, p.Stats().MissingKey)

	c, err := p.Produce(context.Background(), model.Entity{
		ID:         "e1",
		Address:    "10, Downing Street",
		PostalCode: "SW1A 2AA",
	})
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, model.ExactDay(1996, 2, 20), c.Date)
	assert.Equal(t, "{T1}", c.ExternalReferenceID)

	c, err = p.Produce(context.Background(), model.Entity{ID: "e2", Address: "10 Downing Street"})
	require.NoError(t, err)
	assert.Nil(t, c, "postcode required")
}

type fakeKG struct {
	entity    *wikidata.Entity
	searchErr error
	tv        *wikidata.TimeValue
	searches  int
}

func (f *fakeKG) SearchEntity(context.Context, string, string) (*wikidata.Entity, error) {
	f.searches++
	return f.entity, f.searchErr
}

func (f *fakeKG) Inception(context.Context, string) (*wikidata.TimeValue, error) {
	return f.tv, nil
}

func TestKnowledgeGraphProduce(t *testing.T) {
	kg := &fakeKG{
		entity: &wikidata.Entity{QID: "Q1", Label: "Tower of London"},
		tv:     &wikidata.TimeValue{Time: "+1078-01-01T00:00:00Z", Precision: wikidata.PrecisionYear},
	}
	p := NewKnowledgeGraph(kg, "Q84")

	c, err := p.Produce(context.Background(), model.Entity{ID: "e", Name: "Tower of London"})
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, model.YearOnly(1078), c.Date)
	assert.Equal(t, "Q1", c.ExternalReferenceID)

	c, err = p.Produce(context.Background(), model.Entity{ID: "blank", Name: "  "})
	require.NoError(t, err)
	assert.Nil(t, c)
	assert.Equal(t, 1, kg.searches, "blank names are never queried")
}

func TestKnowledgeGraphAmbiguous(t *testing.T) {
	p := NewKnowledgeGraph(&fakeKG{searchErr: wikidata.ErrAmbiguous}, "")

	c, err := p.Produce(context.Background(), model.Entity{ID: "e", Name: "The Crown"})
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestFromTimeValue(t *testing.T) {
	tests := []struct {
		name string
		tv   wikidata.TimeValue
		want model.PartialDate
		ok   bool
	}{
		{"day", wikidata.TimeValue{Time: "+1759-01-15T00:00:00Z", Precision: 11}, model.ExactDay(1759, 1, 15), true},
		{"month keeps year", wikidata.TimeValue{Time: "+1759-01-00T00:00:00Z", Precision: 10}, model.YearOnly(1759), true},
		{"year", wikidata.TimeValue{Time: "+1759-00-00T00:00:00Z", Precision: 9}, model.YearOnly(1759), true},
		{"decade", wikidata.TimeValue{Time: "+1750-00-00T00:00:00Z", Precision: 8}, model.PartialDate{}, false},
		{"bce", wikidata.TimeValue{Time: "-0043-00-00T00:00:00Z", Precision: 9}, model.PartialDate{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := FromTimeValue(tt.tv)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func planningTable() *table.Table {
	return table.New(
		[]string{"UPRN", "completion_date", "site_name", "postcode"},
		[][]string{
			{"500", "2012-04-01", "The Old Mill", "AB1 2CD"},
			{"501", "2014-05-02", "Riverside Court", "AB1 2CD"},
			{"502", "2016-06-03", "Riverside Court", "ZZ9 9ZZ"},
		},
	)
}

func TestLinkedPrefersReference(t *testing.T) {
	inner, err := NewExactKey(PlanningRegistrySpec(), planningTable(), nil)
	require.NoError(t, err)
	fuzzy, err := FuzzyLinkerFor(inner, 1)
	require.NoError(t, err)
	p := NewLinked(inner, fuzzy)

	c, err := p.Produce(context.Background(), model.Entity{ID: "e", Name: "The Old Mill", PropertyReference: "501"})
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, model.ExactDay(2014, 5, 2), c.Date)
	assert.InDelta(t, 1.0, c.MatchConfidence, 1e-9)
}

func TestFuzzyLinker(t *testing.T) {
	inner, err := NewExactKey(PlanningRegistrySpec(), planningTable(), nil)
	require.NoError(t, err)
	fuzzy, err := FuzzyLinkerFor(inner, 1)
	require.NoError(t, err)
	p := NewLinked(inner, fuzzy)

	c, err := p.Produce(context.Background(), model.Entity{ID: "e1", Name: "the old mill"})
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, model.ExactDay(2012, 4, 1), c.Date)
	assert.InDelta(t, 0.5, c.MatchConfidence, 1e-9, "one of two columns matched")

	c, err = p.Produce(context.Background(), model.Entity{ID: "e2", Name: "Riverside Court"})
	require.NoError(t, err)
	assert.Nil(t, c, "two rows with different references tie")

	c, err = p.Produce(context.Background(), model.Entity{ID: "e3", Name: "Riverside Court", PostalCode: "zz99zz"})
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, model.ExactDay(2016, 6, 3), c.Date)
	assert.InDelta(t, 1.0, c.MatchConfidence, 1e-9)
}

func TestFuzzyLinkerNeedsColumns(t *testing.T) {
	_, err := NewFuzzyLinker(table.New([]string{"name"}, nil), map[string]string{FieldName: "name"}, 1)
	assert.ErrorIs(t, err, table.ErrMissingColumns)

	_, err = NewFuzzyLinker(table.New([]string{"UPRN"}, nil), nil, 1)
	assert.Error(t, err)
}

func TestSpatialLinker(t *testing.T) {
	e, n := geospatial.ToBNG(51.5081, -0.0759)
	m, err := geospatial.NewMatcher([]geospatial.RefPoint{
		{ID: "500", Point: geospatial.NewGridPoint(e+3, n+4)},
		{ID: "501", Point: geospatial.NewGridPoint(e+400, n)},
	}, geospatial.DefaultMaxDistance)
	require.NoError(t, err)

	inner, err := NewExactKey(PlanningRegistrySpec(), planningTable(), nil)
	require.NoError(t, err)
	p := NewLinked(inner, NewSpatialLinker(m))

	c, err := p.Produce(context.Background(), model.Entity{ID: "e", Coordinates: &model.LatLon{Lat: 51.5081, Lon: -0.0759}})
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, model.ExactDay(2012, 4, 1), c.Date)
	assert.InDelta(t, 1-0.5*5.0/15.0, c.MatchConfidence, 1e-6)

	c, err = p.Produce(context.Background(), model.Entity{ID: "far", Coordinates: &model.LatLon{Lat: 52.0, Lon: -1.0}})
	require.NoError(t, err)
	assert.Nil(t, c)

	c, err = p.Produce(context.Background(), model.Entity{ID: "none", Name: "x"})
	require.NoError(t, err)
	assert.Nil(t, c)
}
