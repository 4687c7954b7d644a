// Package batch validates entity input and resolves entities in checkpointed
// chunks.
package batch

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/sells-group/opendate-cli/internal/model"
	"github.com/sells-group/opendate-cli/internal/table"
)

// ErrNoUsableColumns means the input carries none of the columns a source
// can resolve from.
var ErrNoUsableColumns = eris.New("batch: input has no name, property reference or coordinate columns")

// Logical input fields.
const (
	FieldID        = "id"
	FieldName      = "name"
	FieldReference = "property_reference"
	FieldLat       = "lat"
	FieldLon       = "lon"
	FieldPostcode  = "postcode"
	FieldAddress   = "address"
)

// InputFields lists the accepted spellings of every entity column.
func InputFields() []table.Field {
	return []table.Field{
		{Name: FieldID, Aliases: []string{"id", "osm_id", "poi_id", "entity_id"}},
		{Name: FieldName, Aliases: []string{"name", "poi_name"}},
		{Name: FieldReference, Aliases: []string{"uprn", "UPRN", "property_reference"}},
		{Name: FieldLat, Aliases: []string{"lat", "latitude"}},
		{Name: FieldLon, Aliases: []string{"lon", "lng", "longitude"}},
		{Name: FieldPostcode, Aliases: []string{"postcode", "addr:postcode", "postal_code"}},
		{Name: FieldAddress, Aliases: []string{"address", "addr:full", "full_address"}},
	}
}

// Report summarizes how many rows each kind of source could work with.
type Report struct {
	Rows            int      `json:"rows"`
	WithName        int      `json:"with_name"`
	WithCoordinates int      `json:"with_coordinates"`
	WithReference   int      `json:"with_reference"`
	Unusable        int      `json:"unusable"`
	Columns         []string `json:"columns"`
}

// Validate binds the input columns and reports usable rows. It fails when
// the input has none of the name, reference or coordinate columns.
func Validate(t *table.Table, overrides map[string][]string) (table.Columns, Report, error) {
	cols, err := table.Bind("input", t, InputFields(), overrides)
	if err != nil {
		return nil, Report{}, err
	}
	hasCoords := cols.Has(FieldLat) && cols.Has(FieldLon)
	if !cols.Has(FieldName) && !cols.Has(FieldReference) && !hasCoords {
		return nil, Report{}, eris.Wrapf(ErrNoUsableColumns, "have %v", t.Columns)
	}

	rep := Report{Rows: t.Len()}
	for f, i := range cols {
		if i >= 0 {
			rep.Columns = append(rep.Columns, f)
		}
	}
	sort.Strings(rep.Columns)

	for _, e := range EntitiesFrom(t, cols) {
		if e.HasName() {
			rep.WithName++
		}
		if e.Coordinates != nil {
			rep.WithCoordinates++
		}
		if e.HasReference() {
			rep.WithReference++
		}
		if !e.Usable() {
			rep.Unusable++
		}
	}
	return cols, rep, nil
}

// EntitiesFrom builds one entity per row. Rows without an id column value
// are numbered from 1. Unparsable or out-of-range coordinates are dropped.
func EntitiesFrom(t *table.Table, cols table.Columns) []model.Entity {
	out := make([]model.Entity, t.Len())
	for r := range out {
		val := func(f string) string {
			if !cols.Has(f) {
				return ""
			}
			return t.Value(r, cols[f])
		}
		id := val(FieldID)
		if id == "" {
			id = fmt.Sprintf("row-%d", r+1)
		}
		out[r] = model.Entity{
			ID:                id,
			Name:              val(FieldName),
			PropertyReference: val(FieldReference),
			Coordinates:       parseCoords(val(FieldLat), val(FieldLon)),
			PostalCode:        val(FieldPostcode),
			Address:           val(FieldAddress),
			Row:               t.Record(r),
		}
	}
	return out
}

func parseCoords(lat, lon string) *model.LatLon {
	if lat == "" || lon == "" {
		return nil
	}
	la, err1 := strconv.ParseFloat(lat, 64)
	lo, err2 := strconv.ParseFloat(lon, 64)
	if err1 != nil || err2 != nil || la < -90 || la > 90 || lo < -180 || lo > 180 {
		return nil
	}
	return &model.LatLon{Lat: la, Lon: lo}
}
