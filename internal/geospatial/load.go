package geospatial

import (
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/opendate-cli/internal/table"
)

// Reference point column aliases, matching OS Open UPRN and common extracts.
var (
	idAliases       = []string{"UPRN", "uprn", "UPRN_SOURCE", "property_reference"}
	eastingAliases  = []string{"X_COORDINATE", "Easting", "easting", "x"}
	northingAliases = []string{"Y_COORDINATE", "Northing", "northing", "y"}
	latAliases      = []string{"LATITUDE", "lat", "latitude"}
	lonAliases      = []string{"LONGITUDE", "lon", "lng", "longitude"}
)

// PointsFromTable reads reference points from a table with an identifier
// column and either easting/northing or latitude/longitude columns. Grid
// columns win when both are present. Rows with blank or invalid values are
// skipped and counted.
func PointsFromTable(t *table.Table) ([]RefPoint, int, error) {
	idCol, ok := t.Resolve(idAliases...)
	if !ok {
		return nil, 0, eris.Wrapf(table.ErrMissingColumns, "geospatial: reference id (%s)", strings.Join(idAliases, "|"))
	}

	xCol, okX := t.Resolve(eastingAliases...)
	yCol, okY := t.Resolve(northingAliases...)
	grid := okX && okY
	if !grid {
		xCol, okX = t.Resolve(lonAliases...)
		yCol, okY = t.Resolve(latAliases...)
		if !okX || !okY {
			return nil, 0, eris.Wrap(table.ErrMissingColumns, "geospatial: need Easting/Northing or lat/lon columns")
		}
	}

	points := make([]RefPoint, 0, t.Len())
	skipped := 0
	for r := 0; r < t.Len(); r++ {
		id := t.Value(r, idCol)
		x, errX := strconv.ParseFloat(t.Value(r, xCol), 64)
		y, errY := strconv.ParseFloat(t.Value(r, yCol), 64)
		if id == "" || errX != nil || errY != nil {
			skipped++
			continue
		}
		if grid {
			points = append(points, RefPoint{ID: id, Point: NewGridPoint(x, y)})
			continue
		}
		e, n := ToBNG(y, x)
		points = append(points, RefPoint{ID: id, Point: NewGridPoint(e, n)})
	}
	return points, skipped, nil
}

// PointsFromShapefile reads point shapes whose coordinates are already on
// the British National Grid. idField names the attribute holding the
// reference; empty tries the usual UPRN spellings.
func PointsFromShapefile(path, idField string) ([]RefPoint, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "geospatial: open shapefile %s", path)
	}
	defer func() { _ = reader.Close() }()

	want := idAliases
	if idField != "" {
		want = []string{idField}
	}
	idx := -1
	fields := reader.Fields()
	for _, w := range want {
		for i, f := range fields {
			if strings.EqualFold(strings.TrimRight(f.String(), "\x00"), w) {
				idx = i
				break
			}
		}
		if idx >= 0 {
			break
		}
	}
	if idx < 0 {
		return nil, eris.Wrapf(table.ErrMissingColumns, "geospatial: %s has no id field (%s)", filepath.Base(path), strings.Join(want, "|"))
	}

	var points []RefPoint
	skipped := 0
	for reader.Next() {
		_, shape := reader.Shape()
		pt, ok := shape.(*shp.Point)
		id := strings.TrimSpace(strings.TrimRight(reader.Attribute(idx), "\x00"))
		if !ok || id == "" {
			skipped++
			continue
		}
		points = append(points, RefPoint{ID: id, Point: NewGridPoint(pt.X, pt.Y)})
	}
	if skipped > 0 {
		zap.L().Debug("geospatial: skipped shapefile records",
			zap.String("path", path),
			zap.Int("skipped", skipped),
		)
	}
	return points, nil
}
