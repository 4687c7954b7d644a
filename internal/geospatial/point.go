package geospatial

import (
	"math"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
)

// NewGridPoint returns a British National Grid point.
func NewGridPoint(easting, northing float64) *geom.Point {
	return geom.NewPointFlat(geom.XY, []float64{easting, northing}).SetSRID(SRIDBritishNationalGrid)
}

// NewLatLonPoint returns a WGS84 point (x = longitude).
func NewLatLonPoint(lat, lon float64) *geom.Point {
	return geom.NewPointFlat(geom.XY, []float64{lon, lat}).SetSRID(SRIDWGS84)
}

// Project returns p on the British National Grid. WGS84 points are
// reprojected; grid points are returned as is.
func Project(p *geom.Point) (*geom.Point, error) {
	switch p.SRID() {
	case SRIDBritishNationalGrid:
		return p, nil
	case SRIDWGS84, 0:
		e, n := ToBNG(p.Y(), p.X())
		return NewGridPoint(e, n), nil
	default:
		return nil, eris.Errorf("geospatial: unsupported SRID %d", p.SRID())
	}
}

// Distance is the planar distance between two grid points.
func Distance(a, b *geom.Point) float64 {
	return math.Hypot(a.X()-b.X(), a.Y()-b.Y())
}

// EncodeEWKB marshals p as little-endian EWKB for storage.
func EncodeEWKB(p *geom.Point) ([]byte, error) {
	data, err := ewkb.Marshal(p, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "geospatial: encode EWKB")
	}
	return data, nil
}
