// Package geospatial links coordinates to the nearest property reference
// point on the British National Grid.
package geospatial

import (
	"math"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
)

// DefaultMaxDistance is the default match bound in metres.
const DefaultMaxDistance = 15.0

// RefPoint is a property reference location on the British National Grid.
type RefPoint struct {
	ID    string
	Point *geom.Point
}

// Match is the nearest reference point within the bound.
type Match struct {
	ID       string  `json:"id"`
	Distance float64 `json:"distance_m"`
}

type cell struct{ x, y int64 }

// Matcher answers nearest-reference queries. It is read-only after
// construction and safe for concurrent use.
type Matcher struct {
	bound  float64
	points []RefPoint
	grid   map[cell][]int
}

// NewMatcher indexes points in square cells as wide as bound, so every point
// within bound of a query lies in the query's cell or one of its eight
// neighbours.
func NewMatcher(points []RefPoint, bound float64) (*Matcher, error) {
	if bound <= 0 || math.IsNaN(bound) || math.IsInf(bound, 0) {
		return nil, eris.Errorf("geospatial: bound must be a positive distance, got %g", bound)
	}
	m := &Matcher{bound: bound, points: points, grid: make(map[cell][]int)}
	for i, p := range points {
		if p.Point == nil || p.Point.SRID() != SRIDBritishNationalGrid {
			return nil, eris.Errorf("geospatial: reference %q is not a grid point", p.ID)
		}
		c := m.cellOf(p.Point.X(), p.Point.Y())
		m.grid[c] = append(m.grid[c], i)
	}
	return m, nil
}

// Bound returns the match distance bound.
func (m *Matcher) Bound() float64 { return m.bound }

// Len returns the number of indexed reference points.
func (m *Matcher) Len() int { return len(m.points) }

func (m *Matcher) cellOf(x, y float64) cell {
	return cell{x: int64(math.Floor(x / m.bound)), y: int64(math.Floor(y / m.bound))}
}

// Nearest returns the closest reference point to q, or false when none lies
// within the bound. q may be a WGS84 or grid point. Equidistant references
// resolve to the one loaded first.
func (m *Matcher) Nearest(q *geom.Point) (Match, bool, error) {
	g, err := Project(q)
	if err != nil {
		return Match{}, false, err
	}

	c := m.cellOf(g.X(), g.Y())
	best, bestDist := -1, math.Inf(1)
	for dx := int64(-1); dx <= 1; dx++ {
		for dy := int64(-1); dy <= 1; dy++ {
			for _, i := range m.grid[cell{x: c.x + dx, y: c.y + dy}] {
				d := Distance(g, m.points[i].Point)
				if d < bestDist || (d == bestDist && i < best) {
					best, bestDist = i, d
				}
			}
		}
	}
	if best < 0 || bestDist > m.bound {
		return Match{}, false, nil
	}
	return Match{ID: m.points[best].ID, Distance: bestDist}, true, nil
}

// NearestLatLon is Nearest for a WGS84 coordinate.
func (m *Matcher) NearestLatLon(lat, lon float64) (Match, bool, error) {
	return m.Nearest(NewLatLonPoint(lat, lon))
}
