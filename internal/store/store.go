// Package store persists batch checkpoints and the per-source resolution
// audit in SQLite or Postgres.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/opendate-cli/internal/geospatial"
	"github.com/sells-group/opendate-cli/internal/model"
)

// Resolution is one row of the audit table: one source's answer for one
// entity in one run. Primary marks the winning source.
type Resolution struct {
	RunID               string          `json:"run_id"`
	EntityID            string          `json:"entity_id"`
	Source              string          `json:"source"`
	Outcome             model.Outcome   `json:"outcome"`
	Primary             bool            `json:"primary"`
	Date                string          `json:"date,omitempty"`
	Year                *int            `json:"year,omitempty"`
	Precision           model.Precision `json:"precision,omitempty"`
	Tier                model.Tier      `json:"tier,omitempty"`
	ExternalReferenceID string          `json:"external_reference_id,omitempty"`
	MatchConfidence     *float64        `json:"match_confidence,omitempty"`
	Error               string          `json:"error,omitempty"`
	DurationMS          int64           `json:"duration_ms"`
	// Geometry is the entity location as EWKB (EPSG:4326), when known.
	Geometry  []byte    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// Store defines persistence for resolution runs.
type Store interface {
	// Checkpoints
	SaveCheckpoint(ctx context.Context, key string, cp *model.Checkpoint) error
	LoadCheckpoint(ctx context.Context, key string) (*model.Checkpoint, error)
	DeleteCheckpoint(ctx context.Context, key string) error

	// Resolution audit
	SaveResolutions(ctx context.Context, rows []Resolution) (int64, error)
	ListResolutions(ctx context.Context, runID string) ([]Resolution, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// AuditRows flattens results into one row per attempted source. Entities
// supply the geometry and are matched to results by ID.
func AuditRows(runID string, entities []model.Entity, results []model.ResolvedDate, now time.Time) ([]Resolution, error) {
	coords := make(map[string]*model.LatLon, len(entities))
	for _, e := range entities {
		if e.Coordinates != nil {
			coords[e.ID] = e.Coordinates
		}
	}

	var out []Resolution
	for _, r := range results {
		var geometry []byte
		if c := coords[r.EntityID]; c != nil {
			g, err := geospatial.EncodeEWKB(geospatial.NewLatLonPoint(c.Lat, c.Lon))
			if err != nil {
				return nil, eris.Wrapf(err, "store: geometry for %s", r.EntityID)
			}
			geometry = g
		}
		for _, a := range r.Attempts {
			row := Resolution{
				RunID:      runID,
				EntityID:   r.EntityID,
				Source:     a.Source,
				Outcome:    a.Outcome,
				Primary:    a.Outcome == model.OutcomeHit && a.Source == r.Source,
				Error:      a.Error,
				DurationMS: a.Duration.Milliseconds(),
				Geometry:   geometry,
				CreatedAt:  now,
			}
			if c := a.Candidate; c != nil {
				y := c.Date.Year
				mc := c.MatchConfidence
				row.Date = c.Date.String()
				row.Year = &y
				row.Precision = c.Precision()
				row.ExternalReferenceID = c.ExternalReferenceID
				row.MatchConfidence = &mc
			}
			if row.Primary {
				row.Tier = r.Tier
			}
			out = append(out, row)
		}
	}
	return out, nil
}

var resolutionColumns = []string{
	"run_id", "entity_id", "source", "outcome", "is_primary", "date_value", "year",
	"date_precision", "tier", "external_reference_id", "match_confidence", "error",
	"duration_ms", "geom", "created_at",
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func (r Resolution) values() []any {
	return []any{
		r.RunID, r.EntityID, r.Source, string(r.Outcome), r.Primary,
		nullString(r.Date), r.Year, nullString(string(r.Precision)), nullString(string(r.Tier)),
		nullString(r.ExternalReferenceID), r.MatchConfidence, nullString(r.Error),
		r.DurationMS, r.Geometry, r.CreatedAt,
	}
}

type scannable interface {
	Scan(dest ...any) error
}

func scanResolution(row scannable) (Resolution, error) {
	var r Resolution
	var outcome string
	var date, precision, tier, extID, errMsg *string
	if err := row.Scan(&r.RunID, &r.EntityID, &r.Source, &outcome, &r.Primary,
		&date, &r.Year, &precision, &tier, &extID, &r.MatchConfidence, &errMsg,
		&r.DurationMS, &r.Geometry, &r.CreatedAt); err != nil {
		return Resolution{}, err
	}
	r.Outcome = model.Outcome(outcome)
	r.Date = deref(date)
	r.Precision = model.Precision(deref(precision))
	r.Tier = model.Tier(deref(tier))
	r.ExternalReferenceID = deref(extID)
	r.Error = deref(errMsg)
	return r, nil
}
