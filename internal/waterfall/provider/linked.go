package provider

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/opendate-cli/internal/geospatial"
	"github.com/sells-group/opendate-cli/internal/join"
	"github.com/sells-group/opendate-cli/internal/model"
	"github.com/sells-group/opendate-cli/internal/table"
)

// Link is a property reference inferred for an entity that lacks one.
type Link struct {
	Reference  string
	Confidence float64
	Method     string
	// Distance is set for spatial links, in metres.
	Distance float64
}

// Linker infers a property reference. ok is false when no confident link
// exists.
type Linker interface {
	Link(ctx context.Context, e model.Entity) (link Link, ok bool, err error)
}

// Linked wraps an exact-key source so that entities without a property
// reference can still be looked up through a linker.
type Linked struct {
	inner   *ExactKey
	linkers []Linker
}

// NewLinked tries linkers in order when an entity has no reference.
func NewLinked(inner *ExactKey, linkers ...Linker) *Linked {
	return &Linked{inner: inner, linkers: linkers}
}

// Name implements Provider.
func (p *Linked) Name() string { return p.inner.Name() }

// Produce implements Provider. The link's confidence is carried onto the
// candidate.
func (p *Linked) Produce(ctx context.Context, e model.Entity) (*model.CandidateDate, error) {
	if e.HasReference() {
		return p.inner.Produce(ctx, e)
	}
	for _, l := range p.linkers {
		link, ok, err := l.Link(ctx, e)
		if err != nil {
			return nil, eris.Wrapf(err, "provider: link %s", e.ID)
		}
		if !ok {
			continue
		}
		c := p.inner.Lookup(link.Reference)
		if c == nil {
			continue
		}
		c.MatchConfidence = link.Confidence
		zap.L().Debug("provider: linked reference",
			zap.String("source", p.Name()),
			zap.String("entity", e.ID),
			zap.String("method", link.Method),
			zap.String("reference", link.Reference),
			zap.Float64("confidence", link.Confidence),
		)
		return c, nil
	}
	return nil, nil
}

// SpatialLinker links an entity's coordinates to the nearest reference point.
type SpatialLinker struct {
	m *geospatial.Matcher
}

// NewSpatialLinker wraps a matcher.
func NewSpatialLinker(m *geospatial.Matcher) *SpatialLinker {
	return &SpatialLinker{m: m}
}

// Link implements Linker. Confidence falls linearly from 1 at zero distance to
// 0.5 at the bound.
func (l *SpatialLinker) Link(_ context.Context, e model.Entity) (Link, bool, error) {
	if e.Coordinates == nil {
		return Link{}, false, nil
	}
	m, ok, err := l.m.NearestLatLon(e.Coordinates.Lat, e.Coordinates.Lon)
	if err != nil || !ok {
		return Link{}, false, err
	}
	return Link{
		Reference:  m.ID,
		Confidence: 1 - 0.5*m.Distance/l.m.Bound(),
		Method:     "spatial",
		Distance:   m.Distance,
	}, true, nil
}

// FuzzyLinker links an entity by normalized name, address and postcode
// against a reference directory.
type FuzzyLinker struct {
	ix         *join.Index
	refCol     int
	fields     []string
	minMatched int
}

// NewFuzzyLinker indexes directory on the given entity fields (FieldName,
// FieldAddress, FieldPostcode) mapped to directory columns. The directory
// must carry a property reference column.
func NewFuzzyLinker(directory *table.Table, columns map[string]string, minMatched int) (*FuzzyLinker, error) {
	refCol, ok := directory.Resolve(ReferenceAliases...)
	if !ok {
		return nil, eris.Wrapf(table.ErrMissingColumns, "provider: reference directory needs a reference column (%v)", ReferenceAliases)
	}

	var pairs []join.ColumnPair
	var fields []string
	for _, f := range []string{FieldName, FieldAddress, FieldPostcode} {
		col, ok := columns[f]
		if !ok || col == "" {
			continue
		}
		p := join.ColumnPair{Name: f, Right: col}
		if f == FieldPostcode {
			p.Normalize = join.NormalizePostcode
		}
		pairs = append(pairs, p)
		fields = append(fields, f)
	}
	if len(pairs) == 0 {
		return nil, eris.New("provider: fuzzy linker needs at least one of name, address, postcode")
	}

	ix, err := join.NewIndex(directory, pairs)
	if err != nil {
		return nil, err
	}
	return &FuzzyLinker{ix: ix, refCol: refCol, fields: fields, minMatched: max(minMatched, 1)}, nil
}

// FuzzyLinkerFor builds a linker over an exact-key source's own extract,
// using whichever of its name, address and postcode columns resolved.
func FuzzyLinkerFor(p *ExactKey, minMatched int) (*FuzzyLinker, error) {
	t, cols := p.Table()
	columns := make(map[string]string)
	for _, f := range []string{FieldName, FieldAddress, FieldPostcode} {
		if cols.Has(f) {
			columns[f] = t.Columns[cols[f]]
		}
	}
	return NewFuzzyLinker(t, columns, minMatched)
}

func entityField(e model.Entity, f string) string {
	switch f {
	case FieldName:
		return e.Name
	case FieldAddress:
		return e.Address
	case FieldPostcode:
		return e.PostalCode
	}
	return ""
}

// Link implements Linker. Ties between rows with different references are
// ambiguous and produce no link.
func (l *FuzzyLinker) Link(_ context.Context, e model.Entity) (Link, bool, error) {
	values := make([]string, len(l.fields))
	for i, f := range l.fields {
		values[i] = entityField(e, f)
	}
	best := l.ix.Lookup(values, join.Options{MinMatched: l.minMatched, BestOnly: true})
	if len(best) == 0 {
		return Link{}, false, nil
	}

	dir := l.ix.Right()
	ref := join.NormalizeReference(dir.Value(best[0].Right, l.refCol))
	for _, m := range best[1:] {
		if join.NormalizeReference(dir.Value(m.Right, l.refCol)) != ref {
			zap.L().Debug("provider: ambiguous fuzzy link",
				zap.String("entity", e.ID),
				zap.Int("candidates", len(best)),
			)
			return Link{}, false, nil
		}
	}
	if ref == "" {
		return Link{}, false, nil
	}
	return Link{Reference: ref, Confidence: best[0].Confidence, Method: "fuzzy"}, true, nil
}
