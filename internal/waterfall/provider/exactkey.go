package provider

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/opendate-cli/internal/join"
	"github.com/sells-group/opendate-cli/internal/model"
	"github.com/sells-group/opendate-cli/internal/table"
)

// Logical field names shared by registry specs.
const (
	FieldReference   = "property_reference"
	FieldDate        = "date"
	FieldExternalID  = "external_id"
	FieldYear        = "year"
	FieldPeriod      = "period"
	FieldDescription = "description"
	FieldName        = "name"
	FieldAddress     = "address"
	FieldPostcode    = "postcode"
)

// ReferenceAliases are the accepted spellings of a property reference column.
var ReferenceAliases = []string{"UPRN", "uprn", "UPRN_SOURCE", "property_reference"}

// Extractor reads the date of one row; ok is false when the row has none.
type Extractor func(t *table.Table, cols table.Columns, row int) (date model.PartialDate, ok bool)

// Spec describes how to index one registry extract by property reference.
type Spec struct {
	Source string
	Fields []table.Field
	// AnyOf lists optional fields of which at least one must resolve.
	AnyOf   []string
	Extract Extractor
}

// LoadStats counts how rows of an extract were used.
type LoadStats struct {
	Rows          int `json:"rows"`
	Indexed       int `json:"indexed"`
	MissingKey    int `json:"missing_key"`
	UnusableDate  int `json:"unusable_date"`
	DuplicateKeys int `json:"duplicate_keys"`
}

type entry struct {
	date  model.PartialDate
	extID string
}

// ExactKey answers lookups by normalized property reference from an
// in-memory index built once at construction.
type ExactKey struct {
	source string
	byRef  map[string]entry
	stats  LoadStats
	tbl    *table.Table
	cols   table.Columns
}

// NewExactKey indexes t according to spec. Column aliases are resolved once;
// overrides replace a field's default aliases. A missing required column
// fails construction. When a reference repeats, the earliest date is kept.
func NewExactKey(spec Spec, t *table.Table, overrides map[string][]string) (*ExactKey, error) {
	cols, err := table.Bind(spec.Source, t, spec.Fields, overrides)
	if err != nil {
		return nil, err
	}
	if len(spec.AnyOf) > 0 {
		found := false
		for _, f := range spec.AnyOf {
			found = found || cols.Has(f)
		}
		if !found {
			return nil, eris.Wrapf(table.ErrMissingColumns, "%s: need one of %v; have %v", spec.Source, spec.AnyOf, t.Columns)
		}
	}

	p := &ExactKey{source: spec.Source, byRef: make(map[string]entry, t.Len()), tbl: t, cols: cols}
	for r := 0; r < t.Len(); r++ {
		p.stats.Rows++
		ref := join.NormalizeReference(t.Value(r, cols[FieldReference]))
		if ref == "" {
			p.stats.MissingKey++
			continue
		}
		d, ok := spec.Extract(t, cols, r)
		if !ok {
			p.stats.UnusableDate++
			continue
		}
		e := entry{date: d, extID: t.Value(r, cols[FieldExternalID])}
		if prev, dup := p.byRef[ref]; dup {
			p.stats.DuplicateKeys++
			if !d.Before(prev.date) {
				continue
			}
		}
		p.byRef[ref] = e
	}
	p.stats.Indexed = len(p.byRef)

	zap.L().Info("provider: indexed registry",
		zap.String("source", spec.Source),
		zap.Int("rows", p.stats.Rows),
		zap.Int("indexed", p.stats.Indexed),
		zap.Int("missing_key", p.stats.MissingKey),
		zap.Int("unusable_date", p.stats.UnusableDate),
	)
	return p, nil
}

// Name implements Provider.
func (p *ExactKey) Name() string { return p.source }

// Stats reports how the extract was indexed.
func (p *ExactKey) Stats() LoadStats { return p.stats }

// Table returns the indexed extract and its resolved columns.
func (p *ExactKey) Table() (*table.Table, table.Columns) { return p.tbl, p.cols }

// Lookup returns the candidate for a raw property reference.
func (p *ExactKey) Lookup(ref string) *model.CandidateDate {
	e, ok := p.byRef[join.NormalizeReference(ref)]
	if !ok {
		return nil
	}
	return &model.CandidateDate{
		Date:                e.date,
		Source:              p.source,
		ExternalReferenceID: e.extID,
		MatchConfidence:     1.0,
	}
}

// Produce implements Provider.
func (p *ExactKey) Produce(_ context.Context, e model.Entity) (*model.CandidateDate, error) {
	if !e.HasReference() {
		return nil, nil
	}
	return p.Lookup(e.PropertyReference), nil
}
