package provider

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/opendate-cli/internal/model"
	"github.com/sells-group/opendate-cli/pkg/wikidata"
)

// KnowledgeGraph looks an entity up by name and reports its inception date.
type KnowledgeGraph struct {
	client   wikidata.Client
	locality string
}

// NewKnowledgeGraph scopes searches to localityQID (empty for none).
func NewKnowledgeGraph(client wikidata.Client, localityQID string) *KnowledgeGraph {
	return &KnowledgeGraph{client: client, locality: localityQID}
}

// Name implements Provider.
func (p *KnowledgeGraph) Name() string { return model.SourceKnowledgeGraph }

// Produce implements Provider. Ambiguous labels yield no candidate.
func (p *KnowledgeGraph) Produce(ctx context.Context, e model.Entity) (*model.CandidateDate, error) {
	if !e.HasName() {
		return nil, nil
	}

	ent, err := p.client.SearchEntity(ctx, e.Name, p.locality)
	if errors.Is(err, wikidata.ErrAmbiguous) {
		zap.L().Debug("provider: ambiguous knowledge graph label",
			zap.String("entity", e.ID),
			zap.String("name", e.Name),
		)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if ent == nil {
		return nil, nil
	}

	tv, err := p.client.Inception(ctx, ent.QID)
	if err != nil {
		return nil, err
	}
	if tv == nil {
		return nil, nil
	}
	d, ok := FromTimeValue(*tv)
	if !ok {
		return nil, nil
	}
	return &model.CandidateDate{
		Date:                d,
		Source:              model.SourceKnowledgeGraph,
		ExternalReferenceID: ent.QID,
		MatchConfidence:     1.0,
	}, nil
}

// FromTimeValue keeps only the components a Wikibase time actually asserts:
// day precision gives an exact date, month or year precision gives the year,
// anything coarser (decade, century) or before the common era is dropped.
func FromTimeValue(tv wikidata.TimeValue) (model.PartialDate, bool) {
	if tv.Precision < wikidata.PrecisionYear || strings.HasPrefix(tv.Time, "-") {
		return model.PartialDate{}, false
	}
	if tv.Precision >= wikidata.PrecisionDay {
		d, err := model.ParseDate(tv.Time)
		if err != nil {
			return model.PartialDate{}, false
		}
		return d, true
	}
	y, err := yearOf(tv.Time)
	if err != nil {
		return model.PartialDate{}, false
	}
	return model.YearOnly(y), true
}

func yearOf(t string) (int, error) {
	t = strings.TrimPrefix(t, "+")
	i := strings.IndexByte(t, '-')
	if i <= 0 {
		return 0, eris.Errorf("provider: no year in %q", t)
	}
	y, err := strconv.Atoi(t[:i])
	if err != nil || y <= 0 {
		return 0, eris.Errorf("provider: bad year in %q", t)
	}
	return y, nil
}
