package telemetry

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/opendate-cli/internal/model"
)

func TestObserve(t *testing.T) {
	m := New()
	d := model.YearOnly(1750)
	m.Observe([]model.ResolvedDate{
		{
			EntityID: "a", Date: &d, Source: model.SourceHeritageRegistry, Tier: model.TierMedium,
			Attempts: []model.Attempt{
				{Source: model.SourceKnowledgeGraph, Outcome: model.OutcomeError, Duration: time.Second},
				{Source: model.SourceHeritageRegistry, Outcome: model.OutcomeHit},
			},
		},
		{EntityID: "b", Attempts: []model.Attempt{{Source: model.SourceKnowledgeGraph, Outcome: model.OutcomeMiss}}},
	})

	assert.InDelta(t, 2, testutil.ToFloat64(m.EntitiesTotal), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.ResolutionsTotal.WithLabelValues(model.SourceHeritageRegistry, "medium")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.AttemptsTotal.WithLabelValues(model.SourceKnowledgeGraph, "error")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.AttemptsTotal.WithLabelValues(model.SourceKnowledgeGraph, "miss")), 0)
}

func TestRequestAndHandler(t *testing.T) {
	m := New()
	m.Request("/v1/resolve", http.StatusOK)
	m.Request("/v1/resolve", http.StatusBadRequest)
	m.Request("/v1/resolve", http.StatusServiceUnavailable)
	assert.InDelta(t, 1, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("/v1/resolve", "4xx")), 0)

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "opendate_api_requests_total")
}
