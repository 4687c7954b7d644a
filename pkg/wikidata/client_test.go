package wikidata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/opendate-cli/internal/resilience"
)

const searchBody = `{"results":{"bindings":[
  {"item":{"type":"uri","value":"http://www.wikidata.org/entity/Q6373"},"itemLabel":{"type":"literal","value":"British Museum"}}
]}}`

func newTestClient(t *testing.T, srv *httptest.Server, opts ...Option) Client {
	t.Helper()
	base := []Option{
		WithEndpoint(srv.URL),
		WithMinInterval(0),
		WithPolicy(resilience.Policy{Attempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}),
	}
	c, err := NewClient("opendate-test/1.0 (test@example.org)", append(base, opts...)...)
	require.NoError(t, err)
	return c
}

func TestNewClient_RequiresUserAgent(t *testing.T) {
	_, err := NewClient("  ")
	assert.Error(t, err)
}

func TestSearchEntity(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/sparql-results+json", r.Header.Get("Accept"))
		assert.Equal(t, "opendate-test/1.0 (test@example.org)", r.Header.Get("User-Agent"))
		q := r.URL.Query().Get("query")
		assert.Contains(t, q, `LCASE("British Museum")`)
		assert.Contains(t, q, "wdt:P131* wd:Q84")
		w.Write([]byte(searchBody)) //nolint:errcheck
	}))
	defer srv.Close()

	got, err := newTestClient(t, srv).SearchEntity(context.Background(), "British Museum", "Q84")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Q6373", got.QID)
}

func TestSearchEntity_Ambiguity(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantQID string
		wantErr error
	}{
		{
			name: "exact label breaks tie",
			body: `{"results":{"bindings":[
			  {"item":{"value":"http://www.wikidata.org/entity/Q1"},"itemLabel":{"value":"Royal Oak Tavern"}},
			  {"item":{"value":"http://www.wikidata.org/entity/Q2"},"itemLabel":{"value":"royal  oak"}}
			]}}`,
			wantQID: "Q2",
		},
		{
			name: "two exact labels",
			body: `{"results":{"bindings":[
			  {"item":{"value":"http://www.wikidata.org/entity/Q1"},"itemLabel":{"value":"Royal Oak"}},
			  {"item":{"value":"http://www.wikidata.org/entity/Q2"},"itemLabel":{"value":"Royal Oak"}}
			]}}`,
			wantErr: ErrAmbiguous,
		},
		{
			name: "no exact label",
			body: `{"results":{"bindings":[
			  {"item":{"value":"http://www.wikidata.org/entity/Q1"},"itemLabel":{"value":"Royal Oak Tavern"}},
			  {"item":{"value":"http://www.wikidata.org/entity/Q2"},"itemLabel":{"value":"Royal Oak Inn"}}
			]}}`,
			wantErr: ErrAmbiguous,
		},
		{
			name: "duplicate rows are one item",
			body: `{"results":{"bindings":[
			  {"item":{"value":"http://www.wikidata.org/entity/Q7"},"itemLabel":{"value":"Royal Oak"}},
			  {"item":{"value":"http://www.wikidata.org/entity/Q7"},"itemLabel":{"value":"Royal Oak"}}
			]}}`,
			wantQID: "Q7",
		},
		{
			name: "empty",
			body: `{"results":{"bindings":[]}}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body)) //nolint:errcheck
			}))
			defer srv.Close()

			got, err := newTestClient(t, srv).SearchEntity(context.Background(), "Royal Oak", "Q84")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, got)
				return
			}
			require.NoError(t, err)
			if tt.wantQID == "" {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.wantQID, got.QID)
		})
	}
}

func TestSearchEntity_EscapesLabel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query().Get("query")
		assert.Contains(t, q, `LCASE("The \"Quoted\" Inn")`)
		w.Write([]byte(`{"results":{"bindings":[]}}`)) //nolint:errcheck
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv).SearchEntity(context.Background(), `The "Quoted" Inn`, "")
	require.NoError(t, err)
}

func TestSearchEntity_EmptyLabelSkipsCall(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	got, err := newTestClient(t, srv).SearchEntity(context.Background(), " ", "Q84")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Zero(t, calls.Load())
}

func TestInception(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Query().Get("query"), "wd:Q6373 p:P571/psv:P571")
		w.Write([]byte(`{"results":{"bindings":[
		  {"time":{"value":"1753-06-07T00:00:00Z"},"precision":{"value":"11"}}
		]}}`)) //nolint:errcheck
	}))
	defer srv.Close()

	got, err := newTestClient(t, srv).Inception(context.Background(), "Q6373")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "1753-06-07T00:00:00Z", got.Time)
	assert.Equal(t, PrecisionDay, got.Precision)
}

func TestInception_InvalidQID(t *testing.T) {
	c, err := NewClient("ua")
	require.NoError(t, err)
	_, err = c.Inception(context.Background(), "P571")
	assert.Error(t, err)
}

func TestQuery_RetriesThrottle(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(searchBody)) //nolint:errcheck
	}))
	defer srv.Close()

	got, err := newTestClient(t, srv).SearchEntity(context.Background(), "British Museum", "")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int32(3), calls.Load())
}

func TestQuery_GivesUpAfterAttempts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv).SearchEntity(context.Background(), "British Museum", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 502")
	assert.Equal(t, int32(3), calls.Load())
}

func TestQuery_BadRequestNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv).SearchEntity(context.Background(), "x", "")
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestQuery_PerCallTimeout(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv, WithTimeout(20*time.Millisecond)).SearchEntity(context.Background(), "x", "")
	require.Error(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestLimiter_SpacesRequests(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results":{"bindings":[]}}`)) //nolint:errcheck
	}))
	defer srv.Close()

	c := newTestClient(t, srv, WithMinInterval(50*time.Millisecond))
	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := c.SearchEntity(context.Background(), "x", "")
		require.NoError(t, err)
	}
	// First call passes immediately, the next two wait one interval each.
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
}

func TestSearchQuery_WithoutLocality(t *testing.T) {
	q := searchQuery("Tate", "", "en")
	assert.False(t, strings.Contains(q, "P131"))
	assert.Contains(t, q, "LIMIT 5")
}
