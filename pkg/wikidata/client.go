// Package wikidata queries the Wikidata SPARQL endpoint for entities by
// label and for their inception (P571) dates.
package wikidata

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/opendate-cli/internal/resilience"
)

const (
	defaultEndpoint = "https://query.wikidata.org/sparql"
	defaultLanguage = "en"
	searchLimit     = 5
	entityPrefix    = "http://www.wikidata.org/entity/"
)

// Time precision codes used by Wikibase time values.
const (
	PrecisionYear  = 9
	PrecisionMonth = 10
	PrecisionDay   = 11
)

// ErrAmbiguous is returned when a label search has several equally good
// candidates.
var ErrAmbiguous = eris.New("wikidata: ambiguous label")

// Entity is a search hit.
type Entity struct {
	QID   string `json:"qid"`
	Label string `json:"label"`
}

// TimeValue is a Wikibase time with its precision code.
type TimeValue struct {
	Time      string `json:"time"`
	Precision int    `json:"precision"`
}

// Client looks up entities and inception dates.
type Client interface {
	// SearchEntity returns the single entity whose label matches within the
	// locality, nil when there is none, or ErrAmbiguous.
	SearchEntity(ctx context.Context, label, localityQID string) (*Entity, error)
	// Inception returns the earliest inception value of qid, or nil.
	Inception(ctx context.Context, qid string) (*TimeValue, error)
}

// Option configures the client.
type Option func(*httpClient)

// WithEndpoint overrides the SPARQL endpoint URL.
func WithEndpoint(u string) Option {
	return func(c *httpClient) { c.endpoint = u }
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) { c.http = hc }
}

// WithLimiter shares a request gate with other clients. Every attempt,
// including retries, waits on it.
func WithLimiter(l *rate.Limiter) Option {
	return func(c *httpClient) { c.limiter = l }
}

// WithMinInterval sets the minimum spacing between requests.
func WithMinInterval(d time.Duration) Option {
	return func(c *httpClient) { c.limiter = newLimiter(d) }
}

// WithPolicy overrides the retry policy.
func WithPolicy(p resilience.Policy) Option {
	return func(c *httpClient) { c.policy = p }
}

// WithTimeout bounds each HTTP attempt.
func WithTimeout(d time.Duration) Option {
	return func(c *httpClient) { c.timeout = d }
}

// WithLanguage sets the label language.
func WithLanguage(lang string) Option {
	return func(c *httpClient) { c.language = lang }
}

type httpClient struct {
	userAgent string
	endpoint  string
	language  string
	timeout   time.Duration
	http      *http.Client
	limiter   *rate.Limiter
	policy    resilience.Policy
}

func newLimiter(d time.Duration) *rate.Limiter {
	if d <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(d), 1)
}

// NewClient creates a SPARQL client. The endpoint operators require an
// identifying User-Agent, so an empty one is an error.
func NewClient(userAgent string, opts ...Option) (Client, error) {
	if strings.TrimSpace(userAgent) == "" {
		return nil, eris.New("wikidata: user agent is required")
	}
	c := &httpClient{
		userAgent: userAgent,
		endpoint:  defaultEndpoint,
		language:  defaultLanguage,
		timeout:   30 * time.Second,
		http:      &http.Client{},
		limiter:   newLimiter(time.Second),
		policy:    resilience.DefaultPolicy(),
	}
	for _, o := range opts {
		o(c)
	}
	c.policy.OnRetry = resilience.LogRetry("wikidata", "sparql")
	return c, nil
}

type sparqlResponse struct {
	Results struct {
		Bindings []map[string]struct {
			Type  string `json:"type"`
			Value string `json:"value"`
		} `json:"bindings"`
	} `json:"results"`
}

var qidPattern = regexp.MustCompile(`^Q[1-9]\d*$`)

// ValidQID reports whether s looks like a Wikidata item identifier.
func ValidQID(s string) bool {
	return qidPattern.MatchString(s)
}

func (c *httpClient) SearchEntity(ctx context.Context, label, localityQID string) (*Entity, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return nil, nil
	}
	if localityQID != "" && !ValidQID(localityQID) {
		return nil, eris.Errorf("wikidata: invalid locality %q", localityQID)
	}

	q := searchQuery(label, localityQID, c.language)
	resp, err := c.query(ctx, q)
	if err != nil {
		return nil, eris.Wrap(err, "wikidata: search")
	}

	seen := make(map[string]bool)
	var hits []Entity
	for _, b := range resp.Results.Bindings {
		qid := strings.TrimPrefix(b["item"].Value, entityPrefix)
		if !ValidQID(qid) || seen[qid] {
			continue
		}
		seen[qid] = true
		hits = append(hits, Entity{QID: qid, Label: b["itemLabel"].Value})
	}
	return pickUnambiguous(label, hits)
}

// pickUnambiguous accepts a lone hit, or the single hit whose label equals
// the query once case and spacing are ignored.
func pickUnambiguous(label string, hits []Entity) (*Entity, error) {
	switch len(hits) {
	case 0:
		return nil, nil
	case 1:
		return &hits[0], nil
	}
	want := foldLabel(label)
	var exact []Entity
	for _, h := range hits {
		if foldLabel(h.Label) == want {
			exact = append(exact, h)
		}
	}
	if len(exact) == 1 {
		return &exact[0], nil
	}
	return nil, ErrAmbiguous
}

func foldLabel(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func (c *httpClient) Inception(ctx context.Context, qid string) (*TimeValue, error) {
	if !ValidQID(qid) {
		return nil, eris.Errorf("wikidata: invalid entity id %q", qid)
	}
	resp, err := c.query(ctx, inceptionQuery(qid))
	if err != nil {
		return nil, eris.Wrap(err, "wikidata: inception")
	}
	for _, b := range resp.Results.Bindings {
		t := b["time"].Value
		p, err := strconv.Atoi(b["precision"].Value)
		if t == "" || err != nil {
			continue
		}
		return &TimeValue{Time: t, Precision: p}, nil
	}
	return nil, nil
}

func (c *httpClient) query(ctx context.Context, sparql string) (*sparqlResponse, error) {
	return resilience.RetryValue(ctx, c.policy, func(ctx context.Context) (*sparqlResponse, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "rate limit wait")
		}
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()
		return c.do(callCtx, sparql)
	})
}

func (c *httpClient) do(ctx context.Context, sparql string) (*sparqlResponse, error) {
	u := c.endpoint + "?" + url.Values{"query": {sparql}, "format": {"json"}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, eris.Wrap(err, "create request")
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/sparql-results+json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resilience.Transient(eris.Wrap(err, "read response"), 0)
	}
	if resp.StatusCode != http.StatusOK {
		err := eris.Errorf("unexpected status %d: %s", resp.StatusCode, truncate(string(body), 200))
		if resilience.RetryableStatus(resp.StatusCode) {
			return nil, resilience.Transient(err, resp.StatusCode)
		}
		return nil, err
	}

	var out sparqlResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, eris.Wrap(err, "unmarshal response")
	}
	return &out, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
