// Package waterfall resolves an entity's opening date by walking sources in
// priority order and keeping the first usable candidate.
package waterfall

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/opendate-cli/internal/model"
	"github.com/sells-group/opendate-cli/internal/resilience"
	"github.com/sells-group/opendate-cli/internal/waterfall/provider"
)

// Configuration errors returned by NewEngine.
var (
	ErrUnknownSource   = eris.New("waterfall: unknown source in priority order")
	ErrDuplicateSource = eris.New("waterfall: duplicate source in priority order")
	ErrEmptyOrder      = eris.New("waterfall: empty priority order")
)

// Option configures an Engine.
type Option func(*Engine)

// WithBreakers guards every source with a circuit breaker from b. Sources
// whose breaker is open are skipped.
func WithBreakers(b *resilience.Breakers) Option {
	return func(e *Engine) { e.breakers = b }
}

// WithClock replaces time.Now for attempt durations.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// Engine is immutable after construction and safe for concurrent use.
type Engine struct {
	order     []string
	providers []provider.Provider
	breakers  *resilience.Breakers
	now       func() time.Time
}

// NewEngine binds order to providers in registry. Every name must be
// registered exactly once.
func NewEngine(order []string, registry *provider.Registry, opts ...Option) (*Engine, error) {
	if len(order) == 0 {
		return nil, ErrEmptyOrder
	}
	e := &Engine{now: time.Now}
	seen := make(map[string]bool, len(order))
	for _, name := range order {
		if seen[name] {
			return nil, eris.Wrapf(ErrDuplicateSource, "source %q", name)
		}
		seen[name] = true
		p := registry.Get(name)
		if p == nil {
			return nil, eris.Wrapf(ErrUnknownSource, "source %q (registered: %v)", name, registry.List())
		}
		e.order = append(e.order, name)
		e.providers = append(e.providers, p)
	}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

// Order returns a copy of the priority order.
func (e *Engine) Order() []string {
	return append([]string(nil), e.order...)
}

// Resolve walks the priority order and stops at the first source that
// returns a candidate. Source failures are recorded and the walk moves on;
// Resolve itself never fails.
func (e *Engine) Resolve(ctx context.Context, ent model.Entity) model.ResolvedDate {
	res := model.ResolvedDate{
		EntityID:         ent.ID,
		AttemptedSources: make([]string, 0, len(e.order)),
	}

	for i, p := range e.providers {
		name := e.order[i]
		res.AttemptedSources = append(res.AttemptedSources, name)

		att := e.attempt(ctx, name, p, ent)
		res.Attempts = append(res.Attempts, att)
		if att.Outcome != model.OutcomeHit {
			continue
		}

		d := att.Candidate.Date
		year := d.Year
		res.Date = &d
		res.Year = &year
		res.Source = name
		res.Tier = TierOf(name)
		return res
	}
	return res
}

func (e *Engine) attempt(ctx context.Context, name string, p provider.Provider, ent model.Entity) model.Attempt {
	att := model.Attempt{Source: name}

	var br *resilience.Breaker
	if e.breakers != nil {
		br = e.breakers.For(name)
		if err := br.Allow(); err != nil {
			att.Outcome = model.OutcomeSkipped
			att.Error = err.Error()
			return att
		}
	}

	start := e.now()
	c, err := produce(ctx, p, ent)
	att.Duration = e.now().Sub(start)
	if br != nil && ctx.Err() == nil {
		br.Record(err)
	}

	switch {
	case err != nil:
		att.Outcome = model.OutcomeError
		att.Error = err.Error()
		zap.L().Warn("waterfall: source failed",
			zap.String("source", name),
			zap.String("entity", ent.ID),
			zap.Error(err),
		)
	case c == nil || c.Date.IsZero():
		att.Outcome = model.OutcomeMiss
	default:
		if c.Source == "" {
			c.Source = name
		}
		att.Outcome = model.OutcomeHit
		att.Candidate = c
	}
	return att
}

// produce turns a provider panic into an error so one bad source cannot take
// down a batch.
func produce(ctx context.Context, p provider.Provider, ent model.Entity) (c *model.CandidateDate, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = eris.Errorf("waterfall: %s panicked: %v", p.Name(), r)
		}
	}()
	return p.Produce(ctx, ent)
}
