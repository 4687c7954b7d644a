package main

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/opendate-cli/internal/config"
	"github.com/sells-group/opendate-cli/internal/fetcher"
	"github.com/sells-group/opendate-cli/internal/geospatial"
	"github.com/sells-group/opendate-cli/internal/model"
	"github.com/sells-group/opendate-cli/internal/resilience"
	"github.com/sells-group/opendate-cli/internal/store"
	"github.com/sells-group/opendate-cli/internal/table"
	"github.com/sells-group/opendate-cli/internal/waterfall"
	"github.com/sells-group/opendate-cli/internal/waterfall/provider"
	"github.com/sells-group/opendate-cli/pkg/wikidata"
)

// resolveEnv holds the engine and everything it was built from.
type resolveEnv struct {
	Engine   *waterfall.Engine
	Registry *provider.Registry
	Breakers *resilience.Breakers
	Fetcher  *fetcher.Fetcher
	// Disabled lists sources dropped because their data failed to load.
	Disabled []string
}

func newFetcher(c *config.Config) *fetcher.Fetcher {
	return fetcher.New(fetcher.Options{
		TempDir:   c.Fetch.TempDir,
		UserAgent: c.Fetch.UserAgent,
		Timeout:   c.Fetch.Timeout,
	})
}

// priorityOrder picks the order from the flag, the priority file, then the
// config, in that precedence.
func priorityOrder(c *config.Config, flag string) ([]string, error) {
	if flag != "" {
		var out []string
		for _, s := range strings.Split(flag, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		return out, nil
	}
	if c.PriorityFile != "" {
		pc, err := waterfall.LoadConfig(c.PriorityFile)
		if err != nil {
			return nil, err
		}
		return pc.Priority, nil
	}
	return c.Priority, nil
}

// initEnv loads every enabled source named in order and builds the engine.
// Sources that are disabled or have no configured data are dropped from the
// order. Unknown names are left in so the engine rejects them.
func initEnv(ctx context.Context, c *config.Config, order []string, disabled map[string]bool) (*resolveEnv, error) {
	env := &resolveEnv{
		Registry: provider.NewRegistry(),
		Breakers: resilience.NewBreakers(resilience.BreakerFrom(c.Breaker.Threshold, c.Breaker.Cooldown)),
		Fetcher:  newFetcher(c),
	}

	var active []string
	var local []string
	for _, name := range order {
		switch {
		case !model.KnownSource(name):
			active = append(active, name)
		case disabled[name]:
			zap.L().Info("source disabled by flag", zap.String("source", name))
		case name == model.SourceKnowledgeGraph:
			if !c.KnowledgeGraph.Enabled {
				zap.L().Info("knowledge graph disabled in config")
				continue
			}
			kg, err := newKnowledgeGraph(c.KnowledgeGraph)
			if err != nil {
				return nil, err
			}
			env.Registry.Register(kg)
			active = append(active, name)
		default:
			sc := c.Sources.ByName(name)
			if !sc.Enabled || sc.Path == "" {
				zap.L().Info("source not configured", zap.String("source", name))
				continue
			}
			local = append(local, name)
			active = append(active, name)
		}
	}

	loaded, err := loadLocalSources(ctx, c, env.Fetcher, local)
	if err != nil {
		return nil, err
	}
	for i, name := range local {
		if loaded[i] == nil {
			env.Disabled = append(env.Disabled, name)
			continue
		}
		env.Registry.Register(loaded[i])
	}
	if len(env.Disabled) > 0 {
		keep := active[:0]
		for _, name := range active {
			if !contains(env.Disabled, name) {
				keep = append(keep, name)
			}
		}
		active = keep
	}

	engine, err := waterfall.NewEngine(active, env.Registry, waterfall.WithBreakers(env.Breakers))
	if err != nil {
		return nil, err
	}
	env.Engine = engine
	zap.L().Info("resolution engine ready",
		zap.Strings("priority", engine.Order()),
		zap.Strings("disabled", env.Disabled),
	)
	return env, nil
}

func newKnowledgeGraph(kc config.KnowledgeGraphConfig) (*provider.KnowledgeGraph, error) {
	client, err := wikidata.NewClient(kc.UserAgent,
		wikidata.WithEndpoint(kc.Endpoint),
		wikidata.WithMinInterval(kc.MinInterval),
		wikidata.WithPolicy(resilience.PolicyFrom(kc.MaxAttempts, kc.BaseBackoff, 0)),
		wikidata.WithTimeout(kc.Timeout),
		wikidata.WithLanguage(kc.Language),
	)
	if err != nil {
		return nil, err
	}
	return provider.NewKnowledgeGraph(client, kc.LocalityQID), nil
}

// loadLocalSources builds registry providers in parallel. A slot is nil when
// its source failed to load under the "disable" policy.
func loadLocalSources(ctx context.Context, c *config.Config, f *fetcher.Fetcher, names []string) ([]provider.Provider, error) {
	out := make([]provider.Provider, len(names))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, name := range names {
		g.Go(func() error {
			p, err := loadLocalSource(gctx, c, f, name)
			if err == nil {
				out[i] = p
				return nil
			}
			if c.Sources.OnLoadError == "disable" {
				zap.L().Warn("source failed to load, disabling",
					zap.String("source", name),
					zap.Error(err),
				)
				return nil
			}
			return eris.Wrapf(err, "load source %s", name)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func loadLocalSource(ctx context.Context, c *config.Config, f *fetcher.Fetcher, name string) (provider.Provider, error) {
	sc := c.Sources.ByName(name)
	t, err := table.Load(ctx, f, sc.Path, sc.Sheet)
	if err != nil {
		return nil, err
	}
	if name == model.SourceTransactionRegistry {
		tp, err := provider.NewTransaction(t, sc.Columns)
		if err != nil {
			return nil, err
		}
		return tp, nil
	}

	spec, ok := provider.SpecFor(name)
	if !ok {
		return nil, eris.Errorf("no loader for source %s", name)
	}
	p, err := provider.NewExactKey(spec, t, sc.Columns)
	if err != nil {
		return nil, err
	}

	switch sc.Link {
	case "":
		return p, nil
	case "spatial":
		m, err := loadMatcher(ctx, f, c.Spatial.ReferencesPath, c.Spatial.MaxDistance)
		if err != nil {
			return nil, err
		}
		return provider.NewLinked(p, provider.NewSpatialLinker(m)), nil
	case "fuzzy":
		l, err := fuzzyLinker(ctx, c, f, p)
		if err != nil {
			return nil, err
		}
		return provider.NewLinked(p, l), nil
	default:
		return nil, eris.Errorf("source %s: unknown link method %q", name, sc.Link)
	}
}

func fuzzyLinker(ctx context.Context, c *config.Config, f *fetcher.Fetcher, p *provider.ExactKey) (*provider.FuzzyLinker, error) {
	if c.Join.ReferencesPath == "" {
		return provider.FuzzyLinkerFor(p, c.Join.MinMatched)
	}
	dir, err := table.Load(ctx, f, c.Join.ReferencesPath, "")
	if err != nil {
		return nil, err
	}
	return provider.NewFuzzyLinker(dir, c.Join.Columns, c.Join.MinMatched)
}

// loadMatcher reads reference points from a shapefile or a CSV/XLSX table.
func loadMatcher(ctx context.Context, f *fetcher.Fetcher, loc string, bound float64) (*geospatial.Matcher, error) {
	if loc == "" {
		return nil, eris.New("spatial linking needs spatial.references_path")
	}
	path, err := f.Local(ctx, loc)
	if err != nil {
		return nil, err
	}

	var points []geospatial.RefPoint
	if strings.EqualFold(filepath.Ext(path), ".shp") {
		points, err = geospatial.PointsFromShapefile(path, "")
	} else {
		var t *table.Table
		t, err = table.LoadFile(ctx, path, "")
		if err == nil {
			var skipped int
			points, skipped, err = geospatial.PointsFromTable(t)
			if skipped > 0 {
				zap.L().Warn("skipped reference points without coordinates", zap.Int("skipped", skipped))
			}
		}
	}
	if err != nil {
		return nil, err
	}
	return geospatial.NewMatcher(points, bound)
}

func initStore(ctx context.Context, c *config.Config) (store.Store, error) {
	st, err := store.Open(ctx, c.Store.Driver, c.Store.DatabaseURL, &store.PoolConfig{
		MaxConns: c.Store.MaxConns,
		MinConns: c.Store.MinConns,
	})
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
