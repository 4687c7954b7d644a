package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/opendate-cli/internal/model"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
	t.Setenv("HOME", dir)
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.True(t, cfg.KnowledgeGraph.Enabled)
	assert.Equal(t, "https://query.wikidata.org/sparql", cfg.KnowledgeGraph.Endpoint)
	assert.Equal(t, "Q84", cfg.KnowledgeGraph.LocalityQID)
	assert.Equal(t, time.Second, cfg.KnowledgeGraph.MinInterval)
	assert.Equal(t, 3, cfg.KnowledgeGraph.MaxAttempts)
	assert.Equal(t, 30*time.Second, cfg.KnowledgeGraph.Timeout)
	assert.Equal(t, 100, cfg.Batch.CheckpointInterval)
	assert.True(t, cfg.Batch.Resume)
	assert.InDelta(t, 15.0, cfg.Spatial.MaxDistance, 0.001)
	assert.Equal(t, "abort", cfg.Sources.OnLoadError)
	assert.True(t, cfg.Sources.CadastralAge.Enabled)
	assert.Equal(t, model.DefaultPriority, cfg.Priority)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
log:
  level: debug
  format: console
priority:
  - cadastral_age
  - knowledge_graph
sources:
  cadastral_age:
    path: ages.csv
    columns:
      property_reference: [UPRN, uprn]
      period: [building_age_period]
knowledge_graph:
  min_interval: 250ms
batch:
  checkpoint_interval: 10
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, []string{"cadastral_age", "knowledge_graph"}, cfg.Priority)
	assert.Equal(t, "ages.csv", cfg.Sources.CadastralAge.Path)
	assert.Equal(t, []string{"UPRN", "uprn"}, cfg.Sources.CadastralAge.Columns["property_reference"])
	assert.Equal(t, 250*time.Millisecond, cfg.KnowledgeGraph.MinInterval)
	assert.Equal(t, 10, cfg.Batch.CheckpointInterval)
	// Defaults still apply for unset values
	assert.Equal(t, 4, cfg.Batch.Concurrency)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("OPENDATE_STORE_DRIVER", "postgres")
	t.Setenv("OPENDATE_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		chdirTemp(t)
		cfg, err := Load()
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"missing user agent", func(c *Config) { c.KnowledgeGraph.UserAgent = " " }, "user_agent is required"},
		{"user agent ignored when disabled", func(c *Config) {
			c.KnowledgeGraph.Enabled = false
			c.KnowledgeGraph.UserAgent = ""
		}, ""},
		{"bad load policy", func(c *Config) { c.Sources.OnLoadError = "ignore" }, "on_load_error"},
		{"zero interval", func(c *Config) { c.Batch.CheckpointInterval = 0 }, "checkpoint_interval"},
		{"zero concurrency", func(c *Config) { c.Batch.Concurrency = 0 }, "concurrency"},
		{"zero distance", func(c *Config) { c.Spatial.MaxDistance = 0 }, "max_distance"},
		{"bad driver", func(c *Config) { c.Store.Driver = "mysql" }, "store.driver"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSourcesByName(t *testing.T) {
	var s SourcesConfig
	s.HeritageRegistry.Path = "listings.csv"

	require.NotNil(t, s.ByName(model.SourceHeritageRegistry))
	assert.Equal(t, "listings.csv", s.ByName(model.SourceHeritageRegistry).Path)
	assert.Nil(t, s.ByName(model.SourceKnowledgeGraph))
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}
